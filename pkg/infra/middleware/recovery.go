package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	mwopts "github.com/kart-io/chainrag/pkg/options/middleware"
	"github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/utils/response"
)

// Recovery turns a handler panic into an ErrPanic envelope. The stack is
// always logged and is echoed to the client only when enabled outside gin
// release mode. http.ErrAbortHandler is re-raised so net/http can drop the
// connection.
func Recovery(opts mwopts.RecoveryOptions) gin.HandlerFunc {
	withStack := opts.EnableStackTrace && gin.Mode() != gin.ReleaseMode
	if opts.EnableStackTrace && !withStack {
		logger.Warn("Panic stack traces are only logged in release mode")
	}

	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && stderrors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			stack := debug.Stack()
			logger.Errorw("Recovered from panic",
				"panic", fmt.Sprint(r),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", GetRequestID(c.Request.Context()),
				"stack", string(stack),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			msg := fmt.Sprintf("panic: %v", r)
			if withStack {
				msg += "\n" + string(stack)
			}
			response.Abort(c, errors.ErrPanic.WithMessage(msg))
		}()
		c.Next()
	}
}
