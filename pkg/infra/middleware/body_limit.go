package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	mwopts "github.com/kart-io/chainrag/pkg/options/middleware"
	"github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/utils/response"
)

// BodyLimit rejects requests whose declared Content-Length exceeds the limit
// and caps the bytes a handler can read from the body. Handlers see an
// *http.MaxBytesError when a body without Content-Length runs over.
func BodyLimit(opts mwopts.BodyLimitOptions) gin.HandlerFunc {
	if opts.MaxSize <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		req := c.Request
		if req.ContentLength > opts.MaxSize {
			logger.Warnw("Request body too large",
				"path", req.URL.Path,
				"content_length", req.ContentLength,
				"max_size", opts.MaxSize,
			)
			response.Abort(c, errors.ErrRequestTooLarge)
			return
		}
		if req.Body != nil {
			req.Body = http.MaxBytesReader(c.Writer, req.Body, opts.MaxSize)
		}
		c.Next()
	}
}
