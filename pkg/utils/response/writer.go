package response

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/chainrag/pkg/utils/errors"
	"github.com/kart-io/chainrag/pkg/utils/json"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

const contentTypeJSON = "application/json; charset=utf-8"

// OK writes a success envelope.
func OK(c *gin.Context, data interface{}) {
	write(c, Success(data))
}

// Fail writes an error envelope for err. Non-Errno errors become ErrInternal.
func Fail(c *gin.Context, err error) {
	write(c, ErrWithLang(errors.FromError(err), c.GetHeader("Accept-Language")))
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}

func write(c *gin.Context, r *Response) {
	r.WithRequestID(c.GetString(RequestIDKey))
	body, err := json.Marshal(r)
	if err != nil {
		c.Status(errors.ErrInternal.HTTPStatus())
		return
	}
	c.Data(r.HTTPStatus(), contentTypeJSON, body)
}
