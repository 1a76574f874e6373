// Package response writes the JSON envelope shared by every chainrag route:
//
//	{"code": 0, "message": "success", "data": {...}, "request_id": "..."}
//
// A non-zero code is a registered error code from pkg/utils/errors.
package response

import (
	"net/http"

	"github.com/kart-io/chainrag/pkg/utils/errors"
)

// Response is the envelope.
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	status int
}

// Status used for codes that are not registered in this process, for
// example when a client decodes an envelope from a newer server.
var categoryStatus = map[int]int{
	errors.CategoryRequest:   http.StatusBadRequest,
	errors.CategoryAuth:      http.StatusUnauthorized,
	errors.CategoryResource:  http.StatusNotFound,
	errors.CategoryRateLimit: http.StatusTooManyRequests,
	errors.CategoryNetwork:   http.StatusServiceUnavailable,
	errors.CategoryTimeout:   http.StatusGatewayTimeout,
}

// Success wraps data in a code 0 envelope.
func Success(data any) *Response {
	return &Response{Message: "success", Data: data, status: http.StatusOK}
}

// Err builds an error envelope with the English message.
func Err(e *errors.Errno) *Response {
	return ErrWithLang(e, "")
}

// ErrWithLang builds an error envelope localized for an Accept-Language
// value. A nil e is a success.
func ErrWithLang(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, Message: e.Message(lang), status: e.HTTPStatus()}
}

// WithRequestID sets the request id and returns r.
func (r *Response) WithRequestID(id string) *Response {
	r.RequestID = id
	return r
}

// IsSuccess reports a zero code.
func (r *Response) IsSuccess() bool { return r.Code == 0 }

// HTTPStatus returns the status to write for r.
func (r *Response) HTTPStatus() int {
	switch {
	case r.status != 0:
		return r.status
	case r.Code == 0:
		return http.StatusOK
	}
	if e, ok := errors.Lookup(r.Code); ok {
		return e.HTTPStatus()
	}
	if s, ok := categoryStatus[errors.GetCategory(r.Code)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
