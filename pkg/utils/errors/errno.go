// Package errors defines the registered error codes returned by chainrag.
//
// A code has seven digits, AABBCCC: service (AA), category (BB) and a
// sequence within the category (CCC). Lower layers return plain Go errors
// and the business layer maps them to an *Errno once, so every error that
// reaches a handler carries a stable code and an HTTP status.
//
//	return errors.ErrValidation.WithMessage("text is required")
//	return errors.ErrUpstreamUnavailable.WithCause(err)
package errors

import (
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
)

// Errno is a registered error. Registered values are shared; the With*
// methods return copies.
type Errno struct {
	Code      int        `json:"code"`
	HTTP      int        `json:"-"`
	GRPCCode  codes.Code `json:"-"`
	MessageEN string     `json:"message"`
	MessageZH string     `json:"message_zh,omitempty"`

	cause error
}

// New creates an Errno without registering it.
func New(code int, httpStatus int, grpcCode codes.Code, messageEN, messageZH string) *Errno {
	return &Errno{Code: code, HTTP: httpStatus, GRPCCode: grpcCode, MessageEN: messageEN, MessageZH: messageZH}
}

func (e *Errno) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("errno %d: %s", e.Code, e.MessageEN)
	}
	return fmt.Sprintf("errno %d: %s: %v", e.Code, e.MessageEN, e.cause)
}

func (e *Errno) Unwrap() error { return e.cause }

// Cause returns the wrapped error, nil if none.
func (e *Errno) Cause() error { return e.cause }

// Is matches any Errno with the same code, so a copy made by WithCause or
// WithMessage still satisfies errors.Is against the registered value.
func (e *Errno) Is(target error) bool {
	t, ok := target.(*Errno)
	return ok && t.Code == e.Code
}

// WithCause returns a copy wrapping cause.
func (e *Errno) WithCause(cause error) *Errno {
	c := *e
	c.cause = cause
	return &c
}

// WithMessage returns a copy with msg as the English message.
func (e *Errno) WithMessage(msg string) *Errno {
	c := *e
	c.MessageEN = msg
	return &c
}

// WithMessagef is WithMessage with formatting.
func (e *Errno) WithMessagef(format string, args ...any) *Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Message picks the message for an Accept-Language value. The first
// listed language wins; anything but Chinese gets English.
func (e *Errno) Message(lang string) string {
	primary, _, _ := strings.Cut(lang, ",")
	primary, _, _ = strings.Cut(primary, ";")
	primary = strings.ToLower(strings.TrimSpace(primary))
	if e.MessageZH != "" && (primary == "zh" || strings.HasPrefix(primary, "zh-") || strings.HasPrefix(primary, "zh_")) {
		return e.MessageZH
	}
	return e.MessageEN
}

// HTTPStatus defaults to 500 when unset.
func (e *Errno) HTTPStatus() int {
	if e.HTTP == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTP
}

// GRPCStatus defaults to Internal when unset.
func (e *Errno) GRPCStatus() codes.Code {
	if e.GRPCCode == codes.OK {
		return codes.Internal
	}
	return e.GRPCCode
}

// Format prints the status codes and the cause chain for %+v.
func (e *Errno) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		fmt.Fprintf(s, "errno %d [HTTP %d, gRPC %s]: %s", e.Code, e.HTTPStatus(), e.GRPCStatus(), e.MessageEN)
		if e.cause != nil {
			fmt.Fprintf(s, "\ncaused by: %+v", e.cause)
		}
	case verb == 'q':
		fmt.Fprintf(s, "%q", e.Error())
	default:
		fmt.Fprint(s, e.Error())
	}
}
