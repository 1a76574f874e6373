package errors

import stderrors "errors"

// FromError returns the first Errno in err's chain. Anything else is
// reported as ErrInternal wrapping err.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	if e, ok := asErrno(err); ok {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode reports whether err carries code.
func IsCode(err error, code int) bool {
	e, ok := asErrno(err)
	return ok && e.Code == code
}

// GetCode returns err's code, or -1 without an Errno in the chain.
func GetCode(err error) int {
	if e, ok := asErrno(err); ok {
		return e.Code
	}
	return -1
}

func asErrno(err error) (*Errno, bool) {
	var e *Errno
	ok := stderrors.As(err, &e)
	return e, ok
}
