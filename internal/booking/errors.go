package booking

import (
	"errors"
	"fmt"
)

// Code is the stable reason string surfaced to clients.
type Code string

const (
	CodeInvalidQuantity       Code = "INVALID_QUANTITY"
	CodeNoSeatsSelected       Code = "NO_SEATS_SELECTED"
	CodeSeatCountMismatch     Code = "SEAT_COUNT_MISMATCH"
	CodeQuantityLimitExceeded Code = "QUANTITY_LIMIT_EXCEEDED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeAlreadySold           Code = "ALREADY_SOLD"
	CodeConflict              Code = "CONFLICT"
	CodeRetryExhausted        Code = "RETRY_EXHAUSTED"
	CodeForbidden             Code = "FORBIDDEN"
)

// Kind groups codes the way callers react to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindAlreadySold
	KindConflict
	KindAuthorization
)

// Kind returns the category of c.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidQuantity, CodeNoSeatsSelected, CodeSeatCountMismatch, CodeQuantityLimitExceeded:
		return KindValidation
	case CodeNotFound:
		return KindNotFound
	case CodeAlreadySold:
		return KindAlreadySold
	case CodeConflict, CodeRetryExhausted:
		return KindConflict
	case CodeForbidden:
		return KindAuthorization
	}
	return 0
}

// Error is returned by every booking operation that fails for a business
// reason.  Infrastructure failures are returned as plain wrapped errors.
type Error struct {
	Code    Code
	Message string
	SeatID  uint64 // set for ALREADY_SOLD
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidQuantity       = &Error{Code: CodeInvalidQuantity}
	ErrNoSeatsSelected       = &Error{Code: CodeNoSeatsSelected}
	ErrSeatCountMismatch     = &Error{Code: CodeSeatCountMismatch}
	ErrQuantityLimitExceeded = &Error{Code: CodeQuantityLimitExceeded}
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrAlreadySold           = &Error{Code: CodeAlreadySold}
	ErrConflict              = &Error{Code: CodeConflict}
	ErrRetryExhausted        = &Error{Code: CodeRetryExhausted}
	ErrForbidden             = &Error{Code: CodeForbidden}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of a booking error, or "" for anything else.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
