package utils

import (
	"errors"
	"fmt"
)

// AppError tags a failure with the operation that produced it and a short
// description. Nested AppErrors form a trail from the API down to storage.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// OpOf returns the operation of the innermost AppError in err's chain, which
// is where the failure originated. It returns "" when there is none.
func OpOf(err error) string {
	op := ""
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			break
		}
		op = appErr.Op
		err = appErr.Err
	}
	return op
}
