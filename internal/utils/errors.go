package utils

import "fmt"

// OpError tags a failure with the operation and a human-facing message.
type OpError struct {
	Op  string
	Msg string
	Err error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp constructs an OpError.
func WrapOp(op, msg string, err error) error {
	return &OpError{Op: op, Msg: msg, Err: err}
}
