package command

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCommand     = errors.New("command already registered")
	ErrDuplicateReplyWaiter = errors.New("reply waiter already registered")
	ErrEmptyCommandName     = errors.New("command name is required")
	ErrEmptyWaiterID        = errors.New("reply waiter id is required")
	ErrNilHandler           = errors.New("handler is required")
)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}
