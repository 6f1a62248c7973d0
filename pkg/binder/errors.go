package binder

import (
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
)

// Stage names the callback a handler failure came from.
type Stage string

const (
	StageOpen    Stage = "open"
	StageMessage Stage = "message"
)

// HandlerError wraps a failure raised by an application handler. Panics are
// converted into a HandlerError with Panic set.
type HandlerError struct {
	Stage Stage
	Err   error
	Panic any
	Stack []byte
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s handler panicked: %v", e.Stage, e.Panic)
	}
	return fmt.Sprintf("%s handler failed: %v", e.Stage, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Cause() error { return e.Err }

// invoke runs fn and turns both an error return and a panic into a
// *HandlerError.
func invoke(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			herr := &HandlerError{Stage: stage, Panic: r, Stack: debug.Stack()}
			if e, ok := r.(error); ok {
				herr.Err = e
			} else {
				herr.Err = errors.Errorf("panic: %v", r)
			}
			err = herr
		}
	}()
	if ferr := fn(); ferr != nil {
		return &HandlerError{Stage: stage, Err: ferr}
	}
	return nil
}
