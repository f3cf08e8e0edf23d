package util

import (
	"fmt"
	"runtime"
)

const maxStacksize = 8 * 1024

// PanicError is a recovered panic turned into an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func panicError(p any) *PanicError {
	stack := make([]byte, maxStacksize)
	return &PanicError{Value: p, Stack: stack[:runtime.Stack(stack, false)]}
}

// RecoverPanic is a helper function to recover from panic and return an error.
func RecoverPanic(f func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = panicError(p)
			}
		}()
		return f()
	}
}
