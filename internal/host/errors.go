package host

import (
	"errors"
	"fmt"
)

var (
	ErrServiceNotFound = errors.New("host: service not found")
	ErrAlreadyRunning  = errors.New("host: supervisor already running")
)

// StartError reports a service whose Start failed, which is fatal for Run.
type StartError struct {
	Service string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("host: start service %q: %v", e.Service, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// guard converts a panic in fn into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
