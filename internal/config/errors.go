package config

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// ValidationError reports a configuration slice that failed its schema.
type ValidationError struct {
	Key string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid %q: %v", e.Key, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}
