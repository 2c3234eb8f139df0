package state

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSliceNotFound = errors.New("state: slice not found")
	ErrSliceType     = errors.New("state: slice type mismatch")
	ErrTimeout       = errors.New("state: wait timed out")
)

// SliceNotFoundError reports an operation on a name with no live slice.
type SliceNotFoundError struct {
	Name string
}

func (e *SliceNotFoundError) Error() string {
	return fmt.Sprintf("state: no slice registered under %q", e.Name)
}

func (e *SliceNotFoundError) Is(target error) bool {
	return target == ErrSliceNotFound
}

// TimeoutError reports a timed wait that expired before its predicate held.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("state: wait for %q timed out after %s", e.Name, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
