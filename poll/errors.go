package poll

import (
	"errors"
	"fmt"
)

var (
	ErrPollNotFound = errors.New("poll not found")
	ErrNoFreeID     = errors.New("could not find a free poll id")
	ErrPollFailed   = errors.New("poll operation failed")
	ErrTooManyOpts  = fmt.Errorf("a poll supports at most %d options", MaxOptions)
)

// OpError wraps a transport failure that broke a poll operation. It matches
// ErrPollFailed with errors.Is.
type OpError struct {
	Op     string
	PollID string
	Err    error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	if e.PollID == "" {
		return fmt.Sprintf("could not %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("could not %s (poll %s): %v", e.Op, e.PollID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool { return target == ErrPollFailed }
