package polls

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("poll not found")
	// ErrAlreadySent is returned by a guarded update when another evaluator
	// already recorded a delivery for the same day.
	ErrAlreadySent = errors.New("poll already handled for this day")
	// ErrSuperseded is returned by an update bound to one delivery when the
	// poll was sent again since.
	ErrSuperseded = errors.New("poll delivery superseded")
	ErrTitleTaken = errors.New("poll title already taken")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
