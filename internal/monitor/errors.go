package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownResource is returned when a threshold key is not recognized
	ErrUnknownResource = errors.New("unknown threshold resource")

	// ErrInvalidThreshold is returned when a threshold value is not a finite number
	ErrInvalidThreshold = errors.New("invalid threshold value")

	// ErrPollInProgress is returned when a manual poll overlaps a running cycle
	ErrPollInProgress = errors.New("poll already in progress")

	// ErrNilSnapshot is returned when a source yields no snapshot and no error
	ErrNilSnapshot = errors.New("source returned no snapshot")

	// ErrAlreadyStarted is returned when Start is called on a running poll loop
	ErrAlreadyStarted = errors.New("poll loop already started")
)

// FetchError wraps a failure to retrieve a snapshot from a status source
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch from %s: server returned %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
