package scraper

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotRunning is returned by StopRun when no run is active.
	ErrNotRunning = errors.New("no scrape run is active")
	// ErrNotFound marks an article that does not exist at the source.
	ErrNotFound = errors.New("article not found")
	// ErrRunTerminal is returned when progress is recorded on a finished run.
	ErrRunTerminal = errors.New("run already finished")
)

// ConflictError is returned when a run is requested while another is active.
type ConflictError struct {
	RunID uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scrape run %s is already in progress", e.RunID)
}

// UnknownSourceError is returned for a source missing from the registry.
type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q", e.Source)
}

// UnsupportedModeError is returned when a source cannot run in the requested mode.
type UnsupportedModeError struct {
	Source string
	Mode   string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("source %q does not support %s", e.Source, e.Mode)
}

// InvalidRangeError is returned for malformed or oversized id ranges.
type InvalidRangeError struct {
	StartID int64
	EndID   int64
	Reason  string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %d..%d: %s", e.StartID, e.EndID, e.Reason)
}

// TransientFetchError wraps a fetch failure that may succeed on retry.
type TransientFetchError struct {
	Err error
	// RetryAfter is the server-requested delay, zero when unspecified.
	RetryAfter time.Duration
}

func (e *TransientFetchError) Error() string {
	return "transient fetch error: " + e.Err.Error()
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientFetchError.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientFetchError{Err: err}
}

// FatalRunError wraps a failure that must terminate the run.
type FatalRunError struct {
	Err error
}

func (e *FatalRunError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalRunError) Unwrap() error { return e.Err }

// IsTransient reports whether err is, or wraps, a TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// RetryAfter returns the server-requested retry delay carried by err.
func RetryAfter(err error) time.Duration {
	var te *TransientFetchError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
