package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores and the engine.
var (
	ErrToolNotFound       = errors.New("tool not found")
	ErrInvariantViolation = errors.New("invariant field changed")
	ErrRunInProgress      = errors.New("crawl run already in progress")
	ErrRunNotFound        = errors.New("crawl run not found")
	ErrTargetExists       = errors.New("crawl target already registered")
	ErrTargetNotFound     = errors.New("crawl target not found")
)

// FetchError describes why a target produced no usable records.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// RecordError is a failure scoped to one tool record.
type RecordError struct {
	Name string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Name, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
