// Package uuid generates crawl run IDs.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs, so sorting IDs sorts runs
// by start time.
type Generator struct{}

// New creates a Generator.
func New() Generator {
	return Generator{}
}

// NewID implements crawler.IDGenerator.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Validate reports whether s is a UUIDv7 run ID.
func Validate(s string) error {
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	if id.Version() != 7 {
		return fmt.Errorf("run id %s is version %d, want 7", s, id.Version())
	}
	return nil
}

// Timestamp extracts the creation time embedded in a UUIDv7 run ID.
func Timestamp(s string) (time.Time, error) {
	if err := Validate(s); err != nil {
		return time.Time{}, err
	}
	id := uuid.MustParse(s)
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}
