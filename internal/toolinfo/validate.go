package toolinfo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingField reports a record without one of the required fields.
var ErrMissingField = errors.New("missing required field")

// Validate checks that the fields needed to ingest a record are present. It
// does not check conformance with the published JSON schema.
func Validate(rec Record) error {
	required := []struct {
		field string
		value string
	}{
		{fieldName, rec.Name},
		{"title", rec.Title},
		{"description", rec.Description},
		{"url", rec.URL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, r.field)
		}
	}
	return nil
}

// IsValid reports whether Validate accepts rec.
func IsValid(rec Record) bool {
	return Validate(rec) == nil
}
