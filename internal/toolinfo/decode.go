package toolinfo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedDocument is returned for JSON documents that are neither an
// object nor an array.
var ErrUnsupportedDocument = errors.New("toolinfo document must be an object or an array")

// Decode parses a toolinfo document. A top-level object is the legacy
// single-tool form and is returned as a one-element list. Array entries that
// are not objects are skipped.
func Decode(body []byte) ([]RawToolInfo, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("decode toolinfo: %w", ErrUnsupportedDocument)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode toolinfo: %w", err)
	}
	switch v := doc.(type) {
	case map[string]any:
		return []RawToolInfo{v}, nil
	case []any:
		out := make([]RawToolInfo, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode toolinfo: %w", ErrUnsupportedDocument)
	}
}
