package toolinfo

import (
	"fmt"
	"reflect"
	"sort"
)

// Diff returns the sorted names of fields whose values differ between stored
// and incoming. Empty strings and absent values compare equal.
func Diff(stored, incoming Record) ([]string, error) {
	a, err := stored.Fields()
	if err != nil {
		return nil, fmt.Errorf("stored fields: %w", err)
	}
	b, err := incoming.Fields()
	if err != nil {
		return nil, fmt.Errorf("incoming fields: %w", err)
	}
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	var changed []string
	for k := range keys {
		if !reflect.DeepEqual(blankToNil(a[k]), blankToNil(b[k])) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func blankToNil(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}
