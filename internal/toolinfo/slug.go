package toolinfo

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	legacyNamePrefix = "toolforge."
	namePrefix       = "toolforge-"
)

// FixName rewrites the legacy "toolforge." prefix and slugifies the result.
func FixName(name string) string {
	if strings.HasPrefix(name, legacyNamePrefix) {
		name = namePrefix + strings.TrimPrefix(name, legacyNamePrefix)
	}
	return Slugify(name)
}

// Slugify converts s into a lowercase, URL-safe slug while keeping non-ASCII
// letters. Distinct inputs can share a slug; callers do not detect that.
func Slugify(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		}
	}
	return strings.Trim(b.String(), "-_")
}
