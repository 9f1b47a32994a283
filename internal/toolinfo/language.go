package toolinfo

import (
	"strings"

	"golang.org/x/text/language"
)

// grandfathered lists the regular grandfathered tags of RFC 5646 that parse
// as ordinary subtags. Irregular ones start with a singleton.
var grandfathered = map[string]struct{}{
	"art-lojban":  {},
	"cel-gaulish": {},
	"no-bok":      {},
	"no-nyn":      {},
	"zh-guoyu":    {},
	"zh-hakka":    {},
	"zh-min":      {},
	"zh-min-nan":  {},
	"zh-xiang":    {},
}

// LanguageRegistry decides which language codes are acceptable.
type LanguageRegistry struct {
	extra map[string]struct{}
}

// NewLanguageRegistry builds a registry backed by the CLDR data in
// golang.org/x/text. Extra codes are accepted in addition to that data.
func NewLanguageRegistry(extra ...string) *LanguageRegistry {
	reg := &LanguageRegistry{extra: make(map[string]struct{}, len(extra))}
	for _, code := range extra {
		code = canonicalCode(code)
		if code != "" {
			reg.extra[code] = struct{}{}
		}
	}
	return reg
}

// Known reports whether code is a recognised language code as-is: an ISO 639
// language optionally followed by script, region and variant subtags.
// Private-use codes, extensions and grandfathered tags are not known unless
// registered as extras.
func (r *LanguageRegistry) Known(code string) bool {
	if code == "" {
		return false
	}
	if _, ok := r.extra[code]; ok {
		return true
	}
	if _, ok := grandfathered[code]; ok {
		return false
	}
	subtags := strings.Split(code, "-")
	if n := len(subtags[0]); n < 2 || n > 3 {
		return false
	}
	for _, sub := range subtags[1:] {
		if len(sub) == 1 {
			return false
		}
	}
	tag, err := language.Parse(code)
	if err != nil || tag == language.Und {
		return false
	}
	base, conf := tag.Base()
	if conf != language.Exact || base.IsPrivateUse() {
		return false
	}
	if script, conf := tag.Script(); conf == language.Exact && script.IsPrivateUse() {
		return false
	}
	if region, conf := tag.Region(); conf == language.Exact && region.IsPrivateUse() {
		return false
	}
	return true
}

// Lookup lowercases code and strips trailing subtags until a known code is
// found. The second return value is false when nothing matched.
func (r *LanguageRegistry) Lookup(code string) (string, bool) {
	code = canonicalCode(code)
	for code != "" {
		if r.Known(code) {
			return code, true
		}
		idx := strings.LastIndex(code, "-")
		if idx < 0 {
			break
		}
		code = code[:idx]
	}
	return "", false
}

// Normalize returns the known form of code, or fallback when none exists.
func (r *LanguageRegistry) Normalize(code, fallback string) string {
	if found, ok := r.Lookup(code); ok {
		return found
	}
	return fallback
}

func canonicalCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "_", "-")
}
