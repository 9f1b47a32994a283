package toolinfo

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
)

// DefaultLanguage is used when a document does not declare a usable language.
const DefaultLanguage = "en"

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindStringList
	kindAuthorList
	kindURLList
)

const (
	fieldName                 = "name"
	fieldKeywords             = "keywords"
	fieldAuthor               = "author"
	fieldAvailableUILanguages = "available_ui_languages"
	fieldSchemaVersion        = "schema_version"
	fieldLanguageCode         = "language_code"
	fieldComment              = "comment"

	legacyFieldSchema   = "$schema"
	legacyFieldLanguage = "$language"
)

// schema lists every key a Record carries. Anything else is stripped.
var schema = map[string]fieldKind{
	fieldName:                 kindString,
	"title":                   kindString,
	"subtitle":                kindString,
	"description":             kindString,
	"url":                     kindString,
	"repository":              kindString,
	"license":                 kindString,
	"icon":                    kindString,
	"api_url":                 kindString,
	"bugtracker_url":          kindString,
	"translate_url":           kindString,
	"openhub_id":              kindString,
	"wikidata_qid":            kindString,
	"bot_username":            kindString,
	"replaced_by":             kindString,
	"tool_type":               kindString,
	"deprecated":              kindBool,
	"experimental":            kindBool,
	fieldKeywords:             kindStringList,
	fieldAuthor:               kindAuthorList,
	"for_wikis":               kindStringList,
	"sponsor":                 kindStringList,
	"technology_used":         kindStringList,
	fieldAvailableUILanguages: kindStringList,
	"developer_docs_url":      kindURLList,
	"user_docs_url":           kindURLList,
	"feedback_url":            kindURLList,
	"privacy_policy_url":      kindURLList,
	"url_alternates":          kindURLList,
	fieldSchemaVersion:        kindString,
	fieldLanguageCode:         kindString,
	fieldComment:              kindString,
}

var legacyRenames = map[string]string{
	legacyFieldSchema:   fieldSchemaVersion,
	legacyFieldLanguage: fieldLanguageCode,
}

// Normalizer applies the canonicalization rules to raw toolinfo objects.
type Normalizer struct {
	languages *LanguageRegistry
	logger    *zap.Logger
}

// NewNormalizer constructs a Normalizer. A nil registry uses the default one.
func NewNormalizer(languages *LanguageRegistry, logger *zap.Logger) *Normalizer {
	if languages == nil {
		languages = NewLanguageRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{languages: languages, logger: logger}
}

// Normalize canonicalizes raw using the default registry and no logging.
func Normalize(raw RawToolInfo, defaultLanguage string) Record {
	return NewNormalizer(nil, nil).Normalize(raw, defaultLanguage)
}

// Normalize converts raw into a Record. It never fails: values that cannot be
// coerced into their field's shape are dropped. Applying it to Record.Raw of
// its own output returns the same Record.
func (n *Normalizer) Normalize(raw RawToolInfo, defaultLanguage string) Record {
	if defaultLanguage == "" {
		defaultLanguage = DefaultLanguage
	}
	doc := make(map[string]any, len(raw))
	for key, value := range raw {
		doc[key] = value
	}
	renameLegacyFields(doc)

	name, _ := doc[fieldName].(string)
	if name != "" {
		doc[fieldName] = FixName(name)
	}

	doc[fieldLanguageCode] = n.language(stringValue(doc[fieldLanguageCode]), defaultLanguage, name)

	for key, value := range doc {
		kind, known := schema[key]
		if !known {
			delete(doc, key)
			continue
		}
		cleaned, ok := n.coerce(key, kind, value, defaultLanguage)
		if !ok {
			n.logger.Debug("dropping malformed toolinfo field",
				zap.String("tool", name),
				zap.String("field", key),
			)
			delete(doc, key)
			continue
		}
		if list, isList := cleaned.([]any); isList && len(list) == 0 {
			delete(doc, key)
			continue
		}
		doc[key] = cleaned
	}

	var rec Record
	if err := mapstructure.Decode(doc, &rec); err != nil {
		// Values are pre-shaped above, so this only trips on a schema/struct mismatch.
		n.logger.Warn("partial toolinfo decode", zap.String("tool", name), zap.Error(err))
	}
	return rec
}

func renameLegacyFields(doc map[string]any) {
	for legacy, canonical := range legacyRenames {
		value, ok := doc[legacy]
		if !ok {
			continue
		}
		delete(doc, legacy)
		if _, exists := doc[canonical]; !exists {
			doc[canonical] = value
		}
	}
}

func (n *Normalizer) language(code, defaultLanguage, tool string) string {
	if code == "" {
		return defaultLanguage
	}
	found, ok := n.languages.Lookup(code)
	if !ok {
		n.logger.Info("unknown language code, using default",
			zap.String("tool", tool),
			zap.String("language", code),
			zap.String("default", defaultLanguage),
		)
		return defaultLanguage
	}
	return found
}

func (n *Normalizer) coerce(key string, kind fieldKind, value any, defaultLanguage string) (any, bool) {
	switch kind {
	case kindString:
		s, ok := value.(string)
		return s, ok
	case kindBool:
		b, ok := value.(bool)
		return b, ok
	case kindStringList:
		switch key {
		case fieldKeywords:
			return keywords(value)
		case fieldAvailableUILanguages:
			return n.uiLanguages(value), true
		}
		return stringList(value), true
	case kindAuthorList:
		return authors(value), true
	case kindURLList:
		return n.multilingualURLs(value, defaultLanguage), true
	}
	return nil, false
}

// keywords splits the legacy comma-separated form. A list is passed through
// unchanged apart from dropping non-string entries.
func keywords(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		out := []any{}
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
		return out, true
	default:
		return stringList(v), true
	}
}

func (n *Normalizer) uiLanguages(value any) []any {
	out := []any{}
	for _, item := range asList(value) {
		code, ok := item.(string)
		if !ok {
			continue
		}
		if found, known := n.languages.Lookup(code); known {
			out = append(out, found)
		}
	}
	return out
}

func (n *Normalizer) multilingualURLs(value any, defaultLanguage string) []any {
	out := []any{}
	for _, item := range asList(value) {
		switch v := item.(type) {
		case string:
			if v == "" {
				continue
			}
			out = append(out, map[string]any{"language": defaultLanguage, "url": v})
		case map[string]any:
			u, _ := v["url"].(string)
			if u == "" {
				continue
			}
			lang := defaultLanguage
			if code, ok := v["language"].(string); ok && code != "" {
				lang = n.languages.Normalize(code, defaultLanguage)
			}
			out = append(out, map[string]any{"language": lang, "url": u})
		}
	}
	return out
}

func authors(value any) []any {
	out := []any{}
	for _, item := range asList(value) {
		switch v := item.(type) {
		case string:
			if v != "" {
				out = append(out, map[string]any{"name": v})
			}
		case map[string]any:
			name, _ := v["name"].(string)
			if name == "" {
				continue
			}
			author := map[string]any{"name": name}
			for _, key := range []string{"wiki_username", "developer_username", "email", "url"} {
				if s, ok := v[key].(string); ok && s != "" {
					author[key] = s
				}
			}
			out = append(out, author)
		}
	}
	return out
}

func stringList(value any) []any {
	out := []any{}
	for _, item := range asList(value) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// asList wraps a bare value into a one-element list.
func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

func stringValue(value any) string {
	s, _ := value.(string)
	return s
}
