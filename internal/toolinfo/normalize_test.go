package toolinfo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func legacyDocument() RawToolInfo {
	return RawToolInfo{
		"name":          "toolforge.Hay Tools",
		"title":         "Hay's tools",
		"description":   "Tools for Wikimedia projects",
		"url":           "https://hay.toolforge.org/",
		"keywords":      "Wikidata, SPARQL , ,Tools",
		"author":        "Hay Kranen",
		"$schema":       "https://toolhub.wikimedia.org/schema/1.1.0",
		"$language":     "EN_gb",
		"for_wikis":     "*",
		"user_docs_url": "https://example.org/docs",
		"feedback_url": []any{
			map[string]any{"language": "DE", "url": "https://example.org/de"},
			map[string]any{"language": "fr"},
			"https://example.org/feedback",
		},
		"available_ui_languages": []any{"en", "klingon!", "de-AT", 7},
		"unknown_field":          1,
		"comment":                "imported",
		"deprecated":             "yes",
		"experimental":           true,
	}
}

func TestNormalizeLegacyDocument(t *testing.T) {
	t.Parallel()

	got := NewNormalizer(nil, zap.NewNop()).Normalize(legacyDocument(), "en")
	want := Record{
		Name:          "toolforge-hay-tools",
		Title:         "Hay's tools",
		Description:   "Tools for Wikimedia projects",
		URL:           "https://hay.toolforge.org/",
		Experimental:  true,
		Keywords:      []string{"wikidata", "sparql", "tools"},
		Author:        []Author{{Name: "Hay Kranen"}},
		ForWikis:      []string{"*"},
		UserDocsURL:   []MultilingualURL{{Language: "en", URL: "https://example.org/docs"}},
		SchemaVersion: "https://toolhub.wikimedia.org/schema/1.1.0",
		LanguageCode:  "en-gb",
		FeedbackURL: []MultilingualURL{
			{Language: "de", URL: "https://example.org/de"},
			{Language: "en", URL: "https://example.org/feedback"},
		},
		AvailableUILanguages: []string{"en", "de-at"},
		Comment:              "imported",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("normalized record mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	docs := []RawToolInfo{
		legacyDocument(),
		{
			"name":           "already-clean",
			"title":          "Clean",
			"description":    "d",
			"url":            "https://example.org",
			"keywords":       []any{"Mixed", "Case"},
			"schema_version": "1.2.0",
			"language_code":  "fr",
			"author": []any{
				map[string]any{"name": "A", "email": "a@example.org", "url": 3},
				map[string]any{"email": "nameless@example.org"},
			},
			"url_alternates": map[string]any{"language": "sr-Latn-zz99", "url": "https://example.rs"},
		},
		{"name": 42, "title": []any{"not", "a", "string"}},
		{},
	}
	n := NewNormalizer(nil, nil)
	for _, doc := range docs {
		once := n.Normalize(doc, "en")
		raw, err := once.Raw()
		require.NoError(t, err)
		twice := n.Normalize(raw, "en")
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("normalize not idempotent (-once +twice):\n%s", diff)
		}
	}
}

func TestNormalizeKeywordListPassesThroughUnchanged(t *testing.T) {
	t.Parallel()

	rec := Normalize(RawToolInfo{"keywords": []any{"Mixed", "Case", 3}}, "en")
	require.Equal(t, []string{"Mixed", "Case"}, rec.Keywords)
}

func TestNormalizeLanguageFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code any
		want string
	}{
		{name: "missing", code: nil, want: "en"},
		{name: "uppercase", code: "DE", want: "de"},
		{name: "strip unknown subtag", code: "de-CH-zz99", want: "de-ch"},
		{name: "unparseable", code: "klingon!", want: "en"},
		{name: "wrong type", code: 12, want: "en"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := RawToolInfo{"name": "x"}
			if tt.code != nil {
				raw["language_code"] = tt.code
			}
			require.Equal(t, tt.want, Normalize(raw, "en").LanguageCode)
		})
	}
}

func TestNormalizeCanonicalKeyWinsOverLegacy(t *testing.T) {
	t.Parallel()

	rec := Normalize(RawToolInfo{
		"$schema":        "legacy",
		"schema_version": "1.2.0",
	}, "en")
	require.Equal(t, "1.2.0", rec.SchemaVersion)
}

func TestNormalizeURLMultilingualDropsEntriesWithoutURL(t *testing.T) {
	t.Parallel()

	rec := Normalize(RawToolInfo{
		"privacy_policy_url": []any{
			map[string]any{"language": "en"},
			map[string]any{"url": ""},
			"",
		},
	}, "en")
	require.Nil(t, rec.PrivacyPolicyURL)
}

func TestNormalizeExtraLanguages(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(NewLanguageRegistry("klingon!"), nil)
	rec := n.Normalize(RawToolInfo{
		"language_code":          "KLINGON!",
		"available_ui_languages": "klingon!",
	}, "en")
	require.Equal(t, "klingon!", rec.LanguageCode)
	require.Equal(t, []string{"klingon!"}, rec.AvailableUILanguages)
}
