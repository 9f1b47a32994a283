// Package toolinfo turns raw toolinfo documents into canonical tool records.
//
// A toolinfo document is either a single JSON object (the legacy schema) or a
// JSON array of objects. Documents in the wild mix schema versions, so the
// Normalizer coerces every known field into one shape before records are
// compared against the inventory.
package toolinfo

import (
	"encoding/json"
	"fmt"
)

// RawToolInfo is a single toolinfo object as decoded from JSON.
type RawToolInfo map[string]any

// Author identifies one author of a tool.
type Author struct {
	Name              string `json:"name" mapstructure:"name"`
	WikiUsername      string `json:"wiki_username,omitempty" mapstructure:"wiki_username"`
	DeveloperUsername string `json:"developer_username,omitempty" mapstructure:"developer_username"`
	Email             string `json:"email,omitempty" mapstructure:"email"`
	URL               string `json:"url,omitempty" mapstructure:"url"`
}

// MultilingualURL is a URL tagged with the language of the linked content.
type MultilingualURL struct {
	Language string `json:"language" mapstructure:"language"`
	URL      string `json:"url" mapstructure:"url"`
}

// Record is the canonical form of a tool. Every list field is a slice after
// normalization, never a bare scalar.
type Record struct {
	Name          string `json:"name" mapstructure:"name"`
	Title         string `json:"title,omitempty" mapstructure:"title"`
	Subtitle      string `json:"subtitle,omitempty" mapstructure:"subtitle"`
	Description   string `json:"description,omitempty" mapstructure:"description"`
	URL           string `json:"url,omitempty" mapstructure:"url"`
	Repository    string `json:"repository,omitempty" mapstructure:"repository"`
	License       string `json:"license,omitempty" mapstructure:"license"`
	Icon          string `json:"icon,omitempty" mapstructure:"icon"`
	APIURL        string `json:"api_url,omitempty" mapstructure:"api_url"`
	BugtrackerURL string `json:"bugtracker_url,omitempty" mapstructure:"bugtracker_url"`
	TranslateURL  string `json:"translate_url,omitempty" mapstructure:"translate_url"`
	OpenhubID     string `json:"openhub_id,omitempty" mapstructure:"openhub_id"`
	WikidataQID   string `json:"wikidata_qid,omitempty" mapstructure:"wikidata_qid"`
	BotUsername   string `json:"bot_username,omitempty" mapstructure:"bot_username"`
	ReplacedBy    string `json:"replaced_by,omitempty" mapstructure:"replaced_by"`
	ToolType      string `json:"tool_type,omitempty" mapstructure:"tool_type"`
	Deprecated    bool   `json:"deprecated,omitempty" mapstructure:"deprecated"`
	Experimental  bool   `json:"experimental,omitempty" mapstructure:"experimental"`

	Keywords             []string `json:"keywords,omitempty" mapstructure:"keywords"`
	Author               []Author `json:"author,omitempty" mapstructure:"author"`
	ForWikis             []string `json:"for_wikis,omitempty" mapstructure:"for_wikis"`
	Sponsor              []string `json:"sponsor,omitempty" mapstructure:"sponsor"`
	TechnologyUsed       []string `json:"technology_used,omitempty" mapstructure:"technology_used"`
	AvailableUILanguages []string `json:"available_ui_languages,omitempty" mapstructure:"available_ui_languages"`

	DeveloperDocsURL []MultilingualURL `json:"developer_docs_url,omitempty" mapstructure:"developer_docs_url"`
	UserDocsURL      []MultilingualURL `json:"user_docs_url,omitempty" mapstructure:"user_docs_url"`
	FeedbackURL      []MultilingualURL `json:"feedback_url,omitempty" mapstructure:"feedback_url"`
	PrivacyPolicyURL []MultilingualURL `json:"privacy_policy_url,omitempty" mapstructure:"privacy_policy_url"`
	URLAlternates    []MultilingualURL `json:"url_alternates,omitempty" mapstructure:"url_alternates"`

	SchemaVersion string `json:"schema_version,omitempty" mapstructure:"schema_version"`
	LanguageCode  string `json:"language_code,omitempty" mapstructure:"language_code"`

	// Comment is free text carried through to the revision log.
	Comment string `json:"comment,omitempty" mapstructure:"comment"`
}

// Raw renders the record back into its JSON object form. Feeding the result
// to Normalize yields an identical record.
func (r Record) Raw() (RawToolInfo, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var raw RawToolInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return raw, nil
}

// Fields returns the JSON object form of the record for field-level
// comparison. The pass-through comment is excluded since it describes the
// edit rather than the tool.
func (r Record) Fields() (map[string]any, error) {
	raw, err := r.Raw()
	if err != nil {
		return nil, err
	}
	delete(raw, fieldComment)
	return raw, nil
}
