package jira

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nhle/srehub/internal/model"
)

func TestNormalizeStatusCategory(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"new", model.StatusCategoryNew},
		{"undefined", model.StatusCategoryNew},
		{"", model.StatusCategoryNew},
		{"indeterminate", model.StatusCategoryInProgress},
		{"done", model.StatusCategoryDone},
		{"Done", model.StatusCategoryDone},
		{"something-else", model.StatusCategoryNew},
	}
	for _, tt := range tests {
		if got := normalizeStatusCategory(tt.key); got != tt.want {
			t.Errorf("normalizeStatusCategory(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestParseJiraTime(t *testing.T) {
	got := parseJiraTime("2026-03-15T09:30:00.000+0100")
	want := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parsed %v, want %v", got, want)
	}

	if got := parseJiraTime(""); !got.IsZero() {
		t.Errorf("empty input parsed to %v", got)
	}
	if got := parseJiraTime("not a timestamp"); !got.IsZero() {
		t.Errorf("garbage input parsed to %v", got)
	}
}

func TestADFToText(t *testing.T) {
	doc := `{
		"type": "doc",
		"content": [
			{"type": "paragraph", "content": [
				{"type": "text", "text": "First line."}
			]},
			{"type": "paragraph", "content": [
				{"type": "text", "text": "Second "},
				{"type": "text", "text": "line."}
			]}
		]
	}`
	got := adfToText(json.RawMessage(doc))
	want := "First line.\nSecond line."
	if got != want {
		t.Errorf("adfToText = %q, want %q", got, want)
	}

	if got := adfToText(json.RawMessage(`"plain description"`)); got != "plain description" {
		t.Errorf("plain string description = %q", got)
	}
	if got := adfToText(nil); got != "" {
		t.Errorf("nil description = %q", got)
	}
}
