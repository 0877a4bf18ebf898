package linker

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/srehub/internal/source"
)

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name string
		ann  source.Annotation
		want Reference
		ok   bool
	}{
		{
			name: "cloud url",
			ann: source.Annotation{
				URL:         "https://acme.atlassian.net/browse/PROJ-123",
				DisplayName: "PROJ-123",
			},
			want: Reference{Key: "PROJ-123", BaseURL: "https://acme.atlassian.net"},
			ok:   true,
		},
		{
			name: "self-hosted browse url",
			ann: source.Annotation{
				URL:         "https://jira.corp.example.com/browse/OPS-7",
				DisplayName: "OPS-7",
			},
			want: Reference{Key: "OPS-7", BaseURL: "https://jira.corp.example.com"},
			ok:   true,
		},
		{
			name: "bare key in display name",
			ann:  source.Annotation{DisplayName: "ABC2-99"},
			want: Reference{Key: "ABC2-99"},
			ok:   true,
		},
		{
			name: "unrelated url",
			ann: source.Annotation{
				URL:         "https://github.com/acme/repo/pull/42",
				DisplayName: "PR #42",
			},
			ok: false,
		},
		{
			name: "lowercase key rejected",
			ann:  source.Annotation{DisplayName: "proj-123"},
			ok:   false,
		},
		{
			name: "key embedded in prose rejected",
			ann:  source.Annotation{DisplayName: "see PROJ-123 for details"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAnnotation(tt.ann)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("reference mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAnnotationsDeduplicates(t *testing.T) {
	annotations := []source.Annotation{
		{URL: "https://acme.atlassian.net/browse/PROJ-1", DisplayName: "PROJ-1"},
		{DisplayName: "PROJ-2"},
		{URL: "https://acme.atlassian.net/browse/PROJ-1", DisplayName: "PROJ-1"},
		{URL: "https://github.com/acme/repo/issues/3", DisplayName: "gh-3"},
	}

	refs := ParseAnnotations(annotations)
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = r.Key
	}
	want := []string{"PROJ-1", "PROJ-2"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectKeyOf(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"PROJ-123", "PROJ"},
		{"AB2C-1", "AB2C"},
		{"not-a-key", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ProjectKeyOf(tt.key); got != tt.want {
			t.Errorf("ProjectKeyOf(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
