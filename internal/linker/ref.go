// Package linker correlates issues across systems: it parses tracker
// references out of error-tracker annotations, materializes the
// referenced tickets locally, and records cross-links between them.
package linker

import (
	"regexp"

	"github.com/nhle/srehub/internal/source"
)

// Reference is one tracker ticket reference extracted from an
// annotation.
type Reference struct {
	// Key is the ticket key (e.g. PROJ-123).
	Key string

	// BaseURL is the tracker root the reference points at, when the
	// annotation carried a URL. Empty for bare-key references.
	BaseURL string
}

// The patterns are tried in order; the first match wins. Cloud URLs
// are recognized before generic browse URLs so the site name is
// captured, and a bare key in the display name is the last resort.
var (
	cloudURLPattern   = regexp.MustCompile(`(https?://[^.]+\.atlassian\.net)/browse/([A-Z][A-Z0-9]+-\d+)`)
	browseURLPattern  = regexp.MustCompile(`(https?://[^/\s]+)/browse/([A-Z][A-Z0-9]+-\d+)`)
	bareKeyPattern    = regexp.MustCompile(`^([A-Z][A-Z0-9]+-\d+)$`)
	projectKeyPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]+)-\d+$`)
)

// ParseAnnotation extracts a tracker reference from one annotation.
// Returns false when the annotation does not reference a ticket.
func ParseAnnotation(ann source.Annotation) (Reference, bool) {
	if m := cloudURLPattern.FindStringSubmatch(ann.URL); m != nil {
		return Reference{Key: m[2], BaseURL: m[1]}, true
	}
	if m := browseURLPattern.FindStringSubmatch(ann.URL); m != nil {
		return Reference{Key: m[2], BaseURL: m[1]}, true
	}
	if m := bareKeyPattern.FindStringSubmatch(ann.DisplayName); m != nil {
		return Reference{Key: m[1]}, true
	}
	return Reference{}, false
}

// ParseAnnotations extracts references from a list of annotations,
// deduplicated by key preserving the order of first occurrence.
func ParseAnnotations(annotations []source.Annotation) []Reference {
	seen := make(map[string]bool)
	var refs []Reference
	for _, ann := range annotations {
		ref, ok := ParseAnnotation(ann)
		if !ok || seen[ref.Key] {
			continue
		}
		seen[ref.Key] = true
		refs = append(refs, ref)
	}
	return refs
}

// ProjectKeyOf returns the project component of a ticket key
// (PROJ-123 yields PROJ).
func ProjectKeyOf(issueKey string) string {
	if m := projectKeyPattern.FindStringSubmatch(issueKey); m != nil {
		return m[1]
	}
	return ""
}
