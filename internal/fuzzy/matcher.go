// Package fuzzy suggests cross-system links by comparing issue titles.
// It is the fallback correlation path for issues that carry no explicit
// tracker reference.
package fuzzy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nhle/srehub/internal/config"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/store"
)

// stopWords are dropped during keyword extraction. They carry no
// signal for matching error titles against ticket summaries.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "that": true, "the": true, "to": true,
	"was": true, "were": true, "will": true, "with": true,
	"error": true, "exception": true, "failed": true, "failure": true,
}

// Scores holds the four similarity measures computed per candidate.
// The final score is the best of the four, so a strong signal on any
// one axis is enough to surface a suggestion.
type Scores struct {
	Sequence       float64
	WordOverlap    float64
	KeywordOverlap float64
	Substring      float64
}

// Best returns the winning score and which measure produced it.
func (s Scores) Best() (float64, string) {
	best, kind := s.Sequence, "sequence"
	if s.WordOverlap > best {
		best, kind = s.WordOverlap, "word_overlap"
	}
	if s.KeywordOverlap > best {
		best, kind = s.KeywordOverlap, "keyword_overlap"
	}
	if s.Substring > best {
		best, kind = s.Substring, "substring"
	}
	return best, kind
}

// Match is one scored candidate pairing.
type Match struct {
	Candidate model.Issue
	Scores    Scores

	// Score is the best of the four measures; MatchType names it.
	Score     float64
	MatchType string

	// Confidence is "high" at or above the configured threshold,
	// otherwise "medium".
	Confidence string
}

// Suggestion groups an issue with its top-ranked matches.
type Suggestion struct {
	Issue   model.Issue
	Matches []Match
}

// maxSuggestions caps how many matches are kept per issue.
const maxSuggestions = 3

// Matcher scores title similarity between issues of different systems.
type Matcher struct {
	store *store.SQLiteStore
	cfg   config.FuzzyConfig
	log   *zap.Logger
}

// New creates a matcher with the given tuning.
func New(s *store.SQLiteStore, cfg config.FuzzyConfig, log *zap.Logger) *Matcher {
	return &Matcher{store: s, cfg: cfg, log: log}
}

// FindMatches scores an issue's title against candidates of the target
// source type using the configured similarity threshold. Titles shorter
// than the configured minimum are skipped outright; short titles
// produce junk matches.
func (m *Matcher) FindMatches(ctx context.Context, issue *model.Issue, targetType model.SourceType) ([]Match, error) {
	return m.findMatches(ctx, issue, targetType, m.cfg.MinSimilarity)
}

func (m *Matcher) findMatches(ctx context.Context, issue *model.Issue, targetType model.SourceType, threshold float64) ([]Match, error) {
	if len(issue.Title) < m.cfg.MinTitleLength {
		return nil, nil
	}
	title := CleanTitle(issue.Title)

	keywords := ExtractKeywords(issue.Title)
	if len(keywords) > m.cfg.MaxQueryKeywords {
		keywords = keywords[:m.cfg.MaxQueryKeywords]
	}

	candidates, err := m.store.SearchIssuesByKeywords(ctx, targetType, keywords, m.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("collecting match candidates: %w", err)
	}

	var matches []Match
	for i := range candidates {
		candidate := candidates[i]
		if len(candidate.Title) < m.cfg.MinTitleLength {
			continue
		}
		candTitle := CleanTitle(candidate.Title)

		scores := Scores{
			Sequence:       SequenceRatio(title, candTitle),
			WordOverlap:    wordJaccard(title, candTitle),
			KeywordOverlap: keywordJaccard(issue.Title, candidate.Title),
			Substring:      substringRatio(title, candTitle),
		}
		score, kind := scores.Best()
		if score < threshold {
			continue
		}

		confidence := "medium"
		if score >= m.cfg.HighConfidence {
			confidence = "high"
		}
		matches = append(matches, Match{
			Candidate:  candidate,
			Scores:     scores,
			Score:      score,
			MatchType:  kind,
			Confidence: confidence,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	return matches, nil
}

// ScanAndSuggest scores an organization's unlinked issues and returns
// the issues that produced at least one match. A positive threshold
// overrides the configured minimum similarity for this pass.
func (m *Matcher) ScanAndSuggest(ctx context.Context, orgID string, targetType model.SourceType, limit int, threshold float64) ([]Suggestion, error) {
	if threshold <= 0 {
		threshold = m.cfg.MinSimilarity
	}
	issues, err := m.store.ListIssues(ctx, store.IssueFilter{
		OrganizationID:  orgID,
		Limit:           limit,
		OrderByLastSeen: true,
	})
	if err != nil {
		return nil, err
	}

	linked, err := m.store.LinkedIssueIDs(ctx)
	if err != nil {
		return nil, err
	}

	var suggestions []Suggestion
	for i := range issues {
		if linked[issues[i].ID] {
			continue
		}
		matches, err := m.findMatches(ctx, &issues[i], targetType, threshold)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Issue:   issues[i],
			Matches: matches,
		})
	}

	m.log.Info("fuzzy scan complete",
		zap.Int("issues", len(issues)),
		zap.Int("suggestions", len(suggestions)),
	)
	return suggestions, nil
}

// CreateLinks records a cross-link for every suggestion whose best
// match clears the auto-create threshold. Returns how many links were
// created.
func (m *Matcher) CreateLinks(ctx context.Context, suggestions []Suggestion) (int, error) {
	created := 0
	for _, suggestion := range suggestions {
		if len(suggestion.Matches) == 0 {
			continue
		}
		best := suggestion.Matches[0]
		if best.Score < m.cfg.AutoCreateMinScore {
			continue
		}

		link := &model.CrossLink{
			SourceIssueID: suggestion.Issue.ID,
			TargetIssueID: best.Candidate.ID,
			LinkType:      model.LinkTypeAuto,
			CreationNotes: fmt.Sprintf(
				"fuzzy title match (%s, score %.2f)", best.MatchType, best.Score),
			SyncSourceToTarget: true,
			SyncTargetToSource: true,
		}
		_, isNew, err := m.store.CreateCrossLink(ctx, link)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}
	return created, nil
}

// titlePrefixes are severity labels stripped from the front of a title
// before scoring. They inflate similarity between unrelated issues.
var titlePrefixes = []string{"error:", "exception:", "warning:", "bug:"}

// stripNoise removes leading bracketed tags and severity prefixes from
// an already lowercased title.
func stripNoise(t string) string {
	for {
		t = strings.TrimSpace(t)
		if strings.HasPrefix(t, "[") {
			if end := strings.Index(t, "]"); end >= 0 {
				t = t[end+1:]
				continue
			}
		}
		stripped := false
		for _, p := range titlePrefixes {
			if strings.HasPrefix(t, p) {
				t = t[len(p):]
				stripped = true
				break
			}
		}
		if !stripped {
			return t
		}
	}
}

// CleanTitle lowercases a title, strips leading tags and severity
// prefixes, replaces punctuation with spaces, and collapses runs of
// whitespace.
func CleanTitle(title string) string {
	title = stripNoise(strings.ToLower(title))
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExtractKeywords returns the significant words of a title: cleaned,
// stop words removed, short tokens dropped, deduplicated in order.
func ExtractKeywords(title string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, word := range strings.Fields(CleanTitle(title)) {
		if len(word) < 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// SequenceRatio is the classic matching-blocks similarity: twice the
// total matched length over the combined length. It recursively finds
// the longest common substring and matches the pieces on either side.
func SequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := matchingLength(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

func matchingLength(a, b string) int {
	aStart, bStart, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingLength(a[:aStart], b[:bStart])
	total += matchingLength(a[aStart+size:], b[bStart+size:])
	return total
}

// longestCommonSubstring returns the start offsets and length of the
// longest substring common to a and b.
func longestCommonSubstring(a, b string) (aStart, bStart, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					aStart = i - size
					bStart = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return aStart, bStart, size
}

// substringRatio scores the longest common substring against the
// shorter title, so a title fully contained in the other scores 1.
func substringRatio(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	_, _, size := longestCommonSubstring(a, b)
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}
	return float64(size) / float64(shorter)
}

// wordJaccard is set overlap over all words of both cleaned titles.
func wordJaccard(a, b string) float64 {
	return jaccard(strings.Fields(a), strings.Fields(b))
}

// keywordJaccard is set overlap over the significant keywords only.
func keywordJaccard(a, b string) float64 {
	return jaccard(ExtractKeywords(a), ExtractKeywords(b))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	union := len(set)
	intersection := 0
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if seen[w] {
			continue
		}
		seen[w] = true
		if set[w] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
