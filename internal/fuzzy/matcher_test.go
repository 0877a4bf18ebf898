package fuzzy

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/srehub/internal/config"
	"github.com/nhle/srehub/internal/logging"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/store"
	"github.com/nhle/srehub/internal/testutil"
)

func testConfig() config.FuzzyConfig {
	return config.FuzzyConfig{
		MinSimilarity:      0.7,
		MinTitleLength:     10,
		HighConfidence:     0.8,
		AutoCreateMinScore: 0.85,
		MaxCandidates:      100,
		MaxQueryKeywords:   5,
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NullPointerException: checkout failed!", "nullpointerexception checkout failed"},
		{"  DB   timeout (again) ", "db timeout again"},
		{"v2.1.3-rc1", "v2 1 3 rc1"},
		{"[backend] Error: payment gateway timeout", "payment gateway timeout"},
		{"Warning: disk nearly full", "disk nearly full"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanTitle(tt.in); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Error: the payment gateway timeout in payment service")
	want := []string{"payment", "gateway", "timeout", "service"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceRatio(t *testing.T) {
	if got := SequenceRatio("abc", "abc"); got != 1 {
		t.Errorf("identical strings = %v, want 1", got)
	}
	if got := SequenceRatio("abc", "xyz"); got != 0 {
		t.Errorf("disjoint strings = %v, want 0", got)
	}
	if got := SequenceRatio("", ""); got != 1 {
		t.Errorf("empty strings = %v, want 1", got)
	}

	// Partial overlap lands strictly between the extremes and is
	// symmetric.
	ab := SequenceRatio("payment gateway timeout", "payment gateway down")
	ba := SequenceRatio("payment gateway down", "payment gateway timeout")
	if ab <= 0 || ab >= 1 {
		t.Errorf("partial overlap = %v, want in (0, 1)", ab)
	}
	if ab != ba {
		t.Errorf("not symmetric: %v != %v", ab, ba)
	}

	// More shared text scores higher.
	closer := SequenceRatio("database connection timeout", "database connection timeout in api")
	farther := SequenceRatio("database connection timeout", "database migration finished")
	if closer <= farther {
		t.Errorf("ordering wrong: closer %v <= farther %v", closer, farther)
	}
}

func TestSubstringRatioContainment(t *testing.T) {
	if got := substringRatio("gateway timeout", "payment gateway timeout in checkout"); got != 1 {
		t.Errorf("contained title = %v, want 1", got)
	}
}

func TestFindMatches(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	log := logging.Nop()

	jiraOrg := &model.Organization{
		SourceType: model.SourceTypeJira, Name: "jira", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	sentryOrg := &model.Organization{
		SourceType: model.SourceTypeSentry, Name: "sentry", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	for _, org := range []*model.Organization{jiraOrg, sentryOrg} {
		if err := s.UpsertOrganization(ctx, org); err != nil {
			t.Fatalf("seeding org: %v", err)
		}
	}
	jp := &model.Project{OrganizationID: jiraOrg.ID, ExternalKey: "PROJ", SyncEnabled: true, SyncIssues: true}
	sp := &model.Project{OrganizationID: sentryOrg.ID, ExternalKey: "backend", SyncEnabled: true, SyncIssues: true}
	for _, p := range []*model.Project{jp, sp} {
		if _, err := s.UpsertProject(ctx, p); err != nil {
			t.Fatalf("seeding project: %v", err)
		}
	}

	tickets := []string{
		"Payment gateway timeout during checkout",
		"Onboarding emails render broken links",
		"Upgrade build toolchain",
	}
	for i, title := range tickets {
		issue := &model.Issue{
			ProjectID:   jp.ID,
			SourceType:  model.SourceTypeJira,
			ExternalKey: string(rune('A' + i)),
			Title:       title,
		}
		if _, err := s.UpsertIssue(ctx, issue); err != nil {
			t.Fatalf("seeding ticket: %v", err)
		}
	}

	errIssue := &model.Issue{
		ProjectID:   sp.ID,
		SourceType:  model.SourceTypeSentry,
		ExternalKey: "1001",
		Title:       "Payment gateway timeout during checkout flow",
	}
	if _, err := s.UpsertIssue(ctx, errIssue); err != nil {
		t.Fatalf("seeding error issue: %v", err)
	}

	matcher := New(s, testConfig(), log)
	matches, err := matcher.FindMatches(ctx, errIssue, model.SourceTypeJira)
	if err != nil {
		t.Fatalf("finding matches: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}

	best := matches[0]
	if best.Candidate.Title != tickets[0] {
		t.Errorf("best match = %q", best.Candidate.Title)
	}
	if best.Score < testConfig().HighConfidence {
		t.Errorf("near-identical titles scored %v", best.Score)
	}
	if best.Confidence != "high" {
		t.Errorf("confidence = %q", best.Confidence)
	}

	// Results are sorted best first.
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted at %d", i)
		}
	}
}

func TestFindMatchesSkipsShortTitles(t *testing.T) {
	s := testutil.NewStore(t)
	matcher := New(s, testConfig(), logging.Nop())

	issue := &model.Issue{Title: "boom", SourceType: model.SourceTypeSentry}
	matches, err := matcher.FindMatches(context.Background(), issue, model.SourceTypeJira)
	if err != nil {
		t.Fatalf("finding matches: %v", err)
	}
	if matches != nil {
		t.Errorf("short title produced matches: %v", matches)
	}
}

// seedPair stores one sentry issue and one jira candidate and returns
// the sentry organization's id.
func seedPair(t *testing.T, s *store.SQLiteStore, issueTitle, candidateTitle string) string {
	t.Helper()
	ctx := context.Background()

	jiraOrg := &model.Organization{
		SourceType: model.SourceTypeJira, Name: "tracker", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	sentryOrg := &model.Organization{
		SourceType: model.SourceTypeSentry, Name: "errors", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	for _, org := range []*model.Organization{jiraOrg, sentryOrg} {
		if err := s.UpsertOrganization(ctx, org); err != nil {
			t.Fatalf("seeding org: %v", err)
		}
	}
	jp := &model.Project{OrganizationID: jiraOrg.ID, ExternalKey: "OPS", SyncEnabled: true, SyncIssues: true}
	sp := &model.Project{OrganizationID: sentryOrg.ID, ExternalKey: "api", SyncEnabled: true, SyncIssues: true}
	for _, p := range []*model.Project{jp, sp} {
		if _, err := s.UpsertProject(ctx, p); err != nil {
			t.Fatalf("seeding project: %v", err)
		}
	}

	candidate := &model.Issue{
		ProjectID: jp.ID, SourceType: model.SourceTypeJira,
		ExternalKey: "OPS-1", Title: candidateTitle,
	}
	if _, err := s.UpsertIssue(ctx, candidate); err != nil {
		t.Fatalf("seeding candidate: %v", err)
	}
	issue := &model.Issue{
		ProjectID: sp.ID, SourceType: model.SourceTypeSentry,
		ExternalKey: "42", Title: issueTitle,
	}
	if _, err := s.UpsertIssue(ctx, issue); err != nil {
		t.Fatalf("seeding issue: %v", err)
	}
	return sentryOrg.ID
}

func TestScanAndSuggestThresholdOverride(t *testing.T) {
	s := testutil.NewStore(t)
	orgID := seedPair(t, s, "Payment gateway timeout", "Payment gateway down")

	// A strict config-wide minimum drops the medium-similarity pair.
	cfg := testConfig()
	cfg.MinSimilarity = 0.95
	matcher := New(s, cfg, logging.Nop())
	ctx := context.Background()

	suggestions, err := matcher.ScanAndSuggest(ctx, orgID, model.SourceTypeJira, 50, 0)
	if err != nil {
		t.Fatalf("scanning with default threshold: %v", err)
	}
	if len(suggestions) != 0 {
		t.Errorf("default threshold surfaced %d suggestions", len(suggestions))
	}

	// A per-pass override relaxes it without touching the config.
	suggestions, err = matcher.ScanAndSuggest(ctx, orgID, model.SourceTypeJira, 50, 0.5)
	if err != nil {
		t.Fatalf("scanning with override: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("override surfaced %d suggestions", len(suggestions))
	}
	if suggestions[0].Matches[0].Candidate.Title != "Payment gateway down" {
		t.Errorf("matched %q", suggestions[0].Matches[0].Candidate.Title)
	}
}

func TestCreateLinksSkipsEmptySuggestions(t *testing.T) {
	s := testutil.NewStore(t)
	matcher := New(s, testConfig(), logging.Nop())

	created, err := matcher.CreateLinks(context.Background(), []Suggestion{
		{Issue: model.Issue{ID: "orphan"}},
	})
	if err != nil {
		t.Fatalf("creating links: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d", created)
	}
}

func TestFindMatchesGatesOnRawTitle(t *testing.T) {
	s := testutil.NewStore(t)

	// Raw titles clear the minimum length even though the cleaned form
	// does not; the gate applies before normalization.
	orgID := seedPair(t, s, "Bug: db-conn", "Bug: db_conn")
	matcher := New(s, testConfig(), logging.Nop())

	suggestions, err := matcher.ScanAndSuggest(context.Background(), orgID, model.SourceTypeJira, 50, 0)
	if err != nil {
		t.Fatalf("scanning: %v", err)
	}
	if len(suggestions) != 1 {
		t.Fatalf("suggestions = %d, want the short-cleaned pair matched", len(suggestions))
	}
}
