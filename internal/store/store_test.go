package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/store"
	"github.com/nhle/srehub/internal/testutil"
)

func seedOrganization(t *testing.T, s *store.SQLiteStore, sourceType model.SourceType, name string) *model.Organization {
	t.Helper()
	org := &model.Organization{
		SourceType:   sourceType,
		Name:         name,
		Slug:         name,
		APIToken:     "token",
		SyncEnabled:  true,
		SyncInterval: time.Hour,
	}
	if err := s.UpsertOrganization(context.Background(), org); err != nil {
		t.Fatalf("seeding organization: %v", err)
	}
	return org
}

func seedProject(t *testing.T, s *store.SQLiteStore, orgID, key string) *model.Project {
	t.Helper()
	p := &model.Project{
		OrganizationID: orgID,
		ExternalKey:    key,
		Name:           key,
		SyncEnabled:    true,
		SyncIssues:     true,
	}
	if _, err := s.UpsertProject(context.Background(), p); err != nil {
		t.Fatalf("seeding project: %v", err)
	}
	return p
}

func seedIssue(t *testing.T, s *store.SQLiteStore, projectID string, sourceType model.SourceType, key, title string) *model.Issue {
	t.Helper()
	issue := &model.Issue{
		ProjectID:      projectID,
		SourceType:     sourceType,
		ExternalKey:    key,
		Title:          title,
		StatusCategory: model.StatusCategoryNew,
	}
	if _, err := s.UpsertIssue(context.Background(), issue); err != nil {
		t.Fatalf("seeding issue: %v", err)
	}
	return issue
}

func TestUpsertProjectPreservesLocalState(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	org := seedOrganization(t, s, model.SourceTypeJira, "acme")

	p := seedProject(t, s, org.ID, "PROJ")
	firstID := p.ID

	// Flip the local toggles the way an operator would.
	if err := s.UpdateProjectSyncSettings(ctx, p.ID, true, false, 25); err != nil {
		t.Fatalf("flipping toggles: %v", err)
	}

	// A re-sync of the same remote project must keep id and toggles.
	again := &model.Project{
		OrganizationID: org.ID,
		ExternalKey:    "PROJ",
		Name:           "renamed upstream",
		SyncEnabled:    true,
		SyncIssues:     true,
	}
	created, err := s.UpsertProject(ctx, again)
	if err != nil {
		t.Fatalf("upserting again: %v", err)
	}
	if created {
		t.Fatal("second upsert reported a new row")
	}
	if again.ID != firstID {
		t.Fatalf("local id changed: %s != %s", again.ID, firstID)
	}

	stored, err := s.GetProject(ctx, firstID)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if stored.Name != "renamed upstream" {
		t.Errorf("remote field not updated: %q", stored.Name)
	}
	if stored.SyncIssues || stored.MaxIssuesToSync != 25 {
		t.Errorf("local toggles overwritten: sync_issues=%v max=%d",
			stored.SyncIssues, stored.MaxIssuesToSync)
	}
}

func TestUpsertIssueIdempotent(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	org := seedOrganization(t, s, model.SourceTypeSentry, "acme")
	p := seedProject(t, s, org.ID, "backend")

	issue := seedIssue(t, s, p.ID, model.SourceTypeSentry, "1001", "NilPointerException in checkout")
	firstID := issue.ID

	update := &model.Issue{
		ProjectID:      p.ID,
		SourceType:     model.SourceTypeSentry,
		ExternalKey:    "1001",
		Title:          "NilPointerException in checkout",
		Status:         "resolved",
		StatusCategory: model.StatusCategoryDone,
		EventCount:     42,
	}
	created, err := s.UpsertIssue(ctx, update)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("second upsert reported a new row")
	}
	if update.ID != firstID {
		t.Fatalf("local id changed across upserts")
	}

	stored, err := s.GetIssue(ctx, firstID)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if stored.StatusCategory != model.StatusCategoryDone || stored.EventCount != 42 {
		t.Errorf("remote fields not overwritten: %+v", stored)
	}

	issues, err := s.ListIssues(ctx, store.IssueFilter{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue after double upsert, got %d", len(issues))
	}
}

func TestRecomputeProjectRollups(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	org := seedOrganization(t, s, model.SourceTypeJira, "acme")
	p := seedProject(t, s, org.ID, "PROJ")

	for i, category := range []string{
		model.StatusCategoryNew, model.StatusCategoryNew,
		model.StatusCategoryInProgress, model.StatusCategoryDone,
	} {
		issue := &model.Issue{
			ProjectID:      p.ID,
			SourceType:     model.SourceTypeJira,
			ExternalKey:    string(rune('A' + i)),
			Title:          "issue",
			StatusCategory: category,
		}
		if _, err := s.UpsertIssue(ctx, issue); err != nil {
			t.Fatalf("seeding issue: %v", err)
		}
	}

	if err := s.RecomputeProjectRollups(ctx, p.ID); err != nil {
		t.Fatalf("recomputing: %v", err)
	}

	stored, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	got := []int{stored.TotalIssues, stored.OpenIssues, stored.InProgressIssues, stored.DoneIssues}
	want := []int{4, 2, 1, 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rollups mismatch (-want +got):\n%s", diff)
	}
	if stored.LastIssueSyncAt == nil {
		t.Error("last_issue_sync_at not stamped")
	}
}

func TestSyncAttemptFinalizeOnce(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	org := seedOrganization(t, s, model.SourceTypeSentry, "acme")

	attempt, err := s.CreateSyncAttempt(ctx, org.ID, model.SyncTypeFull)
	if err != nil {
		t.Fatalf("creating attempt: %v", err)
	}
	if attempt.Status != model.SyncStatusStarted {
		t.Fatalf("new attempt status = %q", attempt.Status)
	}

	attempt.IssuesSynced = 7
	if err := s.FinalizeSyncAttempt(ctx, attempt, model.SyncStatusSuccess); err != nil {
		t.Fatalf("finalizing: %v", err)
	}
	if !attempt.Finalized() {
		t.Fatal("attempt not marked finalized")
	}
	wantDuration := attempt.Duration

	// A second finalize must not change the stored outcome.
	if err := s.FinalizeSyncAttempt(ctx, attempt, model.SyncStatusFailed); err != nil {
		t.Fatalf("re-finalizing: %v", err)
	}

	stored, err := s.GetSyncAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if stored.Status != model.SyncStatusSuccess {
		t.Errorf("status changed on second finalize: %q", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	// Stored duration has millisecond precision.
	if stored.Duration.Milliseconds() != wantDuration.Milliseconds() {
		t.Errorf("duration changed: %v != %v", stored.Duration, wantDuration)
	}
	if stored.IssuesSynced != 7 {
		t.Errorf("counters lost: %d", stored.IssuesSynced)
	}
}

func TestCrossLinkPairUniqueAndSameSourceRejected(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	sentryOrg := seedOrganization(t, s, model.SourceTypeSentry, "sentry-acme")
	jiraOrg := seedOrganization(t, s, model.SourceTypeJira, "jira-acme")
	sp := seedProject(t, s, sentryOrg.ID, "backend")
	jp := seedProject(t, s, jiraOrg.ID, "PROJ")

	errIssue := seedIssue(t, s, sp.ID, model.SourceTypeSentry, "1001", "boom")
	ticket := seedIssue(t, s, jp.ID, model.SourceTypeJira, "PROJ-1", "fix boom")
	otherErr := seedIssue(t, s, sp.ID, model.SourceTypeSentry, "1002", "boom again")

	link := &model.CrossLink{
		SourceIssueID:      errIssue.ID,
		TargetIssueID:      ticket.ID,
		LinkType:           model.LinkTypeManual,
		SyncSourceToTarget: true,
		SyncTargetToSource: true,
	}
	first, created, err := s.CreateCrossLink(ctx, link)
	if err != nil {
		t.Fatalf("creating link: %v", err)
	}
	if !created {
		t.Fatal("first create reported existing")
	}
	if first.SourceIssueTitle != "boom" || first.TargetIssueTitle != "fix boom" {
		t.Errorf("titles not populated: %+v", first)
	}

	// Re-discovering the same pair is a no-op.
	again, created, err := s.CreateCrossLink(ctx, &model.CrossLink{
		SourceIssueID: errIssue.ID,
		TargetIssueID: ticket.ID,
	})
	if err != nil {
		t.Fatalf("re-creating link: %v", err)
	}
	if created {
		t.Fatal("duplicate pair reported as created")
	}
	if again.ID != first.ID {
		t.Errorf("duplicate returned a different link: %s != %s", again.ID, first.ID)
	}

	// Two issues of the same source type can never be linked.
	_, _, err = s.CreateCrossLink(ctx, &model.CrossLink{
		SourceIssueID: errIssue.ID,
		TargetIssueID: otherErr.ID,
	})
	if !errors.Is(err, store.ErrSameSourceLink) {
		t.Fatalf("same-source link error = %v", err)
	}

	linked, err := s.LinkedIssueIDs(ctx)
	if err != nil {
		t.Fatalf("linked ids: %v", err)
	}
	if !linked[errIssue.ID] || !linked[ticket.ID] || linked[otherErr.ID] {
		t.Errorf("linked set wrong: %v", linked)
	}
}

func TestAppendLinkSyncError(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	sentryOrg := seedOrganization(t, s, model.SourceTypeSentry, "sentry-acme")
	jiraOrg := seedOrganization(t, s, model.SourceTypeJira, "jira-acme")
	sp := seedProject(t, s, sentryOrg.ID, "backend")
	jp := seedProject(t, s, jiraOrg.ID, "PROJ")
	a := seedIssue(t, s, sp.ID, model.SourceTypeSentry, "1001", "boom")
	b := seedIssue(t, s, jp.ID, model.SourceTypeJira, "PROJ-1", "fix boom")

	link, _, err := s.CreateCrossLink(ctx, &model.CrossLink{
		SourceIssueID: a.ID, TargetIssueID: b.ID,
	})
	if err != nil {
		t.Fatalf("creating link: %v", err)
	}

	for _, msg := range []string{"timeout", "HTTP 502"} {
		if err := s.AppendLinkSyncError(ctx, link.ID, model.LinkDirectionForward, msg); err != nil {
			t.Fatalf("appending: %v", err)
		}
	}

	stored, err := s.GetLinkByPair(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if len(stored.SyncErrors) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(stored.SyncErrors))
	}
	if stored.SyncErrors[0].Error != "timeout" || stored.SyncErrors[1].Error != "HTTP 502" {
		t.Errorf("log order wrong: %+v", stored.SyncErrors)
	}
}

func TestCacheGetOrGenerate(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	calls := 0
	generate := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]int{"issues": calls}, nil
	}

	first, err := s.GetOrGenerate(ctx, "overview", "all", time.Minute, generate)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Hit {
		t.Fatal("first call reported a cache hit")
	}

	second, err := s.GetOrGenerate(ctx, "overview", "all", time.Minute, generate)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Hit {
		t.Fatal("second call missed the cache")
	}
	if calls != 1 {
		t.Fatalf("generator ran %d times", calls)
	}
	if diff := cmp.Diff(string(first.Data), string(second.Data)); diff != "" {
		t.Errorf("cached payload changed (-first +second):\n%s", diff)
	}

	// A different filter key is a separate entry.
	if _, err := s.GetOrGenerate(ctx, "overview", "org-1", time.Minute, generate); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if calls != 2 {
		t.Fatalf("generator ran %d times for a new filter key", calls)
	}

	// Expired entries regenerate in place.
	if _, err := s.GetOrGenerate(ctx, "expired", "all", -time.Second, generate); err != nil {
		t.Fatalf("expired seed: %v", err)
	}
	fourth, err := s.GetOrGenerate(ctx, "expired", "all", time.Minute, generate)
	if err != nil {
		t.Fatalf("expired refresh: %v", err)
	}
	if fourth.Hit {
		t.Fatal("expired entry served as a hit")
	}
}

func TestOrganizationDue(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)

	tests := []struct {
		name string
		org  model.Organization
		want bool
	}{
		{"disabled", model.Organization{SyncEnabled: false}, false},
		{"never synced", model.Organization{SyncEnabled: true, SyncInterval: time.Hour}, true},
		{"interval elapsed", model.Organization{SyncEnabled: true, SyncInterval: time.Hour, LastSyncAt: &earlier}, true},
		{"not yet due", model.Organization{SyncEnabled: true, SyncInterval: time.Hour, LastSyncAt: &recent}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.org.Due(now); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}
