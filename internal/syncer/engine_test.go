package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nhle/srehub/internal/config"
	"github.com/nhle/srehub/internal/logging"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
	"github.com/nhle/srehub/internal/store"
	"github.com/nhle/srehub/internal/testutil"
)

// fakeAdapter serves canned pages so runs are deterministic.
type fakeAdapter struct {
	probeErr error
	projects []model.Project

	// issues and issueErr are keyed by project external key.
	issues   map[string][]model.Issue
	issueErr map[string]error

	// events is keyed by issue external ID.
	events     map[string][]model.IssueEvent
	eventCalls int
}

func (f *fakeAdapter) Type() model.SourceType { return model.SourceTypeSentry }

func (f *fakeAdapter) ValidateConnection(ctx context.Context) (string, error) {
	if f.probeErr != nil {
		return "", f.probeErr
	}
	return "ok", nil
}

func (f *fakeAdapter) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	if opts.Page > 1 {
		return &source.ProjectPage{}, nil
	}
	return &source.ProjectPage{Projects: f.projects, Total: len(f.projects)}, nil
}

func (f *fakeAdapter) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	if err := f.issueErr[projectKey]; err != nil {
		return nil, err
	}
	if opts.Page > 1 {
		return &source.IssuePage{}, nil
	}
	issues := f.issues[projectKey]
	return &source.IssuePage{Issues: issues, Total: len(issues)}, nil
}

func (f *fakeAdapter) FetchIssueEvents(ctx context.Context, issueExternalID string, limit int) ([]model.IssueEvent, error) {
	f.eventCalls++
	events := f.events[issueExternalID]
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func testEngine(t *testing.T, adapter source.Adapter) (*Engine, *store.SQLiteStore) {
	t.Helper()
	s := testutil.NewStore(t)
	cfg := config.SyncConfig{
		PageSize:         50,
		MaxPages:         100,
		Workers:          2,
		ErrorDetailLimit: 50,
	}
	factory := func(org *model.Organization) (source.Adapter, error) {
		return adapter, nil
	}
	return NewWithFactory(s, cfg, logging.Nop(), factory), s
}

func seedOrg(t *testing.T, s *store.SQLiteStore) *model.Organization {
	t.Helper()
	org := &model.Organization{
		SourceType:   model.SourceTypeSentry,
		Name:         "acme",
		Slug:         "acme",
		APIToken:     "secret",
		SyncEnabled:  true,
		SyncInterval: time.Hour,
	}
	if err := s.UpsertOrganization(context.Background(), org); err != nil {
		t.Fatalf("seeding organization: %v", err)
	}
	return org
}

func fakeProject(key string) model.Project {
	return model.Project{ExternalKey: key, Name: key}
}

func fakeIssue(key string) model.Issue {
	return model.Issue{
		SourceType:     model.SourceTypeSentry,
		ExternalKey:    key,
		ExternalID:     key,
		Title:          "panic in handler " + key,
		Status:         "unresolved",
		StatusCategory: model.StatusCategoryNew,
	}
}

func TestSyncOneSuccess(t *testing.T) {
	adapter := &fakeAdapter{
		projects: []model.Project{fakeProject("backend")},
		issues: map[string][]model.Issue{
			"backend": {fakeIssue("1"), fakeIssue("2")},
		},
		events: map[string][]model.IssueEvent{
			"1": {{ExternalID: "e1", Message: "boom", OccurredAt: time.Now().UTC()}},
		},
	}
	engine, s := testEngine(t, adapter)
	org := seedOrg(t, s)
	ctx := context.Background()

	summary, err := engine.SyncOne(ctx, org.ID, false)
	if err != nil {
		t.Fatalf("syncing: %v", err)
	}
	if summary.Status != model.SyncStatusSuccess {
		t.Fatalf("status = %q, errors = %v", summary.Status, summary.Errors)
	}
	if summary.ProjectsSynced != 1 || summary.IssuesSynced != 2 || summary.EventsSynced != 1 {
		t.Errorf("counts = %d/%d/%d", summary.ProjectsSynced, summary.IssuesSynced, summary.EventsSynced)
	}
	if summary.IssuesCreated != 2 {
		t.Errorf("issues created = %d", summary.IssuesCreated)
	}

	attempts, err := s.ListSyncAttempts(ctx, org.ID, 10)
	if err != nil {
		t.Fatalf("listing attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Status != model.SyncStatusSuccess {
		t.Errorf("attempts = %+v", attempts)
	}

	stored, err := s.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reading organization: %v", err)
	}
	if stored.ConnectionStatus != model.ConnectionConnected {
		t.Errorf("connection status = %q", stored.ConnectionStatus)
	}
	if stored.LastSyncAt == nil {
		t.Error("last sync time not advanced")
	}
}

func TestSyncOneIdempotent(t *testing.T) {
	events := make([]model.IssueEvent, eventSyncLimit)
	for i := range events {
		events[i] = model.IssueEvent{
			ExternalID: fmt.Sprintf("e%d", i),
			Message:    "boom",
			OccurredAt: time.Now().UTC(),
		}
	}
	adapter := &fakeAdapter{
		projects: []model.Project{fakeProject("backend")},
		issues:   map[string][]model.Issue{"backend": {fakeIssue("1")}},
		events:   map[string][]model.IssueEvent{"1": events},
	}
	engine, s := testEngine(t, adapter)
	org := seedOrg(t, s)
	ctx := context.Background()

	if _, err := engine.SyncOne(ctx, org.ID, false); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	callsAfterFirst := adapter.eventCalls

	summary, err := engine.SyncOne(ctx, org.ID, true)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if summary.IssuesCreated != 0 {
		t.Errorf("re-sync created %d issues", summary.IssuesCreated)
	}

	// The issue already holds a full event sample, so the re-sync
	// must not fetch events again.
	if adapter.eventCalls != callsAfterFirst {
		t.Errorf("event calls = %d after re-sync, want %d", adapter.eventCalls, callsAfterFirst)
	}

	issues, err := s.ListIssues(ctx, store.IssueFilter{OrganizationID: org.ID})
	if err != nil {
		t.Fatalf("listing issues: %v", err)
	}
	if len(issues) != 1 {
		t.Errorf("issue rows = %d after re-sync", len(issues))
	}
}

func TestSyncOneEligibility(t *testing.T) {
	adapter := &fakeAdapter{projects: []model.Project{fakeProject("backend")}}
	engine, s := testEngine(t, adapter)
	ctx := context.Background()

	org := seedOrg(t, s)
	now := time.Now().UTC()
	if err := s.UpdateOrganizationSyncState(ctx, org.ID, &now, model.ConnectionConnected, ""); err != nil {
		t.Fatalf("stamping sync state: %v", err)
	}

	summary, err := engine.SyncOne(ctx, org.ID, false)
	if err != nil {
		t.Fatalf("syncing: %v", err)
	}
	if !summary.Skipped || summary.SkipReason != "not due" {
		t.Errorf("summary = %+v, want skipped as not due", summary)
	}

	// Force overrides the schedule.
	summary, err = engine.SyncOne(ctx, org.ID, true)
	if err != nil {
		t.Fatalf("forced sync: %v", err)
	}
	if summary.Skipped {
		t.Error("forced sync was skipped")
	}

	disabled := &model.Organization{
		SourceType: model.SourceTypeSentry, Name: "dormant", APIToken: "t",
		SyncEnabled: false, SyncInterval: time.Hour,
	}
	if err := s.UpsertOrganization(ctx, disabled); err != nil {
		t.Fatalf("seeding disabled organization: %v", err)
	}
	summary, err = engine.SyncOne(ctx, disabled.ID, false)
	if err != nil {
		t.Fatalf("syncing disabled: %v", err)
	}
	if !summary.Skipped || summary.SkipReason != "sync disabled" {
		t.Errorf("summary = %+v, want skipped as disabled", summary)
	}
}

func TestSyncOneProbeFailure(t *testing.T) {
	adapter := &fakeAdapter{
		probeErr: &source.AuthError{SourceType: model.SourceTypeSentry, Message: "token expired"},
		projects: []model.Project{fakeProject("backend")},
	}
	engine, s := testEngine(t, adapter)
	org := seedOrg(t, s)
	ctx := context.Background()

	summary, err := engine.SyncOne(ctx, org.ID, false)
	if err != nil {
		t.Fatalf("syncing: %v", err)
	}
	if summary.Status != model.SyncStatusFailed {
		t.Errorf("status = %q", summary.Status)
	}
	if summary.ProjectsSynced != 0 {
		t.Errorf("projects synced = %d after failed probe", summary.ProjectsSynced)
	}

	projects, err := s.ListProjects(ctx, org.ID)
	if err != nil {
		t.Fatalf("listing projects: %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("failed probe wrote %d projects", len(projects))
	}

	stored, err := s.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reading organization: %v", err)
	}
	if stored.ConnectionStatus != model.ConnectionUnauthorized {
		t.Errorf("connection status = %q", stored.ConnectionStatus)
	}
	if stored.LastSyncAt != nil {
		t.Error("failed run advanced last sync time")
	}
}

func TestSyncOnePartial(t *testing.T) {
	adapter := &fakeAdapter{
		projects: []model.Project{fakeProject("backend"), fakeProject("frontend")},
		issues: map[string][]model.Issue{
			"frontend": {fakeIssue("9")},
		},
		issueErr: map[string]error{
			"backend": &source.TransportError{
				SourceType: model.SourceTypeSentry,
				Op:         "list issues",
				StatusCode: 502,
				Err:        errors.New("bad gateway"),
			},
		},
	}
	engine, s := testEngine(t, adapter)
	org := seedOrg(t, s)
	ctx := context.Background()

	summary, err := engine.SyncOne(ctx, org.ID, false)
	if err != nil {
		t.Fatalf("syncing: %v", err)
	}
	if summary.Status != model.SyncStatusPartial {
		t.Errorf("status = %q", summary.Status)
	}
	if len(summary.Errors) != 1 {
		t.Errorf("errors = %v", summary.Errors)
	}
	if summary.IssuesSynced != 1 {
		t.Errorf("issues synced = %d, want the healthy project's", summary.IssuesSynced)
	}

	// Partial progress still advances the schedule.
	stored, err := s.GetOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("reading organization: %v", err)
	}
	if stored.LastSyncAt == nil {
		t.Error("partial run did not advance last sync time")
	}
}

func TestSyncOneMaxIssuesCap(t *testing.T) {
	adapter := &fakeAdapter{
		projects: []model.Project{fakeProject("backend")},
		issues: map[string][]model.Issue{
			"backend": {fakeIssue("1"), fakeIssue("2"), fakeIssue("3")},
		},
	}
	engine, s := testEngine(t, adapter)
	org := seedOrg(t, s)
	ctx := context.Background()

	if _, err := engine.SyncOne(ctx, org.ID, false); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	project, err := s.GetProjectByKey(ctx, org.ID, "backend")
	if err != nil {
		t.Fatalf("reading project: %v", err)
	}
	if err := s.UpdateProjectSyncSettings(ctx, project.ID, true, true, 1); err != nil {
		t.Fatalf("capping project: %v", err)
	}

	summary, err := engine.SyncOne(ctx, org.ID, true)
	if err != nil {
		t.Fatalf("capped sync: %v", err)
	}
	if summary.IssuesSynced != 1 {
		t.Errorf("issues synced = %d with cap 1", summary.IssuesSynced)
	}
}

// lyingAdapter always reports another full page of issues, the way a
// server with a broken total would.
type lyingAdapter struct {
	fakeAdapter
	issuePages int
}

func (f *lyingAdapter) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	f.issuePages++
	issues := make([]model.Issue, opts.PageSize)
	for i := range issues {
		issues[i] = fakeIssue(fmt.Sprintf("p%d-%d", opts.Page, i))
	}
	return &source.IssuePage{Issues: issues, Total: opts.PageSize, HasMore: true}, nil
}

func TestSyncOnePageCeiling(t *testing.T) {
	adapter := &lyingAdapter{}
	adapter.projects = []model.Project{fakeProject("backend")}

	s := testutil.NewStore(t)
	cfg := config.SyncConfig{
		PageSize:         2,
		MaxPages:         3,
		Workers:          1,
		ErrorDetailLimit: 10,
	}
	engine := NewWithFactory(s, cfg, logging.Nop(), func(org *model.Organization) (source.Adapter, error) {
		return adapter, nil
	})
	org := seedOrg(t, s)

	summary, err := engine.SyncOne(context.Background(), org.ID, false)
	if err != nil {
		t.Fatalf("syncing: %v", err)
	}
	if summary.Status != model.SyncStatusSuccess {
		t.Fatalf("status = %q, errors = %v", summary.Status, summary.Errors)
	}
	if adapter.issuePages != cfg.MaxPages {
		t.Errorf("issue pages fetched = %d, want the ceiling %d", adapter.issuePages, cfg.MaxPages)
	}
	if want := cfg.MaxPages * cfg.PageSize; summary.IssuesSynced != want {
		t.Errorf("issues synced = %d, want %d", summary.IssuesSynced, want)
	}
}

func TestSyncOneInFlight(t *testing.T) {
	adapter := &fakeAdapter{}
	engine, s := testEngine(t, adapter)
	org := seedOrg(t, s)

	engine.mu.Lock()
	engine.inFlight[org.ID] = true
	engine.mu.Unlock()

	_, err := engine.SyncOne(context.Background(), org.ID, true)
	if !errors.Is(err, ErrSyncInFlight) {
		t.Fatalf("err = %v, want in-flight guard", err)
	}
}

func TestSyncAll(t *testing.T) {
	adapter := &fakeAdapter{
		projects: []model.Project{fakeProject("backend")},
		issues:   map[string][]model.Issue{"backend": {fakeIssue("1")}},
	}
	engine, s := testEngine(t, adapter)
	ctx := context.Background()

	seedOrg(t, s)
	second := &model.Organization{
		SourceType: model.SourceTypeSentry, Name: "beta", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	if err := s.UpsertOrganization(ctx, second); err != nil {
		t.Fatalf("seeding second organization: %v", err)
	}

	summaries, err := engine.SyncAll(ctx, false)
	if err != nil {
		t.Fatalf("syncing all: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d", len(summaries))
	}
	for _, summary := range summaries {
		if summary.Status != model.SyncStatusSuccess {
			t.Errorf("organization %s status = %q", summary.OrganizationName, summary.Status)
		}
	}
}
