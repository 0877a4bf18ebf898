package linker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nhle/srehub/internal/logging"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
	"github.com/nhle/srehub/internal/store"
	"github.com/nhle/srehub/internal/testutil"
)

// fakeAnnotator is the error-tracker side: it only serves annotations.
type fakeAnnotator struct {
	annotations map[string][]source.Annotation
}

func (f *fakeAnnotator) Type() model.SourceType { return model.SourceTypeSentry }

func (f *fakeAnnotator) ValidateConnection(ctx context.Context) (string, error) {
	return "ok", nil
}

func (f *fakeAnnotator) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	return &source.ProjectPage{}, nil
}

func (f *fakeAnnotator) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	return &source.IssuePage{}, nil
}

func (f *fakeAnnotator) FetchIssueAnnotations(ctx context.Context, issueExternalID string) ([]source.Annotation, error) {
	return f.annotations[issueExternalID], nil
}

// fakeTracker is the ticket-tracker side: it serves single lookups for
// the repair path.
type fakeTracker struct {
	projects map[string]model.Project
	issues   map[string]model.Issue
	probes   int
}

func (f *fakeTracker) Type() model.SourceType { return model.SourceTypeJira }

func (f *fakeTracker) ValidateConnection(ctx context.Context) (string, error) {
	f.probes++
	return "ok", nil
}

func (f *fakeTracker) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	return &source.ProjectPage{}, nil
}

func (f *fakeTracker) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	return &source.IssuePage{}, nil
}

func (f *fakeTracker) FetchProject(ctx context.Context, projectKey string) (*model.Project, error) {
	p, ok := f.projects[projectKey]
	if !ok {
		return nil, fmt.Errorf("project %s not found", projectKey)
	}
	return &p, nil
}

func (f *fakeTracker) FetchIssue(ctx context.Context, issueKey string) (*model.Issue, error) {
	issue, ok := f.issues[issueKey]
	if !ok {
		return nil, fmt.Errorf("issue %s not found", issueKey)
	}
	return &issue, nil
}

// linkerFixture wires a store with one sentry issue carrying the given
// annotations and a jira organization, and returns a linker whose
// factory serves the two fakes.
type linkerFixture struct {
	store   *store.SQLiteStore
	linker  *Linker
	tracker *fakeTracker

	sentryOrg *model.Organization
	jiraOrg   *model.Organization
	issue     *model.Issue
}

func newLinkerFixture(t *testing.T, annotations []source.Annotation) *linkerFixture {
	t.Helper()
	s := testutil.NewStore(t)
	ctx := context.Background()

	sentryOrg := &model.Organization{
		SourceType: model.SourceTypeSentry, Name: "errors", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	jiraOrg := &model.Organization{
		SourceType: model.SourceTypeJira, Name: "tracker", APIToken: "t",
		SyncEnabled: true, SyncInterval: time.Hour,
	}
	for _, org := range []*model.Organization{sentryOrg, jiraOrg} {
		if err := s.UpsertOrganization(ctx, org); err != nil {
			t.Fatalf("seeding org: %v", err)
		}
	}

	sp := &model.Project{OrganizationID: sentryOrg.ID, ExternalKey: "api", SyncEnabled: true, SyncIssues: true}
	if _, err := s.UpsertProject(ctx, sp); err != nil {
		t.Fatalf("seeding project: %v", err)
	}
	issue := &model.Issue{
		ProjectID: sp.ID, SourceType: model.SourceTypeSentry,
		ExternalKey: "42", ExternalID: "100",
		Title: "panic in payment handler",
	}
	if _, err := s.UpsertIssue(ctx, issue); err != nil {
		t.Fatalf("seeding issue: %v", err)
	}

	annotator := &fakeAnnotator{
		annotations: map[string][]source.Annotation{"100": annotations},
	}
	tracker := &fakeTracker{
		projects: map[string]model.Project{},
		issues:   map[string]model.Issue{},
	}
	factory := func(org *model.Organization) (source.Adapter, error) {
		if org.SourceType == model.SourceTypeJira {
			return tracker, nil
		}
		return annotator, nil
	}

	return &linkerFixture{
		store:     s,
		linker:    NewWithFactory(s, logging.Nop(), factory),
		tracker:   tracker,
		sentryOrg: sentryOrg,
		jiraOrg:   jiraOrg,
		issue:     issue,
	}
}

func (fx *linkerFixture) seedTicket(t *testing.T, key string) *model.Issue {
	t.Helper()
	ctx := context.Background()
	jp := &model.Project{
		OrganizationID: fx.jiraOrg.ID, ExternalKey: ProjectKeyOf(key),
		SyncEnabled: true, SyncIssues: true,
	}
	if _, err := fx.store.UpsertProject(ctx, jp); err != nil {
		t.Fatalf("seeding tracker project: %v", err)
	}
	ticket := &model.Issue{
		ProjectID: jp.ID, SourceType: model.SourceTypeJira,
		ExternalKey: key, Title: "fix payment handler",
	}
	if _, err := fx.store.UpsertIssue(ctx, ticket); err != nil {
		t.Fatalf("seeding ticket: %v", err)
	}
	return ticket
}

func TestLinkIssueIdempotent(t *testing.T) {
	fx := newLinkerFixture(t, []source.Annotation{{DisplayName: "OPS-7"}})
	fx.seedTicket(t, "OPS-7")
	ctx := context.Background()

	result, err := fx.linker.LinkIssue(ctx, fx.issue.ID)
	if err != nil {
		t.Fatalf("linking: %v", err)
	}
	if result.LinksCreated != 1 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	links, err := fx.store.ListLinksForIssue(ctx, fx.issue.ID)
	if err != nil {
		t.Fatalf("listing links: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %d", len(links))
	}
	if links[0].LinkType != model.LinkTypeAuto {
		t.Errorf("link type = %q", links[0].LinkType)
	}

	// A second pass rediscovers the reference but writes nothing new.
	result, err = fx.linker.LinkIssue(ctx, fx.issue.ID)
	if err != nil {
		t.Fatalf("relinking: %v", err)
	}
	if result.LinksCreated != 0 || result.LinksExisting != 1 {
		t.Errorf("second pass = %+v", result)
	}
	links, err = fx.store.ListLinksForIssue(ctx, fx.issue.ID)
	if err != nil {
		t.Fatalf("listing links: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("links = %d after second pass", len(links))
	}
}

func TestScanAndLinkSkipsLinked(t *testing.T) {
	fx := newLinkerFixture(t, []source.Annotation{{DisplayName: "OPS-7"}})
	fx.seedTicket(t, "OPS-7")
	ctx := context.Background()

	summary, err := fx.linker.ScanAndLink(ctx, fx.sentryOrg.ID, 50, 0, true)
	if err != nil {
		t.Fatalf("scanning: %v", err)
	}
	if summary.LinksCreated != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	summary, err = fx.linker.ScanAndLink(ctx, fx.sentryOrg.ID, 50, 0, true)
	if err != nil {
		t.Fatalf("rescanning: %v", err)
	}
	if summary.IssuesSkipped != 1 || summary.LinksCreated != 0 {
		t.Errorf("second scan = %+v", summary)
	}
}

func TestLinkIssueRepairsDanglingReference(t *testing.T) {
	fx := newLinkerFixture(t, []source.Annotation{{DisplayName: "OPS-9"}})
	ctx := context.Background()

	// Neither the ticket nor its project is stored; the tracker owns
	// both.
	fx.tracker.projects["OPS"] = model.Project{ExternalKey: "OPS", Name: "Operations"}
	fx.tracker.issues["OPS-9"] = model.Issue{
		SourceType:  model.SourceTypeJira,
		ExternalKey: "OPS-9",
		Title:       "fix payment handler",
	}

	result, err := fx.linker.LinkIssue(ctx, fx.issue.ID)
	if err != nil {
		t.Fatalf("linking: %v", err)
	}
	if result.LinksCreated != 1 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if fx.tracker.probes != 1 {
		t.Errorf("tracker probed %d times", fx.tracker.probes)
	}

	project, err := fx.store.GetProjectByKey(ctx, fx.jiraOrg.ID, "OPS")
	if err != nil {
		t.Fatalf("repaired project missing: %v", err)
	}
	ticket, err := fx.store.FindIssueByExternalKey(ctx, model.SourceTypeJira, "OPS-9")
	if err != nil {
		t.Fatalf("repaired ticket missing: %v", err)
	}
	if ticket.ProjectID != project.ID {
		t.Errorf("ticket stored under project %s, want %s", ticket.ProjectID, project.ID)
	}

	linked, err := fx.store.HasLink(ctx, fx.issue.ID, ticket.ID)
	if err != nil {
		t.Fatalf("checking link: %v", err)
	}
	if !linked {
		t.Error("repaired ticket not linked")
	}
}
