package linker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
	"github.com/nhle/srehub/internal/source/registry"
	"github.com/nhle/srehub/internal/store"
)

// ErrNoAnnotations is returned when an issue's source cannot expose
// annotations.
var ErrNoAnnotations = errors.New("source does not expose annotations")

// ErrNoTrackerOrg is returned when a reference cannot be attributed to
// any configured tracker organization.
var ErrNoTrackerOrg = errors.New("no tracker organization can resolve the reference")

// Linker correlates error-tracker issues with tracker tickets through
// the references engineers leave in annotations.
type Linker struct {
	store   *store.SQLiteStore
	log     *zap.Logger
	factory registry.Factory
}

// New creates a linker using the default adapter registry.
func New(s *store.SQLiteStore, log *zap.Logger) *Linker {
	return NewWithFactory(s, log, registry.ForOrganization)
}

// NewWithFactory creates a linker with a custom adapter factory.
func NewWithFactory(s *store.SQLiteStore, log *zap.Logger, factory registry.Factory) *Linker {
	return &Linker{store: s, log: log, factory: factory}
}

// LinkResult is the outcome of linking one issue.
type LinkResult struct {
	IssueID    string
	IssueTitle string

	References    []Reference
	LinksCreated  int
	LinksExisting int
	Errors        []string
}

// ScanSummary aggregates a linking pass over an organization.
type ScanSummary struct {
	IssuesScanned int
	IssuesSkipped int
	LinksCreated  int
	LinksExisting int
	Errors        []string
}

// LinkIssue reads one issue's live annotations, resolves every tracker
// reference, and records the cross-links. Referenced tickets that have
// not been synced yet are fetched and stored on the spot.
func (l *Linker) LinkIssue(ctx context.Context, issueID string) (*LinkResult, error) {
	issue, err := l.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	project, err := l.store.GetProject(ctx, issue.ProjectID)
	if err != nil {
		return nil, err
	}
	org, err := l.store.GetOrganization(ctx, project.OrganizationID)
	if err != nil {
		return nil, err
	}

	adapter, err := l.factory(org)
	if err != nil {
		return nil, err
	}
	fetcher, ok := adapter.(source.AnnotationFetcher)
	if !ok {
		return nil, fmt.Errorf("%s: %w", org.SourceType, ErrNoAnnotations)
	}

	return l.linkWithFetcher(ctx, fetcher, issue)
}

// linkWithFetcher does the per-issue work once the annotation source
// is known, so scans can reuse one adapter for the whole pass.
func (l *Linker) linkWithFetcher(ctx context.Context, fetcher source.AnnotationFetcher, issue *model.Issue) (*LinkResult, error) {
	result := &LinkResult{IssueID: issue.ID, IssueTitle: issue.Title}

	annotations, err := fetcher.FetchIssueAnnotations(ctx, issue.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("reading annotations for %s: %w", issue.ExternalKey, err)
	}

	result.References = ParseAnnotations(annotations)
	for _, ref := range result.References {
		target, err := l.resolveReference(ctx, ref)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("reference %s: %v", ref.Key, err))
			continue
		}

		link := &model.CrossLink{
			SourceIssueID:      issue.ID,
			TargetIssueID:      target.ID,
			LinkType:           model.LinkTypeAuto,
			CreationNotes:      fmt.Sprintf("resolved from annotation reference %s", ref.Key),
			SyncSourceToTarget: true,
			SyncTargetToSource: true,
		}
		_, created, err := l.store.CreateCrossLink(ctx, link)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("linking %s: %v", ref.Key, err))
			continue
		}
		if created {
			result.LinksCreated++
			l.log.Info("cross-link created",
				zap.String("issue", issue.ExternalKey),
				zap.String("ticket", ref.Key),
			)
		} else {
			result.LinksExisting++
		}
	}

	return result, nil
}

// ScanAndLink runs a linking pass over an organization's issues,
// newest activity first. With skipLinked, issues that already
// participate in any link are not re-scanned.
func (l *Linker) ScanAndLink(ctx context.Context, orgID string, limit, offset int, skipLinked bool) (*ScanSummary, error) {
	org, err := l.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	adapter, err := l.factory(org)
	if err != nil {
		return nil, err
	}
	fetcher, ok := adapter.(source.AnnotationFetcher)
	if !ok {
		return nil, fmt.Errorf("%s: %w", org.SourceType, ErrNoAnnotations)
	}

	issues, err := l.store.ListIssues(ctx, store.IssueFilter{
		OrganizationID:  orgID,
		Limit:           limit,
		Offset:          offset,
		OrderByLastSeen: true,
	})
	if err != nil {
		return nil, err
	}

	var linked map[string]bool
	if skipLinked {
		if linked, err = l.store.LinkedIssueIDs(ctx); err != nil {
			return nil, err
		}
	}

	summary := &ScanSummary{}
	for i := range issues {
		issue := &issues[i]
		if skipLinked && linked[issue.ID] {
			summary.IssuesSkipped++
			continue
		}

		result, err := l.linkWithFetcher(ctx, fetcher, issue)
		if err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		summary.IssuesScanned++
		summary.LinksCreated += result.LinksCreated
		summary.LinksExisting += result.LinksExisting
		summary.Errors = append(summary.Errors, result.Errors...)
	}

	l.log.Info("link scan complete",
		zap.String("organization", org.Name),
		zap.Int("scanned", summary.IssuesScanned),
		zap.Int("skipped", summary.IssuesSkipped),
		zap.Int("created", summary.LinksCreated),
	)
	return summary, nil
}

// PreviewEntry is one issue's would-be links from a dry-run scan.
type PreviewEntry struct {
	IssueID    string
	IssueTitle string
	References []Reference
}

// Preview reports which references a scan would act on without writing
// anything.
func (l *Linker) Preview(ctx context.Context, orgID string, limit, offset int) ([]PreviewEntry, error) {
	org, err := l.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	adapter, err := l.factory(org)
	if err != nil {
		return nil, err
	}
	fetcher, ok := adapter.(source.AnnotationFetcher)
	if !ok {
		return nil, fmt.Errorf("%s: %w", org.SourceType, ErrNoAnnotations)
	}

	issues, err := l.store.ListIssues(ctx, store.IssueFilter{
		OrganizationID:  orgID,
		Limit:           limit,
		Offset:          offset,
		OrderByLastSeen: true,
	})
	if err != nil {
		return nil, err
	}

	var entries []PreviewEntry
	for i := range issues {
		annotations, err := fetcher.FetchIssueAnnotations(ctx, issues[i].ExternalID)
		if err != nil {
			continue
		}
		refs := ParseAnnotations(annotations)
		if len(refs) == 0 {
			continue
		}
		entries = append(entries, PreviewEntry{
			IssueID:    issues[i].ID,
			IssueTitle: issues[i].Title,
			References: refs,
		})
	}
	return entries, nil
}

// resolveReference turns a parsed reference into a local issue row,
// fetching the ticket from its tracker when it has not been synced.
func (l *Linker) resolveReference(ctx context.Context, ref Reference) (*model.Issue, error) {
	local, err := l.store.FindIssueByExternalKey(ctx, model.SourceTypeJira, ref.Key)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	org, err := l.trackerOrgFor(ctx, ref)
	if err != nil {
		return nil, err
	}

	adapter, err := l.factory(org)
	if err != nil {
		return nil, err
	}
	lookup, ok := adapter.(source.IssueLookup)
	if !ok {
		return nil, fmt.Errorf("%s cannot look up tickets by key", org.SourceType)
	}
	if _, err := adapter.ValidateConnection(ctx); err != nil {
		return nil, fmt.Errorf("probing %s: %w", org.Name, err)
	}

	projectKey := ProjectKeyOf(ref.Key)
	project, err := l.store.GetProjectByKey(ctx, org.ID, projectKey)
	if errors.Is(err, store.ErrNotFound) {
		remote, fetchErr := lookup.FetchProject(ctx, projectKey)
		if fetchErr != nil {
			return nil, fetchErr
		}
		remote.OrganizationID = org.ID
		remote.SyncEnabled = true
		remote.SyncIssues = true
		if _, upsertErr := l.store.UpsertProject(ctx, remote); upsertErr != nil {
			return nil, upsertErr
		}
		project = remote
	} else if err != nil {
		return nil, err
	}

	issue, err := lookup.FetchIssue(ctx, ref.Key)
	if err != nil {
		return nil, err
	}
	issue.ProjectID = project.ID
	if _, err := l.store.UpsertIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// trackerOrgFor selects the tracker organization a reference belongs
// to: a base-URL match first, then the organization already owning the
// project key, then the first enabled tracker organization.
func (l *Linker) trackerOrgFor(ctx context.Context, ref Reference) (*model.Organization, error) {
	trackerType := model.SourceTypeJira

	if ref.BaseURL != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(ref.BaseURL, "https://"), "http://")
		orgs, err := l.store.ListOrganizations(ctx, store.OrganizationFilter{
			SourceType:  &trackerType,
			BaseURLLike: host,
		})
		if err != nil {
			return nil, err
		}
		if len(orgs) > 0 {
			return &orgs[0], nil
		}
	}

	if projectKey := ProjectKeyOf(ref.Key); projectKey != "" {
		project, err := l.store.FindProjectByKey(ctx, projectKey)
		if err == nil {
			org, err := l.store.GetOrganization(ctx, project.OrganizationID)
			if err == nil && org.SourceType == trackerType {
				return org, nil
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	enabled := true
	orgs, err := l.store.ListOrganizations(ctx, store.OrganizationFilter{
		SourceType:  &trackerType,
		SyncEnabled: &enabled,
	})
	if err != nil {
		return nil, err
	}
	if len(orgs) > 0 {
		return &orgs[0], nil
	}
	return nil, fmt.Errorf("%s: %w", ref.Key, ErrNoTrackerOrg)
}

// CreateTicketFromIssue creates a tracker ticket for an issue and
// records a manual cross-link back to it.
func (l *Linker) CreateTicketFromIssue(ctx context.Context, issueID, targetOrgID, projectKey, issueType string) (*model.CrossLink, error) {
	issue, err := l.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	org, err := l.store.GetOrganization(ctx, targetOrgID)
	if err != nil {
		return nil, err
	}

	adapter, err := l.factory(org)
	if err != nil {
		return nil, err
	}
	creator, ok := adapter.(source.IssueCreator)
	if !ok {
		return nil, fmt.Errorf("%s cannot create tickets", org.SourceType)
	}
	lookup, ok := adapter.(source.IssueLookup)
	if !ok {
		return nil, fmt.Errorf("%s cannot look up tickets by key", org.SourceType)
	}

	key, err := creator.CreateIssue(ctx, source.NewIssue{
		ProjectKey:  projectKey,
		IssueType:   issueType,
		Summary:     issue.Title,
		Description: ticketDescription(issue),
	})
	if err != nil {
		return nil, err
	}

	project, err := l.store.GetProjectByKey(ctx, org.ID, projectKey)
	if errors.Is(err, store.ErrNotFound) {
		remote, fetchErr := lookup.FetchProject(ctx, projectKey)
		if fetchErr != nil {
			return nil, fetchErr
		}
		remote.OrganizationID = org.ID
		remote.SyncEnabled = true
		remote.SyncIssues = true
		if _, upsertErr := l.store.UpsertProject(ctx, remote); upsertErr != nil {
			return nil, upsertErr
		}
		project = remote
	} else if err != nil {
		return nil, err
	}

	created, err := lookup.FetchIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	created.ProjectID = project.ID
	created.CreatedFromLink = true
	if _, err := l.store.UpsertIssue(ctx, created); err != nil {
		return nil, err
	}

	link := &model.CrossLink{
		SourceIssueID:      issue.ID,
		TargetIssueID:      created.ID,
		LinkType:           model.LinkTypeManual,
		CreationNotes:      fmt.Sprintf("ticket %s created from %s issue %s", key, issue.SourceType, issue.ExternalKey),
		SyncSourceToTarget: true,
		SyncTargetToSource: true,
	}
	stored, _, err := l.store.CreateCrossLink(ctx, link)
	if err != nil {
		return nil, err
	}

	l.log.Info("ticket created from issue",
		zap.String("issue", issue.ExternalKey),
		zap.String("ticket", key),
		zap.String("project", projectKey),
	)
	return stored, nil
}

// ticketDescription composes the ticket body from the source issue's
// context.
func ticketDescription(issue *model.Issue) string {
	var b strings.Builder
	if issue.Description != "" {
		b.WriteString(issue.Description)
		b.WriteString("\n\n")
	}
	if issue.Culprit != "" {
		b.WriteString("Location: " + issue.Culprit + "\n")
	}
	if issue.EventCount > 0 {
		fmt.Fprintf(&b, "Occurrences: %d (%d users affected)\n",
			issue.EventCount, issue.UserCount)
	}
	if issue.Permalink != "" {
		b.WriteString("Source: " + issue.Permalink + "\n")
	}
	return strings.TrimSpace(b.String())
}
