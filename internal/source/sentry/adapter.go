package sentry

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// defaultQuery selects which issues are synced when the organization
// does not configure its own search filter.
const defaultQuery = "is:unresolved"

// Adapter translates the Sentry Web API into the generic source
// contract. It additionally exposes per-issue occurrence events and
// live annotation reads for the correlation engine.
type Adapter struct {
	client  *Client
	orgSlug string
	query   string
}

var (
	_ source.Adapter           = (*Adapter)(nil)
	_ source.EventFetcher      = (*Adapter)(nil)
	_ source.AnnotationFetcher = (*Adapter)(nil)
)

// NewAdapter creates a new Sentry source adapter for one organization
// slug. An empty baseURL selects hosted sentry.io; an empty query
// falls back to unresolved issues only.
func NewAdapter(baseURL, token, orgSlug, query string) *Adapter {
	if query == "" {
		query = defaultQuery
	}
	return &Adapter{
		client:  NewClient(baseURL, token),
		orgSlug: orgSlug,
		query:   query,
	}
}

// Type returns the source type identifier for Sentry.
func (a *Adapter) Type() model.SourceType {
	return model.SourceTypeSentry
}

// ValidateConnection verifies the token can read the organization.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var org OrganizationDetail
	path := fmt.Sprintf("/api/0/organizations/%s/", url.PathEscape(a.orgSlug))
	if err := a.client.Get(ctx, path, &org); err != nil {
		return "", fmt.Errorf("validating Sentry connection: %w", err)
	}
	return "connected to organization " + org.Name, nil
}

// FetchProjects retrieves a page of the organization's projects.
// Sentry paginates with cursors; an offset cursor keeps the 1-based
// page contract.
func (a *Adapter) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	page, pageSize := normalizePage(opts)
	path := fmt.Sprintf(
		"/api/0/organizations/%s/projects/?cursor=0:%d:0&per_page=%d",
		url.PathEscape(a.orgSlug), (page-1)*pageSize, pageSize,
	)

	var remote []Project
	if err := a.client.Get(ctx, path, &remote); err != nil {
		return nil, fmt.Errorf("fetching Sentry projects: %w", err)
	}

	projects := make([]model.Project, 0, len(remote))
	for _, p := range remote {
		projects = append(projects, model.Project{
			ExternalKey: p.Slug,
			ExternalID:  p.ID,
			Name:        p.Name,
			ProjectType: "error-tracking",
			Metadata:    map[string]string{"platform": p.Platform},
		})
	}

	return &source.ProjectPage{
		Projects: projects,
		HasMore:  len(remote) == pageSize,
	}, nil
}

// FetchIssues retrieves a page of issues (error groups) for a project,
// filtered by the configured search query.
func (a *Adapter) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	page, pageSize := normalizePage(opts)
	path := fmt.Sprintf(
		"/api/0/projects/%s/%s/issues/?query=%s&cursor=0:%d:0&limit=%d",
		url.PathEscape(a.orgSlug), url.PathEscape(projectKey),
		url.QueryEscape(a.query), (page-1)*pageSize, pageSize,
	)

	var remote []Issue
	if err := a.client.Get(ctx, path, &remote); err != nil {
		return nil, fmt.Errorf("fetching Sentry issues for %s: %w", projectKey, err)
	}

	issues := make([]model.Issue, 0, len(remote))
	for _, issue := range remote {
		issues = append(issues, issueToModel(issue))
	}

	return &source.IssuePage{
		Issues:  issues,
		HasMore: len(remote) == pageSize,
	}, nil
}

// FetchIssueEvents retrieves the most recent occurrences of an issue.
func (a *Adapter) FetchIssueEvents(ctx context.Context, issueExternalID string, limit int) ([]model.IssueEvent, error) {
	path := fmt.Sprintf("/api/0/issues/%s/events/?limit=%d",
		url.PathEscape(issueExternalID), limit)

	var remote []Event
	if err := a.client.Get(ctx, path, &remote); err != nil {
		return nil, fmt.Errorf("fetching Sentry events for issue %s: %w", issueExternalID, err)
	}

	events := make([]model.IssueEvent, 0, len(remote))
	for _, e := range remote {
		ev := model.IssueEvent{
			ExternalID: e.EventID,
			Message:    e.Message,
			Platform:   e.Platform,
			OccurredAt: parseSentryTime(e.DateCreated),
		}
		if ev.Message == "" {
			ev.Message = e.Title
		}
		if e.User != nil {
			ev.UserID = e.User.ID
			ev.UserEmail = e.User.Email
			ev.UserIP = e.User.IPAddress
		}
		for _, tag := range e.Tags {
			switch tag.Key {
			case "environment":
				ev.Environment = tag.Value
			case "release":
				ev.Release = tag.Value
			}
			if ev.Tags == nil {
				ev.Tags = make(map[string]string)
			}
			ev.Tags[tag.Key] = tag.Value
		}
		events = append(events, ev)
	}
	return events, nil
}

// FetchIssueAnnotations re-reads a single issue and returns its
// structured external references.
func (a *Adapter) FetchIssueAnnotations(ctx context.Context, issueExternalID string) ([]source.Annotation, error) {
	path := fmt.Sprintf("/api/0/issues/%s/", url.PathEscape(issueExternalID))

	var issue Issue
	if err := a.client.Get(ctx, path, &issue); err != nil {
		return nil, fmt.Errorf("fetching Sentry issue %s: %w", issueExternalID, err)
	}

	annotations := make([]source.Annotation, 0, len(issue.Annotations))
	for _, ann := range issue.Annotations {
		annotations = append(annotations, source.Annotation{
			URL:         ann.URL,
			DisplayName: ann.DisplayName,
		})
	}
	return annotations, nil
}

func issueToModel(issue Issue) model.Issue {
	count, _ := strconv.Atoi(issue.Count)

	m := model.Issue{
		SourceType:     model.SourceTypeSentry,
		ExternalKey:    issue.ID,
		ExternalID:     issue.ID,
		Title:          issue.Title,
		IssueType:      issue.Type,
		Status:         issue.Status,
		StatusCategory: normalizeStatus(issue.Status),
		Level:          issue.Level,
		Permalink:      issue.Permalink,
		Culprit:        issue.Culprit,
		EventCount:     count,
		UserCount:      issue.UserCount,
		Metadata: map[string]string{
			"type":     issue.Metadata.Type,
			"value":    issue.Metadata.Value,
			"short_id": issue.ShortID,
		},
		FetchedAt: time.Now().UTC(),
	}

	if issue.AssignedTo != nil && issue.AssignedTo.Type == "user" {
		m.Assignee = issue.AssignedTo.Name
		m.AssigneeEmail = issue.AssignedTo.Email
	}

	if t := parseSentryTime(issue.FirstSeen); !t.IsZero() {
		m.FirstSeenAt = &t
	}
	if t := parseSentryTime(issue.LastSeen); !t.IsZero() {
		m.LastSeenAt = &t
	}

	return m
}

// normalizeStatus maps Sentry's issue status onto the shared status
// categories. Ignored issues are treated as parked, not resolved.
func normalizeStatus(status string) string {
	switch status {
	case "resolved":
		return model.StatusCategoryDone
	case "ignored", "muted":
		return model.StatusCategoryInProgress
	default:
		return model.StatusCategoryNew
	}
}

func normalizePage(opts source.PageRequest) (page, pageSize int) {
	page = opts.Page
	if page < 1 {
		page = 1
	}
	pageSize = opts.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	return page, pageSize
}

func parseSentryTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
