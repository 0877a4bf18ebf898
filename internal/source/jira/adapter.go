package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// fetchFields are the Jira fields requested during search queries.
var fetchFields = []string{
	"summary", "description", "status", "priority", "assignee",
	"reporter", "issuetype", "project", "created", "updated",
	"resolutiondate", "labels", "components", "fixVersions",
}

// Adapter translates the Jira Cloud REST API v3 into the generic
// source contract. Beyond the required surface it supports direct
// lookup of projects and issues by key, and remote ticket creation.
type Adapter struct {
	client    *Client
	baseURL   string
	jqlFilter string
}

var (
	_ source.Adapter      = (*Adapter)(nil)
	_ source.IssueLookup  = (*Adapter)(nil)
	_ source.IssueCreator = (*Adapter)(nil)
)

// NewAdapter creates a new Jira source adapter. jqlFilter optionally
// narrows which issues are synced per project.
func NewAdapter(baseURL, email, token, jqlFilter string) *Adapter {
	return &Adapter{
		client:    NewClient(baseURL, email, token),
		baseURL:   strings.TrimRight(baseURL, "/"),
		jqlFilter: jqlFilter,
	}
}

// Type returns the source type identifier for Jira.
func (a *Adapter) Type() model.SourceType {
	return model.SourceTypeJira
}

// ValidateConnection verifies credentials by calling GET /rest/api/3/myself.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var me Myself
	if err := a.client.Get(ctx, "/rest/api/3/myself", &me); err != nil {
		return "", fmt.Errorf("validating Jira connection: %w", err)
	}
	return "authenticated as " + me.DisplayName, nil
}

// FetchProjects retrieves a page of Jira projects visible to the
// configured account.
func (a *Adapter) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	page, pageSize := normalizePage(opts)
	startAt := (page - 1) * pageSize

	path := fmt.Sprintf(
		"/rest/api/3/project/search?startAt=%d&maxResults=%d&expand=description,lead",
		startAt, pageSize,
	)

	var resp ProjectSearchResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching Jira projects: %w", err)
	}

	projects := make([]model.Project, 0, len(resp.Values))
	for _, p := range resp.Values {
		projects = append(projects, a.projectToModel(p))
	}

	return &source.ProjectPage{
		Projects: projects,
		Total:    resp.Total,
		HasMore:  !resp.IsLast && len(resp.Values) > 0,
	}, nil
}

// FetchIssues retrieves a page of issues for a project via JQL search.
func (a *Adapter) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	page, pageSize := normalizePage(opts)
	startAt := (page - 1) * pageSize

	jql := fmt.Sprintf("project = %q ORDER BY updated DESC", projectKey)
	if a.jqlFilter != "" {
		jql = fmt.Sprintf("project = %q AND (%s) ORDER BY updated DESC",
			projectKey, a.jqlFilter)
	}

	body := map[string]interface{}{
		"jql":        jql,
		"fields":     fetchFields,
		"startAt":    startAt,
		"maxResults": pageSize,
	}

	var resp SearchResponse
	if err := a.client.Post(ctx, "/rest/api/3/search", body, &resp); err != nil {
		return nil, fmt.Errorf("fetching Jira issues for %s: %w", projectKey, err)
	}

	issues := make([]model.Issue, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		issues = append(issues, a.issueToModel(issue))
	}

	return &source.IssuePage{
		Issues:  issues,
		Total:   resp.Total,
		HasMore: startAt+len(resp.Issues) < resp.Total,
	}, nil
}

// FetchProject retrieves a single project by key.
func (a *Adapter) FetchProject(ctx context.Context, projectKey string) (*model.Project, error) {
	path := "/rest/api/3/project/" + url.PathEscape(projectKey)

	var p Project
	if err := a.client.Get(ctx, path, &p); err != nil {
		return nil, fmt.Errorf("fetching Jira project %s: %w", projectKey, err)
	}
	project := a.projectToModel(p)
	return &project, nil
}

// FetchIssue retrieves a single issue by key.
func (a *Adapter) FetchIssue(ctx context.Context, issueKey string) (*model.Issue, error) {
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) +
		"?fields=" + strings.Join(fetchFields, ",")

	var issue Issue
	if err := a.client.Get(ctx, path, &issue); err != nil {
		return nil, fmt.Errorf("fetching Jira issue %s: %w", issueKey, err)
	}
	m := a.issueToModel(issue)
	return &m, nil
}

// CreateIssue creates a ticket in the given project and returns its key.
func (a *Adapter) CreateIssue(ctx context.Context, issue source.NewIssue) (string, error) {
	issueType := issue.IssueType
	if issueType == "" {
		issueType = "Task"
	}

	fields := map[string]interface{}{
		"project":     map[string]string{"key": issue.ProjectKey},
		"issuetype":   map[string]string{"name": issueType},
		"summary":     issue.Summary,
		"description": adfDocument(issue.Description),
	}
	if issue.Priority != "" {
		fields["priority"] = map[string]string{"name": issue.Priority}
	}
	if len(issue.Labels) > 0 {
		fields["labels"] = issue.Labels
	}

	var created CreatedIssue
	err := a.client.Post(ctx, "/rest/api/3/issue",
		map[string]interface{}{"fields": fields}, &created)
	if err != nil {
		return "", fmt.Errorf("creating Jira issue in %s: %w", issue.ProjectKey, err)
	}
	return created.Key, nil
}

func (a *Adapter) projectToModel(p Project) model.Project {
	lead := ""
	if p.Lead != nil {
		lead = p.Lead.DisplayName
	}
	return model.Project{
		ExternalKey: p.Key,
		ExternalID:  p.ID,
		Name:        p.Name,
		Description: p.Description,
		ProjectType: p.ProjectTypeKey,
		LeadName:    lead,
	}
}

func (a *Adapter) issueToModel(issue Issue) model.Issue {
	f := issue.Fields

	m := model.Issue{
		SourceType:     model.SourceTypeJira,
		ExternalKey:    issue.Key,
		ExternalID:     issue.ID,
		Title:          f.Summary,
		Description:    adfToText(f.Description),
		IssueType:      f.IssueType.Name,
		Status:         f.Status.Name,
		StatusCategory: normalizeStatusCategory(f.Status.StatusCategory.Key),
		Priority:       f.Priority.Name,
		Permalink:      a.baseURL + "/browse/" + issue.Key,
		Labels:         f.Labels,
		FetchedAt:      time.Now().UTC(),
	}

	if f.Assignee != nil {
		m.Assignee = f.Assignee.DisplayName
		m.AssigneeEmail = f.Assignee.EmailAddress
	}
	if f.Reporter != nil {
		m.Reporter = f.Reporter.DisplayName
		m.ReporterEmail = f.Reporter.EmailAddress
	}

	for _, c := range f.Components {
		m.Components = append(m.Components, c.Name)
	}
	for _, v := range f.FixVersions {
		m.FixVersions = append(m.FixVersions, v.Name)
	}

	if t := parseJiraTime(f.Created); !t.IsZero() {
		m.CreatedRemoteAt = &t
	}
	if t := parseJiraTime(f.Updated); !t.IsZero() {
		m.UpdatedRemoteAt = &t
	}
	if t := parseJiraTime(f.ResolutionDate); !t.IsZero() {
		m.ResolvedAt = &t
	}

	return m
}

// normalizeStatusCategory maps Jira's status category key onto the
// shared vocabulary. Jira already uses new/indeterminate/done, so only
// unknown values need a fallback.
func normalizeStatusCategory(key string) string {
	switch strings.ToLower(key) {
	case "new", "undefined", "":
		return model.StatusCategoryNew
	case "indeterminate":
		return model.StatusCategoryInProgress
	case "done":
		return model.StatusCategoryDone
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

// parseJiraTime parses a Jira timestamp string. Jira uses the format
// "2006-01-02T15:04:05.000+0000".
func parseJiraTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	layouts := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// adfNode is the subset of an Atlassian Document Format node needed
// for plain-text extraction.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// adfToText flattens an ADF description tree into plain text. Block
// nodes become newline-separated paragraphs.
func adfToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	// Older sites may still return a plain string.
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}

	var b strings.Builder
	flattenADF(doc, &b)
	return strings.TrimSpace(b.String())
}

func flattenADF(node adfNode, b *strings.Builder) {
	if node.Text != "" {
		b.WriteString(node.Text)
	}
	for _, child := range node.Content {
		flattenADF(child, b)
	}
	switch node.Type {
	case "paragraph", "heading", "listItem", "codeBlock", "blockquote", "hardBreak":
		b.WriteString("\n")
	}
}

// adfDocument wraps plain text in a minimal ADF document for writes.
func adfDocument(text string) map[string]interface{} {
	var content []map[string]interface{}
	for _, line := range strings.Split(text, "\n") {
		para := map[string]interface{}{"type": "paragraph"}
		if line != "" {
			para["content"] = []map[string]interface{}{
				{"type": "text", "text": line},
			}
		}
		content = append(content, para)
	}
	return map[string]interface{}{
		"type":    "doc",
		"version": 1,
		"content": content,
	}
}
