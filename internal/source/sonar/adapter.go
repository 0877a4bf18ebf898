package sonar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// issueTypes are the finding kinds requested from the issues search.
const issueTypes = "BUG,VULNERABILITY,CODE_SMELL"

// projectMetrics are the measures attached to project metadata.
var projectMetrics = []string{"ncloc", "bugs", "vulnerabilities", "code_smells", "coverage"}

// Adapter translates the SonarCloud Web API into the generic source
// contract. Findings (bugs, vulnerabilities, code smells) map onto
// issues; the project's quality measures land in project metadata.
type Adapter struct {
	client *Client
	orgKey string
}

var _ source.Adapter = (*Adapter)(nil)

// NewAdapter creates a new SonarCloud source adapter for one
// organization key.
func NewAdapter(baseURL, token, orgKey string) *Adapter {
	return &Adapter{
		client: NewClient(baseURL, token),
		orgKey: orgKey,
	}
}

// Type returns the source type identifier for SonarCloud.
func (a *Adapter) Type() model.SourceType {
	return model.SourceTypeSonar
}

// ValidateConnection verifies the token can read the organization.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	path := "/api/organizations/search?organizations=" + url.QueryEscape(a.orgKey)

	var resp OrganizationSearchResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("validating SonarCloud connection: %w", err)
	}
	if len(resp.Organizations) == 0 {
		return "", &source.AuthError{
			SourceType: model.SourceTypeSonar,
			Message:    fmt.Sprintf("organization %q is not visible to this token", a.orgKey),
		}
	}
	return "connected to organization " + resp.Organizations[0].Name, nil
}

// FetchProjects retrieves a page of the organization's projects,
// enriched with their current quality measures.
func (a *Adapter) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	page, pageSize := normalizePage(opts)
	path := fmt.Sprintf("/api/projects/search?organization=%s&p=%d&ps=%d",
		url.QueryEscape(a.orgKey), page, pageSize)

	var resp ProjectSearchResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching SonarCloud projects: %w", err)
	}

	projects := make([]model.Project, 0, len(resp.Components))
	for _, p := range resp.Components {
		project := model.Project{
			ExternalKey: p.Key,
			ExternalID:  p.Key,
			Name:        p.Name,
			ProjectType: "code-quality",
			Metadata:    map[string]string{},
		}
		if p.LastAnalysisDate != "" {
			project.Metadata["last_analysis"] = p.LastAnalysisDate
		}
		// Measures are best effort; a project with no analysis yet
		// simply has none.
		if measures, err := a.fetchMeasures(ctx, p.Key); err == nil {
			for metric, value := range measures {
				project.Metadata[metric] = value
			}
		}
		projects = append(projects, project)
	}

	return &source.ProjectPage{
		Projects: projects,
		Total:    resp.Paging.Total,
		HasMore:  page*pageSize < resp.Paging.Total,
	}, nil
}

// FetchIssues retrieves a page of unresolved findings for a project.
func (a *Adapter) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	page, pageSize := normalizePage(opts)
	path := fmt.Sprintf(
		"/api/issues/search?componentKeys=%s&organization=%s&types=%s&resolved=false&p=%d&ps=%d",
		url.QueryEscape(projectKey), url.QueryEscape(a.orgKey),
		url.QueryEscape(issueTypes), page, pageSize,
	)

	var resp IssueSearchResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetching SonarCloud issues for %s: %w", projectKey, err)
	}

	issues := make([]model.Issue, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		issues = append(issues, a.issueToModel(issue))
	}

	return &source.IssuePage{
		Issues:  issues,
		Total:   resp.Paging.Total,
		HasMore: page*pageSize < resp.Paging.Total,
	}, nil
}

func (a *Adapter) fetchMeasures(ctx context.Context, componentKey string) (map[string]string, error) {
	path := fmt.Sprintf("/api/measures/component?component=%s&metricKeys=%s",
		url.QueryEscape(componentKey), strings.Join(projectMetrics, ","))

	var resp MeasuresResponse
	if err := a.client.Get(ctx, path, &resp); err != nil {
		return nil, err
	}

	measures := make(map[string]string, len(resp.Component.Measures))
	for _, m := range resp.Component.Measures {
		measures[m.Metric] = m.Value
	}
	return measures, nil
}

func (a *Adapter) issueToModel(issue Issue) model.Issue {
	m := model.Issue{
		SourceType:     model.SourceTypeSonar,
		ExternalKey:    issue.Key,
		ExternalID:     issue.Key,
		Title:          issue.Message,
		IssueType:      issue.Type,
		Status:         issue.Status,
		StatusCategory: normalizeStatus(issue.Status),
		Priority:       normalizeSeverity(issue.Severity),
		Level:          issue.Severity,
		Assignee:       issue.Assignee,
		Reporter:       issue.Author,
		Culprit:        issue.Component,
		Labels:         issue.Tags,
		Metadata: map[string]string{
			"rule": issue.Rule,
		},
		FetchedAt: time.Now().UTC(),
	}

	if file := componentFile(issue.Component); file != "" {
		m.Metadata["file"] = file
	}
	if issue.Line > 0 {
		m.Metadata["line"] = strconv.Itoa(issue.Line)
	}
	if minutes := parseEffortMinutes(effortOf(issue)); minutes > 0 {
		m.Metadata["effort_minutes"] = strconv.Itoa(minutes)
	}

	if t := parseSonarTime(issue.CreationDate); !t.IsZero() {
		m.CreatedRemoteAt = &t
	}
	if t := parseSonarTime(issue.UpdateDate); !t.IsZero() {
		m.UpdatedRemoteAt = &t
	}
	if t := parseSonarTime(issue.CloseDate); !t.IsZero() {
		m.ResolvedAt = &t
	}

	return m
}

// effortOf prefers the effort field and falls back to the legacy debt
// field older instances return.
func effortOf(issue Issue) string {
	if issue.Effort != "" {
		return issue.Effort
	}
	return issue.Debt
}

// normalizeStatus maps SonarCloud issue statuses onto the shared
// status categories.
func normalizeStatus(status string) string {
	switch strings.ToUpper(status) {
	case "RESOLVED", "CLOSED":
		return model.StatusCategoryDone
	case "CONFIRMED", "REOPENED", "IN_REVIEW", "ACCEPTED":
		return model.StatusCategoryInProgress
	default:
		return model.StatusCategoryNew
	}
}

// normalizeSeverity maps SonarCloud severities onto priority labels.
func normalizeSeverity(severity string) string {
	switch strings.ToUpper(severity) {
	case "BLOCKER":
		return "Highest"
	case "CRITICAL":
		return "High"
	case "MAJOR":
		return "Medium"
	case "MINOR":
		return "Low"
	case "INFO":
		return "Lowest"
	default:
		return ""
	}
}

// parseEffortMinutes converts a SonarCloud effort string such as
// "1h30min", "2d", or "15min" into minutes. A day counts as 8 hours.
func parseEffortMinutes(effort string) int {
	if effort == "" {
		return 0
	}

	total := 0
	num := 0
	s := effort
	for len(s) > 0 {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			s = s[1:]
			continue
		}
		num, _ = strconv.Atoi(s[:i])
		s = s[i:]

		switch {
		case strings.HasPrefix(s, "min"):
			total += num
			s = s[3:]
		case strings.HasPrefix(s, "h"):
			total += num * 60
			s = s[1:]
		case strings.HasPrefix(s, "d"):
			total += num * 8 * 60
			s = s[1:]
		}
	}
	return total
}

// componentFile extracts the file path from a component key of the
// form "project-key:path/to/file.go".
func componentFile(component string) string {
	if idx := strings.Index(component, ":"); idx >= 0 && idx+1 < len(component) {
		return component[idx+1:]
	}
	return ""
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

func parseSonarTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
