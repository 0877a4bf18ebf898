package azure

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
)

// Adapter translates the Azure Resource Manager and Alerts Management
// APIs into the generic source contract. Resource groups map onto
// projects; monitor alerts map onto issues. ARM paginates with
// continuation links, so page requests beyond the first non-linked
// page return empty.
type Adapter struct {
	client         *Client
	subscriptionID string

	// resourceGroups optionally restricts the sync to named groups.
	resourceGroups map[string]bool
}

var _ source.Adapter = (*Adapter)(nil)

// NewAdapter creates a new Azure source adapter for one subscription.
// resourceGroups is an optional comma separated allowlist.
func NewAdapter(baseURL, tenantID, clientID, clientSecret, subscriptionID, resourceGroups string) *Adapter {
	var allowed map[string]bool
	if resourceGroups != "" {
		allowed = make(map[string]bool)
		for _, g := range strings.Split(resourceGroups, ",") {
			if g = strings.TrimSpace(g); g != "" {
				allowed[strings.ToLower(g)] = true
			}
		}
	}
	return &Adapter{
		client:         NewClient(baseURL, tenantID, clientID, clientSecret),
		subscriptionID: subscriptionID,
		resourceGroups: allowed,
	}
}

// Type returns the source type identifier for Azure.
func (a *Adapter) Type() model.SourceType {
	return model.SourceTypeAzure
}

// ValidateConnection verifies the service principal can read the
// subscription.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	path := fmt.Sprintf("/subscriptions/%s?api-version=2020-01-01",
		url.PathEscape(a.subscriptionID))

	var sub Subscription
	if err := a.client.Get(ctx, path, &sub); err != nil {
		return "", fmt.Errorf("validating Azure connection: %w", err)
	}
	return fmt.Sprintf("connected to subscription %s (%s)",
		sub.DisplayName, sub.State), nil
}

// FetchProjects retrieves the subscription's resource groups. ARM
// returns them in one response for typical subscription sizes; the
// continuation link is treated as an extra page signal.
func (a *Adapter) FetchProjects(ctx context.Context, opts source.PageRequest) (*source.ProjectPage, error) {
	if opts.Page > 1 {
		return &source.ProjectPage{}, nil
	}

	path := fmt.Sprintf("/subscriptions/%s/resourcegroups?api-version=2021-04-01",
		url.PathEscape(a.subscriptionID))

	var list ResourceGroupList
	if err := a.client.Get(ctx, path, &list); err != nil {
		return nil, fmt.Errorf("fetching Azure resource groups: %w", err)
	}

	var projects []model.Project
	for _, rg := range list.Value {
		if a.resourceGroups != nil && !a.resourceGroups[strings.ToLower(rg.Name)] {
			continue
		}
		project := model.Project{
			ExternalKey: rg.Name,
			ExternalID:  rg.ID,
			Name:        rg.Name,
			ProjectType: "resource-group",
			Metadata:    map[string]string{"location": rg.Location},
		}
		for k, v := range rg.Tags {
			project.Metadata["tag:"+k] = v
		}
		projects = append(projects, project)
	}

	return &source.ProjectPage{
		Projects: projects,
		Total:    len(projects),
	}, nil
}

// FetchIssues retrieves the monitor alerts targeting one resource
// group. The alerts API filters server side by target resource group.
func (a *Adapter) FetchIssues(ctx context.Context, projectKey string, opts source.PageRequest) (*source.IssuePage, error) {
	if opts.Page > 1 {
		return &source.IssuePage{}, nil
	}

	path := fmt.Sprintf(
		"/subscriptions/%s/providers/Microsoft.AlertsManagement/alerts"+
			"?api-version=2019-05-05-preview&targetResourceGroup=%s&timeRange=30d",
		url.PathEscape(a.subscriptionID), url.QueryEscape(projectKey),
	)

	var list AlertList
	if err := a.client.Get(ctx, path, &list); err != nil {
		return nil, fmt.Errorf("fetching Azure alerts for %s: %w", projectKey, err)
	}

	issues := make([]model.Issue, 0, len(list.Value))
	for _, alert := range list.Value {
		issues = append(issues, alertToIssue(alert))
	}

	return &source.IssuePage{
		Issues: issues,
		Total:  len(issues),
	}, nil
}

func alertToIssue(alert Alert) model.Issue {
	e := alert.Properties.Essentials

	m := model.Issue{
		SourceType:     model.SourceTypeAzure,
		ExternalKey:    alert.Name,
		ExternalID:     alert.ID,
		Title:          alert.Name,
		Description:    e.Description,
		IssueType:      e.MonitorService,
		Status:         e.AlertState,
		StatusCategory: normalizeAlertState(e.AlertState, e.MonitorCondition),
		Priority:       normalizeSeverity(e.Severity),
		Level:          e.Severity,
		Culprit:        e.TargetResourceName,
		Metadata: map[string]string{
			"monitor_condition": e.MonitorCondition,
			"signal_type":       e.SignalType,
			"target_resource":   e.TargetResource,
		},
		FetchedAt: time.Now().UTC(),
	}

	if t := parseAzureTime(e.StartDateTime); !t.IsZero() {
		m.FirstSeenAt = &t
		m.CreatedRemoteAt = &t
	}
	if t := parseAzureTime(e.LastModifiedDateTime); !t.IsZero() {
		m.LastSeenAt = &t
		m.UpdatedRemoteAt = &t
	}

	return m
}

// normalizeAlertState maps Azure alert lifecycle onto the shared
// status categories. A resolved monitor condition wins over the user
// facing alert state.
func normalizeAlertState(state, condition string) string {
	if strings.EqualFold(condition, "Resolved") {
		return model.StatusCategoryDone
	}
	switch strings.ToLower(state) {
	case "closed":
		return model.StatusCategoryDone
	case "acknowledged":
		return model.StatusCategoryInProgress
	default:
		return model.StatusCategoryNew
	}
}

// normalizeSeverity maps Azure's Sev0..Sev4 onto priority labels.
func normalizeSeverity(severity string) string {
	switch strings.ToUpper(severity) {
	case "SEV0":
		return "Highest"
	case "SEV1":
		return "High"
	case "SEV2":
		return "Medium"
	case "SEV3":
		return "Low"
	case "SEV4":
		return "Lowest"
	default:
		return ""
	}
}

func parseAzureTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
