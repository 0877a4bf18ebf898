package jira

import "encoding/json"

// SearchResponse is the response from POST /rest/api/3/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// ProjectSearchResponse is the response from GET /rest/api/3/project/search.
type ProjectSearchResponse struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	IsLast     bool      `json:"isLast"`
	Values     []Project `json:"values"`
}

// Issue represents a single Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the standard fields of a Jira issue.
type IssueFields struct {
	Summary        string           `json:"summary"`
	Status         Status           `json:"status"`
	Priority       Priority         `json:"priority"`
	IssueType      IssueType        `json:"issuetype"`
	Assignee       *User            `json:"assignee"`
	Reporter       *User            `json:"reporter"`
	Project        Project          `json:"project"`
	Created        string           `json:"created"`
	Updated        string           `json:"updated"`
	ResolutionDate string           `json:"resolutiondate,omitempty"`
	Labels         []string         `json:"labels,omitempty"`
	Components     []NamedResource  `json:"components,omitempty"`
	FixVersions    []NamedResource  `json:"fixVersions,omitempty"`
	// Description is an Atlassian Document Format tree in API v3.
	Description json.RawMessage `json:"description,omitempty"`
}

// NamedResource is a Jira entity referenced only by name (component,
// fix version).
type NamedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Status represents the status of a Jira issue.
type Status struct {
	Name           string         `json:"name"`
	ID             string         `json:"id"`
	StatusCategory StatusCategory `json:"statusCategory"`
}

// StatusCategory is the broad category a status belongs to.
type StatusCategory struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Priority represents the priority level of a Jira issue.
type Priority struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// IssueType represents the type of a Jira issue (Bug, Story, etc.).
type IssueType struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// User represents a Jira user.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Project represents a Jira project.
type Project struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	ProjectTypeKey string `json:"projectTypeKey,omitempty"`
	Lead           *User  `json:"lead,omitempty"`
}

// Myself is the response from GET /rest/api/3/myself.
type Myself struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// CreatedIssue is the response from POST /rest/api/3/issue.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
