package sentry

// OrganizationDetail is the response from GET /api/0/organizations/{slug}/.
type OrganizationDetail struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Project is one entry from the organization projects list.
type Project struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Platform    string `json:"platform"`
	DateCreated string `json:"dateCreated"`
}

// Issue is a Sentry error group from the issues list.
type Issue struct {
	ID          string `json:"id"`
	ShortID     string `json:"shortId"`
	Title       string `json:"title"`
	Culprit     string `json:"culprit"`
	Permalink   string `json:"permalink"`
	Level       string `json:"level"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	Count       string `json:"count"`
	UserCount   int    `json:"userCount"`
	FirstSeen   string `json:"firstSeen"`
	LastSeen    string `json:"lastSeen"`
	Platform    string `json:"platform"`
	Metadata    IssueMetadata `json:"metadata"`
	AssignedTo  *Actor        `json:"assignedTo"`
	Annotations []Annotation  `json:"annotations"`
}

// IssueMetadata carries the error type and message Sentry extracted.
type IssueMetadata struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Actor is a user or team an issue is assigned to.
type Actor struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Annotation is a structured external reference on an issue, as
// returned inside the issue detail payload.
type Annotation struct {
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
}

// Event is one occurrence of an issue.
type Event struct {
	EventID     string     `json:"eventID"`
	Message     string     `json:"message"`
	Title       string     `json:"title"`
	Platform    string     `json:"platform"`
	DateCreated string     `json:"dateCreated"`
	User        *EventUser `json:"user"`
	Tags        []EventTag `json:"tags"`
}

// EventUser identifies the affected user on an event.
type EventUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	IPAddress string `json:"ipAddress"`
}

// EventTag is one key/value tag on an event.
type EventTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrorResponse is the standard Sentry error payload.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
