package sonar

// Paging is SonarCloud's shared pagination envelope.
type Paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// ProjectSearchResponse is the response from GET /api/projects/search.
type ProjectSearchResponse struct {
	Paging     Paging    `json:"paging"`
	Components []Project `json:"components"`
}

// Project is one SonarCloud project component.
type Project struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	Qualifier        string `json:"qualifier"`
	Visibility       string `json:"visibility"`
	LastAnalysisDate string `json:"lastAnalysisDate"`
}

// IssueSearchResponse is the response from GET /api/issues/search.
type IssueSearchResponse struct {
	Paging Paging  `json:"paging"`
	Issues []Issue `json:"issues"`
	Total  int     `json:"total"`
}

// Issue is one code-quality finding.
type Issue struct {
	Key          string   `json:"key"`
	Rule         string   `json:"rule"`
	Severity     string   `json:"severity"`
	Component    string   `json:"component"`
	Project      string   `json:"project"`
	Line         int      `json:"line"`
	Message      string   `json:"message"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Resolution   string   `json:"resolution"`
	Effort       string   `json:"effort"`
	Debt         string   `json:"debt"`
	Assignee     string   `json:"assignee"`
	Author       string   `json:"author"`
	Tags         []string `json:"tags"`
	CreationDate string   `json:"creationDate"`
	UpdateDate   string   `json:"updateDate"`
	CloseDate    string   `json:"closeDate"`
}

// MeasuresResponse is the response from GET /api/measures/component.
type MeasuresResponse struct {
	Component MeasureComponent `json:"component"`
}

// MeasureComponent carries a component and its requested measures.
type MeasureComponent struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Measures []Measure `json:"measures"`
}

// Measure is one metric value on a component.
type Measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// OrganizationSearchResponse is the response from GET /api/organizations/search.
type OrganizationSearchResponse struct {
	Organizations []Organization `json:"organizations"`
}

// Organization is one SonarCloud organization.
type Organization struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ErrorResponse is the standard SonarCloud error payload.
type ErrorResponse struct {
	Errors []ErrorItem `json:"errors"`
}

// ErrorItem is one message inside an error payload.
type ErrorItem struct {
	Msg string `json:"msg"`
}
