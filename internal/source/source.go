package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/srehub/internal/model"
)

// AuthError indicates that authentication has failed or expired for an
// integration. It is fatal for the organization's current sync run.
type AuthError struct {
	SourceType model.SourceType
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.SourceType, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransportError is a network failure, timeout, or non-2xx response.
// Callers branch on it instead of unwinding; the run is retried at the
// next scheduled interval, never within the same run.
type TransportError struct {
	SourceType model.SourceType
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.SourceType, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: %v", e.SourceType, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err chains to a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// PageRequest controls pagination for list operations. Page is 1-based.
type PageRequest struct {
	Page     int
	PageSize int
}

// ProjectPage holds one page of projects from a list endpoint.
type ProjectPage struct {
	Projects []model.Project
	Total    int
	HasMore  bool
}

// IssuePage holds one page of issues for a project.
type IssuePage struct {
	Issues  []model.Issue
	Total   int
	HasMore bool
}

// Annotation is a structured external reference attached to a remote
// issue (URL plus display text).
type Annotation struct {
	URL         string
	DisplayName string
}

// Adapter is the integration-specific translation layer the generic
// sync engine delegates to. Implementations are stateless beyond their
// HTTP client and must normalize remote vocabulary (status categories,
// priorities) into model constants.
type Adapter interface {
	// Type returns the integration identifier.
	Type() model.SourceType

	// ValidateConnection verifies credentials and connectivity with a
	// lightweight authenticated call. Returns a human-readable status
	// message on success.
	ValidateConnection(ctx context.Context) (string, error)

	// FetchProjects retrieves a page of projects.
	FetchProjects(ctx context.Context, opts PageRequest) (*ProjectPage, error)

	// FetchIssues retrieves a page of issues for a project, identified
	// by its external key.
	FetchIssues(ctx context.Context, projectKey string, opts PageRequest) (*IssuePage, error)
}

// EventFetcher is an optional adapter capability: per-issue occurrence
// events. The engine detects it by interface assertion.
type EventFetcher interface {
	FetchIssueEvents(ctx context.Context, issueExternalID string, limit int) ([]model.IssueEvent, error)
}

// AnnotationFetcher is an optional adapter capability: re-fetch a single
// remote issue's annotations. Annotations are not part of the stored
// entity, so correlation passes need a live read.
type AnnotationFetcher interface {
	FetchIssueAnnotations(ctx context.Context, issueExternalID string) ([]Annotation, error)
}

// IssueLookup is an optional adapter capability: direct lookup of one
// project or issue by external key. Used by the correlation engine to
// materialize records that have not been synced yet.
type IssueLookup interface {
	FetchProject(ctx context.Context, projectKey string) (*model.Project, error)
	FetchIssue(ctx context.Context, issueKey string) (*model.Issue, error)
}

// NewIssue describes a remote ticket to be created.
type NewIssue struct {
	ProjectKey  string
	IssueType   string
	Summary     string
	Description string
	Priority    string
	Assignee    string
	Labels      []string
}

// IssueCreator is an optional adapter capability: create a ticket on
// the remote system. Returns the new issue's external key.
type IssueCreator interface {
	CreateIssue(ctx context.Context, issue NewIssue) (string, error)
}
