// Package syncer runs the generic synchronization engine: it pulls
// projects and issues from a configured organization's source adapter
// and reconciles them into the local store, recording every run in the
// sync attempt ledger.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/srehub/internal/config"
	"github.com/nhle/srehub/internal/model"
	"github.com/nhle/srehub/internal/source"
	"github.com/nhle/srehub/internal/source/registry"
	"github.com/nhle/srehub/internal/store"
)

// ErrSyncInFlight is returned when a sync is requested for an
// organization that already has one running.
var ErrSyncInFlight = errors.New("sync already in flight for organization")

// eventSyncLimit caps how many occurrence events are fetched per issue.
const eventSyncLimit = 10

// Summary is the outcome of one organization sync run.
type Summary struct {
	OrganizationID   string
	OrganizationName string

	// Status is the ledger status the run finalized to, or empty when
	// the run was skipped.
	Status string

	Skipped    bool
	SkipReason string

	ProjectsSynced int
	IssuesSynced   int
	EventsSynced   int
	IssuesCreated  int

	Duration time.Duration

	// Errors holds the collected per-entity error strings, capped at
	// the configured detail limit.
	Errors []string
}

// Failed reports whether the run finished without making progress.
func (s *Summary) Failed() bool {
	return s.Status == model.SyncStatusFailed
}

// Engine coordinates sync runs across organizations. Each organization
// runs under an in-flight guard so overlapping triggers (scheduler plus
// manual) cannot interleave writes.
type Engine struct {
	store   *store.SQLiteStore
	cfg     config.SyncConfig
	log     *zap.Logger
	factory registry.Factory

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a sync engine using the default adapter registry.
func New(s *store.SQLiteStore, cfg config.SyncConfig, log *zap.Logger) *Engine {
	return NewWithFactory(s, cfg, log, registry.ForOrganization)
}

// NewWithFactory creates a sync engine with a custom adapter factory.
func NewWithFactory(s *store.SQLiteStore, cfg config.SyncConfig, log *zap.Logger, factory registry.Factory) *Engine {
	return &Engine{
		store:    s,
		cfg:      cfg,
		log:      log,
		factory:  factory,
		inFlight: make(map[string]bool),
	}
}

// SyncOne runs a full sync for a single organization. Without force,
// organizations that are disabled or not yet due are skipped. Sync
// failures (connection, per-entity) are recorded on the summary and in
// the ledger, not returned as errors; the error return is reserved for
// store failures and the in-flight guard.
func (e *Engine) SyncOne(ctx context.Context, orgID string, force bool) (*Summary, error) {
	org, err := e.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
	}

	if !force {
		if !org.SyncEnabled {
			summary.Skipped = true
			summary.SkipReason = "sync disabled"
			return summary, nil
		}
		if !org.Due(time.Now().UTC()) {
			summary.Skipped = true
			summary.SkipReason = "not due"
			return summary, nil
		}
	}

	if !e.acquire(org.ID) {
		return nil, fmt.Errorf("organization %s: %w", org.Name, ErrSyncInFlight)
	}
	defer e.release(org.ID)

	log := e.log.With(
		zap.String("organization", org.Name),
		zap.String("source_type", string(org.SourceType)),
	)
	log.Info("starting sync")

	adapter, err := e.factory(org)
	if err != nil {
		return nil, err
	}

	attempt, err := e.store.CreateSyncAttempt(ctx, org.ID, model.SyncTypeFull)
	if err != nil {
		return nil, err
	}

	run := &syncRun{
		engine:  e,
		org:     org,
		adapter: adapter,
		attempt: attempt,
		log:     log,
	}
	status := run.execute(ctx)

	attempt.ProjectsSynced = run.projectsSynced
	attempt.IssuesSynced = run.issuesSynced
	attempt.EventsSynced = run.eventsSynced
	attempt.ErrorDetails = run.errs
	if run.fatal != nil {
		attempt.ErrorMessage = run.fatal.Error()
	} else if len(run.errs) > 0 {
		attempt.ErrorMessage = fmt.Sprintf("%d entities failed", len(run.errs))
	}

	if err := e.store.FinalizeSyncAttempt(ctx, attempt, status); err != nil {
		return nil, err
	}
	if err := e.updateOrgState(ctx, org.ID, status, run.fatal); err != nil {
		return nil, err
	}

	summary.Status = status
	summary.ProjectsSynced = run.projectsSynced
	summary.IssuesSynced = run.issuesSynced
	summary.EventsSynced = run.eventsSynced
	summary.IssuesCreated = run.issuesCreated
	summary.Errors = run.errs
	summary.Duration = attempt.Duration

	log.Info("sync finished",
		zap.String("status", status),
		zap.Int("projects", run.projectsSynced),
		zap.Int("issues", run.issuesSynced),
		zap.Int("events", run.eventsSynced),
		zap.Int("errors", len(run.errs)),
		zap.Duration("duration", attempt.Duration),
	)
	return summary, nil
}

// SyncAll runs SyncOne for every organization through a bounded worker
// pool and returns the per-organization summaries.
func (e *Engine) SyncAll(ctx context.Context, force bool) ([]Summary, error) {
	orgs, err := e.store.ListOrganizations(ctx, store.OrganizationFilter{})
	if err != nil {
		return nil, err
	}

	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	type result struct {
		index   int
		summary *Summary
	}

	jobs := make(chan int)
	results := make(chan result, len(orgs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				summary, err := e.SyncOne(ctx, orgs[i].ID, force)
				if err != nil {
					summary = &Summary{
						OrganizationID:   orgs[i].ID,
						OrganizationName: orgs[i].Name,
						Status:           model.SyncStatusFailed,
						Errors:           []string{err.Error()},
					}
				}
				results <- result{index: i, summary: summary}
			}
		}()
	}

	for i := range orgs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	summaries := make([]Summary, len(orgs))
	for r := range results {
		summaries[r.index] = *r.summary
	}
	return summaries, nil
}

func (e *Engine) acquire(orgID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[orgID] {
		return false
	}
	e.inFlight[orgID] = true
	return true
}

func (e *Engine) release(orgID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, orgID)
}

// updateOrgState writes the run outcome back to the organization row.
// last_sync_at only advances when the run made progress, so a failed
// run is retried at the next scheduler tick.
func (e *Engine) updateOrgState(ctx context.Context, orgID, status string, fatal error) error {
	now := time.Now().UTC()
	switch status {
	case model.SyncStatusSuccess, model.SyncStatusPartial:
		return e.store.UpdateOrganizationSyncState(
			ctx, orgID, &now, model.ConnectionConnected, "")
	default:
		connStatus := model.ConnectionFailed
		msg := ""
		if fatal != nil {
			msg = fatal.Error()
			if source.IsAuthError(fatal) {
				connStatus = model.ConnectionUnauthorized
			}
		}
		return e.store.UpdateOrganizationSyncState(ctx, orgID, nil, connStatus, msg)
	}
}

// syncRun holds the mutable state of one run.
type syncRun struct {
	engine  *Engine
	org     *model.Organization
	adapter source.Adapter
	attempt *model.SyncAttempt
	log     *zap.Logger

	projectsSynced int
	issuesSynced   int
	eventsSynced   int
	issuesCreated  int

	errs  []string
	fatal error
}

// execute performs the run and returns the ledger status it should
// finalize to.
func (r *syncRun) execute(ctx context.Context) string {
	// Probe before touching any data. A failed probe aborts the run
	// with the store unchanged.
	if _, err := r.adapter.ValidateConnection(ctx); err != nil {
		r.fatal = err
		r.log.Warn("connection probe failed", zap.Error(err))
		return model.SyncStatusFailed
	}

	projects, err := r.syncProjects(ctx)
	if err != nil {
		r.fatal = err
		return model.SyncStatusFailed
	}

	for i := range projects {
		p := &projects[i]
		if !p.SyncEnabled || !p.SyncIssues {
			continue
		}
		if err := r.syncProjectIssues(ctx, p); err != nil {
			// Auth expiry mid-run aborts; anything else is recorded
			// and the remaining projects still sync.
			if source.IsAuthError(err) {
				r.fatal = err
				break
			}
			r.recordError(fmt.Sprintf("project %s: %v", p.ExternalKey, err))
		}
	}

	switch {
	case r.fatal != nil:
		return model.SyncStatusFailed
	case len(r.errs) > 0:
		return model.SyncStatusPartial
	default:
		return model.SyncStatusSuccess
	}
}

// syncProjects pages through the remote project list and upserts each
// one, returning the stored rows with their local toggles intact.
func (r *syncRun) syncProjects(ctx context.Context) ([]model.Project, error) {
	pageSize := r.engine.cfg.PageSize
	maxPages := r.engine.cfg.MaxPages

	var synced []model.Project
	for page := 1; page <= maxPages; page++ {
		remote, err := r.adapter.FetchProjects(ctx, source.PageRequest{
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return nil, err
		}

		for i := range remote.Projects {
			p := remote.Projects[i]
			p.OrganizationID = r.org.ID
			p.SyncEnabled = true
			p.SyncIssues = true
			if _, err := r.engine.store.UpsertProject(ctx, &p); err != nil {
				r.recordError(fmt.Sprintf("project %s: %v", p.ExternalKey, err))
				continue
			}
			// Re-read to pick up locally persisted toggles and caps.
			stored, err := r.engine.store.GetProject(ctx, p.ID)
			if err != nil {
				r.recordError(fmt.Sprintf("project %s: %v", p.ExternalKey, err))
				continue
			}
			synced = append(synced, *stored)
			r.projectsSynced++
		}

		if !remote.HasMore || len(remote.Projects) == 0 {
			break
		}
	}
	return synced, nil
}

// syncProjectIssues pages through a project's issues, upserts each row,
// pulls occurrence events where the adapter supports them, and
// recomputes the project's status rollups.
func (r *syncRun) syncProjectIssues(ctx context.Context, p *model.Project) error {
	pageSize := r.engine.cfg.PageSize
	maxPages := r.engine.cfg.MaxPages
	maxIssues := p.MaxIssuesToSync

	eventFetcher, fetchEvents := r.adapter.(source.EventFetcher)

	count := 0
	for page := 1; page <= maxPages; page++ {
		remote, err := r.adapter.FetchIssues(ctx, p.ExternalKey, source.PageRequest{
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return err
		}

		for i := range remote.Issues {
			if maxIssues > 0 && count >= maxIssues {
				break
			}
			issue := remote.Issues[i]
			issue.ProjectID = p.ID

			created, err := r.engine.store.UpsertIssue(ctx, &issue)
			if err != nil {
				r.recordError(fmt.Sprintf("issue %s: %v", issue.ExternalKey, err))
				continue
			}
			count++
			r.issuesSynced++
			if created {
				r.issuesCreated++
			}

			if fetchEvents {
				r.syncIssueEvents(ctx, eventFetcher, &issue, created)
			}
		}

		if !remote.HasMore || len(remote.Issues) == 0 {
			break
		}
		if maxIssues > 0 && count >= maxIssues {
			break
		}
	}

	return r.engine.store.RecomputeProjectRollups(ctx, p.ID)
}

// syncIssueEvents pulls recent occurrences for an issue. Events are
// only fetched for newly discovered issues or ones whose stored sample
// is still short, keeping steady-state syncs cheap.
func (r *syncRun) syncIssueEvents(ctx context.Context, fetcher source.EventFetcher, issue *model.Issue, created bool) {
	if !created {
		stored, err := r.engine.store.CountIssueEvents(ctx, issue.ID)
		if err != nil || stored >= eventSyncLimit {
			return
		}
	}

	events, err := fetcher.FetchIssueEvents(ctx, issue.ExternalID, eventSyncLimit)
	if err != nil {
		r.recordError(fmt.Sprintf("events for issue %s: %v", issue.ExternalKey, err))
		return
	}
	for i := range events {
		ev := events[i]
		ev.IssueID = issue.ID
		if err := r.engine.store.UpsertIssueEvent(ctx, &ev); err != nil {
			r.recordError(fmt.Sprintf("event %s: %v", ev.ExternalID, err))
			continue
		}
		r.eventsSynced++
	}
}

// recordError collects a per-entity error string, bounded by the
// configured detail limit.
func (r *syncRun) recordError(msg string) {
	limit := r.engine.cfg.ErrorDetailLimit
	if limit > 0 && len(r.errs) >= limit {
		return
	}
	r.errs = append(r.errs, msg)
}
