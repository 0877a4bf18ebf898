package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tickInterval is how often the scheduler re-checks organization
// eligibility. Per-organization cadence comes from each row's sync
// interval; the tick only bounds detection latency.
const tickInterval = time.Minute

// Scheduler runs the engine on a timer, syncing whichever
// organizations are due at each tick. Manual triggers run a full pass
// immediately without waiting for the next tick.
type Scheduler struct {
	engine *Engine
	log    *zap.Logger

	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler around an engine.
func NewScheduler(engine *Engine, log *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:    engine,
		log:       log,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Run blocks, executing eligibility passes until the context is
// canceled or Stop is called. The first pass runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pass(ctx)
		case <-s.triggerCh:
			s.pass(ctx)
		}
	}
}

// Trigger requests an immediate pass. A pending trigger is collapsed
// into one.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Stop halts a running scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

// pass syncs every organization that is currently due.
func (s *Scheduler) pass(ctx context.Context) {
	summaries, err := s.engine.SyncAll(ctx, false)
	if err != nil {
		s.log.Error("scheduler pass failed", zap.Error(err))
		return
	}

	ran := 0
	for i := range summaries {
		if !summaries[i].Skipped {
			ran++
		}
	}
	if ran > 0 {
		s.log.Info("scheduler pass complete",
			zap.Int("organizations_synced", ran),
			zap.Int("organizations_total", len(summaries)),
		)
	}
}
