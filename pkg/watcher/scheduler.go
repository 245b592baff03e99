package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns one cron entry per network and the active-watchers map,
// guarded by an RWMutex: writes only happen on start/stop watcher, reads
// happen during health checks.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu       sync.RWMutex
	watchers map[string]*Watcher
	entries  map[string]cron.EntryID
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
		logger:   logger,
		watchers: make(map[string]*Watcher),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start registers w's cron schedule and runs it until stopped.
func (s *Scheduler) Start(ctx context.Context, w *Watcher) error {
	id, err := s.cron.AddFunc(w.network.Cron, func() {
		if err := w.Tick(ctx); err != nil {
			w.logger.Error("tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watchers[w.network.ID] = w
	s.entries[w.network.ID] = id
	s.mu.Unlock()
	return nil
}

// Stop removes a network's watcher from the scheduler.
func (s *Scheduler) Stop(networkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[networkID]; ok {
		s.cron.Remove(id)
		delete(s.entries, networkID)
	}
	delete(s.watchers, networkID)
}

// Run starts the underlying cron scheduler; it returns immediately, firing
// jobs on the scheduler's own goroutines.
func (s *Scheduler) Run() { s.cron.Start() }

// Shutdown stops the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Shutdown(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// ActiveNetworks lists the networks currently scheduled, for health checks.
func (s *Scheduler) ActiveNetworks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.watchers))
	for id := range s.watchers {
		out = append(out, id)
	}
	return out
}

// cronIntervalMS estimates a cron expression's average fire interval by
// measuring the gap between its next two scheduled fires from now. Used by
// recommendedBlocks.
func cronIntervalMS(expr string) uint64 {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return 0
	}
	now := time.Now()
	first := schedule.Next(now)
	second := schedule.Next(first)
	d := second.Sub(first)
	if d <= 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}
