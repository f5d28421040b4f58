package command

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Scheduler drives the dispatch loop: a periodic tick that expires stale
// scheduled commands, selects due pending commands in dispatch order, and
// hands each to the dispatcher under a bounded worker pool.
//
// Distinct commands are attempted concurrently; the dispatcher's
// compare-and-set claim guarantees no command runs twice at once even if
// a slow attempt overlaps the next tick.
type Scheduler struct {
	dispatcher *Dispatcher
	repo       Repository
	logger     Logger

	tick    time.Duration
	workers int
	batch   int
}

// NewScheduler creates a scheduler.
//
// Parameters:
//   - dispatcher: Dispatcher to hand due commands to
//   - repo: Command store for due/expiry scans
//   - logger: Logger instance
//   - tick: Scan interval
//   - workers: Maximum concurrent attempts per process
func NewScheduler(dispatcher *Dispatcher, repo Repository, logger Logger, tick time.Duration, workers int) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	if tick <= 0 {
		tick = 2 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		dispatcher: dispatcher,
		repo:       repo,
		logger:     logger,
		tick:       tick,
		workers:    workers,
		batch:      100,
	}
}

// Run executes the scheduling loop until the context is cancelled. It
// blocks; callers run it in its own goroutine. In-flight attempts are
// drained before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		"tick", s.tick.String(), "workers", s.workers)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick performs one scan: expiry first, then dispatch of due commands.
func (s *Scheduler) runTick(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.repo.ExpireStale(ctx, now, s.dispatcher.cfg.ScheduledWindow)
	if err != nil {
		s.logger.Error("expiry scan failed", "error", err)
	} else if len(expired) > 0 {
		s.logger.Warn("expired stale scheduled commands", "count", len(expired))
	}

	due, err := s.repo.ListDue(ctx, now, s.batch)
	if err != nil {
		s.logger.Error("due scan failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug("dispatching due commands", "count", len(due))

	// Bounded fan-out; the semaphore caps concurrent downstream calls.
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for _, cmd := range due {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.attempt(ctx, id)
		}(cmd.ID)
	}

	wg.Wait()
}

// attempt runs one dispatch attempt, logging only unexpected failures.
// Precondition misses are routine: another worker claimed the command,
// a dependency is still in flight, or the backoff has not elapsed.
func (s *Scheduler) attempt(ctx context.Context, id string) {
	_, err := s.dispatcher.Attempt(ctx, id)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, ErrNotPending),
		errors.Is(err, ErrNotDue),
		errors.Is(err, ErrDependenciesNotMet):
		s.logger.Debug("command not dispatchable", "command_id", id, "reason", err)
	case errors.Is(err, ErrExpired):
		s.logger.Warn("command expired at dispatch", "command_id", id)
	case errors.Is(err, ErrNotFound):
		s.logger.Warn("due command disappeared", "command_id", id)
	default:
		// Validation errors and store failures; the command record
		// already carries the outcome.
		s.logger.Warn("command attempt rejected", "command_id", id, "error", err)
	}
}
