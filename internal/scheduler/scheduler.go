// Package scheduler drives the periodic settlement jobs: the margin sweep,
// contest activation and finalization, and cold-storage archival. Every job
// takes a distributed lock first so a multi-instance deployment settles
// each contest exactly once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fxarena/fxarena/internal/domain"
	"github.com/fxarena/fxarena/internal/settlement"
)

// Archiver exports settled contests to cold storage. Implemented by the
// blob/s3 package.
type Archiver interface {
	Run(ctx context.Context) error
}

// Config controls job cadence and locking.
type Config struct {
	// SweepInterval is the pause between margin sweeps.
	SweepInterval time.Duration
	// SettlementCron fires contest activation and finalization.
	SettlementCron string
	// ArchiveCron fires the cold-storage archiver. Empty disables it.
	ArchiveCron string
	// LockTTL bounds how long a crashed holder can block a job.
	LockTTL time.Duration
}

// Validate checks cadence and cron syntax up front so a bad config fails at
// startup instead of on the first trigger.
func (c Config) Validate() error {
	if c.SweepInterval <= 0 {
		return fmt.Errorf("scheduler: sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("scheduler: lock ttl must be positive, got %s", c.LockTTL)
	}
	if _, err := parseCron(c.SettlementCron); err != nil {
		return fmt.Errorf("scheduler: settlement cron: %w", err)
	}
	if c.ArchiveCron != "" {
		if _, err := parseCron(c.ArchiveCron); err != nil {
			return fmt.Errorf("scheduler: archive cron: %w", err)
		}
	}
	return nil
}

// Scheduler owns the background job loops.
type Scheduler struct {
	monitor   *settlement.Monitor
	finalizer *settlement.Finalizer
	archiver  Archiver
	locks     domain.LockManager
	cfg       Config
	logger    *slog.Logger
}

// New creates a Scheduler. archiver may be nil when archival is disabled.
func New(
	monitor *settlement.Monitor,
	finalizer *settlement.Finalizer,
	archiver Archiver,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		monitor:   monitor,
		finalizer: finalizer,
		archiver:  archiver,
		locks:     locks,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// Run starts every job loop and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.runSweepLoop(ctx) })
	g.Go(func() error { return s.runCronLoop(ctx, "settlement", s.cfg.SettlementCron, s.settleTick) })
	if s.archiver != nil && s.cfg.ArchiveCron != "" {
		g.Go(func() error { return s.runCronLoop(ctx, "archive", s.cfg.ArchiveCron, s.archiveTick) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runSweepLoop runs the margin sweep on a fixed interval. The sweep is also
// retried immediately on the next tick after a failure; there is no backoff
// because a missed sweep only delays liquidation by one interval.
func (s *Scheduler) runSweepLoop(ctx context.Context) error {
	s.logger.Info("margin sweep loop started",
		slog.Duration("interval", s.cfg.SweepInterval),
	)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("margin sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.withLock(ctx, "margin_sweep", func() {
				res, err := s.monitor.SweepAll(ctx)
				if err != nil {
					s.logger.ErrorContext(ctx, "margin sweep failed", slog.String("error", err.Error()))
					return
				}
				if res.Liquidations > 0 || res.MarginCalls > 0 {
					s.logger.InfoContext(ctx, "margin sweep complete",
						slog.Int("contests", res.ContestsSwept),
						slog.Int("liquidations", res.Liquidations),
						slog.Int("margin_calls", res.MarginCalls),
					)
				}
			})
		}
	}
}

// runCronLoop fires tick on the given cron schedule until ctx is cancelled.
func (s *Scheduler) runCronLoop(ctx context.Context, name, cronExpr string, tick func(context.Context)) error {
	s.logger.Info("cron loop started",
		slog.String("job", name),
		slog.String("cron", cronExpr),
	)

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("scheduler: parsing cron %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("cron loop stopped", slog.String("job", name))
			return ctx.Err()
		case <-timer.C:
			s.withLock(ctx, name, func() { tick(ctx) })
		}
	}
}

func (s *Scheduler) settleTick(ctx context.Context) {
	activated, err := s.finalizer.ActivateDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "contest activation failed", slog.String("error", err.Error()))
	}

	finalized, err := s.finalizer.FinalizeDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "contest finalization failed", slog.String("error", err.Error()))
	}

	if activated > 0 || finalized > 0 {
		s.logger.InfoContext(ctx, "settlement tick complete",
			slog.Int("activated", activated),
			slog.Int("finalized", finalized),
		)
	}
}

func (s *Scheduler) archiveTick(ctx context.Context) {
	if err := s.archiver.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
	}
}

// withLock runs fn while holding the named distributed lock. A lock held
// elsewhere means another instance is already doing the work, so the tick
// is skipped silently.
func (s *Scheduler) withLock(ctx context.Context, name string, fn func()) {
	unlock, err := s.locks.Acquire(ctx, name, s.cfg.LockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "lock acquisition failed",
			slog.String("lock", name),
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	fn()
}
