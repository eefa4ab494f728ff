package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fxarena/fxarena/internal/scheduler"
	"github.com/fxarena/fxarena/internal/server"
	"github.com/fxarena/fxarena/internal/server/handler"
	"github.com/fxarena/fxarena/internal/server/ws"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// ServerMode runs the HTTP API and the WebSocket event feed without any
// background settlement jobs. Use it behind a separate scheduler instance.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.Events, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	srv := a.buildServer(deps, hub)
	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// SchedulerMode runs the background settlement jobs (margin sweep, contest
// activation and finalization, archival) without the HTTP API.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scheduler mode")
	return a.buildScheduler(deps).Run(ctx)
}

// FullMode runs everything in one process: the HTTP API, the WebSocket feed,
// and the background settlement jobs.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.buildScheduler(deps).Run(ctx) })

	hub := ws.NewHub(deps.Events, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if a.cfg.Server.Enabled {
		srv := a.buildServer(deps, hub)
		g.Go(func() error { return srv.Start() })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// buildScheduler assembles the job scheduler from wired dependencies.
func (a *App) buildScheduler(deps *Dependencies) *scheduler.Scheduler {
	var archiver scheduler.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	return scheduler.New(
		deps.Monitor,
		deps.Finalizer,
		archiver,
		deps.Locks,
		scheduler.Config{
			SweepInterval:  a.cfg.Scheduler.SweepInterval.Duration,
			SettlementCron: a.cfg.Scheduler.SettlementCron,
			ArchiveCron:    a.cfg.Scheduler.ArchiveCron,
			LockTTL:        a.cfg.Scheduler.LockTTL.Duration,
		},
		a.logger,
	)
}

// buildServer assembles the HTTP server and its handlers from wired
// dependencies.
func (a *App) buildServer(deps *Dependencies, hub *ws.Hub) *server.Server {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Contests: handler.NewContestHandler(
			deps.Stores.Contests,
			deps.Stores.Participants,
			a.logger,
		),
		Participants: handler.NewParticipantHandler(
			deps.Stores.Participants,
			deps.Stores.Positions,
			a.logger,
		),
		Settlement: handler.NewSettlementHandler(
			deps.Finalizer,
			deps.Monitor,
			deps.Stores.Wallets,
			deps.Stores.Platform,
			a.logger,
		),
		Events: handler.NewEventsHandler(deps.Events, a.logger),
	}

	return server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		handlers,
		deps.RateLimiter,
		hub,
		a.logger,
	)
}
