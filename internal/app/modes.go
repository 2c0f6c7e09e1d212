package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapbot/internal/config"
	"github.com/alanyoungcy/swapbot/internal/engine"
	"github.com/alanyoungcy/swapbot/internal/pipeline"
	"github.com/alanyoungcy/swapbot/internal/server"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/server/ws"
	"github.com/alanyoungcy/swapbot/internal/service"
)

const shutdownTimeout = 30 * time.Second

// engineOptions maps the engine config section onto bot defaults.
func engineOptions(cfg config.EngineConfig) engine.Options {
	return engine.Options{
		CheckInterval:  cfg.CheckInterval.Duration,
		QuoteTimeout:   cfg.QuoteTimeout.Duration,
		SubmitTimeout:  cfg.SubmitTimeout.Duration,
		ConfirmTimeout: cfg.ConfirmTimeout.Duration,
		InitAttempts:   cfg.InitAttempts,
		InitBackoff:    cfg.InitBackoff.Duration,
		SlippageBps:    cfg.SlippageBps,
		LockTTL:        cfg.LockTTL.Duration,
	}
}

// newEventService routes engine telemetry to every configured sink.
func (a *App) newEventService(deps *Dependencies) *service.EventService {
	ed := service.EventDeps{
		Swaps:  deps.Swaps,
		Audit:  deps.Audit,
		Bus:    deps.Bus,
		Status: deps.Status,
	}
	if deps.Publisher != nil {
		ed.Publisher = deps.Publisher
	}
	if deps.Notifier != nil {
		ed.Notifier = deps.Notifier
	}
	return service.NewEventService(ed, a.logger)
}

// newManager builds the bot registry. The per-bot lease is taken only when
// distributed locks are enabled.
func (a *App) newManager(deps *Dependencies) *engine.Manager {
	var opts []engine.ManagerOption
	if a.cfg.Engine.DistributedLocks && deps.Locks != nil {
		opts = append(opts, engine.WithLockManager(deps.Locks))
	}
	return engine.NewManager(deps.Wallet, engine.Deps{
		Quotes:  deps.Quotes,
		Ledger:  deps.Ledger,
		Configs: deps.Configs,
		Sink:    a.newEventService(deps),
		Logger:  a.logger,
	}, engineOptions(a.cfg.Engine), opts...)
}

// TradeMode restarts every persisted active bot and runs them until ctx is
// cancelled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	return a.run(ctx, deps, true, false)
}

// ServerMode serves the API. Bots are started through it.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.run(ctx, deps, false, true)
}

// FullMode restarts persisted bots and serves the API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.run(ctx, deps, true, a.cfg.Server.Enabled)
}

func (a *App) run(ctx context.Context, deps *Dependencies, resume, serve bool) error {
	mgr := a.newManager(deps)

	g, ctx := errgroup.WithContext(ctx)

	// Stop every bot once the mode is cancelled. Shutdown keeps persisted
	// bots active so the next start resumes them.
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutCtx); err != nil {
			a.logger.Error("bot shutdown incomplete", slog.String("error", err.Error()))
		}
		return nil
	})

	if resume {
		n, err := mgr.StartActive(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "some persisted bots did not start", slog.String("error", err.Error()))
		}
		a.logger.InfoContext(ctx, "resumed persisted bots", slog.Int("count", n))
	}

	if deps.Archiver != nil {
		job := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			if a.cfg.Archive.Cron != "" {
				return job.RunCron(ctx, a.cfg.Archive.Cron)
			}
			return job.RunEvery(ctx, a.cfg.Archive.Interval.Duration)
		})
	}

	if serve {
		a.startHTTPServer(ctx, g, deps, mgr)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// startHTTPServer adds the API server and WebSocket hub to g. The server is
// shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, mgr *engine.Manager) {
	swaps := service.NewSwapService(deps.Swaps, deps.Status)

	var archives handler.ArchiveLister
	if deps.Archiver != nil {
		archives = deps.Archiver
	}

	hub := ws.NewHub(deps.Bus, mgr, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: time.Now().UTC()})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimitPerMinute,
		RateWindow:  time.Minute,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Bots:   handler.NewBotHandler(mgr, swaps, a.logger),
		Swaps:  handler.NewSwapHandler(swaps, archives, a.logger),
	}, hub, deps.Limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
