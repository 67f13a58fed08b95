package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/avendale/tradepost/internal/engine"
	"github.com/avendale/tradepost/internal/notify"
	"github.com/avendale/tradepost/internal/server"
	"github.com/avendale/tradepost/internal/server/handler"
	"github.com/avendale/tradepost/internal/server/middleware"
	"github.com/avendale/tradepost/internal/server/ws"
)

// ServeMode runs the HTTP API and the WebSocket event feed. This is the
// ledger's primary mode: every listing, offer, settlement, royalty, admin,
// and venue-callback operation is served here.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// RelayMode tails the durable event stream and forwards operator
// notifications. It needs only Redis and the configured notification
// channels, so it can run beside any number of serve replicas.
func (a *App) RelayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting relay mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startRelay(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode periodically exports aged audit rows to object storage and
// prunes them from Postgres. It runs one sweep immediately, then on the
// configured interval.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not wired (check s3 and postgres config)")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs every subsystem in one process: the HTTP API, the
// notification relay, and (when enabled) the audit archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)
	a.startRelay(ctx, g, deps)
	if a.cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "archive enabled but archiver not wired, skipping")
		} else {
			a.startArchiver(ctx, g, deps)
		}
	}

	return g.Wait()
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false; nothing to serve")
		return
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	principals := make([]middleware.PrincipalEntry, 0, len(a.cfg.Server.Principals))
	for _, p := range a.cfg.Server.Principals {
		principals = append(principals, middleware.PrincipalEntry{
			Name:        p.Name,
			Address:     common.HexToAddress(p.Address),
			Token:       p.Token,
			TokenBcrypt: p.TokenBcrypt,
		})
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Listings:  handler.NewListingHandler(deps.Engine, a.logger),
		Offers:    handler.NewOfferHandler(deps.Engine, a.logger),
		Royalties: handler.NewRoyaltyHandler(deps.Engine, a.logger),
		Admin:     handler.NewAdminHandler(deps.Engine, a.logger),
		Venue:     handler.NewVenueHandler(deps.Engine, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		Principals:      principals,
		Limiter:         deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startRelay adds the notification relay goroutine to the given errgroup.
func (a *App) startRelay(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	relay := notify.NewRelay(deps.Bus, deps.Notifier, deps.RateLimiter, engine.EventStream, 0, a.logger)
	g.Go(func() error {
		return relay.Run(ctx)
	})
}

// startArchiver adds the periodic audit archival goroutine. The retention
// cutoff is recomputed on every sweep.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep := func() {
			cutoff := time.Now().UTC().Add(-retention)
			archived, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
			if err != nil {
				a.logger.WarnContext(ctx, "audit archival sweep failed",
					slog.String("error", err.Error()),
				)
				return
			}
			if archived > 0 {
				a.logger.InfoContext(ctx, "audit archival sweep complete",
					slog.Int64("archived", archived),
					slog.Time("cutoff", cutoff),
				)
			}
		}

		sweep()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				sweep()
			}
		}
	})
}
