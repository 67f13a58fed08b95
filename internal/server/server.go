package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avendale/tradepost/internal/domain"
	"github.com/avendale/tradepost/internal/server/handler"
	"github.com/avendale/tradepost/internal/server/middleware"
	"github.com/avendale/tradepost/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	Principals  []middleware.PrincipalEntry

	// Rate limiting; a nil Limiter disables it.
	Limiter         domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Listings  *handler.ListingHandler
	Offers    *handler.OfferHandler
	Royalties *handler.RoyaltyHandler
	Admin     *handler.AdminHandler
	Venue     *handler.VenueHandler

	// Archives is optional: it is only served when the process has object
	// storage wired (archival enabled).
	Archives *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the exchange ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket event feed hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and platform parameters are readable without auth.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/params", handlers.Admin.GetParams)

	// Listings.
	mux.HandleFunc("POST /api/listings", handlers.Listings.Publish)
	mux.HandleFunc("GET /api/listings", handlers.Listings.List)
	mux.HandleFunc("GET /api/listings/{collection}/{unit}", handlers.Listings.Get)
	mux.HandleFunc("PUT /api/listings/{collection}/{unit}", handlers.Listings.Update)
	mux.HandleFunc("DELETE /api/listings/{collection}/{unit}", handlers.Listings.Cancel)
	mux.HandleFunc("POST /api/listings/{collection}/{unit}/buy", handlers.Listings.Buy)

	// Offers.
	mux.HandleFunc("POST /api/offers", handlers.Offers.Create)
	mux.HandleFunc("GET /api/offers", handlers.Offers.List)
	mux.HandleFunc("DELETE /api/offers/{collection}/{unit}", handlers.Offers.Cancel)
	mux.HandleFunc("POST /api/offers/{collection}/{unit}/accept", handlers.Offers.Accept)

	// Royalties.
	mux.HandleFunc("POST /api/royalties", handlers.Royalties.Register)
	mux.HandleFunc("GET /api/royalties/{collection}/{unit}", handlers.Royalties.Get)

	// Platform administration.
	mux.HandleFunc("PUT /api/admin/fee", handlers.Admin.UpdateFee)
	mux.HandleFunc("PUT /api/admin/fee-recipient", handlers.Admin.UpdateFeeRecipient)
	mux.HandleFunc("PUT /api/admin/auction-venue", handlers.Admin.UpdateAuctionVenue)
	mux.HandleFunc("PUT /api/admin/bundle-venue", handlers.Admin.UpdateBundleVenue)
	mux.HandleFunc("PUT /api/admin/asset-factory", handlers.Admin.UpdateAssetFactory)
	mux.HandleFunc("PUT /api/admin/private-asset-factory", handlers.Admin.UpdatePrivateAssetFactory)
	mux.HandleFunc("PUT /api/admin/flagship-collection", handlers.Admin.UpdateFlagshipCollection)
	mux.HandleFunc("GET /api/admin/audit", handlers.Admin.Audit)
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/admin/archives", handlers.Archives.List)
		mux.HandleFunc("GET /api/admin/archives/{key...}", handlers.Archives.Download)
	}

	// Cross-venue invalidation callbacks.
	mux.HandleFunc("POST /api/venue/cancel-listing", handlers.Venue.CancelListing)
	mux.HandleFunc("POST /api/venue/item-sold", handlers.Venue.ItemSold)

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(middleware.NewPrincipalTable(cfg.Principals))(h)

	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
