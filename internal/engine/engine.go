// Package engine implements the ledger's settlement core: listing and offer
// lifecycles, atomic trade settlement with fee and royalty splitting, royalty
// registration, admin parameter management, and the venue callback surface.
//
// Every mutating operation serializes per asset unit through the distributed
// lock manager; the three operations that move value additionally hold a
// per-instance reentry guard. Terminal states are represented as row absence:
// nothing here ever writes a "dead" record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// EventStream is the durable Redis stream every event is appended to.
const EventStream = "tradepost:events"

// EventChannelPrefix prefixes the per-type pub/sub channels, so consumers
// subscribe to "events:item_sold" or pattern-match "events:*".
const EventChannelPrefix = "events:"

// Deps bundles the collaborators the engine is built from.
type Deps struct {
	Store    domain.Store
	Registry domain.AssetRegistry
	Rail     domain.PaymentRail
	Auction  domain.AuctionVenue
	Bundle   domain.BundleVenue
	Locks    domain.LockManager
	Bus      domain.EventBus
	// Royalties is optional; when nil every attribution read hits the store.
	Royalties domain.RoyaltyCache
	Logger    *slog.Logger

	// Admin is the only caller admitted to the parameter setters.
	Admin common.Address
	// LockTTL bounds how long a crashed settlement can keep a unit locked.
	LockTTL time.Duration
	// Bootstrap seeds the parameter singleton on first start.
	Bootstrap domain.LedgerParams
	// Now is the engine clock; defaults to time.Now.
	Now func() time.Time
}

// Engine orchestrates all ledger state transitions.
type Engine struct {
	store     domain.Store
	registry  domain.AssetRegistry
	rail      domain.PaymentRail
	auction   domain.AuctionVenue
	bundle    domain.BundleVenue
	locks     domain.LockManager
	bus       domain.EventBus
	royalties domain.RoyaltyCache
	logger    *slog.Logger

	admin   common.Address
	lockTTL time.Duration
	now     func() time.Time

	guard guard

	// mu protects params, the in-memory copy of the persisted singleton.
	mu     sync.RWMutex
	params domain.LedgerParams
}

// New creates an Engine. Call LoadParams before serving traffic so the
// parameter singleton is in memory.
func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 15 * time.Second
	}
	return &Engine{
		store:     d.Store,
		registry:  d.Registry,
		rail:      d.Rail,
		auction:   d.Auction,
		bundle:    d.Bundle,
		locks:     d.Locks,
		bus:       d.Bus,
		royalties: d.Royalties,
		logger:    d.Logger,
		admin:     d.Admin,
		lockTTL:   d.LockTTL,
		now:       d.Now,
	}
}

// LoadParams loads the persisted parameter singleton into memory, seeding it
// from the bootstrap values on first start.
func (e *Engine) LoadParams(ctx context.Context, bootstrap domain.LedgerParams) error {
	p, err := e.store.Params().Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		p = bootstrap
		p.UpdatedAt = e.now().UTC()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("engine: bootstrap params: %w", err)
		}
		if err := e.store.Params().Put(ctx, p); err != nil {
			return fmt.Errorf("engine: seed params: %w", err)
		}
		e.logger.InfoContext(ctx, "engine: params seeded from bootstrap",
			slog.Uint64("fee_bps", p.FeeBps),
			slog.String("fee_recipient", p.FeeRecipient.Hex()),
		)
	} else if err != nil {
		return fmt.Errorf("engine: load params: %w", err)
	}

	e.mu.Lock()
	e.params = p
	e.mu.Unlock()
	return nil
}

// Params returns a snapshot of the current ledger parameters.
func (e *Engine) Params() domain.LedgerParams {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// withUnitLock serializes fn on the asset unit across all replicas. Lock
// contention surfaces as domain.ErrLockHeld, which callers treat as "busy,
// retry".
func (e *Engine) withUnitLock(ctx context.Context, asset domain.AssetKey, fn func() error) error {
	unlock, err := e.locks.Acquire(ctx, "asset:"+asset.String(), e.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("engine: unit %s busy: %w", asset, domain.ErrLockHeld)
		}
		return fmt.Errorf("engine: lock unit %s: %w", asset, err)
	}
	defer unlock()
	return fn()
}

// requireHolds classifies a holding shortfall: holding nothing at all is a
// changed-hands condition, holding some but not enough is a quantity
// shortfall.
func requireHolds(h domain.Holding, quantity uint64) error {
	if h.Quantity == 0 {
		return domain.ErrNotOwningItem
	}
	if !h.Covers(quantity) {
		return domain.ErrInsufficientHolding
	}
	return nil
}
