package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// requireAdmin gates the parameter setters.
func (e *Engine) requireAdmin(caller common.Address) error {
	if e.admin == domain.AddressZero || caller != e.admin {
		return domain.ErrUnauthorized
	}
	return nil
}

// updateParams persists a mutated copy of the parameter singleton and swaps
// it in memory. The write lock is held across the store write so concurrent
// setters serialize and the in-memory copy never diverges from the row.
func (e *Engine) updateParams(ctx context.Context, mutate func(*domain.LedgerParams)) (old, cur domain.LedgerParams, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old = e.params
	cur = e.params
	mutate(&cur)
	cur.UpdatedAt = e.now().UTC()

	if err = cur.Validate(); err != nil {
		return old, e.params, err
	}
	if err = e.store.Params().Put(ctx, cur); err != nil {
		return old, e.params, err
	}
	e.params = cur
	return old, cur, nil
}

// UpdatePlatformFee sets the platform fee rate in basis points over 1000.
func (e *Engine) UpdatePlatformFee(ctx context.Context, caller common.Address, bps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update platform fee: %w", err)
	}
	if bps > domain.FeeBpsDenominator {
		return fmt.Errorf("engine: update platform fee: %d over denominator: %w", bps, domain.ErrInvalidInput)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.FeeBps = bps })
	if err != nil {
		return fmt.Errorf("engine: update platform fee: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventFeeUpdated, cur.UpdatedAt, domain.FeeUpdatedBody{
		OldBps: old.FeeBps,
		NewBps: cur.FeeBps,
	}))
	e.logger.InfoContext(ctx, "engine: platform fee updated",
		slog.Uint64("old_bps", old.FeeBps),
		slog.Uint64("new_bps", cur.FeeBps),
	)
	return nil
}

// UpdateFeeRecipient sets where the platform fee is paid.
func (e *Engine) UpdateFeeRecipient(ctx context.Context, caller common.Address, recipient common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update fee recipient: %w", err)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.FeeRecipient = recipient })
	if err != nil {
		return fmt.Errorf("engine: update fee recipient: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventFeeRecipientUpdated, cur.UpdatedAt, domain.FeeRecipientUpdatedBody{
		Old: old.FeeRecipient,
		New: cur.FeeRecipient,
	}))
	e.logger.InfoContext(ctx, "engine: fee recipient updated",
		slog.String("old", old.FeeRecipient.Hex()),
		slog.String("new", cur.FeeRecipient.Hex()),
	)
	return nil
}

// UpdateAuctionVenue sets the auction house admitted to listing
// invalidation callbacks.
func (e *Engine) UpdateAuctionVenue(ctx context.Context, caller common.Address, venue common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update auction venue: %w", err)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.AuctionVenue = venue })
	if err != nil {
		return fmt.Errorf("engine: update auction venue: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventVenueUpdated, cur.UpdatedAt, domain.VenueUpdatedBody{
		Kind: "auction",
		Old:  old.AuctionVenue,
		New:  cur.AuctionVenue,
	}))
	return nil
}

// UpdateBundleVenue sets the bundle marketplace admitted to item-sold
// callbacks.
func (e *Engine) UpdateBundleVenue(ctx context.Context, caller common.Address, venue common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update bundle venue: %w", err)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.BundleVenue = venue })
	if err != nil {
		return fmt.Errorf("engine: update bundle venue: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventVenueUpdated, cur.UpdatedAt, domain.VenueUpdatedBody{
		Kind: "bundle",
		Old:  old.BundleVenue,
		New:  cur.BundleVenue,
	}))
	return nil
}

// UpdateAssetFactory sets the public collection factory consulted for
// royalty eligibility.
func (e *Engine) UpdateAssetFactory(ctx context.Context, caller common.Address, factory common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update asset factory: %w", err)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.AssetFactory = factory })
	if err != nil {
		return fmt.Errorf("engine: update asset factory: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventCollectionConfigUpdated, cur.UpdatedAt, domain.CollectionConfigUpdatedBody{
		Kind: "asset_factory",
		Old:  old.AssetFactory,
		New:  cur.AssetFactory,
	}))
	return nil
}

// UpdatePrivateAssetFactory sets the private collection factory consulted
// for royalty eligibility.
func (e *Engine) UpdatePrivateAssetFactory(ctx context.Context, caller common.Address, factory common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update private asset factory: %w", err)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.PrivateAssetFactory = factory })
	if err != nil {
		return fmt.Errorf("engine: update private asset factory: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventCollectionConfigUpdated, cur.UpdatedAt, domain.CollectionConfigUpdatedBody{
		Kind: "private_asset_factory",
		Old:  old.PrivateAssetFactory,
		New:  cur.PrivateAssetFactory,
	}))
	return nil
}

// UpdateFlagshipCollection sets the one collection whose sales pay
// royalties.
func (e *Engine) UpdateFlagshipCollection(ctx context.Context, caller common.Address, collection common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: update flagship collection: %w", err)
	}

	old, cur, err := e.updateParams(ctx, func(p *domain.LedgerParams) { p.FlagshipCollection = collection })
	if err != nil {
		return fmt.Errorf("engine: update flagship collection: %w", err)
	}

	e.emit(ctx, domain.NewEvent(domain.EventCollectionConfigUpdated, cur.UpdatedAt, domain.CollectionConfigUpdatedBody{
		Kind: "flagship_collection",
		Old:  old.FlagshipCollection,
		New:  cur.FlagshipCollection,
	}))
	return nil
}
