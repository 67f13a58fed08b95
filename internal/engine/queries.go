package engine

import (
	"context"
	"fmt"

	"github.com/avendale/tradepost/internal/domain"
)

// GetListing returns one live listing.
func (e *Engine) GetListing(ctx context.Context, key domain.ListingKey) (domain.Listing, error) {
	l, err := e.store.Listings().Get(ctx, key)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("engine: get listing: %w", err)
	}
	return l, nil
}

// ListListings returns live listings matching the filter.
func (e *Engine) ListListings(ctx context.Context, filter domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error) {
	ls, err := e.store.Listings().List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list listings: %w", err)
	}
	return ls, nil
}

// GetOffer returns one live offer. A dead row reads as absent, the same as
// every other path through the engine.
func (e *Engine) GetOffer(ctx context.Context, key domain.OfferKey) (domain.Offer, error) {
	o, err := e.store.Offers().Get(ctx, key)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("engine: get offer: %w", err)
	}
	if !o.Live(e.now().UTC()) {
		return domain.Offer{}, fmt.Errorf("engine: get offer: %w", domain.ErrNotFound)
	}
	return o, nil
}

// ListOffers returns live offers matching the filter; dead rows are
// filtered out before the caller ever sees them.
func (e *Engine) ListOffers(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error) {
	os, err := e.store.Offers().List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: list offers: %w", err)
	}
	now := e.now().UTC()
	live := os[:0]
	for _, o := range os {
		if o.Live(now) {
			live = append(live, o)
		}
	}
	return live, nil
}

// GetRoyalty returns a unit's attribution when one has been registered.
func (e *Engine) GetRoyalty(ctx context.Context, asset domain.AssetKey) (domain.RoyaltyAttribution, error) {
	r, err := e.store.Royalties().Get(ctx, asset)
	if err != nil {
		return domain.RoyaltyAttribution{}, fmt.Errorf("engine: get royalty: %w", err)
	}
	return r, nil
}

// AuditLog pages through the persisted audit trail.
func (e *Engine) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	entries, err := e.store.Audit().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("engine: audit log: %w", err)
	}
	return entries, nil
}
