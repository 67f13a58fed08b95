package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// ListingInput carries the caller-supplied fields of a new listing.
type ListingInput struct {
	Collection       common.Address
	UnitID           uint64
	Quantity         uint64
	PricePerUnit     uint64
	EarliestSaleTime time.Time
	ExclusiveBuyer   common.Address
}

// PublishListing records a new sale intent after re-validating the lister's
// position through the ownership oracle. Re-listing a unit without
// cancelling first fails with ErrAlreadyListed.
func (e *Engine) PublishListing(ctx context.Context, lister common.Address, in ListingInput) (domain.Listing, error) {
	now := e.now().UTC()
	l := domain.Listing{
		Collection:       in.Collection,
		UnitID:           in.UnitID,
		Lister:           lister,
		Quantity:         in.Quantity,
		PricePerUnit:     in.PricePerUnit,
		EarliestSaleTime: in.EarliestSaleTime,
		ExclusiveBuyer:   in.ExclusiveBuyer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.Validate(); err != nil {
		return domain.Listing{}, fmt.Errorf("engine: publish listing: %w", err)
	}

	err := e.withUnitLock(ctx, l.Asset(), func() error {
		if _, err := e.store.Listings().Get(ctx, l.Key()); err == nil {
			return fmt.Errorf("engine: publish listing: %w", domain.ErrAlreadyListed)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("engine: publish listing: %w", err)
		}

		h, err := e.registry.ResolveHolding(ctx, l.Collection, l.UnitID, lister)
		if err != nil {
			return fmt.Errorf("engine: publish listing: %w", err)
		}
		if err := requireHolds(h, l.Quantity); err != nil {
			return fmt.Errorf("engine: publish listing: %w", err)
		}

		approved, err := e.registry.IsApprovedForEngine(ctx, l.Collection, lister)
		if err != nil {
			return fmt.Errorf("engine: publish listing: %w", err)
		}
		if !approved {
			return fmt.Errorf("engine: publish listing: %w", domain.ErrNotApproved)
		}

		if err := e.store.Listings().Create(ctx, l); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return fmt.Errorf("engine: publish listing: %w", domain.ErrAlreadyListed)
			}
			return fmt.Errorf("engine: publish listing: %w", err)
		}

		e.emit(ctx, domain.NewEvent(domain.EventListingPublished, now, domain.ListingPublishedBody{
			Collection:       l.Collection,
			UnitID:           l.UnitID,
			Lister:           l.Lister,
			Quantity:         l.Quantity,
			PricePerUnit:     l.PricePerUnit,
			EarliestSaleTime: l.EarliestSaleTime,
			ExclusiveBuyer:   l.ExclusiveBuyer,
		}))

		e.logger.InfoContext(ctx, "engine: listing published",
			slog.String("asset", l.Asset().String()),
			slog.String("lister", l.Lister.Hex()),
			slog.Uint64("quantity", l.Quantity),
			slog.Uint64("price_per_unit", l.PricePerUnit),
		)
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

// UpdateListing changes the per-unit price of the caller's listing. Nothing
// else about a listing is mutable; cancel and re-publish for the rest.
func (e *Engine) UpdateListing(ctx context.Context, lister common.Address, collection common.Address, unitID uint64, pricePerUnit uint64) (domain.Listing, error) {
	key := domain.ListingKey{Collection: collection, UnitID: unitID, Lister: lister}

	var updated domain.Listing
	err := e.withUnitLock(ctx, key.Asset(), func() error {
		l, err := e.store.Listings().Get(ctx, key)
		if err != nil {
			return fmt.Errorf("engine: update listing: %w", err)
		}

		h, err := e.registry.ResolveHolding(ctx, collection, unitID, lister)
		if err != nil {
			return fmt.Errorf("engine: update listing: %w", err)
		}
		if err := requireHolds(h, l.Quantity); err != nil {
			return fmt.Errorf("engine: update listing: %w", err)
		}

		now := e.now().UTC()
		if err := e.store.Listings().UpdatePrice(ctx, key, pricePerUnit, now); err != nil {
			return fmt.Errorf("engine: update listing: %w", err)
		}

		e.emit(ctx, domain.NewEvent(domain.EventListingUpdated, now, domain.ListingUpdatedBody{
			Collection:   collection,
			UnitID:       unitID,
			Lister:       lister,
			OldPrice:     l.PricePerUnit,
			PricePerUnit: pricePerUnit,
		}))

		updated = l
		updated.PricePerUnit = pricePerUnit
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return updated, nil
}

// CancelListing retires the caller's own listing. Cancellation is cleanup:
// it must succeed regardless of what the ownership oracle currently says, so
// holdings are only resolved to enrich the emitted event.
func (e *Engine) CancelListing(ctx context.Context, caller common.Address, collection common.Address, unitID uint64) error {
	if !e.guard.enter() {
		return fmt.Errorf("engine: cancel listing: %w", domain.ErrReentrantCall)
	}
	defer e.guard.exit()

	key := domain.ListingKey{Collection: collection, UnitID: unitID, Lister: caller}
	return e.withUnitLock(ctx, key.Asset(), func() error {
		l, err := e.store.Listings().Get(ctx, key)
		if err != nil {
			return fmt.Errorf("engine: cancel listing: %w", err)
		}

		ev := e.listingCancelledEvent(ctx, l, domain.CancelByOwner)
		if err := e.store.Listings().Delete(ctx, l.Key()); err != nil {
			return fmt.Errorf("engine: cancel listing: %w", err)
		}
		e.emit(ctx, ev)

		e.logger.InfoContext(ctx, "engine: listing cancelled",
			slog.String("asset", l.Asset().String()),
			slog.String("lister", l.Lister.Hex()),
			slog.String("origin", string(domain.CancelByOwner)),
		)
		return nil
	})
}

// listingCancelledEvent builds the cancellation event for a listing about to
// be deleted. The held-quantity field always reflects the listing owner's
// position, never the invoker's; oracle failures degrade the field to zero
// rather than blocking the cancellation.
func (e *Engine) listingCancelledEvent(ctx context.Context, l domain.Listing, origin domain.CancelOrigin) domain.Event {
	return domain.NewEvent(domain.EventListingCancelled, e.now().UTC(), domain.ListingCancelledBody{
		Collection:   l.Collection,
		UnitID:       l.UnitID,
		Lister:       l.Lister,
		Quantity:     l.Quantity,
		HeldQuantity: e.ownerHolding(ctx, l.Collection, l.UnitID, l.Lister),
		Origin:       origin,
	})
}

// ownerHolding resolves the owner's current quantity for event enrichment
// only. Failures degrade to zero.
func (e *Engine) ownerHolding(ctx context.Context, collection common.Address, unitID uint64, owner common.Address) uint64 {
	h, err := e.registry.ResolveHolding(ctx, collection, unitID, owner)
	if err != nil {
		e.logger.DebugContext(ctx, "engine: holding resolve for event failed",
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return h.Quantity
}
