package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// ValidateCancelListing is the auction house's inbound callback: when an
// auction starts on a unit, the owner's fixed-price listing here must go.
// Only the configured auction venue may call it. Removing a listing that is
// already gone is a successful no-op; the hook must stay idempotent.
func (e *Engine) ValidateCancelListing(ctx context.Context, caller common.Address, collection common.Address, unitID uint64, owner common.Address) error {
	params := e.Params()
	if params.AuctionVenue == domain.AddressZero || caller != params.AuctionVenue {
		return fmt.Errorf("engine: validate cancel listing: %w", domain.ErrUnauthorized)
	}

	key := domain.ListingKey{Collection: collection, UnitID: unitID, Lister: owner}
	return e.withUnitLock(ctx, key.Asset(), func() error {
		l, err := e.store.Listings().Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("engine: validate cancel listing: %w", err)
		}

		ev := e.listingCancelledEvent(ctx, l, domain.CancelByAuction)
		if err := e.store.Listings().Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("engine: validate cancel listing: %w", err)
		}
		e.emit(ctx, ev)

		e.logger.InfoContext(ctx, "engine: listing invalidated by auction venue",
			slog.String("asset", key.Asset().String()),
			slog.String("owner", owner.Hex()),
		)
		return nil
	})
}

// ValidateItemSold is the bundle marketplace's inbound callback: the unit
// was sold over there, so the seller's listing and the buyer's competing
// offer here are both stale. Only the configured bundle venue may call it.
// Both deletions happen in one transaction; either record being absent
// already is fine.
func (e *Engine) ValidateItemSold(ctx context.Context, caller common.Address, collection common.Address, unitID uint64, seller, buyer common.Address) error {
	params := e.Params()
	if params.BundleVenue == domain.AddressZero || caller != params.BundleVenue {
		return fmt.Errorf("engine: validate item sold: %w", domain.ErrUnauthorized)
	}

	asset := domain.AssetKey{Collection: collection, UnitID: unitID}
	return e.withUnitLock(ctx, asset, func() error {
		now := e.now().UTC()

		listingKey := domain.ListingKey{Collection: collection, UnitID: unitID, Lister: seller}
		listing, listingErr := e.store.Listings().Get(ctx, listingKey)
		hadListing := listingErr == nil
		if listingErr != nil && !errors.Is(listingErr, domain.ErrNotFound) {
			return fmt.Errorf("engine: validate item sold: %w", listingErr)
		}

		offerKey := domain.OfferKey{Collection: collection, UnitID: unitID, Offerer: buyer}
		offer, offerErr := e.store.Offers().Get(ctx, offerKey)
		hadOffer := offerErr == nil
		if offerErr != nil && !errors.Is(offerErr, domain.ErrNotFound) {
			return fmt.Errorf("engine: validate item sold: %w", offerErr)
		}
		offerLive := hadOffer && offer.Live(now)

		if !hadListing && !hadOffer {
			return nil
		}

		var listingEvent domain.Event
		if hadListing {
			listingEvent = e.listingCancelledEvent(ctx, listing, domain.CancelByBundleSale)
		}

		err := e.store.WithinTx(ctx, func(tx domain.StoreTx) error {
			if hadListing {
				if err := tx.Listings().Delete(ctx, listingKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
			if hadOffer {
				if err := tx.Offers().Delete(ctx, offerKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("engine: validate item sold: %w", err)
		}

		if hadListing {
			e.emit(ctx, listingEvent)
		}
		if offerLive {
			e.emit(ctx, domain.NewEvent(domain.EventOfferCancelled, now, domain.OfferCancelledBody{
				Collection: collection,
				UnitID:     unitID,
				Offerer:    buyer,
				Origin:     domain.CancelByBundleSale,
			}))
		}

		e.logger.InfoContext(ctx, "engine: records invalidated by bundle venue",
			slog.String("asset", asset.String()),
			slog.Bool("listing_removed", hadListing),
			slog.Bool("offer_removed", hadOffer),
		)
		return nil
	})
}
