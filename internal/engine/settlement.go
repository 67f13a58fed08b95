package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// paymentLeg is one step of the fixed payout order. Legs run platform fee
// first, then royalty, then seller proceeds: an abort part-way leaves the
// smallest possible amount already moved, and the asset only moves after
// every payment leg landed.
type paymentLeg struct {
	name   string
	to     common.Address
	amount uint64
}

// payLegs runs the payout sequence, skipping zero amounts. The first rail
// rejection aborts the whole settlement; nothing already paid is clawed
// back, which is exactly why the order is fixed.
func (e *Engine) payLegs(ctx context.Context, token, from common.Address, legs []paymentLeg) error {
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := e.rail.Transfer(ctx, token, from, leg.to, leg.amount); err != nil {
			return fmt.Errorf("%s leg: %w: %w", leg.name, domain.ErrTransferFailed, err)
		}
	}
	return nil
}

// BuyItem settles a listed sale. payment is the full amount the buyer
// commits; it must cover pricePerUnit*quantity and is split in its entirety,
// so overpayment flows through the same fee and royalty split.
func (e *Engine) BuyItem(ctx context.Context, buyer common.Address, collection common.Address, unitID uint64, lister common.Address, payment uint64) (domain.ItemSoldBody, error) {
	if !e.guard.enter() {
		return domain.ItemSoldBody{}, fmt.Errorf("engine: buy item: %w", domain.ErrReentrantCall)
	}
	defer e.guard.exit()

	params := e.Params()
	if !params.Configured() {
		return domain.ItemSoldBody{}, fmt.Errorf("engine: buy item: %w", domain.ErrNotConfigured)
	}

	key := domain.ListingKey{Collection: collection, UnitID: unitID, Lister: lister}

	var sold domain.ItemSoldBody
	err := e.withUnitLock(ctx, key.Asset(), func() error {
		l, err := e.store.Listings().Get(ctx, key)
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}

		now := e.now().UTC()
		if !l.SaleOpen(now) {
			return fmt.Errorf("engine: buy item: %w", domain.ErrSaleNotStarted)
		}
		if l.Restricted() && l.ExclusiveBuyer != buyer {
			return fmt.Errorf("engine: buy item: %w", domain.ErrBuyerNotAllowed)
		}

		// The listing proves nothing about the present: the lister may have
		// moved the units since publishing. A stale listing fails the buy but
		// stays in place; only an explicit cancel or invalidation removes it.
		h, err := e.registry.ResolveHolding(ctx, collection, unitID, l.Lister)
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}
		if err := requireHolds(h, l.Quantity); err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}
		approved, err := e.registry.IsApprovedForEngine(ctx, collection, l.Lister)
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}
		if !approved {
			return fmt.Errorf("engine: buy item: %w", domain.ErrNotApproved)
		}

		asking, err := domain.GrossAmount(l.PricePerUnit, l.Quantity)
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}
		if payment < asking {
			return fmt.Errorf("engine: buy item: paid %d for asking %d: %w", payment, asking, domain.ErrInsufficientPayment)
		}
		gross := payment

		minter, pct, err := e.royaltyFor(ctx, params, collection, unitID)
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}

		split, err := domain.SplitSale(gross, params.FeeBps, pct)
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}

		// Listings settle in the rail's native unit.
		token := domain.AddressZero
		err = e.payLegs(ctx, token, buyer, []paymentLeg{
			{name: "platform fee", to: params.FeeRecipient, amount: split.PlatformFee},
			{name: "royalty", to: minter, amount: split.RoyaltyFee},
			{name: "proceeds", to: l.Lister, amount: split.SellerProceeds},
		})
		if err != nil {
			return fmt.Errorf("engine: buy item: %w", err)
		}

		if err := e.registry.Transfer(ctx, collection, unitID, l.Lister, buyer, l.Quantity); err != nil {
			return fmt.Errorf("engine: buy item: asset: %w: %w", domain.ErrTransferFailed, err)
		}

		// The buyer's own standing offer on this unit is consumed by the
		// purchase: retire it in the same transaction as the listing.
		shadowKey := domain.OfferKey{Collection: collection, UnitID: unitID, Offerer: buyer}
		shadow, shadowErr := e.store.Offers().Get(ctx, shadowKey)
		hadShadow := shadowErr == nil
		if shadowErr != nil && !errors.Is(shadowErr, domain.ErrNotFound) {
			return fmt.Errorf("engine: buy item: %w", shadowErr)
		}
		shadowLive := hadShadow && shadow.Live(now)

		err = e.store.WithinTx(ctx, func(tx domain.StoreTx) error {
			if err := tx.Listings().Delete(ctx, key); err != nil {
				return err
			}
			if hadShadow {
				if err := tx.Offers().Delete(ctx, shadowKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("engine: buy item: retire records: %w", err)
		}

		e.notifyVenues(ctx, params, collection, unitID, l.Quantity)

		sold = domain.ItemSoldBody{
			Collection:     collection,
			UnitID:         unitID,
			Seller:         l.Lister,
			Buyer:          buyer,
			Quantity:       l.Quantity,
			PricePerUnit:   l.PricePerUnit,
			PaymentToken:   token,
			Gross:          gross,
			PlatformFee:    split.PlatformFee,
			RoyaltyFee:     split.RoyaltyFee,
			SellerProceeds: split.SellerProceeds,
			RoyaltyMinter:  minter,
			Path:           domain.SaleFromListing,
		}
		e.emit(ctx, domain.NewEvent(domain.EventItemSold, now, sold))
		if shadowLive {
			e.emit(ctx, domain.NewEvent(domain.EventOfferCancelled, now, domain.OfferCancelledBody{
				Collection: collection,
				UnitID:     unitID,
				Offerer:    buyer,
				Origin:     domain.CancelShadow,
			}))
		}

		e.logger.InfoContext(ctx, "engine: item sold",
			slog.String("asset", key.Asset().String()),
			slog.String("seller", l.Lister.Hex()),
			slog.String("buyer", buyer.Hex()),
			slog.Uint64("gross", gross),
			slog.Uint64("platform_fee", split.PlatformFee),
			slog.Uint64("royalty_fee", split.RoyaltyFee),
			slog.String("path", string(domain.SaleFromListing)),
		)
		return nil
	})
	if err != nil {
		return domain.ItemSoldBody{}, err
	}
	return sold, nil
}

// AcceptOffer settles a standing offer. The accepter must currently hold the
// offered quantity; funds move from the offerer in the offer's payment token
// and the asset moves accepter to offerer. Offers are full-fill only.
func (e *Engine) AcceptOffer(ctx context.Context, accepter common.Address, collection common.Address, unitID uint64, offerer common.Address) (domain.ItemSoldBody, error) {
	if !e.guard.enter() {
		return domain.ItemSoldBody{}, fmt.Errorf("engine: accept offer: %w", domain.ErrReentrantCall)
	}
	defer e.guard.exit()

	params := e.Params()
	if !params.Configured() {
		return domain.ItemSoldBody{}, fmt.Errorf("engine: accept offer: %w", domain.ErrNotConfigured)
	}

	key := domain.OfferKey{Collection: collection, UnitID: unitID, Offerer: offerer}

	var sold domain.ItemSoldBody
	err := e.withUnitLock(ctx, key.Asset(), func() error {
		o, err := e.store.Offers().Get(ctx, key)
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}
		now := e.now().UTC()
		if !o.Live(now) {
			return fmt.Errorf("engine: accept offer: %w", domain.ErrNotFound)
		}

		h, err := e.registry.ResolveHolding(ctx, collection, unitID, accepter)
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}
		if err := requireHolds(h, o.Quantity); err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}
		approved, err := e.registry.IsApprovedForEngine(ctx, collection, accepter)
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}
		if !approved {
			return fmt.Errorf("engine: accept offer: %w", domain.ErrNotApproved)
		}

		gross, err := domain.GrossAmount(o.PricePerUnit, o.Quantity)
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}

		minter, pct, err := e.royaltyFor(ctx, params, collection, unitID)
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}

		split, err := domain.SplitSale(gross, params.FeeBps, pct)
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}

		err = e.payLegs(ctx, o.PaymentToken, o.Offerer, []paymentLeg{
			{name: "platform fee", to: params.FeeRecipient, amount: split.PlatformFee},
			{name: "royalty", to: minter, amount: split.RoyaltyFee},
			{name: "proceeds", to: accepter, amount: split.SellerProceeds},
		})
		if err != nil {
			return fmt.Errorf("engine: accept offer: %w", err)
		}

		if err := e.registry.Transfer(ctx, collection, unitID, accepter, o.Offerer, o.Quantity); err != nil {
			return fmt.Errorf("engine: accept offer: asset: %w: %w", domain.ErrTransferFailed, err)
		}

		// Selling through an offer consumes the accepter's own listing of
		// the same unit: retire it in the same transaction as the offer.
		shadowKey := domain.ListingKey{Collection: collection, UnitID: unitID, Lister: accepter}
		shadow, shadowErr := e.store.Listings().Get(ctx, shadowKey)
		hadShadow := shadowErr == nil
		if shadowErr != nil && !errors.Is(shadowErr, domain.ErrNotFound) {
			return fmt.Errorf("engine: accept offer: %w", shadowErr)
		}
		var shadowEvent domain.Event
		if hadShadow {
			shadowEvent = e.listingCancelledEvent(ctx, shadow, domain.CancelShadow)
		}

		err = e.store.WithinTx(ctx, func(tx domain.StoreTx) error {
			if err := tx.Offers().Delete(ctx, key); err != nil {
				return err
			}
			if hadShadow {
				if err := tx.Listings().Delete(ctx, shadowKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("engine: accept offer: retire records: %w", err)
		}

		e.notifyVenues(ctx, params, collection, unitID, o.Quantity)

		sold = domain.ItemSoldBody{
			Collection:     collection,
			UnitID:         unitID,
			Seller:         accepter,
			Buyer:          o.Offerer,
			Quantity:       o.Quantity,
			PricePerUnit:   o.PricePerUnit,
			PaymentToken:   o.PaymentToken,
			Gross:          gross,
			PlatformFee:    split.PlatformFee,
			RoyaltyFee:     split.RoyaltyFee,
			SellerProceeds: split.SellerProceeds,
			RoyaltyMinter:  minter,
			Path:           domain.SaleFromOffer,
		}
		e.emit(ctx, domain.NewEvent(domain.EventItemSold, now, sold))
		if hadShadow {
			e.emit(ctx, shadowEvent)
		}

		e.logger.InfoContext(ctx, "engine: item sold",
			slog.String("asset", key.Asset().String()),
			slog.String("seller", accepter.Hex()),
			slog.String("buyer", o.Offerer.Hex()),
			slog.Uint64("gross", gross),
			slog.Uint64("platform_fee", split.PlatformFee),
			slog.Uint64("royalty_fee", split.RoyaltyFee),
			slog.String("path", string(domain.SaleFromOffer)),
		)
		return nil
	})
	if err != nil {
		return domain.ItemSoldBody{}, err
	}
	return sold, nil
}

// notifyVenues fires the post-sale hooks. The trade is already settled, so
// hook failures are logged and audited but never unwind anything: both hooks
// are idempotent on the venue side and the venues re-validate ownership on
// their own settlement paths anyway.
func (e *Engine) notifyVenues(ctx context.Context, params domain.LedgerParams, collection common.Address, unitID, quantity uint64) {
	if e.auction == nil || params.AuctionVenue == domain.AddressZero {
		e.logger.DebugContext(ctx, "engine: auction hook skipped, venue unset",
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
		)
	} else if err := e.auction.CancelAuctionFor(ctx, collection, unitID); err != nil {
		e.logger.WarnContext(ctx, "engine: auction hook failed",
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		e.auditHookFailure(ctx, "auction_cancel", collection, unitID, err)
	}

	if e.bundle == nil || params.BundleVenue == domain.AddressZero {
		e.logger.DebugContext(ctx, "engine: bundle hook skipped, venue unset",
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
		)
	} else if err := e.bundle.NotifyItemSold(ctx, collection, unitID, quantity); err != nil {
		e.logger.WarnContext(ctx, "engine: bundle hook failed",
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		e.auditHookFailure(ctx, "bundle_item_sold", collection, unitID, err)
	}
}

func (e *Engine) auditHookFailure(ctx context.Context, hook string, collection common.Address, unitID uint64, hookErr error) {
	if err := e.store.Audit().Log(ctx, "venue_hook_failed", map[string]any{
		"hook":       hook,
		"collection": collection.Hex(),
		"unit_id":    unitID,
		"error":      hookErr.Error(),
	}); err != nil {
		e.logger.WarnContext(ctx, "engine: audit log failed",
			slog.String("hook", hook),
			slog.String("error", err.Error()),
		)
	}
}
