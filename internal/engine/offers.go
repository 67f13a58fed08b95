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

// OfferInput carries the caller-supplied fields of a new offer.
type OfferInput struct {
	Collection   common.Address
	UnitID       uint64
	PaymentToken common.Address
	Quantity     uint64
	PricePerUnit uint64
	ExpiresAt    time.Time
}

// CreateOffer records a standing purchase proposal. A dead row under the
// same key (expired or zero quantity) is silently overwritten; a live one
// fails with ErrAlreadyOffered. The offerer must hold an unlimited spend
// grant for the payment token before the offer is recorded, so acceptance
// never stalls on missing allowance.
func (e *Engine) CreateOffer(ctx context.Context, offerer common.Address, in OfferInput) (domain.Offer, error) {
	now := e.now().UTC()
	o := domain.Offer{
		Collection:   in.Collection,
		UnitID:       in.UnitID,
		Offerer:      offerer,
		PaymentToken: in.PaymentToken,
		Quantity:     in.Quantity,
		PricePerUnit: in.PricePerUnit,
		ExpiresAt:    in.ExpiresAt,
		CreatedAt:    now,
	}
	if err := o.Validate(); err != nil {
		return domain.Offer{}, fmt.Errorf("engine: create offer: %w", err)
	}
	if !o.Live(now) {
		return domain.Offer{}, fmt.Errorf("engine: create offer: expiry not in the future: %w", domain.ErrInvalidInput)
	}
	// An offer that cannot be settled must not be recorded.
	if _, err := domain.GrossAmount(o.PricePerUnit, o.Quantity); err != nil {
		return domain.Offer{}, fmt.Errorf("engine: create offer: %w", err)
	}

	err := e.withUnitLock(ctx, o.Asset(), func() error {
		existing, err := e.store.Offers().Get(ctx, o.Key())
		if err == nil && existing.Live(now) {
			return fmt.Errorf("engine: create offer: %w", domain.ErrAlreadyOffered)
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("engine: create offer: %w", err)
		}

		if err := e.rail.EnsureAllowance(ctx, o.PaymentToken, offerer); err != nil {
			return fmt.Errorf("engine: create offer: %w", err)
		}

		if err := e.store.Offers().Put(ctx, o); err != nil {
			return fmt.Errorf("engine: create offer: %w", err)
		}

		e.emit(ctx, domain.NewEvent(domain.EventOfferCreated, now, domain.OfferCreatedBody{
			Collection:   o.Collection,
			UnitID:       o.UnitID,
			Offerer:      o.Offerer,
			PaymentToken: o.PaymentToken,
			Quantity:     o.Quantity,
			PricePerUnit: o.PricePerUnit,
			ExpiresAt:    o.ExpiresAt,
		}))

		e.logger.InfoContext(ctx, "engine: offer created",
			slog.String("asset", o.Asset().String()),
			slog.String("offerer", o.Offerer.Hex()),
			slog.Uint64("quantity", o.Quantity),
			slog.Uint64("price_per_unit", o.PricePerUnit),
			slog.Time("expires_at", o.ExpiresAt),
		)
		return nil
	})
	if err != nil {
		return domain.Offer{}, err
	}
	return o, nil
}

// CancelOffer retires the caller's own offer. A dead offer is already
// indistinguishable from no offer, so cancelling one reports ErrNotFound.
func (e *Engine) CancelOffer(ctx context.Context, offerer common.Address, collection common.Address, unitID uint64) error {
	key := domain.OfferKey{Collection: collection, UnitID: unitID, Offerer: offerer}
	return e.withUnitLock(ctx, key.Asset(), func() error {
		o, err := e.store.Offers().Get(ctx, key)
		if err != nil {
			return fmt.Errorf("engine: cancel offer: %w", err)
		}
		if !o.Live(e.now().UTC()) {
			return fmt.Errorf("engine: cancel offer: %w", domain.ErrNotFound)
		}

		if err := e.store.Offers().Delete(ctx, key); err != nil {
			return fmt.Errorf("engine: cancel offer: %w", err)
		}

		e.emit(ctx, domain.NewEvent(domain.EventOfferCancelled, e.now().UTC(), domain.OfferCancelledBody{
			Collection: collection,
			UnitID:     unitID,
			Offerer:    offerer,
			Origin:     domain.CancelByOwner,
		}))

		e.logger.InfoContext(ctx, "engine: offer cancelled",
			slog.String("asset", key.Asset().String()),
			slog.String("offerer", offerer.Hex()),
		)
		return nil
	})
}
