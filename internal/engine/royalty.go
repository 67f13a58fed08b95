package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// RegisterRoyalty binds a unit to its minter once and forever. Only the
// unit's current holder may register, and only for the flagship collection
// or collections deployed by a configured factory.
func (e *Engine) RegisterRoyalty(ctx context.Context, caller common.Address, collection common.Address, unitID uint64, minter common.Address, percent uint64) (domain.RoyaltyAttribution, error) {
	now := e.now().UTC()
	r := domain.RoyaltyAttribution{
		Collection: collection,
		UnitID:     unitID,
		Minter:     minter,
		Percent:    percent,
		CreatedAt:  now,
	}
	if err := r.Validate(); err != nil {
		return domain.RoyaltyAttribution{}, fmt.Errorf("engine: register royalty: %w", err)
	}

	err := e.withUnitLock(ctx, r.Asset(), func() error {
		if _, err := e.store.Royalties().Get(ctx, r.Asset()); err == nil {
			return fmt.Errorf("engine: register royalty: %w", domain.ErrRoyaltySet)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("engine: register royalty: %w", err)
		}

		eligible, err := e.collectionEligible(ctx, collection)
		if err != nil {
			return fmt.Errorf("engine: register royalty: %w", err)
		}
		if !eligible {
			return fmt.Errorf("engine: register royalty: %w", domain.ErrCollectionNotEligible)
		}

		h, err := e.registry.ResolveHolding(ctx, collection, unitID, caller)
		if err != nil {
			return fmt.Errorf("engine: register royalty: %w", err)
		}
		if h.Quantity == 0 {
			return fmt.Errorf("engine: register royalty: %w", domain.ErrNotOwningItem)
		}

		if err := e.store.Royalties().Create(ctx, r); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return fmt.Errorf("engine: register royalty: %w", domain.ErrRoyaltySet)
			}
			return fmt.Errorf("engine: register royalty: %w", err)
		}

		if e.royalties != nil {
			if err := e.royalties.Set(ctx, r); err != nil {
				e.logger.DebugContext(ctx, "engine: royalty cache fill failed",
					slog.String("asset", r.Asset().String()),
					slog.String("error", err.Error()),
				)
			}
		}

		e.emit(ctx, domain.NewEvent(domain.EventRoyaltyRegistered, now, domain.RoyaltyRegisteredBody{
			Collection:   collection,
			UnitID:       unitID,
			Minter:       minter,
			Percent:      percent,
			RegisteredBy: caller,
		}))

		e.logger.InfoContext(ctx, "engine: royalty registered",
			slog.String("asset", r.Asset().String()),
			slog.String("minter", minter.Hex()),
			slog.Uint64("percent", percent),
		)
		return nil
	})
	if err != nil {
		return domain.RoyaltyAttribution{}, err
	}
	return r, nil
}

// collectionEligible reports whether the collection may carry royalty
// attributions: the flagship itself, or anything deployed by one of the
// configured factories.
func (e *Engine) collectionEligible(ctx context.Context, collection common.Address) (bool, error) {
	params := e.Params()
	if params.FlagshipRoyalty(collection) {
		return true, nil
	}
	for _, factory := range []common.Address{params.AssetFactory, params.PrivateAssetFactory} {
		if factory == domain.AddressZero {
			continue
		}
		ok, err := e.registry.FromFactory(ctx, factory, collection)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// royaltyFor resolves the payable attribution for a sale of the collection's
// unit, or zero values when no royalty applies. Royalties are only ever paid
// on the flagship collection. The cache is consulted first; attributions are
// write-once, so a hit can never be stale, and absence always falls through
// to the store.
func (e *Engine) royaltyFor(ctx context.Context, params domain.LedgerParams, collection common.Address, unitID uint64) (common.Address, uint64, error) {
	if !params.FlagshipRoyalty(collection) {
		return domain.AddressZero, 0, nil
	}

	asset := domain.AssetKey{Collection: collection, UnitID: unitID}

	if e.royalties != nil {
		if r, err := e.royalties.Get(ctx, asset); err == nil {
			if !r.Payable() {
				return domain.AddressZero, 0, nil
			}
			return r.Minter, r.Percent, nil
		}
	}

	r, err := e.store.Royalties().Get(ctx, asset)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AddressZero, 0, nil
	}
	if err != nil {
		return domain.AddressZero, 0, fmt.Errorf("royalty lookup %s: %w", asset, err)
	}

	if e.royalties != nil {
		if err := e.royalties.Set(ctx, r); err != nil {
			e.logger.DebugContext(ctx, "engine: royalty cache fill failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if !r.Payable() {
		return domain.AddressZero, 0, nil
	}
	return r.Minter, r.Percent, nil
}
