package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the ownership oracle: the external source of truth for
// who holds what, whether the ledger's settlement account may move it, and
// which factory deployed a collection. Holdings are never cached across
// settlement steps; every settlement path re-resolves at use time.
type AssetRegistry interface {
	// ResolveHolding reports the party's position in the unit, probing the
	// collection's variant. Collections supporting neither variant fail
	// with ErrUnsupportedAssetKind.
	ResolveHolding(ctx context.Context, collection common.Address, unitID uint64, party common.Address) (Holding, error)

	// IsApprovedForEngine reports whether the party has authorized the
	// ledger's settlement account to move its units in the collection.
	IsApprovedForEngine(ctx context.Context, collection, party common.Address) (bool, error)

	// FromFactory reports whether the factory deployed the collection.
	FromFactory(ctx context.Context, factory, collection common.Address) (bool, error)

	// Transfer moves units between parties. Never retried.
	Transfer(ctx context.Context, collection common.Address, unitID uint64, from, to common.Address, quantity uint64) error
}
