package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingFilter narrows listing queries; zero fields match everything.
type ListingFilter struct {
	Collection common.Address
	UnitID     *uint64
	Lister     common.Address
}

// OfferFilter narrows offer queries; zero fields match everything.
type OfferFilter struct {
	Collection common.Address
	UnitID     *uint64
	Offerer    common.Address
}

// ListingStore persists listings. Rows are only ever live: terminal
// transitions delete them.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	Get(ctx context.Context, key ListingKey) (Listing, error)
	UpdatePrice(ctx context.Context, key ListingKey, pricePerUnit uint64, at time.Time) error
	Delete(ctx context.Context, key ListingKey) error
	ListByUnit(ctx context.Context, asset AssetKey) ([]Listing, error)
	List(ctx context.Context, filter ListingFilter, opts ListOpts) ([]Listing, error)
}

// OfferStore persists offers. Put replaces any existing row for the key;
// the engine guards live rows before overwriting.
type OfferStore interface {
	Put(ctx context.Context, o Offer) error
	Get(ctx context.Context, key OfferKey) (Offer, error)
	Delete(ctx context.Context, key OfferKey) error
	ListByUnit(ctx context.Context, asset AssetKey) ([]Offer, error)
	List(ctx context.Context, filter OfferFilter, opts ListOpts) ([]Offer, error)
}

// RoyaltyStore persists write-once royalty attributions. Create fails with
// ErrAlreadyExists when the unit already has one.
type RoyaltyStore interface {
	Create(ctx context.Context, r RoyaltyAttribution) error
	Get(ctx context.Context, asset AssetKey) (RoyaltyAttribution, error)
}

// ParamsStore persists the ledger configuration singleton.
type ParamsStore interface {
	Get(ctx context.Context) (LedgerParams, error)
	Put(ctx context.Context, p LedgerParams) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log mirroring the event stream.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StoreTx is the set of keyed stores bound to one transactional view.
type StoreTx interface {
	Listings() ListingStore
	Offers() OfferStore
	Royalties() RoyaltyStore
	Params() ParamsStore
	Audit() AuditStore
}

// Store is the keyed state store. WithinTx runs fn against a view whose
// mutations commit together or not at all; fn returning an error rolls
// everything back.
type Store interface {
	StoreTx
	WithinTx(ctx context.Context, fn func(tx StoreTx) error) error
}
