package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListingKey identifies a listing: one lister can keep at most one live
// listing per unit.
type ListingKey struct {
	Collection common.Address
	UnitID     uint64
	Lister     common.Address
}

// Asset returns the unit the listing is for.
func (k ListingKey) Asset() AssetKey {
	return AssetKey{Collection: k.Collection, UnitID: k.UnitID}
}

// Listing is a standing intent to sell. Listings are priced in the rail's
// native payment unit. A listing only ever exists in its live form; every
// terminal transition deletes the row, so absence means inactive.
type Listing struct {
	Collection       common.Address
	UnitID           uint64
	Lister           common.Address
	Quantity         uint64
	PricePerUnit     uint64
	EarliestSaleTime time.Time
	ExclusiveBuyer   common.Address // AddressZero = open to all buyers
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Key returns the listing's identity tuple.
func (l Listing) Key() ListingKey {
	return ListingKey{Collection: l.Collection, UnitID: l.UnitID, Lister: l.Lister}
}

// Asset returns the unit the listing is for.
func (l Listing) Asset() AssetKey {
	return AssetKey{Collection: l.Collection, UnitID: l.UnitID}
}

// Restricted reports whether the listing names an exclusive buyer.
func (l Listing) Restricted() bool {
	return l.ExclusiveBuyer != AddressZero
}

// SaleOpen reports whether the earliest-sale gate has passed.
func (l Listing) SaleOpen(now time.Time) bool {
	return !now.Before(l.EarliestSaleTime)
}

// Validate checks structural rules that hold for every listing.
func (l Listing) Validate() error {
	if l.Collection == AddressZero || l.Lister == AddressZero {
		return ErrInvalidInput
	}
	if l.Quantity == 0 {
		return ErrInvalidInput
	}
	return nil
}
