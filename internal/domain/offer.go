package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OfferKey identifies an offer: one offerer can keep at most one live offer
// per unit.
type OfferKey struct {
	Collection common.Address
	UnitID     uint64
	Offerer    common.Address
}

// Asset returns the unit the offer is for.
func (k OfferKey) Asset() AssetKey {
	return AssetKey{Collection: k.Collection, UnitID: k.UnitID}
}

// Offer is a standing intent to buy, funded in an explicit payment token.
// Offers are full-fill only: acceptance consumes the whole quantity. An
// offer whose expiry has passed or whose quantity is zero is dead: every
// read treats it as absent and a new offer may silently overwrite it.
type Offer struct {
	Collection   common.Address
	UnitID       uint64
	Offerer      common.Address
	PaymentToken common.Address
	Quantity     uint64
	PricePerUnit uint64
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Key returns the offer's identity tuple.
func (o Offer) Key() OfferKey {
	return OfferKey{Collection: o.Collection, UnitID: o.UnitID, Offerer: o.Offerer}
}

// Asset returns the unit the offer is for.
func (o Offer) Asset() AssetKey {
	return AssetKey{Collection: o.Collection, UnitID: o.UnitID}
}

// Live reports whether the offer is still acceptable at the given instant.
func (o Offer) Live(now time.Time) bool {
	return o.Quantity > 0 && now.Before(o.ExpiresAt)
}

// Validate checks structural rules that hold for every offer.
func (o Offer) Validate() error {
	if o.Collection == AddressZero || o.Offerer == AddressZero {
		return ErrInvalidInput
	}
	if o.Quantity == 0 {
		return ErrInvalidInput
	}
	if o.ExpiresAt.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
