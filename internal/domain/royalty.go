package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoyaltyAttribution records which minter earns a royalty cut on a unit's
// sales. At most one attribution exists per unit and it is write-once: once
// recorded it can never be changed or removed.
type RoyaltyAttribution struct {
	Collection common.Address
	UnitID     uint64
	Minter     common.Address
	Percent    uint64 // 0..RoyaltyDenominator, applied to gross minus platform fee
	CreatedAt  time.Time
}

// Asset returns the unit the attribution covers.
func (r RoyaltyAttribution) Asset() AssetKey {
	return AssetKey{Collection: r.Collection, UnitID: r.UnitID}
}

// Payable reports whether the attribution actually routes value: a zero
// percentage or zero minter records provenance without paying anything.
func (r RoyaltyAttribution) Payable() bool {
	return r.Percent > 0 && r.Minter != AddressZero
}

// Validate checks structural rules for a new attribution.
func (r RoyaltyAttribution) Validate() error {
	if r.Collection == AddressZero || r.Minter == AddressZero {
		return ErrInvalidInput
	}
	if r.Percent > RoyaltyDenominator {
		return ErrInvalidInput
	}
	return nil
}
