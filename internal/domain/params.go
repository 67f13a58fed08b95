package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerParams is the ledger's configuration singleton. It is persisted,
// mutated only through admin-gated setters, and read by every settlement.
type LedgerParams struct {
	FeeBps              uint64         // platform fee, basis points over FeeBpsDenominator
	FeeRecipient        common.Address // receives the platform fee; unset blocks settlement
	AuctionVenue        common.Address // sibling venue allowed to cancel listings
	BundleVenue         common.Address // sibling venue allowed to report sales
	AssetFactory        common.Address // public collection factory (royalty eligibility)
	PrivateAssetFactory common.Address // private collection factory (royalty eligibility)
	FlagshipCollection  common.Address // the one collection whose sales pay royalties
	UpdatedAt           time.Time
}

// Validate checks that the parameter set is internally coherent.
func (p LedgerParams) Validate() error {
	if p.FeeBps > FeeBpsDenominator {
		return ErrInvalidInput
	}
	return nil
}

// Configured reports whether settlements can run: fee collection needs a
// destination even when the rate is zero.
func (p LedgerParams) Configured() bool {
	return p.FeeRecipient != AddressZero
}

// FlagshipRoyalty reports whether royalty payout applies to the collection.
func (p LedgerParams) FlagshipRoyalty(collection common.Address) bool {
	return p.FlagshipCollection != AddressZero && collection == p.FlagshipCollection
}
