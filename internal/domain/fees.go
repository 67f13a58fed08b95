package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
)

const (
	// FeeBpsDenominator is the basis of the platform fee rate: a FeeBps of
	// 25 takes 2.5% of gross.
	FeeBpsDenominator uint64 = 1000
	// RoyaltyDenominator is the basis of the royalty percentage, applied to
	// gross after the platform fee.
	RoyaltyDenominator uint64 = 100
)

// FeeSplit is the exact three-way decomposition of a sale's gross amount.
// The parts always sum back to gross: integer division truncates toward the
// fee and royalty, so every rounding remainder lands with the seller.
type FeeSplit struct {
	PlatformFee    uint64
	RoyaltyFee     uint64
	SellerProceeds uint64
}

// GrossAmount computes pricePerUnit*quantity, failing instead of wrapping
// when the product exceeds uint64.
func GrossAmount(pricePerUnit, quantity uint64) (uint64, error) {
	gross, overflow := math.SafeMul(pricePerUnit, quantity)
	if overflow {
		return 0, fmt.Errorf("gross %d*%d: %w", pricePerUnit, quantity, ErrAmountOverflow)
	}
	return gross, nil
}

// SplitSale decomposes gross into platform fee, royalty, and seller
// proceeds. feeBps is over FeeBpsDenominator; royaltyPct is over
// RoyaltyDenominator and a zero royaltyPct means no royalty is owed.
// Intermediate products are overflow-checked and fail the split rather than
// wrap.
func SplitSale(gross, feeBps, royaltyPct uint64) (FeeSplit, error) {
	if feeBps > FeeBpsDenominator || royaltyPct > RoyaltyDenominator {
		return FeeSplit{}, fmt.Errorf("split rates %d/%d: %w", feeBps, royaltyPct, ErrInvalidInput)
	}

	scaled, overflow := math.SafeMul(gross, feeBps)
	if overflow {
		return FeeSplit{}, fmt.Errorf("platform fee on %d: %w", gross, ErrAmountOverflow)
	}
	platformFee := scaled / FeeBpsDenominator

	// feeBps <= denominator guarantees platformFee <= gross.
	remainder := gross - platformFee

	var royaltyFee uint64
	if royaltyPct > 0 {
		scaled, overflow = math.SafeMul(remainder, royaltyPct)
		if overflow {
			return FeeSplit{}, fmt.Errorf("royalty on %d: %w", remainder, ErrAmountOverflow)
		}
		royaltyFee = scaled / RoyaltyDenominator
	}

	return FeeSplit{
		PlatformFee:    platformFee,
		RoyaltyFee:     royaltyFee,
		SellerProceeds: remainder - royaltyFee,
	}, nil
}

// Gross returns the amount the split was computed from.
func (s FeeSplit) Gross() uint64 {
	return s.PlatformFee + s.RoyaltyFee + s.SellerProceeds
}
