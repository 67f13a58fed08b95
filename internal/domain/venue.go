package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionVenue is the sibling auction house. After any sale here the
// auction is told to drop its competing lot; the hook is an idempotent
// no-op on the venue side when no such lot exists.
type AuctionVenue interface {
	CancelAuctionFor(ctx context.Context, collection common.Address, unitID uint64) error
}

// BundleVenue is the sibling bundle marketplace. After any sale here it is
// told the unit moved so it can invalidate bundles containing it; the hook
// is an idempotent no-op on the venue side when none do.
type BundleVenue interface {
	NotifyItemSold(ctx context.Context, collection common.Address, unitID uint64, quantity uint64) error
}
