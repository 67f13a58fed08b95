package venue

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// AuctionClient delivers hooks to the sibling auction house.
type AuctionClient struct {
	hookClient
}

// NewAuctionClient creates an auction hook client.
func NewAuctionClient(cfg Config) *AuctionClient {
	return &AuctionClient{hookClient: newHookClient(cfg)}
}

type cancelAuctionRequest struct {
	Collection string `json:"collection"`
	UnitID     uint64 `json:"unit_id"`
}

// CancelAuctionFor tells the auction house the unit was sold here so any
// competing lot must be withdrawn. The venue no-ops when no lot exists.
func (a *AuctionClient) CancelAuctionFor(ctx context.Context, collection common.Address, unitID uint64) error {
	req := cancelAuctionRequest{Collection: addrPath(collection), UnitID: unitID}
	if err := a.doPost(ctx, "/v1/hooks/cancel-auction", req); err != nil {
		return fmt.Errorf("venue: cancel auction %s/%d: %w", addrPath(collection), unitID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AuctionVenue = (*AuctionClient)(nil)
