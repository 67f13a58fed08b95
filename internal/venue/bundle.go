package venue

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// BundleClient delivers hooks to the sibling bundle marketplace.
type BundleClient struct {
	hookClient
}

// NewBundleClient creates a bundle hook client.
func NewBundleClient(cfg Config) *BundleClient {
	return &BundleClient{hookClient: newHookClient(cfg)}
}

type itemSoldRequest struct {
	Collection string `json:"collection"`
	UnitID     uint64 `json:"unit_id"`
	Quantity   uint64 `json:"quantity"`
}

// NotifyItemSold tells the bundle marketplace the unit moved so bundles
// containing it can be invalidated. The venue no-ops when none do.
func (b *BundleClient) NotifyItemSold(ctx context.Context, collection common.Address, unitID uint64, quantity uint64) error {
	req := itemSoldRequest{Collection: addrPath(collection), UnitID: unitID, Quantity: quantity}
	if err := b.doPost(ctx, "/v1/hooks/item-sold", req); err != nil {
		return fmt.Errorf("venue: notify item sold %s/%d: %w", addrPath(collection), unitID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BundleVenue = (*BundleClient)(nil)
