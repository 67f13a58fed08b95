package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AddressZero is the unset-address sentinel. A zero ExclusiveBuyer means a
// listing is open to everyone; a zero PaymentToken means the rail's native
// unit; zero venue or factory params mean "not configured".
var AddressZero common.Address

// AssetVariant distinguishes how a collection tracks holdings.
type AssetVariant string

const (
	// VariantUnique collections track a single holder per unit.
	VariantUnique AssetVariant = "unique"
	// VariantFungible collections track per-party balances per unit.
	VariantFungible AssetVariant = "fungible"
)

// AssetKey identifies one unit within a collection.
type AssetKey struct {
	Collection common.Address
	UnitID     uint64
}

// String renders the key in lock/cache-key form.
func (k AssetKey) String() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(k.Collection.Hex()), k.UnitID)
}

// Holding is a party's position in one unit, resolved by the asset registry
// at use time. For unique collections Quantity is 0 or 1.
type Holding struct {
	Variant  AssetVariant
	Quantity uint64
}

// Covers reports whether the holding satisfies a required quantity.
func (h Holding) Covers(quantity uint64) bool {
	return h.Quantity >= quantity
}
