package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentRail moves funds between parties on the ledger's behalf. A zero
// token address is the rail's native unit. Transfers are never retried by
// the engine: a failed transfer aborts the settlement immediately.
type PaymentRail interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount uint64) error

	// EnsureAllowance confirms the owner has granted the ledger's
	// settlement account an unlimited spend authorization for the token,
	// recording the grant if the rail supports doing so inline.
	EnsureAllowance(ctx context.Context, token, owner common.Address) error
}
