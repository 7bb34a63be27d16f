// Package ledger holds the order store contract consumed by the solver
// and trader clients. The production escrow program lives on-chain; both
// implementations here honor the same state machine and authorization
// rules so the solver cannot observe a difference.
package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/obscuraswap/solver/internal/order"
)

// TierStamp carries the entitlements resolved at submission time. The
// values are immutable once the order is created.
type TierStamp struct {
	UserTier          uint8
	FeeBps            uint16
	MevProtection     order.MevProtection
	AllowedOrderTypes uint8
	Fairscore         uint8
	UserEncryptionKey [32]byte
}

// CreateParams is the submit-order request.
type CreateParams struct {
	Owner            solana.PublicKey
	OrderID          uint64
	InputMint        solana.PublicKey
	OutputMint       solana.PublicKey
	InputAmount      uint64
	EncryptedPayload []byte
	OrderType        order.Type
	Stamp            TierStamp
}

// TransitionParams parameterizes a lifecycle event. Caller identity is
// always checked against the event's authorization rule.
type TransitionParams struct {
	Caller solana.PublicKey

	// ExecuteFill: the decrypted minimum and the actual fill output. The
	// ledger re-validates Actual >= Min regardless of solver-side checks.
	MinOutputAmount    uint64
	ActualOutputAmount uint64

	// Fail: human-readable failure cause recorded on the order.
	Reason string
}

// Filter narrows ListOrders results.
type Filter struct {
	Status *order.Status
	Owner  *solana.PublicKey
}

// Stats are the process-wide running aggregates, mutated only by
// successful executions.
type Stats struct {
	TotalOrders        uint64    `json:"total_orders"`
	TotalVolume        uint64    `json:"total_volume"`
	TotalFeesCollected uint64    `json:"total_fees_collected"`
	VolumeByTier       [5]uint64 `json:"volume_by_tier"`
}

// Ledger is the transactional order store. Transitions are atomic and
// serializable per order: concurrent attempts to move the same order
// produce exactly one winner, the loser sees ErrNotInExpectedState.
type Ledger interface {
	// CreateOrder escrows InputAmount and persists the order as Pending.
	// Duplicate (owner, orderId) is rejected, never overwritten, and a
	// rejected submission moves no funds.
	CreateOrder(ctx context.Context, p CreateParams) (*order.Order, error)

	// Transition applies a lifecycle event with its side effects.
	Transition(ctx context.Context, id order.ID, event order.Event, p TransitionParams) (*order.Order, error)

	// GetOrder fetches one order, order.ErrOrderNotFound when absent.
	GetOrder(ctx context.Context, id order.ID) (*order.Order, error)

	// ListOrders fetches orders matching the filter.
	ListOrders(ctx context.Context, f Filter) ([]*order.Order, error)

	// Claim drains the output vault of a Completed order to the owner,
	// exactly once. Returns the amount moved.
	Claim(ctx context.Context, id order.ID, caller solana.PublicKey) (uint64, error)

	// Stats returns the running aggregates.
	Stats(ctx context.Context) (Stats, error)
}
