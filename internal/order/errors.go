package order

import "errors"

// Protocol errors: rejected at the ledger boundary, no state change.
var (
	ErrInvalidPayloadLength = errors.New("encrypted payload length out of protocol bounds")
	ErrInvalidInputAmount   = errors.New("input amount must be greater than zero")
	ErrDuplicateOrder       = errors.New("order already exists for (owner, orderId)")
	ErrUnauthorized         = errors.New("caller not authorized for this transition")
	ErrNotInExpectedState   = errors.New("order not in expected state for transition")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderTypeNotAllowed  = errors.New("order type not permitted for trader tier")
	ErrUnknownVariant       = errors.New("unknown enum variant")
)

// Settlement errors: execution-time rejections surfaced as Failed status;
// funds remain recoverable by the owner.
var (
	ErrOutputBelowMinimum = errors.New("actual output below decrypted minimum")
	ErrAlreadyClaimed     = errors.New("output already claimed")
)

// Solver-local errors: recorded per order, never abort the poll loop.
var (
	ErrOrderExpired     = errors.New("order deadline passed")
	ErrNotProfitable    = errors.New("quote below minimum output")
	ErrSlippageExceeded = errors.New("quote slippage above solver maximum")
)
