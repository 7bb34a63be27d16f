package server

import (
	"time"

	"github.com/obscuraswap/solver/internal/order"
	"github.com/obscuraswap/solver/internal/tier"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"` // Service health status
}

// SolverKeyResponse exposes the solver's encryption public key. Traders
// encrypt order terms to this key before submission.
type SolverKeyResponse struct {
	EncryptionPubkey string `json:"encryption_pubkey"` // Base58 X25519 public key
	SolverIdentity   string `json:"solver_identity"`   // Base58 wallet identity
}

// TiersResponse lists the tier table the engine was loaded with.
type TiersResponse struct {
	Tiers []tier.TierDefinition `json:"tiers"`
}

// FeeResponse resolves the entitlements for one reputation score.
type FeeResponse struct {
	Score             uint8  `json:"score"`
	Tier              uint8  `json:"tier"`
	TierName          string `json:"tier_name"`
	FeeBps            uint16 `json:"fee_bps"`
	MevProtection     string `json:"mev_protection"`
	AllowedOrderTypes uint8  `json:"allowed_order_types"`
}

// OrderView is the public projection of an order. The encrypted payload
// is reported only by length; its contents never cross the API.
type OrderView struct {
	Owner         string    `json:"owner"`
	OrderID       uint64    `json:"order_id"`
	InputMint     string    `json:"input_mint"`
	OutputMint    string    `json:"output_mint"`
	InputAmount   uint64    `json:"input_amount"`
	OutputAmount  uint64    `json:"output_amount,omitempty"`
	PayloadLength int       `json:"payload_length"`
	Status        string    `json:"status"`
	OrderType     string    `json:"order_type"`
	UserTier      uint8     `json:"user_tier"`
	FeeBps        uint16    `json:"fee_bps"`
	FeeAmount     uint64    `json:"fee_amount,omitempty"`
	FailReason    string    `json:"fail_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewOrderView strips an order down to its public fields.
func NewOrderView(o *order.Order) OrderView {
	return OrderView{
		Owner:         o.Owner.String(),
		OrderID:       o.OrderID,
		InputMint:     o.InputMint.String(),
		OutputMint:    o.OutputMint.String(),
		InputAmount:   o.InputAmount,
		OutputAmount:  o.OutputAmount,
		PayloadLength: len(o.EncryptedPayload),
		Status:        o.Status.String(),
		OrderType:     o.OrderType.String(),
		UserTier:      o.UserTier,
		FeeBps:        o.FeeBpsApplied,
		FeeAmount:     o.FeeAmount,
		FailReason:    o.FailReason,
		CreatedAt:     o.CreatedAt,
	}
}

// RegistryEntryView is the public listing of a registered encryption key.
type RegistryEntryView struct {
	Wallet           string    `json:"wallet"`
	EncryptionPubkey string    `json:"encryption_pubkey"` // Base58
	UpdatedAt        time.Time `json:"updated_at"`
}

// RegisterKeyRequest publishes a trader's encryption public key.
type RegisterKeyRequest struct {
	Wallet           string `json:"wallet"`            // Base58 wallet address
	EncryptionPubkey string `json:"encryption_pubkey"` // Base58 X25519 public key
}
