package order

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Status is the order lifecycle state. Pending is initial; Completed,
// Cancelled and Failed are terminal except for the Failed -> Cancelled
// recovery edge.
type Status uint8

const (
	StatusPending Status = iota
	StatusExecuting
	StatusCompleted
	StatusCancelled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusExecuting: "executing",
	StatusCompleted: "completed",
	StatusCancelled: "cancelled",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus converts a wire string into a Status. Unknown variants are
// an explicit error, never a silent zero value.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: status %q", ErrUnknownVariant, s)
}

// Type is the requested order style. Entitlement to each type is gated by
// the trader's tier bitmask.
type Type uint8

const (
	TypeMarket Type = iota
	TypeLimit
	TypeTwap
	TypeIceberg
	TypeDark
)

var typeNames = map[Type]string{
	TypeMarket:  "market",
	TypeLimit:   "limit",
	TypeTwap:    "twap",
	TypeIceberg: "iceberg",
	TypeDark:    "dark",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Bitmask returns the entitlement bit for this order type.
func (t Type) Bitmask() uint8 {
	return 1 << uint8(t)
}

func ParseType(s string) (Type, error) {
	for ot, name := range typeNames {
		if name == s {
			return ot, nil
		}
	}
	return 0, fmt.Errorf("%w: order type %q", ErrUnknownVariant, s)
}

// MevProtection is the front-running protection level stamped on an order
// at creation from the trader's tier.
type MevProtection uint8

const (
	MevNone MevProtection = iota
	MevBasic
	MevFull
	MevPriority
)

var mevNames = map[MevProtection]string{
	MevNone:     "none",
	MevBasic:    "basic",
	MevFull:     "full",
	MevPriority: "priority",
}

func (m MevProtection) String() string {
	if name, ok := mevNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mev(%d)", uint8(m))
}

func ParseMevProtection(s string) (MevProtection, error) {
	for mp, name := range mevNames {
		if name == s {
			return mp, nil
		}
	}
	return 0, fmt.Errorf("%w: mev protection %q", ErrUnknownVariant, s)
}

// ID uniquely identifies an order: caller-chosen OrderID scoped to the
// owner wallet.
type ID struct {
	Owner   solana.PublicKey
	OrderID uint64
}

func (id ID) String() string {
	return fmt.Sprintf("%s-%d", id.Owner.String(), id.OrderID)
}

// Order is the ledger's view of a confidential swap order. The economic
// terms inside EncryptedPayload stay opaque until the solver decrypts
// them; MinOutputAmount is only persisted after execution.
type Order struct {
	Owner   solana.PublicKey `json:"owner"`
	OrderID uint64           `json:"order_id"`

	InputMint   solana.PublicKey `json:"input_mint"`
	OutputMint  solana.PublicKey `json:"output_mint"`
	InputAmount uint64           `json:"input_amount"`

	MinOutputAmount uint64 `json:"min_output_amount"`
	// OutputAmount is the trader's credited output, net of the protocol
	// fee. The gross fill is OutputAmount + FeeAmount.
	OutputAmount uint64 `json:"output_amount"`

	EncryptedPayload []byte `json:"encrypted_payload"`

	Status    Status `json:"status"`
	OrderType Type   `json:"order_type"`

	CreatedAt  time.Time         `json:"created_at"`
	ExecutedAt time.Time         `json:"executed_at,omitempty"`
	ExecutedBy *solana.PublicKey `json:"executed_by,omitempty"`

	FailReason string `json:"fail_reason,omitempty"`

	// Tier fields, immutable after creation.
	UserTier            uint8         `json:"user_tier"`
	FeeBpsApplied       uint16        `json:"fee_bps_applied"`
	FeeAmount           uint64        `json:"fee_amount"`
	MevProtectionLevel  MevProtection `json:"mev_protection_level"`
	FairscoreAtCreation uint8         `json:"fairscore_at_creation"`
	UserEncryptionKey   [32]byte      `json:"user_encryption_pubkey"`
}

// ID returns the order's unique identity.
func (o *Order) ID() ID {
	return ID{Owner: o.Owner, OrderID: o.OrderID}
}

func (o *Order) IsCancellable() bool {
	return o.Status == StatusPending || o.Status == StatusFailed
}

func (o *Order) IsExecutable() bool {
	return o.Status == StatusPending
}

func (o *Order) IsClaimable() bool {
	return o.Status == StatusCompleted
}

// CalculateFee computes the protocol fee deducted from the actual output
// before it is credited to the trader's output vault. 128-bit intermediate
// keeps the multiply exact for the full u64 range.
func (o *Order) CalculateFee(outputAmount uint64) uint64 {
	hi, lo := bits.Mul64(outputAmount, uint64(o.FeeBpsApplied))
	fee, _ := bits.Div64(hi, lo, 10000)
	return fee
}
