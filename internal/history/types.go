package history

import (
	"context"
	"io"
	"time"
)

// Fill is the public settlement record. It exposes only what the fill
// itself reveals: encrypted terms are never written to history.
type Fill struct {
	Signature    string    `json:"signature"`
	Owner        string    `json:"owner"`
	OrderID      uint64    `json:"order_id"`
	InputMint    string    `json:"input_mint"`
	OutputMint   string    `json:"output_mint"`
	InputAmount  uint64    `json:"input_amount"`
	OutputAmount uint64    `json:"output_amount"`
	FeeAmount    uint64    `json:"fee_amount"`
	FeeBps       uint16    `json:"fee_bps"`
	UserTier     uint8     `json:"user_tier"`
	OrderType    string    `json:"order_type"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// FillStore persists fills for querying.
type FillStore interface {
	InsertFill(ctx context.Context, fill *Fill) error
	RecentFills(ctx context.Context, limit int64) ([]*Fill, error)
	Ping(ctx context.Context) error
	io.Closer
}

// FillPublisher fans fills out to real-time subscribers.
type FillPublisher interface {
	PublishFill(ctx context.Context, fill *Fill) error
	SubscribeFills(ctx context.Context) (<-chan *Fill, error)
	io.Closer
}
