package router

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	ErrNoRoute      = errors.New("no route between mints")
	ErrQuoteTimeout = errors.New("quote request timed out")
)

type QuoteRequest struct {
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	Amount      uint64
	SlippageBps uint16
}

// Quote is an executable price for one swap. OutAmount is the expected
// output before solver fee deduction.
type Quote struct {
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	InAmount       uint64
	OutAmount      uint64
	SlippageBps    uint16
	PriceImpactPct decimal.Decimal
	Route          []string
}

type ExecuteResult struct {
	Signature string
	OutAmount uint64
}

// Router prices and executes swaps against an external liquidity venue.
type Router interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	Execute(ctx context.Context, q *Quote, payer solana.PublicKey) (*ExecuteResult, error)
}
