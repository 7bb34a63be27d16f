package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"

	"github.com/obscuraswap/solver/internal/router"
)

// QuoteResponse is the public price preview for a prospective order.
type QuoteResponse struct {
	InputMint      string   `json:"input_mint"`
	OutputMint     string   `json:"output_mint"`
	InAmount       uint64   `json:"in_amount"`
	OutAmount      uint64   `json:"out_amount"`
	SlippageBps    uint16   `json:"slippage_bps"`
	PriceImpactPct string   `json:"price_impact_pct"`
	Route          []string `json:"route"`
}

// Quote previews routing for a pair and amount without touching the
// ledger. Traders use it to pick a minimum output before encrypting.
func (h *Handlers) Quote(c echo.Context) error {
	if h.Router == nil {
		return h.err(c, http.StatusBadRequest, "router is not configured", nil)
	}

	inputMint, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.QueryParam("inputMint")))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid inputMint", map[string]any{"inputMint": "must be base58 pubkey"})
	}
	outputMint, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.QueryParam("outputMint")))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid outputMint", map[string]any{"outputMint": "must be base58 pubkey"})
	}
	amount, err := strconv.ParseUint(strings.TrimSpace(c.QueryParam("amount")), 10, 64)
	if err != nil || amount == 0 {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "must be a positive uint64"})
	}

	var slippageBps uint16 = 50
	if v := strings.TrimSpace(c.QueryParam("slippageBps")); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid slippageBps", map[string]any{"slippageBps": "must be uint16"})
		}
		slippageBps = uint16(n)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	q, err := h.Router.Quote(ctx, router.QuoteRequest{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: slippageBps,
	})
	if err != nil {
		if errors.Is(err, router.ErrNoRoute) || errors.Is(err, router.ErrQuoteTimeout) {
			return fmt.Errorf("quote: %w", err)
		}
		return h.err(c, http.StatusBadGateway, "quote failed", map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusOK, QuoteResponse{
		InputMint:      q.InputMint.String(),
		OutputMint:     q.OutputMint.String(),
		InAmount:       q.InAmount,
		OutAmount:      q.OutAmount,
		SlippageBps:    q.SlippageBps,
		PriceImpactPct: q.PriceImpactPct.String(),
		Route:          q.Route,
	})
}
