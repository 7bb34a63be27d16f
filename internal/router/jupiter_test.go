package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wsol = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

const quoteBody = `{
	"inputMint": "So11111111111111111111111111111111111111112",
	"outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"inAmount": "1000000000",
	"outAmount": "98000000",
	"swapMode": "ExactIn",
	"slippageBps": 50,
	"priceImpactPct": "0.12",
	"routePlan": [{"swapInfo": {"ammKey": "amm1", "label": "Orca"}}]
}`

func TestJupiterRouter_Quote(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "test-key")
	q, err := jr.Quote(context.Background(), QuoteRequest{
		InputMint:   wsol,
		OutputMint:  usdc,
		Amount:      1_000_000_000,
		SlippageBps: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, "/quote", gotPath)
	assert.Equal(t, []string{"1000000000"}, gotQuery["amount"])
	assert.Equal(t, []string{"ExactIn"}, gotQuery["swapMode"])

	assert.Equal(t, uint64(98_000_000), q.OutAmount)
	assert.Equal(t, uint16(50), q.SlippageBps)
	assert.True(t, q.PriceImpactPct.Equal(decimal.RequireFromString("0.12")))
	assert.Equal(t, []string{"Orca"}, q.Route)
}

func TestJupiterRouter_Quote_NoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"inAmount":"1","outAmount":"1","inputMint":"So11111111111111111111111111111111111111112","outputMint":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v","routePlan":[]}`))
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "")
	_, err := jr.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc, Amount: 1})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestJupiterRouter_Quote_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "")
	_, err := jr.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc, Amount: 1})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "rate limited")
}

func TestJupiterRouter_Quote_NotFoundIsNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "")
	_, err := jr.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc, Amount: 1})
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestJupiterRouter_Quote_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "")
	jr.HTTP.Timeout = 50 * time.Millisecond

	_, err := jr.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: usdc, Amount: 1})
	assert.ErrorIs(t, err, ErrQuoteTimeout)
}

func TestJupiterRouter_Execute(t *testing.T) {
	payer := solana.NewWallet().PublicKey()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/swap", r.URL.Path)

		var req swapRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, payer.String(), req.UserPublicKey)
		assert.True(t, req.WrapUnwrapSOL)

		var q quoteResponse
		require.NoError(t, json.Unmarshal(req.QuoteResponse, &q))
		assert.Equal(t, "98000000", q.OutAmount)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature": "5abc", "outAmount": "97500000"}`))
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "")
	res, err := jr.Execute(context.Background(), &Quote{
		InputMint:   wsol,
		OutputMint:  usdc,
		InAmount:    1_000_000_000,
		OutAmount:   98_000_000,
		SlippageBps: 50,
	}, payer)
	require.NoError(t, err)

	assert.Equal(t, "5abc", res.Signature)
	assert.Equal(t, uint64(97_500_000), res.OutAmount, "venue-reported fill wins over quoted amount")
}

func TestJupiterRouter_Execute_FallsBackToQuotedAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature": "5def"}`))
	}))
	defer srv.Close()

	jr := NewJupiterRouter(srv.URL, "")
	res, err := jr.Execute(context.Background(), &Quote{OutAmount: 42, InputMint: wsol, OutputMint: usdc}, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.OutAmount)
}
