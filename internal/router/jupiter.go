package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// JupiterRouter routes swaps through the Jupiter aggregator API.
type JupiterRouter struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	limiter *rate.Limiter
}

func NewJupiterRouter(baseURL, apiKey string) *JupiterRouter {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.jup.ag/swap/v1"
	}
	return &JupiterRouter{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 12 * time.Second,
		},
		// Free tier allows 10 req/s; stay under it.
		limiter: rate.NewLimiter(rate.Limit(8), 8),
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("jupiter http %d", e.StatusCode)
	}
	return fmt.Sprintf("jupiter http %d: %s", e.StatusCode, b)
}

type quoteResponse struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	SwapMode       string          `json:"swapMode"`
	SlippageBps    uint16          `json:"slippageBps"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      []routePlanStep `json:"routePlan"`
}

type routePlanStep struct {
	SwapInfo struct {
		AmmKey     string `json:"ammKey"`
		Label      string `json:"label,omitempty"`
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
	} `json:"swapInfo"`
	Percent *uint8 `json:"percent,omitempty"`
}

type swapRequest struct {
	QuoteResponse json.RawMessage `json:"quoteResponse"`
	UserPublicKey string          `json:"userPublicKey"`
	WrapUnwrapSOL bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	Signature string `json:"signature"`
	OutAmount string `json:"outAmount"`
}

func (r *JupiterRouter) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("amount is required")
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint.String())
	q.Set("outputMint", req.OutputMint.String())
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	q.Set("swapMode", "ExactIn")

	body, err := r.do(ctx, http.MethodGet, r.BaseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var out quoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode jupiter quote response: %w", err)
	}
	if len(out.RoutePlan) == 0 {
		return nil, ErrNoRoute
	}

	return r.toQuote(&out)
}

func (r *JupiterRouter) toQuote(resp *quoteResponse) (*Quote, error) {
	inMint, err := solana.PublicKeyFromBase58(resp.InputMint)
	if err != nil {
		return nil, fmt.Errorf("bad inputMint in quote: %w", err)
	}
	outMint, err := solana.PublicKeyFromBase58(resp.OutputMint)
	if err != nil {
		return nil, fmt.Errorf("bad outputMint in quote: %w", err)
	}
	inAmount, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad inAmount in quote: %w", err)
	}
	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad outAmount in quote: %w", err)
	}

	impact := decimal.Zero
	if resp.PriceImpactPct != "" {
		impact, err = decimal.NewFromString(resp.PriceImpactPct)
		if err != nil {
			return nil, fmt.Errorf("bad priceImpactPct in quote: %w", err)
		}
	}

	route := make([]string, 0, len(resp.RoutePlan))
	for _, step := range resp.RoutePlan {
		label := step.SwapInfo.Label
		if label == "" {
			label = step.SwapInfo.AmmKey
		}
		route = append(route, label)
	}

	return &Quote{
		InputMint:      inMint,
		OutputMint:     outMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		SlippageBps:    resp.SlippageBps,
		PriceImpactPct: impact,
		Route:          route,
	}, nil
}

func (r *JupiterRouter) Execute(ctx context.Context, q *Quote, payer solana.PublicKey) (*ExecuteResult, error) {
	if q == nil {
		return nil, fmt.Errorf("quote is nil")
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Re-encode the quote so the venue executes exactly what was priced.
	rawQuote, err := json.Marshal(quoteResponse{
		InputMint:      q.InputMint.String(),
		OutputMint:     q.OutputMint.String(),
		InAmount:       strconv.FormatUint(q.InAmount, 10),
		OutAmount:      strconv.FormatUint(q.OutAmount, 10),
		SwapMode:       "ExactIn",
		SlippageBps:    q.SlippageBps,
		PriceImpactPct: q.PriceImpactPct.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal quote: %w", err)
	}

	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse: rawQuote,
		UserPublicKey: payer.String(),
		WrapUnwrapSOL: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := r.do(ctx, http.MethodPost, r.BaseURL+"/swap", reqBody)
	if err != nil {
		return nil, err
	}

	var out swapResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode jupiter swap response: %w", err)
	}

	res := &ExecuteResult{Signature: out.Signature, OutAmount: q.OutAmount}
	if out.OutAmount != "" {
		actual, err := strconv.ParseUint(out.OutAmount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad outAmount in swap response: %w", err)
		}
		res.OutAmount = actual
	}
	return res, nil
}

func (r *JupiterRouter) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("content-type", "application/json")
	}
	if r.APIKey != "" {
		httpReq.Header.Set("x-api-key", r.APIKey)
	}

	res, err := r.HTTP.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrQuoteTimeout
		}
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrQuoteTimeout
		}
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNoRoute
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: body}
	}
	return body, nil
}
