package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// OracleClient fetches reputation scores from the attestation service.
// Responses are cached briefly, bounded by the proof freshness window, so
// concurrent order evaluations do not hammer the oracle.
type OracleClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]cachedScore
}

type cachedScore struct {
	proof     *ScoreProof
	fetchedAt time.Time
}

func NewOracleClient(baseURL, apiKey string) *OracleClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OracleClient{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
		cacheTTL: 60 * time.Second,
		cache:    make(map[string]cachedScore),
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("oracle http %d", e.StatusCode)
	}
	return fmt.Sprintf("oracle http %d: %s", e.StatusCode, b)
}

type scoreResponse struct {
	Wallet    string `json:"wallet"`
	Score     uint8  `json:"score"`
	Tier      uint8  `json:"tier"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"` // base58 ed25519 signature
}

// GetScore fetches the current score and freshness proof for a wallet.
func (c *OracleClient) GetScore(ctx context.Context, wallet solana.PublicKey) (*ScoreProof, error) {
	key := wallet.String()

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok && time.Since(cached.fetchedAt) < c.cacheTTL {
		c.mu.Unlock()
		return cached.proof, nil
	}
	c.mu.Unlock()

	u := fmt.Sprintf("%s/v1/score/%s", c.BaseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: body}
	}

	var out scoreResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	proof, err := out.toProof()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cachedScore{proof: proof, fetchedAt: time.Now()}
	c.mu.Unlock()

	return proof, nil
}

func (r *scoreResponse) toProof() (*ScoreProof, error) {
	wallet, err := solana.PublicKeyFromBase58(r.Wallet)
	if err != nil {
		return nil, fmt.Errorf("oracle returned invalid wallet: %w", err)
	}
	sig, err := base58.Decode(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("oracle returned invalid signature: %w", err)
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("oracle signature must be 64 bytes, got %d", len(sig))
	}

	p := &ScoreProof{
		Wallet:    wallet,
		Score:     r.Score,
		Tier:      r.Tier,
		Timestamp: r.Timestamp,
	}
	copy(p.Signature[:], sig)
	return p, nil
}
