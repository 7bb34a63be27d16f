package tier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obscuraswap/solver/internal/order"
)

func TestDefaultTable_Valid(t *testing.T) {
	assert.NoError(t, DefaultTable().Validate())
}

func TestResolve_Brackets(t *testing.T) {
	tbl := DefaultTable()

	cases := []struct {
		score uint8
		tier  uint8
		fee   uint16
	}{
		{0, 0, 50},
		{19, 0, 50},
		{20, 1, 30},
		{39, 1, 30},
		{40, 2, 15},
		{59, 2, 15},
		{60, 3, 8},
		{79, 3, 8},
		{80, 4, 5},
		{100, 4, 5},
		{255, 4, 5}, // out-of-range scores clamp to the top bracket
	}

	for _, tc := range cases {
		b := tbl.Resolve(tc.score)
		assert.Equal(t, tc.tier, b.Tier, "score %d", tc.score)
		assert.Equal(t, tc.fee, b.FeeBps, "score %d", tc.score)
	}
}

func TestResolve_FeeMonotonicity(t *testing.T) {
	tbl := DefaultTable()
	for s1 := uint8(0); s1 < MaxScore; s1++ {
		b1 := tbl.Resolve(s1)
		b2 := tbl.Resolve(s1 + 1)
		assert.GreaterOrEqual(t, b1.FeeBps, b2.FeeBps, "fee must not increase from score %d to %d", s1, s1+1)
		assert.Equal(t, b2.AllowedOrderTypes&b1.AllowedOrderTypes, b1.AllowedOrderTypes,
			"higher tier order types must be a superset at score %d", s1)
	}
}

func TestBenefits_AllowsOrderType(t *testing.T) {
	tbl := DefaultTable()

	floor := tbl.Resolve(0)
	assert.True(t, floor.AllowsOrderType(order.TypeMarket))
	assert.False(t, floor.AllowsOrderType(order.TypeLimit))
	assert.False(t, floor.AllowsOrderType(order.TypeDark))

	top := tbl.Resolve(90)
	assert.True(t, top.AllowsOrderType(order.TypeMarket))
	assert.True(t, top.AllowsOrderType(order.TypeIceberg))
	assert.True(t, top.AllowsOrderType(order.TypeDark))
}

func TestNewTable_RejectsMalformed(t *testing.T) {
	base := DefaultTable().Definitions()

	// Non-decreasing fee.
	bad := append([]TierDefinition{}, base...)
	bad[2].FeeBps = 30
	_, err := NewTable(bad)
	assert.Error(t, err)

	// Missing floor tier.
	bad = append([]TierDefinition{}, base...)
	bad[0].MinScore = 5
	_, err = NewTable(bad)
	assert.Error(t, err)

	// Order type mask not a superset.
	bad = append([]TierDefinition{}, base...)
	bad[3].AllowedOrderTypes = 1
	_, err = NewTable(bad)
	assert.Error(t, err)

	_, err = NewTable(nil)
	assert.Error(t, err)
}

func newSignedProof(t *testing.T, key ed25519.PrivateKey, wallet solana.PublicKey, score uint8, ts int64) *ScoreProof {
	t.Helper()
	p := &ScoreProof{Wallet: wallet, Score: score, Tier: 2, Timestamp: ts}
	p.Sign(key)
	return p
}

func TestVerifyProof(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	wallet := solana.NewWallet().PublicKey()
	now := time.Now()

	fresh := newSignedProof(t, priv, wallet, 55, now.Unix())
	assert.NoError(t, VerifyProof(fresh, pub, MaxProofAge, now))

	// Stale proof fails, not a silent tier 0 fallback.
	stale := newSignedProof(t, priv, wallet, 55, now.Add(-11*time.Minute).Unix())
	assert.ErrorIs(t, VerifyProof(stale, pub, MaxProofAge, now), ErrStaleProof)

	// Tampered score breaks the signature.
	tampered := newSignedProof(t, priv, wallet, 55, now.Unix())
	tampered.Score = 90
	assert.ErrorIs(t, VerifyProof(tampered, pub, MaxProofAge, now), ErrInvalidProof)

	// Wrong oracle key.
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyProof(fresh, otherPub, MaxProofAge, now), ErrInvalidProof)

	// Out-of-range score rejected before signature check.
	invalid := newSignedProof(t, priv, wallet, 101, now.Unix())
	assert.ErrorIs(t, VerifyProof(invalid, pub, MaxProofAge, now), ErrInvalidProof)
}

func TestOracleClient_GetScore(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	wallet := solana.NewWallet().PublicKey()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/v1/score/"+wallet.String(), r.URL.Path)

		p := &ScoreProof{Wallet: wallet, Score: 72, Tier: 3, Timestamp: time.Now().Unix()}
		p.Sign(priv)

		_ = json.NewEncoder(w).Encode(scoreResponse{
			Wallet:    wallet.String(),
			Score:     p.Score,
			Tier:      p.Tier,
			Timestamp: p.Timestamp,
			Signature: base58.Encode(p.Signature[:]),
		})
	}))
	defer srv.Close()

	client := NewOracleClient(srv.URL, "")
	ctx := context.Background()

	proof, err := client.GetScore(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, uint8(72), proof.Score)
	assert.Equal(t, wallet, proof.Wallet)

	// Second lookup inside the TTL is served from cache.
	_, err = client.GetScore(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestOracleClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wallet not scored", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOracleClient(srv.URL, "")

	_, err := client.GetScore(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}
