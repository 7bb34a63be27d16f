package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/codec"
	"github.com/obscuraswap/solver/internal/history"
	"github.com/obscuraswap/solver/internal/ledger"
	"github.com/obscuraswap/solver/internal/order"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/router"
	"github.com/obscuraswap/solver/internal/tier"
)

// FillSource serves recent fills for the public trade tape.
type FillSource interface {
	RecentFills(ctx context.Context, limit int64) ([]*history.Fill, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Ledger         ledger.Ledger     // Order store
	Registry       registry.Registry // Encryption key registry
	Tiers          *tier.Table       // Loaded tier table
	SolverIdentity solana.PublicKey  // Solver wallet identity
	SolverEncKey   [32]byte          // Solver X25519 encryption public key
	Fills          FillSource        // Recent fills (optional)
	Router         router.Router     // Quote preview routing (optional)
	DevMode        bool              // Enable detailed error responses in development
	Logger         *logrus.Logger    // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// SolverKey returns the key traders must encrypt order terms to.
func (h *Handlers) SolverKey(c echo.Context) error {
	return c.JSON(http.StatusOK, SolverKeyResponse{
		EncryptionPubkey: base58.Encode(h.SolverEncKey[:]),
		SolverIdentity:   h.SolverIdentity.String(),
	})
}

// Tiers returns the tier table loaded at startup.
func (h *Handlers) TierTable(c echo.Context) error {
	return c.JSON(http.StatusOK, TiersResponse{Tiers: h.Tiers.Definitions()})
}

// Fee resolves the fee and entitlements for a reputation score.
// Score parameter must be an integer in [0, 100].
func (h *Handlers) Fee(c echo.Context) error {
	scoreStr := strings.TrimSpace(c.Param("score"))
	n, err := strconv.ParseUint(scoreStr, 10, 8)
	if err != nil || n > tier.MaxScore {
		return h.err(c, http.StatusBadRequest, "invalid score", map[string]any{"score": "must be an integer in [0, 100]"})
	}

	b := h.Tiers.Resolve(uint8(n))
	return c.JSON(http.StatusOK, FeeResponse{
		Score:             uint8(n),
		Tier:              b.Tier,
		TierName:          b.Name,
		FeeBps:            b.FeeBps,
		MevProtection:     b.MevProtection.String(),
		AllowedOrderTypes: b.AllowedOrderTypes,
	})
}

// Stats returns the running settlement aggregates.
func (h *Handlers) Stats(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Ledger.Stats(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get stats", nil)
	}
	return c.JSON(http.StatusOK, stats)
}

// Orders lists orders filtered by optional status and owner query params.
// Only public order fields are returned; payloads stay opaque.
func (h *Handlers) Orders(c echo.Context) error {
	var f ledger.Filter

	if v := strings.TrimSpace(c.QueryParam("status")); v != "" {
		st, err := order.ParseStatus(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid status", map[string]any{"status": "unknown value"})
		}
		f.Status = &st
	}
	if v := strings.TrimSpace(c.QueryParam("owner")); v != "" {
		pk, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid owner", map[string]any{"owner": "must be base58 pubkey"})
		}
		f.Owner = &pk
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Ledger.ListOrders(ctx, f)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list orders", nil)
	}

	items := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		items = append(items, NewOrderView(o))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Order fetches one order by owner and order id.
func (h *Handlers) Order(c echo.Context) error {
	owner, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.Param("owner")))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid owner", map[string]any{"owner": "must be base58 pubkey"})
	}
	orderID, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid order id", map[string]any{"id": "must be uint64"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	o, err := h.Ledger.GetOrder(ctx, order.ID{Owner: owner, OrderID: orderID})
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	return c.JSON(http.StatusOK, NewOrderView(o))
}

// RegistryList returns all registered encryption keys.
func (h *Handlers) RegistryList(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	records, err := h.Registry.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list registry", nil)
	}

	items := make([]RegistryEntryView, 0, len(records))
	for _, r := range records {
		items = append(items, RegistryEntryView{
			Wallet:           r.Wallet.String(),
			EncryptionPubkey: base58.Encode(r.EncryptionKey[:]),
			UpdatedAt:        r.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// RegistryLookup returns the encryption key registered for one wallet.
func (h *Handlers) RegistryLookup(c echo.Context) error {
	wallet, err := solana.PublicKeyFromBase58(c.Param("identity"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid wallet", map[string]any{"identity": "must be base58 pubkey"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	rec, err := h.Registry.Lookup(ctx, wallet)
	if err != nil {
		return fmt.Errorf("look up key: %w", err)
	}
	return c.JSON(http.StatusOK, RegistryEntryView{
		Wallet:           rec.Wallet.String(),
		EncryptionPubkey: base58.Encode(rec.EncryptionKey[:]),
		UpdatedAt:        rec.UpdatedAt,
	})
}

// RegistryRegister publishes a wallet's encryption public key.
func (h *Handlers) RegistryRegister(c echo.Context) error {
	var req RegisterKeyRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	wallet, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Wallet))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid wallet", map[string]any{"wallet": "must be base58 pubkey"})
	}
	encKey, err := codec.PublicKeyFromBase58(strings.TrimSpace(req.EncryptionPubkey))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid encryption_pubkey", map[string]any{"encryption_pubkey": "must be base58 32-byte key"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	rec, err := h.Registry.Register(ctx, wallet, encKey)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to register key", nil)
	}
	return c.JSON(http.StatusOK, RegistryEntryView{
		Wallet:           rec.Wallet.String(),
		EncryptionPubkey: base58.Encode(rec.EncryptionKey[:]),
		UpdatedAt:        rec.UpdatedAt,
	})
}

// RecentFills returns the most recent settled fills with optional limit parameter
// Accepts limit query parameter (default: 50, range: 1-100)
func (h *Handlers) RecentFills(c echo.Context) error {
	if h.Fills == nil {
		return h.err(c, http.StatusBadRequest, "fill history is not configured", nil)
	}

	limitStr := c.QueryParam("limit")
	limit := 50
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 100 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Fills.RecentFills(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get fills", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}
