package trader

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/codec"
	"github.com/obscuraswap/solver/internal/ledger"
	"github.com/obscuraswap/solver/internal/order"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/tier"
)

// ScoreSource provides reputation proofs for a wallet. Production uses
// tier.OracleClient; tests inject a local signer.
type ScoreSource interface {
	GetScore(ctx context.Context, wallet solana.PublicKey) (*tier.ScoreProof, error)
}

// Config wires a trader client to the settlement surface.
type Config struct {
	Wallet       solana.PublicKey
	Keypair      *codec.Keypair
	SolverPubKey [32]byte

	Oracle    ScoreSource
	OracleKey ed25519.PublicKey
	Table     *tier.Table

	// MaxProofAge overrides the default freshness window when positive.
	MaxProofAge time.Duration
}

// Client submits, cancels and claims confidential orders on behalf of one
// wallet. Order terms never leave the client unencrypted.
type Client struct {
	ledger   ledger.Ledger
	registry registry.Registry
	cfg      Config
	logger   *logrus.Logger

	registered bool
}

func NewClient(l ledger.Ledger, reg registry.Registry, cfg Config, logger *logrus.Logger) (*Client, error) {
	if cfg.Keypair == nil {
		return nil, fmt.Errorf("encryption keypair is required")
	}
	if cfg.Oracle == nil {
		return nil, fmt.Errorf("score source is required")
	}
	if cfg.Table == nil {
		cfg.Table = tier.DefaultTable()
	}
	if cfg.MaxProofAge <= 0 {
		cfg.MaxProofAge = tier.MaxProofAge
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{ledger: l, registry: reg, cfg: cfg, logger: logger}, nil
}

// SubmitParams describes one order submission. Terms stay client-side;
// only their encrypted form reaches the ledger.
type SubmitParams struct {
	OrderID     uint64
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	InputAmount uint64
	OrderType   order.Type
	Terms       codec.OrderTerms
}

// SubmitOrder resolves the wallet's tier, encrypts the terms for the
// solver, and escrows the input on the ledger.
func (c *Client) SubmitOrder(ctx context.Context, p SubmitParams) (*order.Order, error) {
	if err := p.Terms.Validate(); err != nil {
		return nil, fmt.Errorf("invalid terms: %w", err)
	}

	proof, err := c.cfg.Oracle.GetScore(ctx, c.cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch reputation proof: %w", err)
	}
	if err := tier.VerifyProof(proof, c.cfg.OracleKey, c.cfg.MaxProofAge, time.Now()); err != nil {
		return nil, fmt.Errorf("reputation proof rejected: %w", err)
	}

	benefits := c.cfg.Table.Resolve(proof.Score)
	if !benefits.AllowsOrderType(p.OrderType) {
		return nil, fmt.Errorf("%w: %s requires a higher tier than %s",
			order.ErrOrderTypeNotAllowed, p.OrderType, benefits.Name)
	}

	payload, err := codec.Encrypt(p.Terms, c.cfg.SolverPubKey, c.cfg.Keypair)
	if err != nil {
		return nil, fmt.Errorf("encrypt terms: %w", err)
	}

	if err := c.ensureRegistered(ctx); err != nil {
		return nil, err
	}

	created, err := c.ledger.CreateOrder(ctx, ledger.CreateParams{
		Owner:            c.cfg.Wallet,
		OrderID:          p.OrderID,
		InputMint:        p.InputMint,
		OutputMint:       p.OutputMint,
		InputAmount:      p.InputAmount,
		EncryptedPayload: payload,
		OrderType:        p.OrderType,
		Stamp: ledger.TierStamp{
			UserTier:          benefits.Tier,
			FeeBps:            benefits.FeeBps,
			MevProtection:     benefits.MevProtection,
			AllowedOrderTypes: benefits.AllowedOrderTypes,
			Fairscore:         proof.Score,
			UserEncryptionKey: c.cfg.Keypair.Public,
		},
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": created.OrderID,
		"tier":     benefits.Name,
		"fee_bps":  benefits.FeeBps,
	}).Info("order submitted")

	return created, nil
}

// ensureRegistered publishes the encryption public key once per client.
func (c *Client) ensureRegistered(ctx context.Context) error {
	if c.registered {
		return nil
	}
	if _, err := c.registry.Register(ctx, c.cfg.Wallet, c.cfg.Keypair.Public); err != nil {
		return fmt.Errorf("register encryption key: %w", err)
	}
	c.registered = true
	return nil
}

// Cancel refunds a Pending order, and also serves as the recovery path
// for Failed orders.
func (c *Client) Cancel(ctx context.Context, orderID uint64) (*order.Order, error) {
	return c.ledger.Transition(ctx,
		order.ID{Owner: c.cfg.Wallet, OrderID: orderID},
		order.EventCancel,
		ledger.TransitionParams{Caller: c.cfg.Wallet},
	)
}

// Recover refunds a Failed order's escrow back to the wallet. It is the
// cancel edge applied after a failed execution.
func (c *Client) Recover(ctx context.Context, orderID uint64) (*order.Order, error) {
	return c.Cancel(ctx, orderID)
}

// Claim drains the output of a Completed order to the wallet.
func (c *Client) Claim(ctx context.Context, orderID uint64) (uint64, error) {
	return c.ledger.Claim(ctx, order.ID{Owner: c.cfg.Wallet, OrderID: orderID}, c.cfg.Wallet)
}

// Order fetches one of the wallet's orders.
func (c *Client) Order(ctx context.Context, orderID uint64) (*order.Order, error) {
	return c.ledger.GetOrder(ctx, order.ID{Owner: c.cfg.Wallet, OrderID: orderID})
}

// Orders lists all of the wallet's orders.
func (c *Client) Orders(ctx context.Context) ([]*order.Order, error) {
	owner := c.cfg.Wallet
	return c.ledger.ListOrders(ctx, ledger.Filter{Owner: &owner})
}
