package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/codec"
	"github.com/obscuraswap/solver/internal/ledger"
	"github.com/obscuraswap/solver/internal/order"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/router"
)

// FillRecorder receives completed fills for history storage. Recording is
// best-effort and never blocks settlement.
type FillRecorder interface {
	RecordFill(ctx context.Context, o *order.Order, signature string) error
}

// Config holds solver runtime parameters.
type Config struct {
	PollInterval time.Duration

	// MaxSlippageBps caps the slippage the solver will route at even when
	// the decrypted order tolerates more.
	MaxSlippageBps uint16

	// MaxPriceImpactPct rejects quotes whose price impact would move the
	// market against later fills.
	MaxPriceImpactPct decimal.Decimal

	QuoteRetries int
	RetryBackoff time.Duration

	// ProcessedMaxAge bounds how long skipped orders are remembered before
	// being retried.
	ProcessedMaxAge time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      2 * time.Second,
		MaxSlippageBps:    100,
		MaxPriceImpactPct: decimal.NewFromFloat(1.0),
		QuoteRetries:      2,
		RetryBackoff:      500 * time.Millisecond,
		ProcessedMaxAge:   5 * time.Minute,
	}
}

// Solver polls the ledger for pending orders, decrypts their terms, and
// settles the profitable ones through the router.
type Solver struct {
	identity solana.PublicKey
	ledger   ledger.Ledger
	registry registry.Registry
	router   router.Router
	keypair  *codec.Keypair
	recorder FillRecorder
	config   Config
	logger   *logrus.Logger

	mu        sync.Mutex
	processed map[order.ID]time.Time
	running   bool
}

func New(identity solana.PublicKey, l ledger.Ledger, reg registry.Registry, rt router.Router, kp *codec.Keypair, cfg Config, logger *logrus.Logger) *Solver {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.ProcessedMaxAge <= 0 {
		cfg.ProcessedMaxAge = DefaultConfig().ProcessedMaxAge
	}
	return &Solver{
		identity:  identity,
		ledger:    l,
		registry:  reg,
		router:    rt,
		keypair:   kp,
		config:    cfg,
		logger:    logger,
		processed: make(map[order.ID]time.Time),
	}
}

// WithRecorder attaches a fill history sink.
func (s *Solver) WithRecorder(r FillRecorder) *Solver {
	s.recorder = r
	return s
}

// EncryptionPublicKey returns the X25519 key traders encrypt payloads to.
func (s *Solver) EncryptionPublicKey() [32]byte {
	return s.keypair.Public
}

// Start runs the poll loop until the context is cancelled.
func (s *Solver) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("solver already running")
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.WithFields(logrus.Fields{
		"interval":       s.config.PollInterval,
		"encryption_key": s.keypair.PublicBase58(),
	}).Info("starting settlement polling")

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()

		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				s.logger.WithError(err).Error("poll error")
			}
		}
	}
}

// Poll runs one settlement pass over all pending orders. Per-order errors
// are isolated; only ledger listing failures abort the pass.
func (s *Solver) Poll(ctx context.Context) error {
	s.pruneProcessed()

	pending := order.StatusPending
	orders, err := s.ledger.ListOrders(ctx, ledger.Filter{Status: &pending})
	if err != nil {
		return fmt.Errorf("failed to list pending orders: %w", err)
	}

	if len(orders) == 0 {
		s.logger.Debug("no pending orders")
		return nil
	}

	s.logger.WithField("count", len(orders)).Info("found pending orders")

	for _, o := range orders {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		id := o.ID()
		if s.recentlyProcessed(id) {
			continue
		}

		if err := s.processOrder(ctx, o); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"owner":    o.Owner.String(),
				"order_id": o.OrderID,
			}).Warn("order processing failed")
		}
	}

	return nil
}

func (s *Solver) processOrder(ctx context.Context, o *order.Order) error {
	id := o.ID()
	log := s.logger.WithFields(logrus.Fields{
		"owner":    o.Owner.String(),
		"order_id": o.OrderID,
	})

	rec, err := s.registry.Lookup(ctx, o.Owner)
	if errors.Is(err, registry.ErrNotRegistered) {
		// Cannot decrypt without the trader's key; leave Pending and
		// revisit after the registry catches up.
		s.markProcessed(id)
		log.Debug("owner has no registered encryption key")
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry lookup: %w", err)
	}

	terms, err := codec.Decrypt(o.EncryptedPayload, rec.EncryptionKey, s.keypair)
	if err != nil {
		s.markProcessed(id)
		log.WithError(err).Warn("payload decryption failed")
		return nil
	}

	if terms.Expired(time.Now()) {
		if _, err := s.ledger.Transition(ctx, id, order.EventExpire, ledger.TransitionParams{Caller: s.identity}); err != nil {
			return fmt.Errorf("expire order: %w", err)
		}
		s.markProcessed(id)
		log.Info("order expired")
		return nil
	}

	quote, err := s.quoteWithRetry(ctx, router.QuoteRequest{
		InputMint:   o.InputMint,
		OutputMint:  o.OutputMint,
		Amount:      o.InputAmount,
		SlippageBps: terms.SlippageBps,
	})
	if err != nil {
		// Quote failures are transient; leave the order Pending.
		s.markProcessed(id)
		log.WithError(err).Warn("quote unavailable")
		return nil
	}

	if reason := s.checkProfitability(terms, quote); reason != nil {
		// The market may move back into range; do not burn the order.
		s.markProcessed(id)
		log.WithFields(logrus.Fields{
			"out_amount": quote.OutAmount,
			"min_output": terms.MinOutputAmount,
			"reason":     reason.Error(),
		}).Info("order not profitable")
		return nil
	}

	_, err = s.ledger.Transition(ctx, id, order.EventClaimExecution, ledger.TransitionParams{Caller: s.identity})
	if err != nil {
		if errors.Is(err, order.ErrNotInExpectedState) {
			// Lost the claim race or the owner cancelled first.
			s.markProcessed(id)
			return nil
		}
		return fmt.Errorf("claim execution: %w", err)
	}

	res, err := s.router.Execute(ctx, quote, s.identity)
	if err != nil {
		s.failOrder(ctx, id, fmt.Sprintf("execution failed: %v", err), log)
		return nil
	}

	filled, err := s.ledger.Transition(ctx, id, order.EventExecuteFill, ledger.TransitionParams{
		Caller:             s.identity,
		MinOutputAmount:    terms.MinOutputAmount,
		ActualOutputAmount: res.OutAmount,
	})
	if err != nil {
		s.failOrder(ctx, id, fmt.Sprintf("fill rejected: %v", err), log)
		return nil
	}

	s.markProcessed(id)

	log.WithFields(logrus.Fields{
		"signature":  res.Signature,
		"out_amount": filled.OutputAmount,
		"fee":        filled.FeeAmount,
		"tier":       filled.UserTier,
	}).Info("order settled")

	if s.recorder != nil {
		if err := s.recorder.RecordFill(ctx, filled, res.Signature); err != nil {
			log.WithError(err).Warn("failed to record fill")
		}
	}

	return nil
}

func (s *Solver) quoteWithRetry(ctx context.Context, req router.QuoteRequest) (*router.Quote, error) {
	var lastErr error
	attempts := s.config.QuoteRetries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.RetryBackoff * time.Duration(i)):
			}
		}

		quote, err := s.router.Quote(ctx, req)
		if err == nil {
			return quote, nil
		}
		lastErr = err

		if errors.Is(err, router.ErrNoRoute) {
			// Retrying the same pair will not conjure liquidity.
			return nil, err
		}
	}
	return nil, lastErr
}

// checkProfitability returns nil when the quote satisfies the decrypted
// terms and the solver's own risk limits.
func (s *Solver) checkProfitability(terms codec.OrderTerms, quote *router.Quote) error {
	if quote.OutAmount < terms.MinOutputAmount {
		return order.ErrNotProfitable
	}
	if quote.SlippageBps > terms.SlippageBps || quote.SlippageBps > s.config.MaxSlippageBps {
		return order.ErrSlippageExceeded
	}
	if !s.config.MaxPriceImpactPct.IsZero() && quote.PriceImpactPct.GreaterThanOrEqual(s.config.MaxPriceImpactPct) {
		return order.ErrSlippageExceeded
	}
	return nil
}

func (s *Solver) failOrder(ctx context.Context, id order.ID, reason string, log *logrus.Entry) {
	s.markProcessed(id)
	if _, err := s.ledger.Transition(ctx, id, order.EventFail, ledger.TransitionParams{
		Caller: s.identity,
		Reason: reason,
	}); err != nil {
		log.WithError(err).Error("failed to mark order failed")
		return
	}
	log.WithField("reason", reason).Warn("order failed")
}

func (s *Solver) markProcessed(id order.ID) {
	s.mu.Lock()
	s.processed[id] = time.Now()
	s.mu.Unlock()
}

func (s *Solver) recentlyProcessed(id order.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

func (s *Solver) pruneProcessed() {
	cutoff := time.Now().Add(-s.config.ProcessedMaxAge)
	s.mu.Lock()
	for id, at := range s.processed {
		if at.Before(cutoff) {
			delete(s.processed, id)
		}
	}
	s.mu.Unlock()
}
