package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/obscuraswap/solver/internal/order"
)

const (
	// Submission payload bounds. Wider than the codec's decrypt bounds:
	// the ledger cannot distinguish routing-hint payloads from baseline
	// ones and only enforces the protocol envelope.
	minSubmitPayload = 24
	maxSubmitPayload = 128
)

type balanceKey struct {
	wallet solana.PublicKey
	mint   solana.PublicKey
}

type memOrder struct {
	ord         order.Order
	escrowVault uint64
	outputVault uint64
}

// MemLedger is an in-process reference ledger with full vault accounting.
// It backs tests and local development; funds conservation and the state
// machine hold under concurrent access.
type MemLedger struct {
	mu       sync.Mutex
	solver   solana.PublicKey
	orders   map[order.ID]*memOrder
	balances map[balanceKey]uint64
	feePool  map[solana.PublicKey]uint64
	stats    Stats
}

// NewMemLedger creates a ledger authorizing the given solver identity for
// execution transitions.
func NewMemLedger(solver solana.PublicKey) *MemLedger {
	return &MemLedger{
		solver:   solver,
		orders:   make(map[order.ID]*memOrder),
		balances: make(map[balanceKey]uint64),
		feePool:  make(map[solana.PublicKey]uint64),
	}
}

// Fund credits a wallet's token balance. Test and devnet seeding only.
func (l *MemLedger) Fund(wallet, mint solana.PublicKey, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey{wallet, mint}] += amount
}

// Balance reads a wallet's token balance.
func (l *MemLedger) Balance(wallet, mint solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{wallet, mint}]
}

// FeeBalance reads the protocol fee account for a mint.
func (l *MemLedger) FeeBalance(mint solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feePool[mint]
}

// VaultBalances reports an order's escrow and output vault balances.
func (l *MemLedger) VaultBalances(id order.ID) (escrow, output uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mo, ok := l.orders[id]
	if !ok {
		return 0, 0, order.ErrOrderNotFound
	}
	return mo.escrowVault, mo.outputVault, nil
}

func (l *MemLedger) CreateOrder(_ context.Context, p CreateParams) (*order.Order, error) {
	if len(p.EncryptedPayload) < minSubmitPayload || len(p.EncryptedPayload) > maxSubmitPayload {
		return nil, order.ErrInvalidPayloadLength
	}
	if p.InputAmount == 0 {
		return nil, order.ErrInvalidInputAmount
	}
	if p.Stamp.AllowedOrderTypes&p.OrderType.Bitmask() == 0 {
		return nil, order.ErrOrderTypeNotAllowed
	}

	id := order.ID{Owner: p.Owner, OrderID: p.OrderID}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.orders[id]; exists {
		return nil, order.ErrDuplicateOrder
	}

	bk := balanceKey{p.Owner, p.InputMint}
	if l.balances[bk] < p.InputAmount {
		return nil, fmt.Errorf("insufficient balance: have %d, need %d", l.balances[bk], p.InputAmount)
	}

	// Escrow happens with order creation or not at all.
	l.balances[bk] -= p.InputAmount

	payload := make([]byte, len(p.EncryptedPayload))
	copy(payload, p.EncryptedPayload)

	mo := &memOrder{
		ord: order.Order{
			Owner:               p.Owner,
			OrderID:             p.OrderID,
			InputMint:           p.InputMint,
			OutputMint:          p.OutputMint,
			InputAmount:         p.InputAmount,
			EncryptedPayload:    payload,
			Status:              order.StatusPending,
			OrderType:           p.OrderType,
			CreatedAt:           time.Now().UTC(),
			UserTier:            p.Stamp.UserTier,
			FeeBpsApplied:       p.Stamp.FeeBps,
			MevProtectionLevel:  p.Stamp.MevProtection,
			FairscoreAtCreation: p.Stamp.Fairscore,
			UserEncryptionKey:   p.Stamp.UserEncryptionKey,
		},
		escrowVault: p.InputAmount,
	}
	l.orders[id] = mo

	out := mo.ord
	return &out, nil
}

func (l *MemLedger) Transition(_ context.Context, id order.ID, event order.Event, p TransitionParams) (*order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mo, ok := l.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}

	if err := l.authorize(mo, event, p.Caller); err != nil {
		return nil, err
	}

	next, err := order.NextStatus(mo.ord.Status, event)
	if err != nil {
		return nil, err
	}

	switch event {
	case order.EventClaimExecution:
		// No funds move until the fill lands.

	case order.EventExecuteFill:
		if p.ActualOutputAmount < p.MinOutputAmount {
			return nil, order.ErrOutputBelowMinimum
		}

		solverOut := balanceKey{l.solver, mo.ord.OutputMint}
		if l.balances[solverOut] < p.ActualOutputAmount {
			return nil, fmt.Errorf("solver output balance %d below fill %d", l.balances[solverOut], p.ActualOutputAmount)
		}

		fee := mo.ord.CalculateFee(p.ActualOutputAmount)

		// Input escrow to solver, output (net of fee) to the order's
		// output vault, fee to the protocol account.
		l.balances[balanceKey{l.solver, mo.ord.InputMint}] += mo.escrowVault
		mo.ord.MinOutputAmount = p.MinOutputAmount
		mo.ord.OutputAmount = p.ActualOutputAmount - fee
		mo.ord.FeeAmount = fee
		mo.escrowVault = 0

		l.balances[solverOut] -= p.ActualOutputAmount
		mo.outputVault = p.ActualOutputAmount - fee
		l.feePool[mo.ord.OutputMint] += fee

		solver := l.solver
		mo.ord.ExecutedAt = time.Now().UTC()
		mo.ord.ExecutedBy = &solver

		l.stats.TotalOrders++
		l.stats.TotalVolume += mo.ord.InputAmount
		l.stats.TotalFeesCollected += fee
		if int(mo.ord.UserTier) < len(l.stats.VolumeByTier) {
			l.stats.VolumeByTier[mo.ord.UserTier] += mo.ord.InputAmount
		}

	case order.EventFail:
		mo.ord.FailReason = p.Reason

	case order.EventCancel:
		// Refund whatever the escrow still holds (Pending: full amount;
		// Failed recovery: the untouched escrow).
		l.balances[balanceKey{mo.ord.Owner, mo.ord.InputMint}] += mo.escrowVault
		mo.escrowVault = 0

	case order.EventExpire:
		mo.ord.FailReason = "expired"
	}

	mo.ord.Status = next
	out := mo.ord
	return &out, nil
}

func (l *MemLedger) authorize(mo *memOrder, event order.Event, caller solana.PublicKey) error {
	switch event {
	case order.EventCancel:
		if !caller.Equals(mo.ord.Owner) {
			return order.ErrUnauthorized
		}
	case order.EventClaimExecution, order.EventExecuteFill, order.EventFail, order.EventExpire:
		if !caller.Equals(l.solver) {
			return order.ErrUnauthorized
		}
	}
	return nil
}

func (l *MemLedger) GetOrder(_ context.Context, id order.ID) (*order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mo, ok := l.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	out := mo.ord
	return &out, nil
}

func (l *MemLedger) ListOrders(_ context.Context, f Filter) ([]*order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*order.Order, 0)
	for _, mo := range l.orders {
		if f.Status != nil && mo.ord.Status != *f.Status {
			continue
		}
		if f.Owner != nil && !mo.ord.Owner.Equals(*f.Owner) {
			continue
		}
		cp := mo.ord
		out = append(out, &cp)
	}
	return out, nil
}

func (l *MemLedger) Claim(_ context.Context, id order.ID, caller solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mo, ok := l.orders[id]
	if !ok {
		return 0, order.ErrOrderNotFound
	}
	if !caller.Equals(mo.ord.Owner) {
		return 0, order.ErrUnauthorized
	}
	if mo.ord.Status != order.StatusCompleted {
		return 0, order.ErrNotInExpectedState
	}
	if mo.outputVault == 0 {
		return 0, order.ErrAlreadyClaimed
	}

	amount := mo.outputVault
	mo.outputVault = 0
	l.balances[balanceKey{mo.ord.Owner, mo.ord.OutputMint}] += amount
	return amount, nil
}

func (l *MemLedger) Stats(_ context.Context) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats, nil
}
