package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obscuraswap/solver/internal/order"
)

var (
	testInputMint  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testOutputMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func fullStamp() TierStamp {
	return TierStamp{
		UserTier:          2,
		FeeBps:            15,
		MevProtection:     order.MevFull,
		AllowedOrderTypes: 7,
		Fairscore:         55,
	}
}

func newTestLedger(t *testing.T) (*MemLedger, solana.PublicKey, solana.PublicKey) {
	t.Helper()
	solver := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	l := NewMemLedger(solver)
	l.Fund(owner, testInputMint, 1_000_000_000)
	l.Fund(solver, testOutputMint, 1_000_000_000)
	return l, solver, owner
}

func submit(t *testing.T, l *MemLedger, owner solana.PublicKey, orderID uint64) *order.Order {
	t.Helper()
	o, err := l.CreateOrder(context.Background(), CreateParams{
		Owner:            owner,
		OrderID:          orderID,
		InputMint:        testInputMint,
		OutputMint:       testOutputMint,
		InputAmount:      100_000_000,
		EncryptedPayload: make([]byte, 64),
		OrderType:        order.TypeMarket,
		Stamp:            fullStamp(),
	})
	require.NoError(t, err)
	return o
}

func TestMemLedger_CreateOrder_Escrows(t *testing.T) {
	l, _, owner := newTestLedger(t)

	o := submit(t, l, owner, 1)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, uint64(900_000_000), l.Balance(owner, testInputMint))

	escrow, output, err := l.VaultBalances(o.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), escrow)
	assert.Zero(t, output)
}

func TestMemLedger_CreateOrder_Rejections(t *testing.T) {
	l, _, owner := newTestLedger(t)
	ctx := context.Background()

	base := CreateParams{
		Owner:            owner,
		OrderID:          1,
		InputMint:        testInputMint,
		OutputMint:       testOutputMint,
		InputAmount:      100_000_000,
		EncryptedPayload: make([]byte, 64),
		OrderType:        order.TypeMarket,
		Stamp:            fullStamp(),
	}

	p := base
	p.EncryptedPayload = make([]byte, 23)
	_, err := l.CreateOrder(ctx, p)
	assert.ErrorIs(t, err, order.ErrInvalidPayloadLength)

	p = base
	p.EncryptedPayload = make([]byte, 129)
	_, err = l.CreateOrder(ctx, p)
	assert.ErrorIs(t, err, order.ErrInvalidPayloadLength)

	p = base
	p.InputAmount = 0
	_, err = l.CreateOrder(ctx, p)
	assert.ErrorIs(t, err, order.ErrInvalidInputAmount)

	// Tier 2 mask (7) does not include iceberg (8).
	p = base
	p.OrderType = order.TypeIceberg
	_, err = l.CreateOrder(ctx, p)
	assert.ErrorIs(t, err, order.ErrOrderTypeNotAllowed)

	// No escrow moved by any rejection.
	assert.Equal(t, uint64(1_000_000_000), l.Balance(owner, testInputMint))

	// Duplicate (owner, orderId) rejected, not overwritten.
	submit(t, l, owner, 1)
	_, err = l.CreateOrder(ctx, base)
	assert.ErrorIs(t, err, order.ErrDuplicateOrder)
	assert.Equal(t, uint64(900_000_000), l.Balance(owner, testInputMint))
}

func TestMemLedger_ExecuteFlow_Conservation(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	o := submit(t, l, owner, 1)
	id := o.ID()

	_, err := l.Transition(ctx, id, order.EventClaimExecution, TransitionParams{Caller: solver})
	require.NoError(t, err)

	got, err := l.Transition(ctx, id, order.EventExecuteFill, TransitionParams{
		Caller:             solver,
		MinOutputAmount:    95_000_000,
		ActualOutputAmount: 98_000_000,
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusCompleted, got.Status)
	// 15 bps of the 98_000_000 gross fill; the order records the net.
	assert.Equal(t, uint64(147_000), got.FeeAmount)
	assert.Equal(t, uint64(97_853_000), got.OutputAmount)
	require.NotNil(t, got.ExecutedBy)
	assert.True(t, got.ExecutedBy.Equals(solver))

	escrow, output, err := l.VaultBalances(id)
	require.NoError(t, err)
	assert.Zero(t, escrow, "escrow drained after completion")
	assert.Equal(t, uint64(98_000_000-147_000), output)

	assert.Equal(t, uint64(100_000_000), l.Balance(solver, testInputMint))
	assert.Equal(t, uint64(1_000_000_000-98_000_000), l.Balance(solver, testOutputMint))
	assert.Equal(t, uint64(147_000), l.FeeBalance(testOutputMint))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalOrders)
	assert.Equal(t, uint64(100_000_000), stats.TotalVolume)
	assert.Equal(t, uint64(147_000), stats.TotalFeesCollected)
	assert.Equal(t, uint64(100_000_000), stats.VolumeByTier[2])

	// Claim drains the output vault exactly once.
	claimed, err := l.Claim(ctx, id, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(97_853_000), claimed)
	assert.Equal(t, claimed, l.Balance(owner, testOutputMint))

	_, err = l.Claim(ctx, id, owner)
	assert.ErrorIs(t, err, order.ErrAlreadyClaimed)
}

func TestMemLedger_ExecuteFill_RevalidatesMinOutput(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	o := submit(t, l, owner, 1)
	_, err := l.Transition(ctx, o.ID(), order.EventClaimExecution, TransitionParams{Caller: solver})
	require.NoError(t, err)

	// The ledger check is authoritative even if the solver lied locally.
	_, err = l.Transition(ctx, o.ID(), order.EventExecuteFill, TransitionParams{
		Caller:             solver,
		MinOutputAmount:    95_000_000,
		ActualOutputAmount: 90_000_000,
	})
	assert.ErrorIs(t, err, order.ErrOutputBelowMinimum)

	got, err := l.GetOrder(ctx, o.ID())
	require.NoError(t, err)
	assert.Equal(t, order.StatusExecuting, got.Status, "rejected fill leaves state untouched")
}

func TestMemLedger_Cancel_Refunds(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	o := submit(t, l, owner, 1)

	_, err := l.Transition(ctx, o.ID(), order.EventCancel, TransitionParams{Caller: solver})
	assert.ErrorIs(t, err, order.ErrUnauthorized, "only the owner cancels")

	got, err := l.Transition(ctx, o.ID(), order.EventCancel, TransitionParams{Caller: owner})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, uint64(1_000_000_000), l.Balance(owner, testInputMint), "full refund")

	escrow, _, err := l.VaultBalances(o.ID())
	require.NoError(t, err)
	assert.Zero(t, escrow)
}

func TestMemLedger_FailedRecovery(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	o := submit(t, l, owner, 1)
	id := o.ID()

	_, err := l.Transition(ctx, id, order.EventClaimExecution, TransitionParams{Caller: solver})
	require.NoError(t, err)
	got, err := l.Transition(ctx, id, order.EventFail, TransitionParams{Caller: solver, Reason: "not profitable"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusFailed, got.Status)
	assert.Equal(t, "not profitable", got.FailReason)

	// Escrow still intact after failure, recoverable by owner cancel.
	escrow, _, err := l.VaultBalances(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), escrow)

	got, err = l.Transition(ctx, id, order.EventCancel, TransitionParams{Caller: owner})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, uint64(1_000_000_000), l.Balance(owner, testInputMint))
}

func TestMemLedger_ConcurrentClaimExecution_OneWinner(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	o := submit(t, l, owner, 1)
	id := o.ID()

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Transition(ctx, id, order.EventClaimExecution, TransitionParams{Caller: solver})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var winners, losers int
	for err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, order.ErrNotInExpectedState)
			losers++
		}
	}
	assert.Equal(t, 1, winners, "exactly one claim must win")
	assert.Equal(t, attempts-1, losers)
}

func TestMemLedger_ConcurrentCancelVsClaim(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	// Whichever transition commits first wins; the funds cannot both be
	// refunded and end up in execution.
	for orderID := uint64(1); orderID <= 20; orderID++ {
		o := submit(t, l, owner, orderID)
		id := o.ID()

		var wg sync.WaitGroup
		var cancelErr, claimErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = l.Transition(ctx, id, order.EventCancel, TransitionParams{Caller: owner})
		}()
		go func() {
			defer wg.Done()
			_, claimErr = l.Transition(ctx, id, order.EventClaimExecution, TransitionParams{Caller: solver})
		}()
		wg.Wait()

		if cancelErr == nil {
			assert.ErrorIs(t, claimErr, order.ErrNotInExpectedState)
		} else {
			assert.NoError(t, claimErr)
			assert.ErrorIs(t, cancelErr, order.ErrNotInExpectedState)
		}
	}
}

func TestMemLedger_TerminalStateRejections(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	o := submit(t, l, owner, 1)
	id := o.ID()

	_, err := l.Transition(ctx, id, order.EventClaimExecution, TransitionParams{Caller: solver})
	require.NoError(t, err)
	_, err = l.Transition(ctx, id, order.EventExecuteFill, TransitionParams{
		Caller: solver, MinOutputAmount: 1, ActualOutputAmount: 98_000_000,
	})
	require.NoError(t, err)

	// A restarted solver re-attempting a completed order gets a clean
	// rejection, not a double fill.
	_, err = l.Transition(ctx, id, order.EventClaimExecution, TransitionParams{Caller: solver})
	assert.ErrorIs(t, err, order.ErrNotInExpectedState)
	_, err = l.Transition(ctx, id, order.EventExecuteFill, TransitionParams{
		Caller: solver, MinOutputAmount: 1, ActualOutputAmount: 98_000_000,
	})
	assert.ErrorIs(t, err, order.ErrNotInExpectedState)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalOrders)
}

func TestMemLedger_ListOrders(t *testing.T) {
	l, solver, owner := newTestLedger(t)
	ctx := context.Background()

	other := solana.NewWallet().PublicKey()
	l.Fund(other, testInputMint, 500_000_000)

	submit(t, l, owner, 1)
	submit(t, l, owner, 2)
	o3, err := l.CreateOrder(ctx, CreateParams{
		Owner: other, OrderID: 7,
		InputMint: testInputMint, OutputMint: testOutputMint,
		InputAmount: 50_000_000, EncryptedPayload: make([]byte, 64),
		OrderType: order.TypeMarket, Stamp: fullStamp(),
	})
	require.NoError(t, err)

	_, err = l.Transition(ctx, o3.ID(), order.EventClaimExecution, TransitionParams{Caller: solver})
	require.NoError(t, err)

	pending := order.StatusPending
	got, err := l.ListOrders(ctx, Filter{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = l.ListOrders(ctx, Filter{Owner: &other})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].OrderID)

	got, err = l.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMemLedger_GetOrder_NotFound(t *testing.T) {
	l, _, owner := newTestLedger(t)

	_, err := l.GetOrder(context.Background(), order.ID{Owner: owner, OrderID: 99})
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}
