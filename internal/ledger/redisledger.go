package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/obscuraswap/solver/internal/order"
)

const (
	orderKeyPrefix   = "orders:"
	statusIdxPrefix  = "orders:status:"
	ownerIdxPrefix   = "orders:owner:"
	orderIndexKey    = "orders:index"
	balanceKeyPrefix = "balances:"
	feePoolKeyPrefix = "feepool:"
	statsKey         = "ledger:stats"

	// transitionRetries bounds the optimistic-lock retry loop; losing a
	// WATCH race reloads the order and usually surfaces
	// ErrNotInExpectedState on the next pass.
	transitionRetries = 5
)

// redisOrder is the persisted record: the order plus its vault balances.
type redisOrder struct {
	Order       order.Order `json:"order"`
	EscrowVault uint64      `json:"escrow_vault"`
	OutputVault uint64      `json:"output_vault"`
}

// RedisLedger implements the Ledger contract on Redis. Per-order
// atomicity comes from WATCH/MULTI on the order key: of two concurrent
// transitions exactly one EXEC commits, the other retries, re-reads the
// new state and gets rejected by the state machine.
type RedisLedger struct {
	client *redis.Client
	solver solana.PublicKey
}

func NewRedisLedger(client *redis.Client, solver solana.PublicKey) (*RedisLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisLedger{client: client, solver: solver}, nil
}

func orderKey(id order.ID) string {
	return fmt.Sprintf("%s%s:%d", orderKeyPrefix, id.Owner.String(), id.OrderID)
}

func statusIdx(s order.Status) string {
	return statusIdxPrefix + s.String()
}

func ownerIdx(owner solana.PublicKey) string {
	return ownerIdxPrefix + owner.String()
}

func balanceField(wallet, mint solana.PublicKey) string {
	return fmt.Sprintf("%s%s:%s", balanceKeyPrefix, wallet.String(), mint.String())
}

func idMember(id order.ID) string {
	return fmt.Sprintf("%s:%d", id.Owner.String(), id.OrderID)
}

// Fund credits a wallet's token balance. Test and devnet seeding only.
func (l *RedisLedger) Fund(ctx context.Context, wallet, mint solana.PublicKey, amount uint64) error {
	return l.client.IncrBy(ctx, balanceField(wallet, mint), int64(amount)).Err()
}

// Balance reads a wallet's token balance.
func (l *RedisLedger) Balance(ctx context.Context, wallet, mint solana.PublicKey) (uint64, error) {
	v, err := l.client.Get(ctx, balanceField(wallet, mint)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return uint64(v), nil
}

func (l *RedisLedger) CreateOrder(ctx context.Context, p CreateParams) (*order.Order, error) {
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
	key := orderKey(id)
	balKey := balanceField(p.Owner, p.InputMint)

	var created *order.Order

	txn := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 1 {
			return order.ErrDuplicateOrder
		}

		bal, err := tx.Get(ctx, balKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if uint64(bal) < p.InputAmount {
			return fmt.Errorf("insufficient balance: have %d, need %d", bal, p.InputAmount)
		}

		rec := redisOrder{
			Order: order.Order{
				Owner:               p.Owner,
				OrderID:             p.OrderID,
				InputMint:           p.InputMint,
				OutputMint:          p.OutputMint,
				InputAmount:         p.InputAmount,
				EncryptedPayload:    p.EncryptedPayload,
				Status:              order.StatusPending,
				OrderType:           p.OrderType,
				CreatedAt:           time.Now().UTC(),
				UserTier:            p.Stamp.UserTier,
				FeeBpsApplied:       p.Stamp.FeeBps,
				MevProtectionLevel:  p.Stamp.MevProtection,
				FairscoreAtCreation: p.Stamp.Fairscore,
				UserEncryptionKey:   p.Stamp.UserEncryptionKey,
			},
			EscrowVault: p.InputAmount,
		}

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.DecrBy(ctx, balKey, int64(p.InputAmount))
			pipe.SAdd(ctx, orderIndexKey, idMember(id))
			pipe.SAdd(ctx, statusIdx(order.StatusPending), idMember(id))
			pipe.SAdd(ctx, ownerIdx(p.Owner), idMember(id))
			return nil
		})
		if err != nil {
			return err
		}
		created = &rec.Order
		return nil
	}

	for i := 0; i < transitionRetries; i++ {
		err := l.client.Watch(ctx, txn, key, balKey)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return created, nil
	}
	return nil, fmt.Errorf("create order: transaction contention after %d attempts", transitionRetries)
}

func (l *RedisLedger) Transition(ctx context.Context, id order.ID, event order.Event, p TransitionParams) (*order.Order, error) {
	key := orderKey(id)
	var updated *order.Order

	// Fills read and decrement the solver's output balance, so that key
	// must be under WATCH too or two concurrent fills of different orders
	// could both pass the balance check. Mints are immutable after
	// creation, so resolving the key outside the transaction is safe.
	watchKeys := []string{key}
	if event == order.EventExecuteFill {
		rec, err := l.load(ctx, l.client, key)
		if err != nil {
			return nil, err
		}
		watchKeys = append(watchKeys, balanceField(l.solver, rec.Order.OutputMint))
	}

	txn := func(tx *redis.Tx) error {
		rec, err := l.load(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := l.authorize(rec, event, p.Caller); err != nil {
			return err
		}

		next, err := order.NextStatus(rec.Order.Status, event)
		if err != nil {
			return err
		}
		prev := rec.Order.Status

		var moves []balanceMove
		switch event {
		case order.EventClaimExecution:

		case order.EventExecuteFill:
			if p.ActualOutputAmount < p.MinOutputAmount {
				return order.ErrOutputBelowMinimum
			}
			solverBal, err := tx.Get(ctx, balanceField(l.solver, rec.Order.OutputMint)).Int64()
			if err != nil && err != redis.Nil {
				return err
			}
			if uint64(solverBal) < p.ActualOutputAmount {
				return fmt.Errorf("solver output balance %d below fill %d", solverBal, p.ActualOutputAmount)
			}

			fee := rec.Order.CalculateFee(p.ActualOutputAmount)

			moves = append(moves,
				balanceMove{key: balanceField(l.solver, rec.Order.InputMint), delta: int64(rec.EscrowVault)},
				balanceMove{key: balanceField(l.solver, rec.Order.OutputMint), delta: -int64(p.ActualOutputAmount)},
				balanceMove{key: feePoolKeyPrefix + rec.Order.OutputMint.String(), delta: int64(fee)},
			)

			rec.Order.MinOutputAmount = p.MinOutputAmount
			rec.Order.OutputAmount = p.ActualOutputAmount - fee
			rec.Order.FeeAmount = fee
			rec.EscrowVault = 0
			rec.OutputVault = p.ActualOutputAmount - fee
			solver := l.solver
			rec.Order.ExecutedAt = time.Now().UTC()
			rec.Order.ExecutedBy = &solver

		case order.EventFail:
			rec.Order.FailReason = p.Reason

		case order.EventCancel:
			moves = append(moves, balanceMove{
				key:   balanceField(rec.Order.Owner, rec.Order.InputMint),
				delta: int64(rec.EscrowVault),
			})
			rec.EscrowVault = 0

		case order.EventExpire:
			rec.Order.FailReason = "expired"
		}

		rec.Order.Status = next
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SRem(ctx, statusIdx(prev), idMember(id))
			pipe.SAdd(ctx, statusIdx(next), idMember(id))
			for _, m := range moves {
				pipe.IncrBy(ctx, m.key, m.delta)
			}
			if event == order.EventExecuteFill {
				pipe.HIncrBy(ctx, statsKey, "total_orders", 1)
				pipe.HIncrBy(ctx, statsKey, "total_volume", int64(rec.Order.InputAmount))
				pipe.HIncrBy(ctx, statsKey, "total_fees", int64(rec.Order.FeeAmount))
				pipe.HIncrBy(ctx, statsKey, fmt.Sprintf("volume_tier_%d", rec.Order.UserTier), int64(rec.Order.InputAmount))
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = &rec.Order
		return nil
	}

	for i := 0; i < transitionRetries; i++ {
		err := l.client.Watch(ctx, txn, watchKeys...)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("transition %s: transaction contention after %d attempts", event, transitionRetries)
}

type balanceMove struct {
	key   string
	delta int64
}

func (l *RedisLedger) authorize(rec *redisOrder, event order.Event, caller solana.PublicKey) error {
	switch event {
	case order.EventCancel:
		if !caller.Equals(rec.Order.Owner) {
			return order.ErrUnauthorized
		}
	case order.EventClaimExecution, order.EventExecuteFill, order.EventFail, order.EventExpire:
		if !caller.Equals(l.solver) {
			return order.ErrUnauthorized
		}
	}
	return nil
}

func (l *RedisLedger) load(ctx context.Context, c redis.Cmdable, key string) (*redisOrder, error) {
	raw, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	var rec redisOrder
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &rec, nil
}

func (l *RedisLedger) GetOrder(ctx context.Context, id order.ID) (*order.Order, error) {
	rec, err := l.load(ctx, l.client, orderKey(id))
	if err != nil {
		return nil, err
	}
	return &rec.Order, nil
}

func (l *RedisLedger) ListOrders(ctx context.Context, f Filter) ([]*order.Order, error) {
	idxKey := orderIndexKey
	if f.Status != nil {
		idxKey = statusIdx(*f.Status)
	} else if f.Owner != nil {
		idxKey = ownerIdx(*f.Owner)
	}

	members, err := l.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list orders index: %w", err)
	}
	if len(members) == 0 {
		return []*order.Order{}, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, orderKeyPrefix+m)
	}

	vals, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget orders: %w", err)
	}

	out := make([]*order.Order, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec redisOrder
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		// Status index membership can lag the record by one losing WATCH
		// race; the record is authoritative.
		if f.Status != nil && rec.Order.Status != *f.Status {
			continue
		}
		if f.Owner != nil && !rec.Order.Owner.Equals(*f.Owner) {
			continue
		}
		out = append(out, &rec.Order)
	}
	return out, nil
}

func (l *RedisLedger) Claim(ctx context.Context, id order.ID, caller solana.PublicKey) (uint64, error) {
	key := orderKey(id)
	var claimed uint64

	txn := func(tx *redis.Tx) error {
		rec, err := l.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if !caller.Equals(rec.Order.Owner) {
			return order.ErrUnauthorized
		}
		if rec.Order.Status != order.StatusCompleted {
			return order.ErrNotInExpectedState
		}
		if rec.OutputVault == 0 {
			return order.ErrAlreadyClaimed
		}

		amount := rec.OutputVault
		rec.OutputVault = 0

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.IncrBy(ctx, balanceField(rec.Order.Owner, rec.Order.OutputMint), int64(amount))
			return nil
		})
		if err != nil {
			return err
		}
		claimed = amount
		return nil
	}

	for i := 0; i < transitionRetries; i++ {
		err := l.client.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return 0, err
		}
		return claimed, nil
	}
	return 0, fmt.Errorf("claim: transaction contention after %d attempts", transitionRetries)
}

func (l *RedisLedger) Stats(ctx context.Context) (Stats, error) {
	vals, err := l.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}

	var s Stats
	parse := func(field string) uint64 {
		var n uint64
		fmt.Sscan(vals[field], &n)
		return n
	}
	s.TotalOrders = parse("total_orders")
	s.TotalVolume = parse("total_volume")
	s.TotalFeesCollected = parse("total_fees")
	for i := range s.VolumeByTier {
		s.VolumeByTier[i] = parse(fmt.Sprintf("volume_tier_%d", i))
	}
	return s, nil
}
