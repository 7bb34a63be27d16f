package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
)

const (
	indexKey    = "registry:index"
	valuePrefix = "registry:"
)

// RedisRegistry persists encryption key records so that a restarted solver
// can keep decrypting payloads for wallets registered before the restart.
type RedisRegistry struct {
	client redis.Cmdable
}

func NewRedisRegistry(client redis.Cmdable) (*RedisRegistry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Register(ctx context.Context, wallet solana.PublicKey, encryptionKey [32]byte) (*Record, error) {
	rec := &Record{Wallet: wallet, EncryptionKey: encryptionKey, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKey(wallet), b, 0)
	pipe.SAdd(ctx, indexKey, wallet.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("register encryption key: %w", err)
	}

	return rec, nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, wallet solana.PublicKey) (*Record, error) {
	val, err := r.client.Get(ctx, recordKey(wallet)).Result()
	if err == redis.Nil {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("lookup encryption key: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Record, error) {
	wallets, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list registry index: %w", err)
	}
	if len(wallets) == 0 {
		return []*Record{}, nil
	}

	keys := make([]string, 0, len(wallets))
	for _, w := range wallets {
		pk, err := solana.PublicKeyFromBase58(w)
		if err != nil {
			continue
		}
		keys = append(keys, recordKey(pk))
	}
	if len(keys) == 0 {
		return []*Record{}, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget registry records: %w", err)
	}

	out := make([]*Record, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}

	return out, nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, wallet solana.PublicKey) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recordKey(wallet))
	pipe.SRem(ctx, indexKey, wallet.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister encryption key: %w", err)
	}

	return nil
}

func recordKey(wallet solana.PublicKey) string {
	return valuePrefix + wallet.String()
}
