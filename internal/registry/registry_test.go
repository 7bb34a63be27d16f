package registry

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   2, // Use different DB for tests
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	err = client.FlushDB(ctx).Err()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}

func testKey(b byte) [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func runRegistryContract(t *testing.T, reg Registry) {
	ctx := context.Background()
	wallet := solana.NewWallet().PublicKey()

	_, err := reg.Lookup(ctx, wallet)
	assert.ErrorIs(t, err, ErrNotRegistered)

	rec, err := reg.Register(ctx, wallet, testKey(1))
	require.NoError(t, err)
	assert.True(t, rec.Wallet.Equals(wallet))
	assert.NotZero(t, rec.UpdatedAt)

	got, err := reg.Lookup(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, testKey(1), got.EncryptionKey)

	// Re-registering rotates the key in place.
	_, err = reg.Register(ctx, wallet, testKey(2))
	require.NoError(t, err)
	got, err = reg.Lookup(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, testKey(2), got.EncryptionKey)

	other := solana.NewWallet().PublicKey()
	_, err = reg.Register(ctx, other, testKey(3))
	require.NoError(t, err)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, reg.Unregister(ctx, wallet))
	_, err = reg.Lookup(ctx, wallet)
	assert.ErrorIs(t, err, ErrNotRegistered)

	// Unregistering a wallet that was never registered is a no-op.
	assert.NoError(t, reg.Unregister(ctx, solana.NewWallet().PublicKey()))

	all, err = reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemRegistry(t *testing.T) {
	runRegistryContract(t, NewMemRegistry())
}

func TestRedisRegistry(t *testing.T) {
	client := setupTestRedis(t)

	reg, err := NewRedisRegistry(client)
	require.NoError(t, err)
	runRegistryContract(t, reg)
}

func TestNewRedisRegistry_NilClient(t *testing.T) {
	_, err := NewRedisRegistry(nil)
	assert.Error(t, err)
}

func TestMemRegistry_ReturnsCopies(t *testing.T) {
	reg := NewMemRegistry()
	ctx := context.Background()
	wallet := solana.NewWallet().PublicKey()

	_, err := reg.Register(ctx, wallet, testKey(9))
	require.NoError(t, err)

	got, err := reg.Lookup(ctx, wallet)
	require.NoError(t, err)
	got.EncryptionKey = testKey(0)

	again, err := reg.Lookup(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, testKey(9), again.EncryptionKey, "caller mutation must not leak into the store")
}
