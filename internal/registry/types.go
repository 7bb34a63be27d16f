package registry

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var ErrNotRegistered = errors.New("encryption key not registered")

// Record maps a wallet to the X25519 public key its order payloads are
// encrypted under. Wallets without a record cannot have orders decrypted.
type Record struct {
	Wallet        solana.PublicKey `json:"wallet"`
	EncryptionKey [32]byte         `json:"encryption_key"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type Registry interface {
	Register(ctx context.Context, wallet solana.PublicKey, encryptionKey [32]byte) (*Record, error)
	Lookup(ctx context.Context, wallet solana.PublicKey) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Unregister(ctx context.Context, wallet solana.PublicKey) error
}
