package registry

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// MemRegistry is the in-process Registry used by tests and single-node runs.
type MemRegistry struct {
	mu      sync.RWMutex
	records map[solana.PublicKey]*Record
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{records: make(map[solana.PublicKey]*Record)}
}

func (r *MemRegistry) Register(_ context.Context, wallet solana.PublicKey, encryptionKey [32]byte) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &Record{Wallet: wallet, EncryptionKey: encryptionKey, UpdatedAt: time.Now().UTC()}
	r.records[wallet] = rec
	out := *rec
	return &out, nil
}

func (r *MemRegistry) Lookup(_ context.Context, wallet solana.PublicKey) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[wallet]
	if !ok {
		return nil, ErrNotRegistered
	}
	out := *rec
	return &out, nil
}

func (r *MemRegistry) List(_ context.Context) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

func (r *MemRegistry) Unregister(_ context.Context, wallet solana.PublicKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, wallet)
	return nil
}
