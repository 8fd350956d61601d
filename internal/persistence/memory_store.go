package persistence

import (
	"context"
	"sync"

	"github.com/mdmestre/enroller/pkg/api"
)

// InMemoryLedger is a goroutine-safe, non-durable Ledger. Records are copied
// on Load and Save so callers never share state with the store.
type InMemoryLedger struct {
	mu    sync.RWMutex
	rec   *api.Record
	saves int
}

// NewInMemoryLedger creates an empty InMemoryLedger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{rec: api.NewRecord()}
}

func (l *InMemoryLedger) Load(ctx context.Context) (*api.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.rec.Clone(), nil
}

func (l *InMemoryLedger) Save(ctx context.Context, rec *api.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rec = rec.Clone()
	l.saves++
	return nil
}

// Saves returns how many times Save was called.
func (l *InMemoryLedger) Saves() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.saves
}
