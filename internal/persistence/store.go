package persistence

import (
	"errors"

	"github.com/mdmestre/enroller/pkg/api"
)

var (
	// ErrLedgerLocked is returned when another process holds the ledger.
	ErrLedgerLocked = errors.New("ledger is locked by another process")

	// ErrCorruptLedger is returned when the stored ledger cannot be decoded.
	ErrCorruptLedger = errors.New("ledger is corrupt")
)

// Ensure every backend implements api.Ledger.
var (
	_ api.Ledger = (*InMemoryLedger)(nil)
	_ api.Ledger = (*FileLedger)(nil)
	_ api.Ledger = (*SQLiteLedger)(nil)
	_ api.Ledger = (*PostgresLedger)(nil)
	_ api.Ledger = (*RedisLedger)(nil)
	_ api.Ledger = (*MongoLedger)(nil)
)

// wireRecord is the on-disk shape of a Record. Lists are never encoded as null.
type wireRecord struct {
	Added  []string `json:"added"`
	Linked []string `json:"linked"`
}

func toWire(rec *api.Record) wireRecord {
	w := wireRecord{Added: rec.Added, Linked: rec.Linked}
	if w.Added == nil {
		w.Added = []string{}
	}
	if w.Linked == nil {
		w.Linked = []string{}
	}
	return w
}

func fromWire(w wireRecord) *api.Record {
	rec := api.NewRecord()
	for _, id := range w.Added {
		rec.MarkAdded(id)
	}
	for _, id := range w.Linked {
		rec.MarkLinked(id)
	}
	return rec
}
