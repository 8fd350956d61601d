package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/mdmestre/enroller/pkg/api"
)

// FileLedger stores the Record as an indented JSON document at a fixed path:
//
//	{
//	  "added": ["5511999990000"],
//	  "linked": []
//	}
//
// Every Save rewrites the whole file through a temporary file in the same
// directory followed by a rename, so a crash leaves either the previous or the
// new document on disk. Unknown fields are ignored on Load.
//
// The ledger holds an advisory lock on "<path>.lock" until Close, which keeps
// a second process from writing the same file.
type FileLedger struct {
	path string
	lock *flock.Flock
}

// NewFileLedger locks and opens the ledger at path. The file itself is created
// on the first Save.
func NewFileLedger(path string) (*FileLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLedgerLocked, path)
	}

	return &FileLedger{path: path, lock: lock}, nil
}

// Path returns the location of the ledger file.
func (l *FileLedger) Path() string {
	return l.path
}

// Close releases the ledger lock.
func (l *FileLedger) Close() error {
	return l.lock.Unlock()
}

func (l *FileLedger) Load(ctx context.Context) (*api.Record, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return api.NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, l.path, err)
	}
	return fromWire(w), nil
}

func (l *FileLedger) Save(ctx context.Context, rec *api.Record) error {
	data, err := json.MarshalIndent(toWire(rec), "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
