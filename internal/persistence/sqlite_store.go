package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mdmestre/enroller/pkg/api"
)

const (
	pathAdded  = "added"
	pathLinked = "linked"
)

// SQLiteLedger is a Ledger backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// Save replaces the stored record inside a single transaction.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger initializes the required schema in the given
// database and returns a new SQLiteLedger.
func NewSQLiteLedger(db *sql.DB) (*SQLiteLedger, error) {
	l := &SQLiteLedger{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			path TEXT NOT NULL,
			position INTEGER NOT NULL,
			contact TEXT NOT NULL,
			PRIMARY KEY (path, contact)
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_order ON ledger_entries(path, position);
	`)
	return err
}

func (l *SQLiteLedger) Load(ctx context.Context) (*api.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT path, contact
		FROM ledger_entries
		ORDER BY path, position`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var w wireRecord
	for rows.Next() {
		var path, contact string
		if err := rows.Scan(&path, &contact); err != nil {
			return nil, err
		}
		switch path {
		case pathAdded:
			w.Added = append(w.Added, contact)
		case pathLinked:
			w.Linked = append(w.Linked, contact)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fromWire(w), nil
}

func (l *SQLiteLedger) Save(ctx context.Context, rec *api.Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (path, position, contact)
		VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for path, ids := range map[string][]string{pathAdded: rec.Added, pathLinked: rec.Linked} {
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, path, i, id); err != nil {
				return fmt.Errorf("insert ledger entry: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Counts returns the sizes of the added and linked sets without decoding
// the whole record.
func (l *SQLiteLedger) Counts(ctx context.Context) (added, linked int, err error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN path = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN path = ? THEN 1 ELSE 0 END), 0)
		FROM ledger_entries`, pathAdded, pathLinked)
	if err := row.Scan(&added, &linked); err != nil {
		return 0, 0, err
	}
	return added, linked, nil
}
