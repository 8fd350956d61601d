package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mdmestre/enroller/pkg/api"
)

// PostgresLedger is a Ledger backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver, e.g.
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//
// Several campaigns can share one database; each is identified by name.
type PostgresLedger struct {
	db   *sql.DB
	name string
}

// NewPostgresLedger initializes the required schema in the given database
// and returns a PostgresLedger for the campaign called name.
func NewPostgresLedger(db *sql.DB, name string) (*PostgresLedger, error) {
	if name == "" {
		name = "default"
	}
	l := &PostgresLedger{db: db, name: name}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PostgresLedger) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			ledger TEXT NOT NULL,
			path TEXT NOT NULL,
			position INTEGER NOT NULL,
			contact TEXT NOT NULL,
			PRIMARY KEY (ledger, path, contact)
		);
	`)
	return err
}

func (l *PostgresLedger) Load(ctx context.Context) (*api.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT path, contact
		FROM ledger_entries
		WHERE ledger = $1
		ORDER BY path, position`, l.name)
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

func (l *PostgresLedger) Save(ctx context.Context, rec *api.Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serializes writers of the same campaign until commit.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, l.name); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE ledger = $1`, l.name); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (ledger, path, position, contact)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for path, ids := range map[string][]string{pathAdded: rec.Added, pathLinked: rec.Linked} {
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, l.name, path, i, id); err != nil {
				return fmt.Errorf("insert ledger entry: %w", err)
			}
		}
	}

	return tx.Commit()
}
