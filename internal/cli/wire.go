// Package cli implements the enroller commands.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/mdmestre/enroller/internal/config"
	"github.com/mdmestre/enroller/internal/contacts"
	"github.com/mdmestre/enroller/internal/persistence"
	"github.com/mdmestre/enroller/pkg/api"
)

// mongoDatabase holds the ledgers collection of the mongo backend.
const mongoDatabase = "enroller"

// loadConfig reads and validates the environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openLedger opens the configured ledger backend. The returned func releases
// it.
func openLedger(ctx context.Context, cfg config.Config) (api.Ledger, func() error, error) {
	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		db, err := sql.Open("sqlite", cfg.LedgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		db.SetMaxOpenConns(1)
		l, err := persistence.NewSQLiteLedger(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return l, db.Close, nil

	case config.LedgerPostgres:
		db, err := sql.Open("pgx", cfg.LedgerDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("connect postgres ledger: %w", err)
		}
		l, err := persistence.NewPostgresLedger(db, cfg.LedgerName)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return l, db.Close, nil

	case config.LedgerRedis:
		opts, err := redis.ParseURL(cfg.LedgerDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis ledger url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis ledger: %w", err)
		}
		return persistence.NewRedisLedger(client, "", cfg.LedgerName), client.Close, nil

	case config.LedgerMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.LedgerDSN))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo ledger: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, nil, fmt.Errorf("ping mongo ledger: %w", err)
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		return persistence.NewMongoLedger(client, mongoDatabase, cfg.LedgerName), closeFn, nil

	default:
		l, err := persistence.NewFileLedger(cfg.LedgerPath)
		if err != nil {
			return nil, nil, err
		}
		return l, l.Close, nil
	}
}

func newSource(cfg config.Config, logger *slog.Logger) *contacts.FileSource {
	return &contacts.FileSource{
		Path:       cfg.ContactsPath,
		OptOutPath: cfg.OptOutPath,
		Normalizer: cfg.Normalizer(),
		Logger:     logger,
	}
}
