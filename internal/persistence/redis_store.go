package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mdmestre/enroller/pkg/api"
)

// RedisLedger is a Ledger backed by Redis. The record is stored as one JSON
// value under <prefix>ledger:<name>, so every Save replaces it atomically.
type RedisLedger struct {
	client *redis.Client
	key    string
}

// NewRedisLedger returns a RedisLedger for the campaign called name.
// prefix is optional (default "enroller:").
func NewRedisLedger(client *redis.Client, prefix, name string) *RedisLedger {
	if prefix == "" {
		prefix = "enroller:"
	}
	if name == "" {
		name = "default"
	}
	return &RedisLedger{client: client, key: prefix + "ledger:" + name}
}

func (l *RedisLedger) Load(ctx context.Context) (*api.Record, error) {
	data, err := l.client.Get(ctx, l.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return api.NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}

	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptLedger, l.key, err)
	}
	return fromWire(w), nil
}

func (l *RedisLedger) Save(ctx context.Context, rec *api.Record) error {
	data, err := json.Marshal(toWire(rec))
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := l.client.Set(ctx, l.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set ledger: %w", err)
	}
	return nil
}
