package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "smsgate/pkg/logx"
)

// Store is the minimal persistence API used by the pipeline.
//
// Expiry is enforced by the store: an expired record behaves as absent even
// before the next prune pass removes it.
type Store interface {
	// GetRecord looks up a dedup record. ok=false if absent or expired.
	GetRecord(ctx context.Context, key string) (rec Record, ok bool, err error)
	// PutRecord writes a dedup record with the given TTL, replacing any
	// previous value under the same key.
	PutRecord(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// IncrWindow bumps the fixed-window counter for key and returns the new
	// count. A window that started more than `window` ago is reset to 1.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	// PruneExpired removes expired dedup records and stale window counters.
	PruneExpired(ctx context.Context) (removed int64, err error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return newMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
