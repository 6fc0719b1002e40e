package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map (single instance only; state lost on restart)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty, "memory" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the value stored under a dedup fingerprint key.
// Keep it compact and schema-stable.
type Record struct {
	Device        string `json:"device"`
	CreatedAt     int64  `json:"created_at"` // unix milli
	ContentPrefix string `json:"content,omitempty"`
}
