package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"smsgate/internal/storage"
	logx "smsgate/pkg/logx"
)

const keyPrefix = "sms:"

// Options controls the suppression window.
type Options struct {
	TTL       time.Duration // default 300s
	PrefixLen int           // stored content prefix length, default 100
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 300 * time.Second
	}
	if o.PrefixLen <= 0 {
		o.PrefixLen = 100
	}
	return o
}

// Deduplicator suppresses repeated (device, content) pairs within a TTL
// window using the shared store.
//
// The check-then-reserve sequence is not atomic: two concurrent identical
// requests can both pass the check and both dispatch. The window is a
// best-effort noise filter, not an exactly-once guarantee.
type Deduplicator struct {
	mu  sync.Mutex
	opt Options

	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, opt Options, log logx.Logger) *Deduplicator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Deduplicator{store: store, opt: opt.withDefaults(), log: log}
}

// Apply swaps options at runtime (config reload).
func (d *Deduplicator) Apply(opt Options) {
	d.mu.Lock()
	d.opt = opt.withDefaults()
	d.mu.Unlock()
}

// Fingerprint computes the dedup digest: device and content together when
// the device is known, content alone otherwise.
func Fingerprint(device, content string) string {
	var sum [32]byte
	if device != "" && device != "unknown" {
		sum = sha256.Sum256([]byte(device + "\n" + content))
	} else {
		sum = sha256.Sum256([]byte(content))
	}
	return hex.EncodeToString(sum[:])
}

// CheckAndReserve reports whether the pair was seen within the TTL window,
// and reserves the fingerprint when it was not.
//
// A store read failure is surfaced to the caller; a failed reservation write
// is logged and swallowed (the message still goes out, it just may repeat).
func (d *Deduplicator) CheckAndReserve(ctx context.Context, device, content string) (duplicate bool, err error) {
	d.mu.Lock()
	opt := d.opt
	d.mu.Unlock()

	key := keyPrefix + Fingerprint(device, content)
	_, ok, err := d.store.GetRecord(ctx, key)
	if err != nil {
		return false, err
	}
	if ok {
		d.log.Debug("duplicate content suppressed", logx.String("key", key[:len(keyPrefix)+8]))
		return true, nil
	}

	prefix := content
	if r := []rune(prefix); len(r) > opt.PrefixLen {
		prefix = string(r[:opt.PrefixLen])
	}
	rec := storage.Record{
		Device:        device,
		CreatedAt:     time.Now().UnixMilli(),
		ContentPrefix: prefix,
	}
	if err := d.store.PutRecord(ctx, key, rec, opt.TTL); err != nil {
		d.log.Warn("dedup reserve failed", logx.Err(err))
	}
	return false, nil
}
