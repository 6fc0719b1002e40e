package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"smsgate/internal/storage"
	logx "smsgate/pkg/logx"
)

// Policy is a fixed-window admission policy: at most MaxRequests per Window
// per sender key.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

func (p Policy) withDefaults() Policy {
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.MaxRequests <= 0 {
		p.MaxRequests = 10
	}
	return p
}

// Verdict is the admission decision. Error is a caller-facing message set
// only when Allowed is false.
type Verdict struct {
	Allowed bool
	Error   string
}

// Limiter counts requests per key in the shared store.
//
// A store failure fails OPEN: admission control is a throttle, not a
// security boundary, and dropping legitimate SMS because the counter store
// hiccuped is the worse trade.
type Limiter struct {
	mu     sync.Mutex
	policy Policy

	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, policy Policy, log logx.Logger) *Limiter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Limiter{store: store, policy: policy.withDefaults(), log: log}
}

// Apply swaps the policy at runtime (config reload).
func (l *Limiter) Apply(policy Policy) {
	l.mu.Lock()
	l.policy = policy.withDefaults()
	l.mu.Unlock()
}

// Check counts the call toward the key's window and decides admission.
func (l *Limiter) Check(ctx context.Context, key string) Verdict {
	l.mu.Lock()
	p := l.policy
	l.mu.Unlock()

	count, err := l.store.IncrWindow(ctx, "rate:"+key, p.Window)
	if err != nil {
		l.log.Warn("rate-limit store unavailable; failing open", logx.String("key", key), logx.Err(err))
		return Verdict{Allowed: true}
	}
	if count > int64(p.MaxRequests) {
		return Verdict{
			Error: fmt.Sprintf("Rate limit exceeded: max %d requests per %s", p.MaxRequests, p.Window),
		}
	}
	return Verdict{Allowed: true}
}

// Key derives the admission key: a known device identity wins, then the
// client IP, then a shared bucket for everything unattributable.
func Key(device, clientIP string) string {
	device = strings.TrimSpace(device)
	if device != "" && device != "unknown" {
		return "device:" + device
	}
	if clientIP != "" {
		return "ip:" + clientIP
	}
	return "unknown"
}

// ClientIP picks the first address from CF-Connecting-IP / X-Forwarded-For
// style header values (comma-separated, first token wins).
func ClientIP(values ...string) string {
	for _, v := range values {
		first, _, _ := strings.Cut(v, ",")
		first = strings.TrimSpace(first)
		if first != "" {
			return first
		}
	}
	return ""
}
