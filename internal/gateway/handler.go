package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"smsgate/internal/channel"
	"smsgate/internal/dedupe"
	"smsgate/internal/dispatch"
	"smsgate/internal/ratelimit"
	"smsgate/internal/validate"
	logx "smsgate/pkg/logx"
)

const (
	titleCode    = "📩 短信验证码"
	titleGeneric = "📩 新短信"
)

// Pipeline is the forward-request handler: auth, shape checks, freshness,
// rate limit, dedup, then concurrent dispatch. Stages run strictly in that
// order; a rejected request produces no side effects from later stages.
type Pipeline struct {
	mu    sync.Mutex
	token string
	debug bool

	limiter *ratelimit.Limiter
	dedup   *dedupe.Deduplicator
	coord   *dispatch.Coordinator
	metrics *Metrics
	log     logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewPipeline(token string, debug bool, limiter *ratelimit.Limiter, dedup *dedupe.Deduplicator, coord *dispatch.Coordinator, metrics *Metrics, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		token:   strings.TrimSpace(token),
		debug:   debug,
		limiter: limiter,
		dedup:   dedup,
		coord:   coord,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Apply updates the reloadable knobs (config reload).
func (p *Pipeline) Apply(token string, debug bool) {
	p.mu.Lock()
	p.token = strings.TrimSpace(token)
	p.debug = debug
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() (token string, debug bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, p.debug
}

func (p *Pipeline) handleForward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token, cfgDebug := p.snapshot()

	// Auth first: a bad token touches nothing else.
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if token == "" || auth != "Bearer "+token {
		p.log.Debug("auth failed")
		p.metrics.Request("auth_failed")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.metrics.Request("bad_request")
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	// Coerce before the emptiness check: `content: 0` is "0", not missing.
	content := strings.TrimSpace(coerceString(req.Content))
	if content == "" {
		p.metrics.Request("bad_request")
		writeError(w, http.StatusBadRequest, "Missing or invalid content field")
		return
	}
	if runeLen(content) > maxContentRunes {
		p.metrics.Request("bad_request")
		writeError(w, http.StatusBadRequest, "Content too long")
		return
	}

	device := deviceID(req.Device)
	p.log.Info("forward request received",
		logx.String("device", device),
		logx.Int("content_len", runeLen(content)),
		logx.Bool("has_code", len(req.Code) > 0),
	)

	if ts := validate.Timestamp(req.Timestamp, p.now()); !ts.Valid {
		p.metrics.Request("bad_request")
		writeError(w, http.StatusBadRequest, ts.Error)
		return
	}

	clientIP := ratelimit.ClientIP(r.Header.Get("CF-Connecting-IP"), r.Header.Get("X-Forwarded-For"))
	rateKey := ratelimit.Key(device, clientIP)
	if v := p.limiter.Check(r.Context(), rateKey); !v.Allowed {
		p.log.Warn("rate limited", logx.String("key", rateKey))
		p.metrics.Request("rate_limited")
		writeError(w, http.StatusTooManyRequests, v.Error)
		return
	}

	code := strings.TrimSpace(coerceString(req.Code))
	if code == "" {
		code = validate.ExtractCode(content)
	}

	duplicate, err := p.dedup.CheckAndReserve(r.Context(), device, content)
	if err != nil {
		// Fail open, same as the rate limiter: a store outage should not
		// stop delivery, it only costs duplicate suppression.
		p.log.Warn("dedup store unavailable; continuing", logx.Err(err))
	}
	if duplicate {
		p.metrics.Request("duplicate")
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "skipped",
			"reason":  "duplicate",
			"code":    code,
		})
		return
	}

	// Debug mode suppresses delivery only; the dedup record above stands.
	if cfgDebug || debugRequested(r) {
		p.log.Info("debug mode: skipping all pushes")
		p.metrics.Request("debug")
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "debug",
			"code":    code,
			"note":    "All pushes skipped in debug mode",
		})
		return
	}

	title := titleGeneric
	if code != "" {
		title = titleCode
	}
	msg := channel.Message{
		Title:   title,
		Content: content,
		Device:  device,
		Code:    code,
		SentAt:  p.now(),
		Targets: targetNames(req.Target),
	}

	start := p.now()
	outcome := p.coord.Dispatch(r.Context(), msg)
	p.metrics.DispatchSeconds(time.Since(start).Seconds())
	for name, res := range outcome.Results {
		p.metrics.ChannelSend(name, res.Success)
	}

	if !outcome.AnySuccess {
		p.log.Error("all push channels failed")
		p.metrics.Request("push_failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"message": "Push failed",
			"errors":  outcome.Errors(),
		})
		return
	}

	channels := make(map[string]channelStatus, len(outcome.Results))
	for name, res := range outcome.Results {
		channels[name] = channelStatus{Success: res.Success, Error: res.Error, Delivered: res.Delivered}
	}
	p.log.Info("sms forwarded",
		logx.String("device", device),
		logx.Bool("has_code", code != ""),
	)
	p.metrics.Request("forwarded")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "forwarded",
		"code":     code,
		"channels": channels,
	})
}
