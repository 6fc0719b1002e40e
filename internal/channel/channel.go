package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	logx "smsgate/pkg/logx"
)

const userAgent = "smsgate/1.0"

// Message is one notification to deliver. Device is "unknown" when the
// sender could not be attributed; channels omit the sender line in that case.
type Message struct {
	Title   string
	Content string
	Device  string
	Code    string
	SentAt  time.Time

	// Targets narrows delivery for channels that fan out to named endpoints
	// (bark). Nil means all configured targets.
	Targets []string
}

// Result is one channel's delivery outcome. Channels never panic or return
// errors past this boundary; failures are folded into Error.
type Result struct {
	Name      string
	Success   bool
	Error     string
	Delivered int
}

// Channel is one external push-notification provider integration.
type Channel interface {
	Name() string
	// Configured reports whether credentials are present. An unconfigured
	// channel short-circuits at Send without a network call.
	Configured() bool
	Send(ctx context.Context, msg Message) Result
}

func notConfigured(name string) Result {
	return Result{Name: name, Error: "not configured"}
}

func failed(name string, err error) Result {
	return Result{Name: name, Error: err.Error()}
}

// Sender is the shared outbound HTTP client. Posts are paced by a token
// bucket so a burst of inbound SMS doesn't hammer the providers.
type Sender struct {
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewSender(ratePerSec int, log logx.Logger) *Sender {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// PostJSON posts payload to url and returns the status and raw body.
// Non-2xx statuses are returned, not treated as errors; providers put their
// real verdict in the body.
func (s *Sender) PostJSON(ctx context.Context, url string, payload any) (int, []byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// decodeReply best-effort decodes a provider response body. Providers are
// inconsistent about the error field name, so all common spellings are kept.
type providerReply struct {
	Code    *int   `json:"code,omitempty"`
	ErrCode *int   `json:"errcode,omitempty"`
	Msg     string `json:"msg,omitempty"`
	ErrMsg  string `json:"errmsg,omitempty"`
	Message string `json:"message,omitempty"`
}

func decodeReply(body []byte) providerReply {
	var r providerReply
	_ = json.Unmarshal(body, &r)
	return r
}

func (r providerReply) errorText() string {
	switch {
	case r.ErrMsg != "":
		return r.ErrMsg
	case r.Msg != "":
		return r.Msg
	case r.Message != "":
		return r.Message
	default:
		return "Unknown error"
	}
}

func localTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
