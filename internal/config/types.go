package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	// RateLimit controls inbound admission per sender key.
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Dedupe controls the content-fingerprint suppression window.
	Dedupe DedupeConfig `json:"dedupe,omitempty"`

	Storage     *StorageConfig    `json:"storage,omitempty"`
	Channels    ChannelsConfig    `json:"channels"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

// ServerConfig controls the inbound HTTP listener.
//
// Token is the shared bearer token every forward request must present.
// Debug suppresses channel delivery globally (per-request ?debug=true does
// the same for one request).
type ServerConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
	Debug bool   `json:"debug,omitempty"`

	// Timeouts are Go duration strings (e.g. "10s", "1m").
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	// MetricsEnabled exposes /metrics (Prometheus) on the same listener.
	MetricsEnabled bool `json:"metrics_enabled,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RateLimitConfig is a fixed-window policy per sender key.
//
// Defaults (when omitted/zero): window "1m", max_requests 10.
type RateLimitConfig struct {
	Window      string `json:"window,omitempty"` // Go duration string
	MaxRequests int    `json:"max_requests,omitempty"`
}

// DedupeConfig controls duplicate suppression.
//
// Defaults: ttl "300s", prefix_len 100.
type DedupeConfig struct {
	TTL       string `json:"ttl,omitempty"` // Go duration string
	PrefixLen int    `json:"prefix_len,omitempty"`
}

// StorageConfig controls the shared key-value layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./smsgate.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ChannelsConfig holds per-provider credentials. A channel with an empty
// webhook/token is treated as not configured and short-circuits at dispatch.
type ChannelsConfig struct {
	Feishu   FeishuConfig   `json:"feishu,omitempty"`
	Wecom    WecomConfig    `json:"wecom,omitempty"`
	Dingtalk DingtalkConfig `json:"dingtalk,omitempty"`
	Bark     BarkConfig     `json:"bark,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`

	// SendRatePerSec paces outbound webhook posts across all channels.
	// 0 means a conservative default.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

type FeishuConfig struct {
	Webhook string `json:"webhook,omitempty"`
}

type WecomConfig struct {
	Webhook string `json:"webhook,omitempty"`
}

type DingtalkConfig struct {
	Webhook string `json:"webhook,omitempty"`
	Secret  string `json:"secret,omitempty"` // enables request signing
}

// BarkConfig fans one message out to many named device keys.
type BarkConfig struct {
	Server string            `json:"server,omitempty"` // default https://api.day.app
	Keys   map[string]string `json:"keys,omitempty"`   // name -> device key
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// MaintenanceConfig controls background pruning of expired store rows.
//
// Schedule accepts robfig/cron expressions including "@every 5m" forms.
type MaintenanceConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"` // default "@every 5m"
}
