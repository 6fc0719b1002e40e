package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleYAML = `
server:
  addr: "127.0.0.1:8788"
  token: "secret-token"
  metrics_enabled: true
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
rate_limit:
  window: "1m"
  max_requests: 10
dedupe:
  ttl: "300s"
  prefix_len: 100
storage:
  driver: memory
channels:
  feishu:
    webhook: "https://open.feishu.cn/open-apis/bot/v2/hook/xxx"
  dingtalk:
    webhook: "https://oapi.dingtalk.com/robot/send?access_token=yyy"
    secret: "SEC000"
  bark:
    keys:
      alice: "barkkey1"
  send_rate_per_sec: 5
maintenance:
  enabled: true
  schedule: "@every 10m"
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", sampleYAML)
	m := NewManager(path)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Token != "secret-token" {
		t.Fatalf("token = %q", cfg.Server.Token)
	}
	if !cfg.Server.MetricsEnabled {
		t.Fatal("metrics_enabled lost")
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.Window != "1m" {
		t.Fatalf("rate_limit = %+v", cfg.RateLimit)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "memory" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Channels.Dingtalk.Secret != "SEC000" {
		t.Fatalf("dingtalk = %+v", cfg.Channels.Dingtalk)
	}
	if cfg.Channels.Bark.Keys["alice"] != "barkkey1" {
		t.Fatalf("bark keys = %v", cfg.Channels.Bark.Keys)
	}
	if cfg.Maintenance.Schedule != "@every 10m" {
		t.Fatalf("maintenance = %+v", cfg.Maintenance)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json",
		`{"server":{"addr":"127.0.0.1:0","token":"t"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},"rate_limit":{},"channels":{}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Token != "t" {
		t.Fatalf("token = %q", cfg.Server.Token)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
server:
  addr: "127.0.0.1:0"
  token: "t"
  tkoen_typo: "oops"
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
rate_limit: {}
channels: {}
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "banana"); err == nil {
		t.Fatal("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 5*time.Minute); err != nil || d != 5*time.Minute {
		t.Fatalf("default: got %v %v", d, err)
	}
}

func TestSubscribePublish(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)

	first := &Config{}
	m.publish(first)
	select {
	case got := <-ch:
		if got != first {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("nothing delivered")
	}

	// Slow subscriber: the oldest queued config is dropped for the newest.
	stale := &Config{}
	newest := &Config{}
	m.publish(stale)
	m.publish(newest)
	select {
	case got := <-ch:
		if got != newest {
			t.Fatal("slow subscriber got a stale config")
		}
	default:
		t.Fatal("nothing delivered after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel open after Unsubscribe")
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", sampleYAML)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to install before touching the file.
	time.Sleep(300 * time.Millisecond)
	updated := strings.ReplaceAll(sampleYAML, "secret-token", "rotated-token")
	writeConfig(t, dir, "config.yaml", updated)

	select {
	case cfg := <-sub:
		if cfg.Server.Token != "rotated-token" {
			t.Fatalf("published token = %q", cfg.Server.Token)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after file change")
	}

	cancel()
	<-done
}
