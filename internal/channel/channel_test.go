package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	logx "smsgate/pkg/logx"
)

func testSender() *Sender { return NewSender(100, logx.Nop()) }

func testMessage() Message {
	return Message{
		Title:   "📩 短信验证码",
		Content: "Your code is 847291",
		Device:  "iPhone-12",
		Code:    "847291",
		SentAt:  time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFeishuSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
	}))
	defer srv.Close()

	res := NewFeishu(srv.URL, testSender()).Send(context.Background(), testMessage())
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if got["msg_type"] != "interactive" {
		t.Fatalf("msg_type = %v", got["msg_type"])
	}
	card, _ := got["card"].(map[string]any)
	header, _ := card["header"].(map[string]any)
	if header["template"] != "blue" {
		t.Fatalf("code message should use blue header, got %v", header["template"])
	}
}

func TestFeishuProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":19001,"msg":"param invalid"}`))
	}))
	defer srv.Close()

	res := NewFeishu(srv.URL, testSender()).Send(context.Background(), testMessage())
	if res.Success {
		t.Fatal("provider error must not report success")
	}
	if res.Error != "param invalid" {
		t.Fatalf("error = %q, want provider message", res.Error)
	}
}

func TestFeishuNoCodeHeader(t *testing.T) {
	msg := testMessage()
	msg.Code = ""
	card := buildFeishuCard(msg)
	header := card["card"].(map[string]any)["header"].(map[string]any)
	if header["template"] != "turquoise" {
		t.Fatalf("plain message should use turquoise header, got %v", header["template"])
	}
}

func TestWecomSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	res := NewWecom(srv.URL, testSender()).Send(context.Background(), testMessage())
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if got["msgtype"] != "markdown" {
		t.Fatalf("msgtype = %v", got["msgtype"])
	}
	md := got["markdown"].(map[string]any)["content"].(string)
	if !strings.Contains(md, "847291") {
		t.Fatal("markdown missing the code")
	}
	if !strings.Contains(md, "iPhone-12") {
		t.Fatal("markdown missing the device")
	}
}

func TestWecomEscapesAngleBrackets(t *testing.T) {
	msg := testMessage()
	msg.Code = ""
	msg.Content = "click <here>"
	md := buildWecomMarkdown(msg)
	if strings.Contains(md, "<here>") {
		t.Fatal("content angle brackets must be escaped")
	}
	if !strings.Contains(md, "&lt;here&gt;") {
		t.Fatalf("escaped content missing: %s", md)
	}
}

func TestDingtalkSigning(t *testing.T) {
	signed, err := signWebhook("https://oapi.dingtalk.com/robot/send?access_token=abc", "secret123", 1756728000000)
	if err != nil {
		t.Fatalf("signWebhook: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	q := u.Query()
	if q.Get("access_token") != "abc" {
		t.Fatal("original query params must survive signing")
	}
	if q.Get("timestamp") != "1756728000000" {
		t.Fatalf("timestamp = %q", q.Get("timestamp"))
	}
	sign, err := base64.StdEncoding.DecodeString(q.Get("sign"))
	if err != nil || len(sign) != 32 {
		t.Fatalf("sign is not base64 HMAC-SHA256 (%v, %d bytes)", err, len(sign))
	}

	again, _ := signWebhook("https://oapi.dingtalk.com/robot/send?access_token=abc", "secret123", 1756728000000)
	if signed != again {
		t.Fatal("signing must be deterministic for fixed inputs")
	}
}

func TestDingtalkSendSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sign") == "" || r.URL.Query().Get("timestamp") == "" {
			t.Error("signed request missing timestamp/sign params")
		}
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	d := NewDingtalk(srv.URL, "secret123", testSender())
	res := d.Send(context.Background(), testMessage())
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
}

func TestBarkFanOut(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/bad") {
			_, _ = w.Write([]byte(`{"code":400,"message":"device key invalid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"message":"success"}`))
	}))
	defer srv.Close()

	keys := map[string]string{"alice": "k1", "bob": "k2", "carol": "bad"}
	b := NewBark(srv.URL, keys, testSender())

	res := b.Send(context.Background(), testMessage())
	if !res.Success {
		t.Fatalf("send failed: %s", res.Error)
	}
	if res.Delivered != 2 {
		t.Fatalf("delivered = %d, want 2", res.Delivered)
	}
	if !strings.Contains(res.Error, "carol") {
		t.Fatalf("per-key failure missing from error: %q", res.Error)
	}
	if len(paths) != 3 {
		t.Fatalf("posted to %d keys, want 3", len(paths))
	}
}

func TestBarkTargetNarrowing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	b := NewBark(srv.URL, map[string]string{"alice": "k1", "bob": "k2"}, testSender())

	msg := testMessage()
	msg.Targets = []string{"alice", "nobody"}
	res := b.Send(context.Background(), msg)
	if !res.Success || res.Delivered != 1 {
		t.Fatalf("narrowed send = %+v, want 1 delivered", res)
	}

	msg.Targets = []string{"nobody"}
	res = b.Send(context.Background(), msg)
	if res.Success {
		t.Fatal("no matching targets must not succeed")
	}
}

func TestUnconfiguredChannelsShortCircuit(t *testing.T) {
	// No servers running: a network call would fail loudly, so a clean
	// "not configured" result proves the short-circuit.
	tg, err := NewTelegram("", 0, logx.Nop())
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}
	chans := []Channel{
		NewFeishu("", testSender()),
		NewWecom("", testSender()),
		NewDingtalk("", "", testSender()),
		NewBark("", nil, testSender()),
		tg,
	}
	for _, ch := range chans {
		if ch.Configured() {
			t.Errorf("%s: Configured() = true for empty config", ch.Name())
		}
		res := ch.Send(context.Background(), testMessage())
		if res.Success {
			t.Errorf("%s: unconfigured send reported success", ch.Name())
		}
		if res.Error != "not configured" {
			t.Errorf("%s: error = %q, want %q", ch.Name(), res.Error, "not configured")
		}
	}
}

func TestTransportErrorIsResult(t *testing.T) {
	// Closed server: connection refused must fold into the result.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	res := NewFeishu(srv.URL, testSender()).Send(context.Background(), testMessage())
	if res.Success {
		t.Fatal("transport failure reported success")
	}
	if res.Error == "" {
		t.Fatal("transport failure must carry error text")
	}
}
