package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Dingtalk posts an ActionCard to a DingTalk group webhook bot. When a
// secret is configured, each request URL is signed (HMAC-SHA256 over
// "<timestamp>\n<secret>", base64, passed as query params).
type Dingtalk struct {
	webhook string
	secret  string
	sender  *Sender

	// now is swappable for signing tests.
	now func() time.Time
}

func NewDingtalk(webhook, secret string, sender *Sender) *Dingtalk {
	return &Dingtalk{
		webhook: strings.TrimSpace(webhook),
		secret:  strings.TrimSpace(secret),
		sender:  sender,
		now:     time.Now,
	}
}

func (d *Dingtalk) Name() string     { return "dingtalk" }
func (d *Dingtalk) Configured() bool { return d.webhook != "" }

func (d *Dingtalk) Send(ctx context.Context, msg Message) Result {
	if !d.Configured() {
		return notConfigured(d.Name())
	}

	target := d.webhook
	if d.secret != "" {
		signed, err := signWebhook(d.webhook, d.secret, d.now().UnixMilli())
		if err != nil {
			return failed(d.Name(), err)
		}
		target = signed
	}

	payload := map[string]any{
		"msgtype": "actionCard",
		"actionCard": map[string]any{
			"title":          msg.Title,
			"text":           buildDingtalkMarkdown(msg),
			"hideAvatar":     "0",
			"btnOrientation": "0",
			"singleTitle":    "查看详情",
			"singleURL":      "dingtalk://dingtalkclient/action/openapp",
		},
	}
	status, body, err := d.sender.PostJSON(ctx, target, payload)
	if err != nil {
		return failed(d.Name(), err)
	}
	reply := decodeReply(body)
	if status >= 200 && status < 300 && reply.ErrCode != nil && *reply.ErrCode == 0 {
		return Result{Name: d.Name(), Success: true}
	}
	return Result{Name: d.Name(), Error: reply.errorText()}
}

// signWebhook appends timestamp and sign query params per the DingTalk
// custom-robot security scheme.
func signWebhook(webhook, secret string, ts int64) (string, error) {
	u, err := url.Parse(webhook)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d\n%s", ts, secret)
	sign := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", sign)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func buildDingtalkMarkdown(msg Message) string {
	var lines []string

	lines = append(lines, "### "+msg.Title, "")

	if msg.Code != "" {
		lines = append(lines, fmt.Sprintf("> **🔐 验证码: `%s`**", msg.Code), "", "---", "")
	}

	lines = append(lines,
		"**📝 短信内容**",
		"",
		"> "+escapeDingtalkMarkdown(msg.Content),
		"",
	)

	if msg.Device != "" && msg.Device != "unknown" {
		lines = append(lines, "📱 **来自**: "+msg.Device, "")
	}

	lines = append(lines, "🕐 **时间**: "+localTimestamp(msg.SentAt))
	return strings.Join(lines, "\n")
}

var dingtalkEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`)

func escapeDingtalkMarkdown(s string) string { return dingtalkEscaper.Replace(s) }
