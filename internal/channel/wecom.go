package channel

import (
	"context"
	"fmt"
	"strings"
)

// Wecom posts a markdown message to a WeCom (企业微信) group webhook bot.
type Wecom struct {
	webhook string
	sender  *Sender
}

func NewWecom(webhook string, sender *Sender) *Wecom {
	return &Wecom{webhook: strings.TrimSpace(webhook), sender: sender}
}

func (w *Wecom) Name() string     { return "wecom" }
func (w *Wecom) Configured() bool { return w.webhook != "" }

func (w *Wecom) Send(ctx context.Context, msg Message) Result {
	if !w.Configured() {
		return notConfigured(w.Name())
	}

	payload := map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]any{"content": buildWecomMarkdown(msg)},
	}
	status, body, err := w.sender.PostJSON(ctx, w.webhook, payload)
	if err != nil {
		return failed(w.Name(), err)
	}
	reply := decodeReply(body)
	if status >= 200 && status < 300 && reply.ErrCode != nil && *reply.ErrCode == 0 {
		return Result{Name: w.Name(), Success: true}
	}
	return Result{Name: w.Name(), Error: reply.errorText()}
}

func buildWecomMarkdown(msg Message) string {
	var lines []string

	lines = append(lines, "### "+msg.Title)

	// WeCom supports info/comment/warning color markers.
	if msg.Code != "" {
		lines = append(lines, fmt.Sprintf(`> **🔐 验证码: <font color="warning">%s</font>**`, msg.Code), "")
	}

	lines = append(lines,
		"**📝 短信内容**",
		"> "+escapeWecomMarkdown(msg.Content),
		"",
	)

	if msg.Device != "" && msg.Device != "unknown" {
		lines = append(lines, "📱 **来自**: "+msg.Device)
	}

	lines = append(lines, "🕐 **时间**: "+localTimestamp(msg.SentAt))
	return strings.Join(lines, "\n")
}

var wecomEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

func escapeWecomMarkdown(s string) string { return wecomEscaper.Replace(s) }
