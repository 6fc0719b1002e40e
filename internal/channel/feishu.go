package channel

import (
	"context"
	"fmt"
	"strings"
)

// Feishu posts an interactive card to a Feishu group webhook bot.
type Feishu struct {
	webhook string
	sender  *Sender
}

func NewFeishu(webhook string, sender *Sender) *Feishu {
	return &Feishu{webhook: strings.TrimSpace(webhook), sender: sender}
}

func (f *Feishu) Name() string     { return "feishu" }
func (f *Feishu) Configured() bool { return f.webhook != "" }

func (f *Feishu) Send(ctx context.Context, msg Message) Result {
	if !f.Configured() {
		return notConfigured(f.Name())
	}

	status, body, err := f.sender.PostJSON(ctx, f.webhook, buildFeishuCard(msg))
	if err != nil {
		return failed(f.Name(), err)
	}
	reply := decodeReply(body)
	if status >= 200 && status < 300 && reply.Code != nil && *reply.Code == 0 {
		return Result{Name: f.Name(), Success: true}
	}
	return Result{Name: f.Name(), Error: reply.errorText()}
}

// buildFeishuCard renders the interactive-card payload. The header template
// is blue for verification codes, turquoise otherwise.
func buildFeishuCard(msg Message) map[string]any {
	elements := make([]map[string]any, 0, 4)

	if msg.Code != "" {
		elements = append(elements, map[string]any{
			"tag": "div",
			"text": map[string]any{
				"tag":     "lark_md",
				"content": fmt.Sprintf("**🔐 验证码: `%s`**", msg.Code),
			},
		})
		elements = append(elements, map[string]any{"tag": "hr"})
	}

	elements = append(elements, map[string]any{
		"tag": "div",
		"text": map[string]any{
			"tag":     "lark_md",
			"content": "📝 **短信内容**\n" + escapeFeishuMarkdown(msg.Content),
		},
	})

	if msg.Device != "" && msg.Device != "unknown" {
		elements = append(elements, map[string]any{
			"tag": "note",
			"elements": []map[string]any{
				{"tag": "plain_text", "content": "📱 来自: " + msg.Device},
			},
		})
	}

	elements = append(elements, map[string]any{
		"tag": "note",
		"elements": []map[string]any{
			{"tag": "plain_text", "content": "🕐 " + localTimestamp(msg.SentAt)},
		},
	})

	template := "turquoise"
	if msg.Code != "" {
		template = "blue"
	}

	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": msg.Title},
				"template": template,
			},
			"elements": elements,
		},
	}
}

// lark_md needs few escapes.
var feishuEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "`", "\\`")

func escapeFeishuMarkdown(s string) string { return feishuEscaper.Replace(s) }
