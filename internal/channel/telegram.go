package channel

import (
	"context"
	"html"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "smsgate/pkg/logx"
)

// Telegram posts to a chat through a bot token. It rides on telebot rather
// than a raw webhook because the Bot API needs token auth and entity
// escaping that telebot already handles.
type Telegram struct {
	chatID int64
	bot    *tele.Bot
	log    logx.Logger
}

// NewTelegram builds the channel. An empty token or zero chat ID yields an
// unconfigured channel, not an error: unconfigured is a normal state.
func NewTelegram(token string, chatID int64, log logx.Logger) (*Telegram, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 {
		return &Telegram{log: log}, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Offline: true, // no getMe at startup; first send surfaces a bad token
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{chatID: chatID, bot: b, log: log}, nil
}

func (t *Telegram) Name() string     { return "telegram" }
func (t *Telegram) Configured() bool { return t.bot != nil && t.chatID != 0 }

func (t *Telegram) Send(ctx context.Context, msg Message) Result {
	if !t.Configured() {
		return notConfigured(t.Name())
	}
	if err := ctx.Err(); err != nil {
		return failed(t.Name(), err)
	}

	_, err := t.bot.Send(
		&tele.Chat{ID: t.chatID},
		buildTelegramHTML(msg),
		&tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true},
	)
	if err != nil {
		return failed(t.Name(), err)
	}
	return Result{Name: t.Name(), Success: true}
}

func buildTelegramHTML(msg Message) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(msg.Title))
	b.WriteString("</b>\n")
	if msg.Code != "" {
		b.WriteString("🔐 <code>")
		b.WriteString(html.EscapeString(msg.Code))
		b.WriteString("</code>\n")
	}
	b.WriteString(html.EscapeString(msg.Content))
	if msg.Device != "" && msg.Device != "unknown" {
		b.WriteString("\n📱 ")
		b.WriteString(html.EscapeString(msg.Device))
	}
	b.WriteString("\n🕐 ")
	b.WriteString(localTimestamp(msg.SentAt))
	return b.String()
}
