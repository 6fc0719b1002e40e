package channel

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const defaultBarkServer = "https://api.day.app"

// Bark pushes to iOS devices via bark-server, one POST per configured device
// key. Unlike the single-webhook channels it reports how many of the
// requested targets were actually delivered.
type Bark struct {
	server string
	keys   map[string]string // name -> device key
	sender *Sender
}

func NewBark(server string, keys map[string]string, sender *Sender) *Bark {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		server = defaultBarkServer
	}
	return &Bark{server: server, keys: keys, sender: sender}
}

func (b *Bark) Name() string     { return "bark" }
func (b *Bark) Configured() bool { return len(b.keys) > 0 }

func (b *Bark) Send(ctx context.Context, msg Message) Result {
	if !b.Configured() {
		return notConfigured(b.Name())
	}

	selected := b.selectKeys(msg.Targets)
	if len(selected) == 0 {
		return Result{Name: b.Name(), Error: "no matching bark targets"}
	}

	payload := map[string]any{
		"title": msg.Title,
		"body":  buildBarkBody(msg),
		"group": "sms",
	}

	var (
		delivered int
		errs      []string
	)
	for _, name := range selected {
		key := b.keys[name]
		status, body, err := b.sender.PostJSON(ctx, b.server+"/"+key, payload)
		if err != nil {
			errs = append(errs, name+": "+err.Error())
			continue
		}
		reply := decodeReply(body)
		// bark-server puts 200 in the body code on success.
		if status >= 200 && status < 300 && reply.Code != nil && *reply.Code == 200 {
			delivered++
			continue
		}
		errs = append(errs, name+": "+reply.errorText())
	}

	res := Result{Name: b.Name(), Success: delivered > 0, Delivered: delivered}
	if len(errs) > 0 {
		res.Error = strings.Join(errs, "; ")
	}
	return res
}

// selectKeys resolves the requested target names against configured keys.
// nil means every configured target; unknown names are skipped.
func (b *Bark) selectKeys(targets []string) []string {
	var names []string
	if targets == nil {
		for name := range b.keys {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := b.keys[t]; ok {
			names = append(names, t)
		}
	}
	return names
}

func buildBarkBody(msg Message) string {
	var lines []string
	if msg.Code != "" {
		lines = append(lines, fmt.Sprintf("验证码: %s", msg.Code))
	}
	lines = append(lines, msg.Content)
	if msg.Device != "" && msg.Device != "unknown" {
		lines = append(lines, "来自: "+msg.Device)
	}
	return strings.Join(lines, "\n")
}
