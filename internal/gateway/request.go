package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

const maxContentRunes = 1000

// forwardRequest is the inbound body. Content and Code are raw so that
// heterogeneous callers (iOS shortcuts, curl, webhooks) can send numbers or
// booleans where a string belongs; both are coerced, never rejected for type.
type forwardRequest struct {
	Device    string          `json:"device,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Code      json.RawMessage `json:"code,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Target    []*string       `json:"target,omitempty"`
}

// coerceString renders any scalar JSON value as a string. Strings are
// unquoted, null becomes empty, and everything else keeps its JSON text.
// The coercion happens before the emptiness check so that `content: 0`
// is "0", not a missing field.
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return s
}

// deviceID normalizes the device field: trimmed, "unknown" when absent.
func deviceID(device string) string {
	if d := strings.TrimSpace(device); d != "" {
		return d
	}
	return "unknown"
}

// targetNames flattens the target list, dropping nulls and blanks. A nil
// return means "no narrowing requested" and is distinct from an empty list.
func targetNames(targets []*string) []string {
	if targets == nil {
		return nil
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == nil {
			continue
		}
		if v := strings.TrimSpace(*t); v != "" {
			names = append(names, v)
		}
	}
	return names
}

// channelStatus is one channel's entry in the response body.
type channelStatus struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Delivered int    `json:"delivered,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// debugRequested reports whether the per-request debug flag is set.
func debugRequested(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("debug"))
	return err == nil && v
}
