package validate

import (
	"fmt"
	"time"
)

// Freshness window for inbound event timestamps. Messages forwarded from a
// phone can lag a little; anything older than MaxPast is assumed to be a
// replay or a stuck client, and a future timestamp beyond clock skew is
// rejected outright.
const (
	MaxPast   = 5 * time.Minute
	MaxFuture = 1 * time.Minute
)

// TimestampResult is the freshness verdict. Error is a caller-facing message
// and is surfaced verbatim in the HTTP response.
type TimestampResult struct {
	Valid bool
	Error string
}

// Timestamp checks that ms (unix milliseconds) falls within the freshness
// window around now.
func Timestamp(ms int64, now time.Time) TimestampResult {
	if ms <= 0 {
		return TimestampResult{Error: "Missing or invalid timestamp"}
	}
	t := time.UnixMilli(ms)
	if age := now.Sub(t); age > MaxPast {
		return TimestampResult{Error: fmt.Sprintf("Timestamp too old (max %s)", MaxPast)}
	}
	if ahead := t.Sub(now); ahead > MaxFuture {
		return TimestampResult{Error: fmt.Sprintf("Timestamp too far in the future (max %s)", MaxFuture)}
	}
	return TimestampResult{Valid: true}
}
