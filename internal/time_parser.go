// internal/time_parser.go
// ------------------------
// Helpers for turning the durations and offsets found in rate-limit headers into
// milliseconds.
//
// Functions:
// - ParseTimeStr: "30", "30s", "6m0s" -> milliseconds.
// - ResetAtMs: an offset in seconds from now -> absolute unix milliseconds.
// - IsInFuture: check if a unix-ms timestamp is in the future.
package internal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeStr converts "30" (bare seconds), "1s" or "6m0s" into ms. Unparseable
// input yields 0 and false.
func ParseTimeStr(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sec * 1000, true
	}

	if strings.HasSuffix(s, "s") && !strings.Contains(s, "m") {
		sec, err := strconv.ParseInt(strings.TrimSuffix(s, "s"), 10, 64)
		if err == nil {
			return sec * 1000, true
		}
	}

	var minutes, seconds int64
	n, err := fmt.Sscanf(s, "%dm%ds", &minutes, &seconds)
	if n == 2 && err == nil {
		return minutes*60_000 + seconds*1_000, true
	}

	return 0, false
}

// ResetAtMs converts an offset in seconds relative to now into unix ms.
func ResetAtMs(offsetSecs int64, now time.Time) int64 {
	return now.UnixMilli() + offsetSecs*1000
}

// IsInFuture checks if a timestamp (in ms) is in the future relative to the current time.
func IsInFuture(ms int64) bool {
	return ms > time.Now().UnixMilli()
}
