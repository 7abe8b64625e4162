// rate_limiter.go
// ----------------
// RateLimiter keeps the most recent rate-limit state the API reported, keyed by
// the limit name from x-ratelimit-name. It only observes: requests are never
// delayed, rejected or retried because of what it holds.
package dogapi

import (
	"strconv"
	"sync"
	"time"

	"github.com/opengovern/dogapi/internal"
)

const (
	headerRateLimitName      = "x-ratelimit-name"
	headerRateLimitLimit     = "x-ratelimit-limit"
	headerRateLimitPeriod    = "x-ratelimit-period"
	headerRateLimitRemaining = "x-ratelimit-remaining"
	headerRateLimitReset     = "x-ratelimit-reset"

	// DefaultRateLimitName keys responses that carry limits but no name.
	DefaultRateLimitName = "default"
)

type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*NormalizedRateLimitInfo
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]*NormalizedRateLimitInfo),
	}
}

// Update stores info under its name. Nil info is ignored.
func (r *RateLimiter) Update(info *NormalizedRateLimitInfo) {
	if info == nil {
		return
	}
	name := info.Name
	if name == "" {
		name = DefaultRateLimitName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[name] = info
}

// GetRateLimitInfo returns a copy of the latest info for name, or nil.
func (r *RateLimiter) GetRateLimitInfo(name string) *NormalizedRateLimitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.limits[name]; ok {
		copyInfo := *info
		return &copyInfo
	}
	return nil
}

// Exhausted reports whether name is known to have no requests left before its
// reset time.
func (r *RateLimiter) Exhausted(name string) bool {
	info := r.GetRateLimitInfo(name)
	if info == nil || info.Remaining == nil || *info.Remaining > 0 {
		return false
	}
	return info.ResetAt != nil && internal.IsInFuture(*info.ResetAt)
}

// RateLimitInfo parses the x-ratelimit-* headers. The second result is false
// when the response carries none of them.
func (r *NormalizedResponse) RateLimitInfo() (*NormalizedRateLimitInfo, bool) {
	return parseRateLimitInfo(r, time.Now())
}

func parseRateLimitInfo(r *NormalizedResponse, now time.Time) (*NormalizedRateLimitInfo, bool) {
	parseInt := func(key string) *int {
		if val, ok := r.Header(key); ok {
			if i, err := strconv.Atoi(val); err == nil {
				return &i
			}
		}
		return nil
	}

	info := &NormalizedRateLimitInfo{
		Limit:     parseInt(headerRateLimitLimit),
		Remaining: parseInt(headerRateLimitRemaining),
	}
	if name, ok := r.Header(headerRateLimitName); ok {
		info.Name = name
	}
	if val, ok := r.Header(headerRateLimitPeriod); ok {
		if ms, ok := internal.ParseTimeStr(val); ok {
			info.Period = &ms
		}
	}
	// x-ratelimit-reset is the number of seconds until the window resets.
	if val, ok := r.Header(headerRateLimitReset); ok {
		if sec, err := strconv.ParseInt(val, 10, 64); err == nil {
			at := internal.ResetAtMs(sec, now)
			info.ResetAt = &at
		}
	}

	if info.Name == "" && info.Limit == nil && info.Remaining == nil && info.Period == nil && info.ResetAt == nil {
		return nil, false
	}
	return info, true
}
