package domain

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Advisory rate-limit headers. The server reports two rolling quota
// windows: primary (short) and secondary (long).
const (
	headerPrefixPrimary   = "x-codex-primary-"
	headerPrefixSecondary = "x-codex-secondary-"

	headerSuffixUsedPercent     = "used-percent"
	headerSuffixWindowMinutes   = "window-minutes"
	headerSuffixResetsInSeconds = "resets-in-seconds"
)

// RateLimitWindow describes one advisory quota window. UsedPercent is the
// only required field; the others stay nil when the server omitted them.
// Values above 100 are preserved as reported (servers do announce
// over-quota states).
type RateLimitWindow struct {
	UsedPercent     float64 `json:"used_percent"`
	WindowMinutes   *int64  `json:"window_minutes,omitempty"`
	ResetsInSeconds *int64  `json:"resets_in_seconds,omitempty"`
}

// RateLimitSnapshot is the two-window view parsed from one response.
type RateLimitSnapshot struct {
	Primary   *RateLimitWindow `json:"primary,omitempty"`
	Secondary *RateLimitWindow `json:"secondary,omitempty"`
}

// MostRestrictive returns the window with the highest UsedPercent, or nil
// when the snapshot has no windows.
func (s RateLimitSnapshot) MostRestrictive() *RateLimitWindow {
	switch {
	case s.Primary == nil:
		return s.Secondary
	case s.Secondary == nil:
		return s.Primary
	case s.Secondary.UsedPercent > s.Primary.UsedPercent:
		return s.Secondary
	default:
		return s.Primary
	}
}

// ParseRateLimitSnapshot extracts the advisory rate-limit snapshot from
// response headers. A window is included only when its used-percent header
// parses to a finite non-negative number; missing sub-fields stay nil.
// Returns nil when neither window is present.
func ParseRateLimitSnapshot(h http.Header) *RateLimitSnapshot {
	primary := parseRateLimitWindow(h, headerPrefixPrimary)
	secondary := parseRateLimitWindow(h, headerPrefixSecondary)
	if primary == nil && secondary == nil {
		return nil
	}
	return &RateLimitSnapshot{Primary: primary, Secondary: secondary}
}

func parseRateLimitWindow(h http.Header, prefix string) *RateLimitWindow {
	raw := strings.TrimSpace(h.Get(prefix + headerSuffixUsedPercent))
	if raw == "" {
		return nil
	}
	used, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(used) || math.IsInf(used, 0) || used < 0 {
		return nil
	}

	w := &RateLimitWindow{UsedPercent: used}
	if v, ok := parseHeaderInt(h.Get(prefix + headerSuffixWindowMinutes)); ok {
		w.WindowMinutes = &v
	}
	if v, ok := parseHeaderInt(h.Get(prefix + headerSuffixResetsInSeconds)); ok {
		w.ResetsInSeconds = &v
	}
	return w
}

func parseHeaderInt(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
