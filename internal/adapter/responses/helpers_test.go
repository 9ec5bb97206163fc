package responses

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"2", 2 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{" 30 ", 30 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"", 0},
		{"soon", 0},
	}

	for _, tt := range tests {
		h := http.Header{}
		if tt.raw != "" {
			h.Set("Retry-After", tt.raw)
		}
		if got := parseRetryAfter(h); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(10*time.Second).UTC().Format(http.TimeFormat))

	got := parseRetryAfter(h)
	if got <= 0 || got > 10*time.Second {
		t.Errorf("parseRetryAfter(date) = %v, want a positive wait up to 10s", got)
	}

	// A date in the past means no wait.
	h.Set("Retry-After", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
	if got := parseRetryAfter(h); got != 0 {
		t.Errorf("parseRetryAfter(past date) = %v, want 0", got)
	}
}
