package usecase

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
)

// AttemptKind says whether a failed request attempt is worth repeating.
type AttemptKind int

const (
	AttemptFatal              AttemptKind = iota // not retried
	AttemptRetryableHTTP                         // 401, 429, 5xx
	AttemptRetryableTransport                    // transient network failures
)

// StreamAttemptError is the classification of one failed request attempt.
// Status is 0 for transport failures; RetryAfter is 0 when the server gave
// no hint. It lives for the duration of one attempt and is never persisted.
type StreamAttemptError struct {
	Kind       AttemptKind
	Status     int
	RetryAfter time.Duration
	Cause      error
}

// transportSignatures are lowercase substrings that mark an error as a
// transient network problem rather than a client bug.
var transportSignatures = []string{
	"network",
	"timeout",
	"deadline exceeded",
	"connection reset",
	"econnreset",
	"no such host",
	"enotfound",
	"connection refused",
	"econnrefused",
	"broken pipe",
	"eof",
}

// RetryClassifier maps request-attempt failures onto retry decisions.
type RetryClassifier struct{}

// NewRetryClassifier creates a new classifier.
func NewRetryClassifier() *RetryClassifier {
	return &RetryClassifier{}
}

// Classify inspects a failed attempt and returns its classification. HTTP
// status failures are read from the *domain.HTTPStatusError in the chain;
// everything else is matched against known transport signatures and is
// fatal when nothing matches.
func (c *RetryClassifier) Classify(err error) StreamAttemptError {
	if err == nil {
		return StreamAttemptError{}
	}

	var statusErr *domain.HTTPStatusError
	if errors.As(err, &statusErr) {
		return c.classifyStatus(statusErr, err)
	}

	lower := strings.ToLower(err.Error())
	for _, sig := range transportSignatures {
		if strings.Contains(lower, sig) {
			return StreamAttemptError{Kind: AttemptRetryableTransport, Cause: err}
		}
	}
	return StreamAttemptError{Kind: AttemptFatal, Cause: err}
}

func (c *RetryClassifier) classifyStatus(statusErr *domain.HTTPStatusError, cause error) StreamAttemptError {
	attempt := StreamAttemptError{
		Status:     statusErr.StatusCode,
		RetryAfter: statusErr.RetryAfter,
		Cause:      cause,
	}
	switch {
	case statusErr.StatusCode == http.StatusUnauthorized,
		statusErr.StatusCode == http.StatusTooManyRequests,
		statusErr.StatusCode >= 500:
		attempt.Kind = AttemptRetryableHTTP
	default:
		attempt.Kind = AttemptFatal
	}
	return attempt
}

// IsRetryable reports whether a fresh request attempt may fix this failure.
func (e StreamAttemptError) IsRetryable() bool {
	return e.Kind != AttemptFatal
}

// Delay computes the backoff before retry number attempt (zero-based). A
// server-provided retry-after hint wins over exponential backoff; both get
// up to 10% jitter so synchronized clients spread out.
func (e StreamAttemptError) Delay(attempt int, policy config.RetryConfig) time.Duration {
	if e.Kind == AttemptRetryableHTTP && e.RetryAfter > 0 {
		return withJitter(e.RetryAfter)
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	limit := policy.MaxDelay
	if limit <= 0 {
		limit = 10 * time.Second
	}

	delay := float64(base) * math.Pow(multiplier, float64(attempt))
	if delay > float64(limit) {
		delay = float64(limit)
	}
	return withJitter(time.Duration(delay))
}

// IntoError converts the classification into the error surfaced to the
// original caller once retries are over.
func (e StreamAttemptError) IntoError() error {
	switch e.Kind {
	case AttemptRetryableHTTP:
		switch {
		case e.Status == http.StatusTooManyRequests:
			detail := ""
			if e.RetryAfter > 0 {
				detail = fmt.Sprintf("retry after %s", e.RetryAfter)
			}
			return domain.NewDomainError("engine.request", domain.ErrRateLimited, detail)
		case e.Status == http.StatusUnauthorized:
			return domain.NewDomainError("engine.request", domain.ErrAuthFailed, "check the configured API key")
		default:
			return domain.NewDomainError("engine.request", domain.ErrServerError, fmt.Sprintf("status %d", e.Status))
		}
	case AttemptRetryableTransport:
		return fmt.Errorf("%w: %v", domain.ErrNetwork, e.Cause)
	default:
		return e.Cause
	}
}

// withJitter adds up to 10% random spread to a delay.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}
