package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/tracer"
)

// EngineDeps holds injected dependencies for the engine.
type EngineDeps struct {
	Client     domain.StreamClient
	Logger     *slog.Logger
	Classifier *RetryClassifier
	RateLimits *RateLimitManager   // optional, nil = no advisory tracking
	Usage      *TokenUsageTracker  // optional, nil = no usage aggregation
	Counter    domain.TokenCounter // optional, nil = no preflight estimates
	Ledger     domain.UsageLedger  // optional, nil = no persistence
	Pacer      *rate.Limiter       // optional, nil = no request pacing
}

// Engine drives one model turn end to end: preflight checks, pacing, the
// request attempt, retry with backoff, and bookkeeping of advisory limits
// and reported usage. Streams it returns follow single-consumer rules;
// shared trackers are serialized by the caller.
type Engine struct {
	deps  EngineDeps
	retry config.RetryConfig
}

// NewEngine creates an engine with the given dependencies and retry policy.
func NewEngine(deps EngineDeps, retry config.RetryConfig) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = NewRetryClassifier()
	}
	return &Engine{deps: deps, retry: retry}
}

// Stream issues one model turn and returns the live event stream. Attempt
// failures are retried with backoff while retryable; an authentication
// failure is terminal after the first fetch. Once a stream is returned,
// later failures terminate that stream and are never re-issued.
func (e *Engine) Stream(ctx context.Context, prompt domain.Prompt) (*domain.ResponseStream, error) {
	ctx, span := tracer.StartSpan(ctx, "engine.stream",
		trace.WithAttributes(tracer.StringAttr("model", prompt.Model)),
	)
	defer span.End()

	family := e.preflight(ctx, &prompt)

	if e.deps.Pacer != nil {
		if err := e.deps.Pacer.Wait(ctx); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		e.deps.Logger.Debug("requesting model response",
			"model", prompt.Model, "family", family.Name, "attempt", attempt+1)

		stream, snapshot, err := e.deps.Client.StreamResponse(ctx, prompt)
		if err == nil {
			if snapshot != nil && e.deps.RateLimits != nil {
				e.deps.RateLimits.Record(*snapshot)
			}
			e.deps.Logger.Debug("stream established", "model", prompt.Model, "attempt", attempt+1)
			tracer.SetOK(span)
			return stream, nil
		}
		if ctx.Err() != nil {
			tracer.RecordError(span, ctx.Err())
			return nil, ctx.Err()
		}

		classified := e.deps.Classifier.Classify(err)

		// An authentication failure will not heal on retry; exactly one
		// fetch happens for a 401.
		terminal := !classified.IsRetryable() ||
			classified.Status == http.StatusUnauthorized ||
			attempt >= e.retry.MaxRetries

		if terminal {
			final := classified.IntoError()
			if classified.IsRetryable() && classified.Status != http.StatusUnauthorized {
				final = fmt.Errorf("%w: %w", domain.ErrRetryExhausted, final)
			}
			e.deps.Logger.Debug("request failed",
				"model", prompt.Model, "attempt", attempt+1, "error", final)
			tracer.RecordError(span, final)
			return nil, final
		}

		delay := e.retryDelay(classified, attempt)
		e.deps.Logger.Info("retrying request after error",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			tracer.RecordError(span, ctx.Err())
			return nil, ctx.Err()
		}
	}
}

// preflight resolves the model family, propagates its budget to the usage
// tracker, strips unsupported reasoning options, and warns when the local
// token estimate already exceeds the context window.
func (e *Engine) preflight(ctx context.Context, prompt *domain.Prompt) domain.ModelFamily {
	family := domain.ResolveModelFamily(prompt.Model)
	if e.deps.Usage != nil {
		e.deps.Usage.SetFamily(family)
	}
	if !family.SupportsReasoningSummaries && prompt.ReasoningSummary != "" {
		e.deps.Logger.Debug("model family does not support reasoning summaries, dropping request option",
			"model", prompt.Model)
		prompt.ReasoningSummary = ""
	}
	if e.deps.Counter != nil {
		estimate := e.deps.Counter.CountPrompt(*prompt)
		trace.SpanFromContext(ctx).SetAttributes(tracer.IntAttr("prompt.estimated_tokens", estimate))
		if family.ContextWindow > 0 && int64(estimate) > family.ContextWindow {
			e.deps.Logger.Warn("prompt estimate exceeds model context window",
				"estimated_tokens", estimate,
				"context_window", family.ContextWindow,
				"model", prompt.Model,
			)
		}
	}
	return family
}

// retryDelay computes the wait before the next attempt. For rate-limit
// responses the advisory manager's reset hint wins over the classifier's
// schedule when it is longer.
func (e *Engine) retryDelay(classified StreamAttemptError, attempt int) time.Duration {
	delay := classified.Delay(attempt, e.retry)
	if classified.Status == http.StatusTooManyRequests && e.deps.RateLimits != nil {
		if hint := e.deps.RateLimits.RetryDelay(attempt); hint > delay {
			delay = hint
		}
	}
	return delay
}

// ObserveEvent performs engine-side bookkeeping for one consumed stream
// event. The caller remains the stream's single consumer; this only
// updates trackers and, for completed turns with usage, the ledger.
func (e *Engine) ObserveEvent(ctx context.Context, ev domain.ResponseEvent, turnID string) {
	switch ev := ev.(type) {
	case domain.RateLimitsEvent:
		if e.deps.RateLimits != nil {
			e.deps.RateLimits.Record(ev.Snapshot)
		}
		if w := ev.Snapshot.MostRestrictive(); w != nil {
			trace.SpanFromContext(ctx).SetAttributes(
				tracer.Float64Attr("ratelimit.used_percent", w.UsedPercent))
		}
	case domain.CompletedEvent:
		if ev.Usage == nil {
			return
		}
		trace.SpanFromContext(ctx).SetAttributes(
			tracer.Int64Attr("usage.input_tokens", ev.Usage.InputTokens),
			tracer.Int64Attr("usage.output_tokens", ev.Usage.OutputTokens),
			tracer.Int64Attr("usage.total_tokens", ev.Usage.TotalTokens),
		)
		if e.deps.Usage != nil {
			if err := e.deps.Usage.Update(*ev.Usage, turnID); err != nil {
				e.deps.Logger.Warn("usage update rejected", "turn_id", turnID, "error", err)
			}
		}
		if e.deps.Ledger != nil {
			rec := domain.UsageRecord{
				ID:        generateULID(time.Now()),
				TurnID:    turnID,
				Timestamp: time.Now(),
				Usage:     *ev.Usage,
			}
			if err := e.deps.Ledger.Append(ctx, rec); err != nil {
				e.deps.Logger.Warn("usage ledger append failed", "turn_id", turnID, "error", err)
			}
		}
	}
}

// Usage returns the shared usage tracker, nil when not wired.
func (e *Engine) Usage() *TokenUsageTracker { return e.deps.Usage }

// RateLimits returns the shared rate-limit manager, nil when not wired.
func (e *Engine) RateLimits() *RateLimitManager { return e.deps.RateLimits }

// NewTurnID returns a fresh lexically sortable turn identifier.
func NewTurnID() string {
	return generateULID(time.Now())
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
