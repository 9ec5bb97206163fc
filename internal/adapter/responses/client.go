package responses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/tracer"
)

const defaultBaseURL = "https://api.openai.com/v1"

// errAttemptComplete stops frame decoding once response.completed has been
// delivered; anything the server sends afterwards is not translated.
var errAttemptComplete = errors.New("attempt complete")

// Client speaks the streaming responses protocol against a single provider
// endpoint. It implements domain.StreamClient; one call is one request
// attempt, retry policy belongs to the caller.
type Client struct {
	name         string
	model        string
	baseURL      string
	apiKey       string
	organization string
	beta         string
	headers      map[string]string
	stream       domain.StreamConfig
	client       *http.Client
	logger       *slog.Logger
}

// NewClient creates a wire client from provider configuration. The API key
// falls back to the configured environment variable when not given inline.
func NewClient(cfg config.ProviderConfig, stream domain.StreamConfig, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &Client{
		name:         name,
		model:        cfg.Model,
		baseURL:      baseURL,
		apiKey:       apiKey,
		organization: cfg.Organization,
		beta:         cfg.Beta,
		headers:      cfg.Headers,
		stream:       stream,
		client:       NewHTTPClient(cfg),
		logger:       logger,
	}
}

// Name implements domain.StreamClient.
func (c *Client) Name() string { return c.name }

// StreamResponse issues one streaming request attempt. On a 2xx response it
// returns the stream immediately and decodes the body asynchronously; when
// the response carries rate-limit advisories, a synthetic RateLimits event
// is delivered ahead of any protocol-derived event. A non-2xx status comes
// back as a *domain.HTTPStatusError for the caller to classify.
func (c *Client) StreamResponse(ctx context.Context, prompt domain.Prompt) (*domain.ResponseStream, *domain.RateLimitSnapshot, error) {
	ctx, span := tracer.StartSpan(ctx, "responses.stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", c.name),
			tracer.StringAttr("llm.model", prompt.Model),
		),
	)
	defer span.End()

	if prompt.Model == "" {
		prompt.Model = c.model
	}

	payload, err := buildPayload(prompt, c.baseURL)
	if err != nil {
		err = fmt.Errorf("encode payload: %w", err)
		tracer.RecordError(span, err)
		return nil, nil, err
	}

	headers := make(map[string]string, len(c.headers)+2)
	for key, value := range c.headers {
		headers[key] = value
	}
	if c.organization != "" {
		headers["OpenAI-Organization"] = c.organization
	}
	if c.beta != "" {
		headers["OpenAI-Beta"] = c.beta
	}

	resp, err := doStreamRequest(ctx, c.client, c.baseURL+"/responses", c.apiKey, payload, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, nil, err
	}
	tracer.SetOK(span)

	snapshot := domain.ParseRateLimitSnapshot(resp.Header)
	stream := domain.NewResponseStream(c.stream)
	if snapshot != nil {
		_ = stream.Push(ctx, domain.RateLimitsEvent{Snapshot: *snapshot})
	}

	c.logger.Debug("response stream opened",
		"provider", c.name,
		"model", prompt.Model,
	)
	go c.decodeLoop(ctx, resp.Body, stream)

	return stream, snapshot, nil
}

// decodeLoop drains the response body into the stream. It is the stream's
// only producer and settles the terminal state exactly once.
func (c *Client) decodeLoop(ctx context.Context, body io.ReadCloser, stream *domain.ResponseStream) {
	defer body.Close()

	// Closing the body on terminal unblocks a read stalled mid-chunk when
	// the consumer aborts without cancelling ctx.
	go func() {
		<-stream.Done()
		body.Close()
	}()

	tr := newTranslator(c.logger)
	err := decodeFrames(ctx, body, func(data []byte) error {
		ev, terr := tr.translate(data)
		if terr != nil {
			return terr
		}
		if ev == nil {
			return nil
		}
		if perr := stream.Push(ctx, ev); perr != nil {
			return perr
		}
		if ev.Kind() == domain.KindCompleted {
			return errAttemptComplete
		}
		return nil
	})

	switch {
	case errors.Is(err, errAttemptComplete):
		stream.Complete()
		c.logger.Debug("response stream completed", "provider", c.name, "frames", tr.frames)
	case err == nil:
		err = domain.NewDomainError("responses.stream", domain.ErrIncompleteStream,
			"stream ended before response.completed")
		if stream.Fail(err) {
			c.logger.Warn("response stream incomplete", "provider", c.name, "frames", tr.frames)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		stream.Abort()
		c.logger.Debug("response stream aborted", "provider", c.name, "frames", tr.frames)
	default:
		if stream.Fail(err) {
			c.logger.Warn("response stream failed",
				"provider", c.name,
				"frames", tr.frames,
				"error", err,
			)
		}
	}
}

// Compile-time interface check.
var _ domain.StreamClient = (*Client)(nil)
