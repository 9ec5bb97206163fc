package domain

import "context"

// StreamClient issues one streaming model request. On a 2xx response it
// returns the live event stream together with the advisory rate-limit
// snapshot parsed from the response headers (nil when the server sent
// none); decoding proceeds asynchronously after return. On a non-2xx
// response the error carries an *HTTPStatusError in its chain.
type StreamClient interface {
	// StreamResponse performs a single request attempt. It never retries.
	StreamResponse(ctx context.Context, prompt Prompt) (*ResponseStream, *RateLimitSnapshot, error)
	// Name returns the provider's identifier (e.g., "openai", "azure").
	Name() string
}
