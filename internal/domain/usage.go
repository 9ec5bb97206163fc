package domain

import "fmt"

// TokenUsage tracks token consumption reported for one model turn.
// TotalTokens is carried exactly as reported and aggregated independently;
// it is never recomputed from the other four fields, so inconsistent
// server-supplied totals pass through unchanged.
type TokenUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`
}

// Add returns the elementwise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:           u.InputTokens + other.InputTokens,
		CachedInputTokens:     u.CachedInputTokens + other.CachedInputTokens,
		OutputTokens:          u.OutputTokens + other.OutputTokens,
		ReasoningOutputTokens: u.ReasoningOutputTokens + other.ReasoningOutputTokens,
		TotalTokens:           u.TotalTokens + other.TotalTokens,
	}
}

// IsZero reports whether every field is zero.
func (u TokenUsage) IsZero() bool {
	return u == TokenUsage{}
}

// Validate rejects records carrying a negative count.
func (u TokenUsage) Validate() error {
	fields := []struct {
		name string
		val  int64
	}{
		{"input_tokens", u.InputTokens},
		{"cached_input_tokens", u.CachedInputTokens},
		{"output_tokens", u.OutputTokens},
		{"reasoning_output_tokens", u.ReasoningOutputTokens},
		{"total_tokens", u.TotalTokens},
	}
	for _, f := range fields {
		if f.val < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidUsage, f.name)
		}
	}
	return nil
}

// TokenUsageInfo summarizes aggregated usage for a conversation.
// ModelContextWindow and AutoCompactTokenLimit are zero when unset.
type TokenUsageInfo struct {
	TotalTokenUsage       TokenUsage `json:"total_token_usage"`
	LastTokenUsage        TokenUsage `json:"last_token_usage"`
	ModelContextWindow    int64      `json:"model_context_window,omitempty"`
	AutoCompactTokenLimit int64      `json:"auto_compact_token_limit,omitempty"`
}
