package usecase

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"relay-ai/internal/domain"
)

// messageOverheadTokens approximates the framing cost the server adds
// around each input item beyond its raw text.
const messageOverheadTokens = 3

// fallbackEncoding is the BPE used when the model slug is unknown to the
// tokenizer. Current-generation models share it.
const fallbackEncoding = "o200k_base"

// TokenCounter estimates token counts with the model's BPE encoding.
// When no encoding can be initialized (unknown model and no cached BPE
// data) it degrades to a chars/4 heuristic so estimation keeps working
// offline.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	logger   *slog.Logger
}

// NewTokenCounter builds a counter for the given model slug.
func NewTokenCounter(model string, logger *slog.Logger) *TokenCounter {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		logger.Warn("token encoding unavailable, falling back to heuristic estimates",
			"model", model,
			"error", err,
		)
		enc = nil
	}
	return &TokenCounter{encoding: enc, logger: logger}
}

// CountText returns the estimated token count for a single string.
func (c *TokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

// CountPrompt estimates the full prompt cost: instructions plus every
// text part of every input item, with a per-item overhead.
func (c *TokenCounter) CountPrompt(p domain.Prompt) int {
	total := c.CountText(p.Instructions)
	for _, item := range p.Input {
		total += messageOverheadTokens
		for _, part := range item.Content {
			total += c.CountText(part.Text)
		}
	}
	return total
}

var _ domain.TokenCounter = (*TokenCounter)(nil)
