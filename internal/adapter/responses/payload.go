package responses

import (
	"encoding/json"
	"net/url"
	"strings"

	"relay-ai/internal/domain"
)

// Wire request shapes. Serialized field order follows the declarations.
type responsesRequest struct {
	Model        string      `json:"model"`
	Instructions string      `json:"instructions,omitempty"`
	Input        []inputItem `json:"input"`
	Stream       bool        `json:"stream"`
	Store        bool        `json:"store"`
	Reasoning    *reasoning  `json:"reasoning,omitempty"`
}

type inputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type reasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// buildPayload serializes a prompt for the streaming endpoint. Azure-hosted
// deployments reject store=false on streamed responses, so store is forced
// on for them no matter what the prompt asked for.
func buildPayload(p domain.Prompt, baseURL string) ([]byte, error) {
	req := responsesRequest{
		Model:        p.Model,
		Instructions: p.Instructions,
		Input:        make([]inputItem, 0, len(p.Input)),
		Stream:       true,
		Store:        p.Store || isAzureHost(baseURL),
	}
	for _, item := range p.Input {
		wire := inputItem{
			Type:    "message",
			Role:    item.Role,
			Content: make([]contentPart, 0, len(item.Content)),
		}
		for _, part := range item.Content {
			wire.Content = append(wire.Content, contentPart{Type: part.Type, Text: part.Text})
		}
		req.Input = append(req.Input, wire)
	}
	if p.ReasoningEffort != "" || p.ReasoningSummary != "" {
		req.Reasoning = &reasoning{Effort: p.ReasoningEffort, Summary: p.ReasoningSummary}
	}
	return json.Marshal(req)
}

func isAzureHost(baseURL string) bool {
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		return strings.Contains(strings.ToLower(u.Hostname()), "azure")
	}
	return strings.Contains(strings.ToLower(baseURL), "azure")
}
