package domain

// Role constants for prompt input items.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part type constants used on the wire.
const (
	ContentInputText   = "input_text"
	ContentOutputText  = "output_text"
	ContentSummaryText = "summary_text"
)

// ContentPart is a single piece of message content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// InputItem is one message in the prompt input sequence.
type InputItem struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextInput builds an input item holding a single text part.
func TextInput(role, text string) InputItem {
	return InputItem{
		Role:    role,
		Content: []ContentPart{{Type: ContentInputText, Text: text}},
	}
}

// Prompt is everything needed to issue one model turn.
type Prompt struct {
	Model        string      `json:"model"`
	Instructions string      `json:"instructions,omitempty"`
	Input        []InputItem `json:"input"`

	// Store asks the server to retain the response. Some hosts force this
	// on regardless of the caller's choice.
	Store bool `json:"store,omitempty"`

	// Reasoning controls; ignored for families without reasoning support.
	ReasoningEffort  string `json:"reasoning_effort,omitempty"`
	ReasoningSummary string `json:"reasoning_summary,omitempty"`
}

// ModelFamily is client-side knowledge about a model slug: budget limits
// and capability flags the engine needs before the first byte is sent.
type ModelFamily struct {
	Name                       string
	ContextWindow              int64
	AutoCompactTokenLimit      int64
	SupportsReasoningSummaries bool
}
