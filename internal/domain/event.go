package domain

// EventKind identifies the kind of a response event.
type EventKind string

const (
	KindCreated                   EventKind = "created"
	KindOutputItemDone            EventKind = "output_item.done"
	KindOutputTextDelta           EventKind = "output_text.delta"
	KindReasoningSummaryDelta     EventKind = "reasoning_summary.delta"
	KindReasoningContentDelta     EventKind = "reasoning_content.delta"
	KindReasoningSummaryPartAdded EventKind = "reasoning_summary_part.added"
	KindWebSearchCallBegin        EventKind = "web_search_call.begin"
	KindRateLimits                EventKind = "rate_limits"
	KindCompleted                 EventKind = "completed"
)

// ResponseEvent is the interface implemented by every event variant the
// translation pipeline can produce. Events are immutable after creation;
// they are owned by the ResponseStream until the consumer takes them.
type ResponseEvent interface {
	responseEvent()
	Kind() EventKind
}

// CreatedEvent is emitted when the server acknowledges the response.
type CreatedEvent struct{}

func (CreatedEvent) responseEvent()  {}
func (CreatedEvent) Kind() EventKind { return KindCreated }

// OutputItemDoneEvent carries a finished output item.
type OutputItemDoneEvent struct {
	Item ResponseItem `json:"item"`
}

func (OutputItemDoneEvent) responseEvent()  {}
func (OutputItemDoneEvent) Kind() EventKind { return KindOutputItemDone }

// OutputTextDeltaEvent carries an incremental fragment of assistant text.
type OutputTextDeltaEvent struct {
	Delta string `json:"delta"`
}

func (OutputTextDeltaEvent) responseEvent()  {}
func (OutputTextDeltaEvent) Kind() EventKind { return KindOutputTextDelta }

// ReasoningSummaryDeltaEvent carries an incremental fragment of the
// reasoning summary text.
type ReasoningSummaryDeltaEvent struct {
	Delta string `json:"delta"`
}

func (ReasoningSummaryDeltaEvent) responseEvent()  {}
func (ReasoningSummaryDeltaEvent) Kind() EventKind { return KindReasoningSummaryDelta }

// ReasoningContentDeltaEvent carries an incremental fragment of raw
// reasoning content.
type ReasoningContentDeltaEvent struct {
	Delta string `json:"delta"`
}

func (ReasoningContentDeltaEvent) responseEvent()  {}
func (ReasoningContentDeltaEvent) Kind() EventKind { return KindReasoningContentDelta }

// ReasoningSummaryPartAddedEvent marks a new reasoning summary section.
type ReasoningSummaryPartAddedEvent struct{}

func (ReasoningSummaryPartAddedEvent) responseEvent()  {}
func (ReasoningSummaryPartAddedEvent) Kind() EventKind { return KindReasoningSummaryPartAdded }

// WebSearchCallBeginEvent signals that the server started a web search call.
type WebSearchCallBeginEvent struct {
	CallID string `json:"call_id"`
}

func (WebSearchCallBeginEvent) responseEvent()  {}
func (WebSearchCallBeginEvent) Kind() EventKind { return KindWebSearchCallBegin }

// RateLimitsEvent carries the advisory rate-limit snapshot parsed from
// response headers. Emitted synthetically as the first event of a stream.
type RateLimitsEvent struct {
	Snapshot RateLimitSnapshot `json:"snapshot"`
}

func (RateLimitsEvent) responseEvent()  {}
func (RateLimitsEvent) Kind() EventKind { return KindRateLimits }

// CompletedEvent is the final protocol event of a successful response.
// Usage is nil when the server reported none.
type CompletedEvent struct {
	ResponseID string      `json:"response_id"`
	Usage      *TokenUsage `json:"usage,omitempty"`
}

func (CompletedEvent) responseEvent()  {}
func (CompletedEvent) Kind() EventKind { return KindCompleted }

// ResponseItem is an output item as reported by the wire protocol. Only the
// fields the server sent are populated; everything else stays zero.
type ResponseItem struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type,omitempty"`
	Status  string        `json:"status,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Function/tool call fields.
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// Reasoning item fields.
	Summary []ContentPart `json:"summary,omitempty"`
}

// Text concatenates the textual content parts of the item.
func (it ResponseItem) Text() string {
	var out string
	for _, part := range it.Content {
		out += part.Text
	}
	return out
}
