package responses

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"relay-ai/internal/domain"
)

// Wire event types for the streaming responses protocol.
const (
	typeCreated               = "response.created"
	typeOutputItemAdded       = "response.output_item.added"
	typeOutputItemDone        = "response.output_item.done"
	typeOutputTextDelta       = "response.output_text.delta"
	typeReasoningSummaryDelta = "response.reasoning_summary_text.delta"
	typeReasoningTextDelta    = "response.reasoning_text.delta"
	typeReasoningSummaryPart  = "response.reasoning_summary_part.added"
	typeCompleted             = "response.completed"
	typeFailed                = "response.failed"

	// Carried by the protocol but of no use to the consumer.
	typeInProgress        = "response.in_progress"
	typeOutputTextDone    = "response.output_text.done"
	typeContentPartDone   = "response.content_part.done"
	typeFuncCallArgsDelta = "response.function_call_arguments.delta"
)

// itemTypeWebSearchCall is the output item kind that announces a web search.
const itemTypeWebSearchCall = "web_search_call"

// Wire shapes for decoded frames. Only the fields we read are declared.
type sseEvent struct {
	Type     string               `json:"type"`
	Delta    string               `json:"delta"`
	Item     *domain.ResponseItem `json:"item"`
	Response *sseResponse         `json:"response"`
}

type sseResponse struct {
	ID    string    `json:"id"`
	Usage *sseUsage `json:"usage"`
	Error *sseError `json:"error"`
}

type sseUsage struct {
	InputTokens         int64            `json:"input_tokens"`
	InputTokensDetails  *sseTokenDetails `json:"input_tokens_details"`
	OutputTokens        int64            `json:"output_tokens"`
	OutputTokensDetails *sseTokenDetails `json:"output_tokens_details"`
	TotalTokens         int64            `json:"total_tokens"`
}

type sseTokenDetails struct {
	CachedTokens    int64 `json:"cached_tokens"`
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

type sseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// translator converts decoded frames into stream events. It is stateful per
// attempt: it counts frames so malformed ones can be reported by position,
// and it remembers the response id announced by response.created so a final
// frame that omits its own id still yields a usable Completed event.
type translator struct {
	logger     *slog.Logger
	frames     int
	responseID string
}

func newTranslator(logger *slog.Logger) *translator {
	return &translator{logger: logger}
}

// translate maps one frame payload to at most one event. A nil event with a
// nil error means the frame carries nothing the consumer needs. A returned
// error ends the attempt; no later frame is translated.
func (t *translator) translate(data []byte) (domain.ResponseEvent, error) {
	t.frames++

	var ev sseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, domain.NewDomainError("responses.translate", domain.ErrProtocolDecode,
			fmt.Sprintf("frame %d: %v", t.frames, err))
	}

	switch ev.Type {
	case typeCreated:
		if ev.Response != nil {
			t.responseID = ev.Response.ID
		}
		return domain.CreatedEvent{}, nil

	case typeOutputItemAdded:
		// Only web search call starts are interesting at add time; every
		// other item is surfaced once it is done.
		if ev.Item != nil && ev.Item.Type == itemTypeWebSearchCall {
			return domain.WebSearchCallBeginEvent{CallID: ev.Item.ID}, nil
		}
		return nil, nil

	case typeOutputItemDone:
		if ev.Item == nil {
			return nil, domain.NewDomainError("responses.translate", domain.ErrProtocolDecode,
				fmt.Sprintf("frame %d: output_item.done without item", t.frames))
		}
		return domain.OutputItemDoneEvent{Item: *ev.Item}, nil

	case typeOutputTextDelta:
		return domain.OutputTextDeltaEvent{Delta: ev.Delta}, nil

	case typeReasoningSummaryDelta:
		return domain.ReasoningSummaryDeltaEvent{Delta: ev.Delta}, nil

	case typeReasoningTextDelta:
		return domain.ReasoningContentDeltaEvent{Delta: ev.Delta}, nil

	case typeReasoningSummaryPart:
		return domain.ReasoningSummaryPartAddedEvent{}, nil

	case typeCompleted:
		completed := domain.CompletedEvent{ResponseID: t.responseID}
		if ev.Response != nil {
			if ev.Response.ID != "" {
				completed.ResponseID = ev.Response.ID
			}
			completed.Usage = ev.Response.Usage.toDomain()
		}
		return completed, nil

	case typeFailed:
		msg := "no failure detail provided"
		if ev.Response != nil && ev.Response.Error != nil && ev.Response.Error.Message != "" {
			msg = ev.Response.Error.Message
			if ev.Response.Error.Code != "" {
				msg = fmt.Sprintf("%s (%s)", msg, ev.Response.Error.Code)
			}
		}
		return nil, domain.NewDomainError("responses.translate", domain.ErrResponseFailed, msg)

	case typeInProgress, typeOutputTextDone, typeContentPartDone, typeFuncCallArgsDelta:
		return nil, nil

	default:
		t.logger.Debug("ignoring unrecognized stream event", "type", ev.Type)
		return nil, nil
	}
}

// toDomain converts the wire usage block. Totals are taken as reported, not
// recomputed from the parts.
func (u *sseUsage) toDomain() *domain.TokenUsage {
	if u == nil {
		return nil
	}
	usage := &domain.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
	}
	if u.InputTokensDetails != nil {
		usage.CachedInputTokens = u.InputTokensDetails.CachedTokens
	}
	if u.OutputTokensDetails != nil {
		usage.ReasoningOutputTokens = u.OutputTokensDetails.ReasoningTokens
	}
	return usage
}
