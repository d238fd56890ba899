package provider

import (
	"encoding/json"

	"github.com/tributary-ai/tributary/pkg/api"
)

// Request is the backend-facing request. It contains only the information
// the adapter needs, stripped of transport concerns. Sampling parameters
// are passed through opaquely; tributary does not interpret them.
type Request struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []Tool       `json:"tools,omitempty"`
	ToolChoice  *ToolChoice  `json:"tool_choice,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream,omitempty"`

	// Thinking requests the provider's reasoning side-channel where one
	// exists and enables inline thinking-markup filtering downstream.
	Thinking bool `json:"-"`
}

// Message represents a conversation message in normalized form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a completed tool call attached to an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool represents a tool definition in normalized form.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoice constrains which tool the model may call. Either a mode
// ("auto", "none", "required") or a specific tool name.
type ToolChoice struct {
	Mode string `json:"mode,omitempty"`
	Name string `json:"name,omitempty"`
}

// Response is the backend's complete non-streaming response.
type Response struct {
	Text         string           `json:"text"`
	Thinking     string           `json:"thinking,omitempty"`
	ToolCalls    []ToolCall       `json:"tool_calls,omitempty"`
	FinishReason api.FinishReason `json:"finish_reason,omitempty"`
	Usage        *api.Usage       `json:"usage,omitempty"`
	Model        string           `json:"model,omitempty"`

	// ThinkingSignature is the opaque verification token some vendors
	// attach to thinking content. Forwarded, never interpreted.
	ThinkingSignature string `json:"thinking_signature,omitempty"`
}

// EventType classifies a normalized streaming event.
type EventType int

const (
	EventTextDelta     EventType = iota // Incremental visible text
	EventThinkingDelta                  // Incremental reasoning side-channel content
	EventToolCallDelta                  // Incremental tool call id/name/argument data
	EventDone                           // Stream finished
	EventError                          // Stream error
)

// String returns the event type name used in logs and metric labels.
func (t EventType) String() string {
	switch t {
	case EventTextDelta:
		return "text_delta"
	case EventThinkingDelta:
		return "thinking_delta"
	case EventToolCallDelta:
		return "tool_call_delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single normalized streaming event. It is produced by a vendor
// decoder, consumed immediately by the engine, and never persisted.
//
// Tool-call addressing: index-addressed vendors set ToolCallIndex (>= 0)
// and leave ItemID empty. Id-addressed vendors set ItemID (their transient
// item identifier) and additionally ToolCallID once the stable call id is
// known; an event carrying both instructs the assembler to migrate any
// arguments accumulated under the item id to the call id.
type Event struct {
	// Type indicates what kind of event this is.
	Type EventType

	// Delta contains incremental text, thinking, or argument data.
	Delta string

	// Signature is the opaque verification token some vendors attach to
	// thinking content. Forwarded, never interpreted.
	Signature string

	// ToolCallIndex is the original output position of the tool call.
	// Meaningful only on EventToolCallDelta; zero elsewhere.
	ToolCallIndex int

	// ToolCallID is the stable call identifier, when known.
	ToolCallID string

	// ItemID is the vendor's transient item identifier (id-addressed
	// vendors only).
	ItemID string

	// FunctionName is the function name fragment (populated on the event
	// where the vendor first reveals it).
	FunctionName string

	// FinishReason is populated on Done events.
	FinishReason api.FinishReason

	// Usage is populated on the final event when the vendor reports it.
	Usage *api.Usage

	// Err is populated if the stream encountered an error.
	Err error
}
