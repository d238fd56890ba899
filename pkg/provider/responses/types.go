// Package responses implements a Provider adapter for backends speaking
// the OpenAI Responses API (/v1/responses). Tool-call argument deltas
// are id-addressed: fragments arrive keyed by a transient item_id, and
// the stable call_id is revealed later on output_item lifecycle events.
// The decoder emits migration events so the assembler can re-key
// accumulated arguments.
package responses

import "encoding/json"

// responsesRequest is the wire format for POST /v1/responses.
type responsesRequest struct {
	Model           string          `json:"model"`
	Input           []responsesItem `json:"input"`
	Instructions    string          `json:"instructions,omitempty"`
	Tools           []responsesTool `json:"tools,omitempty"`
	ToolChoice      any             `json:"tool_choice,omitempty"`
	Store           bool            `json:"store"`
	Stream          bool            `json:"stream,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Reasoning       *reasoningOpts  `json:"reasoning,omitempty"`
}

// reasoningOpts requests reasoning output on capable models.
type reasoningOpts struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// responsesTool is a tool definition in the Responses API format.
type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// responsesItem represents an input or output item. The Type
// discriminator is "message", "function_call", "function_call_output",
// or "reasoning".
type responsesItem struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Status    string          `json:"status,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
}

// responsesContentPart is a content part within a message item.
type responsesContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// responsesUsage holds token usage from the backend.
type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// responsesError is the error object on a failed response.
type responsesError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// responsesResponse is the full response object, returned non-streaming
// and wrapped inside terminal stream events.
type responsesResponse struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Model             string          `json:"model"`
	Output            []responsesItem `json:"output"`
	Usage             *responsesUsage `json:"usage,omitempty"`
	Error             *responsesError `json:"error,omitempty"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
}

// SSE event names consumed by the stream decoder.
const (
	eventResponseCompleted  = "response.completed"
	eventResponseFailed     = "response.failed"
	eventResponseIncomplete = "response.incomplete"
	eventOutputItemAdded    = "response.output_item.added"
	eventOutputItemDone     = "response.output_item.done"
	eventTextDelta          = "response.output_text.delta"
	eventFuncCallArgsDelta  = "response.function_call_arguments.delta"
	eventReasoningTextDelta = "response.reasoning_text.delta"
	eventReasoningSummDelta = "response.reasoning_summary_text.delta"
)

// deltaData is the payload shape shared by the text and reasoning delta
// events.
type deltaData struct {
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index"`
	Delta       string `json:"delta"`
}

// funcCallArgsDeltaData is the payload for function_call_arguments.delta.
type funcCallArgsDeltaData struct {
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	Delta       string `json:"delta"`
	CallID      string `json:"call_id,omitempty"`
	Name        string `json:"name,omitempty"`
}

// outputItemData is the payload for output_item.added/done.
type outputItemData struct {
	OutputIndex int           `json:"output_index"`
	Item        responsesItem `json:"item"`
}

// responseEnvelopeData wraps the response object in terminal events.
type responseEnvelopeData struct {
	Response responsesResponse `json:"response"`
}
