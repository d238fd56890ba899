package anthropic

import "encoding/json"

// ContentBlock is one block of a message's content array. The Type
// discriminator selects which fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// MessageParam is one entry of the request messages array.
type MessageParam struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolParam declares a callable tool on the request.
type ToolParam struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolChoiceParam constrains which tool the model may call.
type ToolChoiceParam struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ThinkingParam enables extended thinking with a token budget.
type ThinkingParam struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// MessagesRequest is the request body for /v1/messages.
type MessagesRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []MessageParam   `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature *float64         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []ToolParam      `json:"tools,omitempty"`
	ToolChoice  *ToolChoiceParam `json:"tool_choice,omitempty"`
	Thinking    *ThinkingParam   `json:"thinking,omitempty"`
}

// MessagesUsage is the token accounting object.
type MessagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessagesResponse is the non-streaming response body.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *MessagesUsage `json:"usage,omitempty"`
}

// StreamEvent is one decoded SSE data payload. The Type discriminator
// matches the SSE event name; fields are populated per type.
type StreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	// message_start
	Message *MessagesResponse `json:"message,omitempty"`

	// content_block_start
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// content_block_delta and message_delta
	Delta *StreamDelta `json:"delta,omitempty"`

	// message_delta
	Usage *MessagesUsage `json:"usage,omitempty"`

	// error
	Error *StreamError `json:"error,omitempty"`
}

// StreamDelta carries the per-event incremental payload. For
// content_block_delta the Type sub-discriminator is text_delta,
// thinking_delta, signature_delta, or input_json_delta; for
// message_delta only StopReason is set.
type StreamDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// StreamError is the payload of an error event.
type StreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope returned on non-2xx statuses.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error StreamError `json:"error"`
}
