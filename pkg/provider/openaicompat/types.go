package openaicompat

import "encoding/json"

// ChatMessage is one entry of the Chat Completions messages array.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ChatToolCall is a fully assembled tool call on a request or
// non-streaming response message.
type ChatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ChatToolFunction `json:"function"`
}

// ChatToolFunction holds the callable name and its JSON-encoded arguments.
type ChatToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool declares a callable function on the request.
type ChatTool struct {
	Type     string             `json:"type"`
	Function ChatToolDefinition `json:"function"`
}

// ChatToolDefinition mirrors the function object of the tools array.
type ChatToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatToolChoice constrains which tool the model may call.
type ChatToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// ChatCompletionRequest is the request body for /v1/chat/completions.
type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []ChatMessage   `json:"messages"`
	Tools       []ChatTool      `json:"tools,omitempty"`
	ToolChoice  any             `json:"tool_choice,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	StreamOpts  *ChatStreamOpts `json:"stream_options,omitempty"`
}

// ChatStreamOpts asks the backend to attach usage to the final chunk.
type ChatStreamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatUsage is the token accounting object.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponseMessage is the assembled assistant message of a
// non-streaming response, or the terminal "message" field some gateways
// emit on the last stream chunk.
type ChatResponseMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
	ToolCalls        []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionResponse is the non-streaming response body.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int                 `json:"index"`
		Message      ChatResponseMessage `json:"message"`
		FinishReason string              `json:"finish_reason"`
	} `json:"choices"`
	Usage *ChatUsage `json:"usage,omitempty"`
}

// ChatDelta carries the incremental fields of a streaming chunk.
// ReasoningContent and Reasoning are side-channel thinking fields; at
// most one is populated per chunk and the first non-empty one wins.
type ChatDelta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	ToolCalls        []ChatToolDelta `json:"tool_calls,omitempty"`
}

// ChatToolDelta is one index-addressed fragment of a streamed tool call.
// ID and Function.Name are typically present only on the first fragment
// for a given index.
type ChatToolDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// ChatCompletionChunk is one SSE data payload of a streamed completion.
// Delta is the standard incremental shape; Message is the terminal
// full-message shape emitted by some gateways. Both may appear within
// one stream and are normalized identically.
type ChatCompletionChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int                  `json:"index"`
		Delta        ChatDelta            `json:"delta"`
		Message      *ChatResponseMessage `json:"message,omitempty"`
		FinishReason *string              `json:"finish_reason"`
	} `json:"choices"`
	Usage *ChatUsage `json:"usage,omitempty"`
}

// ChatErrorResponse is the error envelope returned on non-2xx statuses.
type ChatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}
