package openaicompat

import (
	"encoding/json"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/provider"
)

func unmarshalChunk(payload string, chunk *ChatCompletionChunk) error {
	return json.Unmarshal([]byte(payload), chunk)
}

// TranslateRequest converts a normalized request into the Chat
// Completions wire shape.
func TranslateRequest(req *provider.Request) *ChatCompletionRequest {
	out := &ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]ChatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	}
	if req.Stream {
		out.StreamOpts = &ChatStreamOpts{IncludeUsage: true}
	}
	for _, m := range req.Messages {
		cm := ChatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ChatToolFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, cm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ChatTool{
			Type: "function",
			Function: ChatToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if tc := req.ToolChoice; tc != nil {
		if tc.Name != "" {
			choice := ChatToolChoice{Type: "function"}
			choice.Function.Name = tc.Name
			out.ToolChoice = choice
		} else if tc.Mode != "" {
			out.ToolChoice = tc.Mode
		}
	}
	return out
}

// TranslateResponse converts a non-streaming Chat Completions response
// into the normalized form, applying the same side-channel precedence
// as the streaming path.
func TranslateResponse(resp *ChatCompletionResponse) *provider.Response {
	out := &provider.Response{Model: resp.Model}
	if resp.Usage != nil {
		out.Usage = translateUsage(resp.Usage)
	}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.Text = choice.Message.Content
	out.Thinking = firstNonEmpty(choice.Message.ReasoningContent, choice.Message.Reasoning)
	out.FinishReason = mapFinishReason(choice.FinishReason)
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func translateUsage(u *ChatUsage) *api.Usage {
	return &api.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func mapFinishReason(reason string) api.FinishReason {
	switch reason {
	case "stop":
		return api.FinishReasonStop
	case "length":
		return api.FinishReasonLength
	case "tool_calls", "function_call":
		return api.FinishReasonToolCalls
	case "content_filter":
		return api.FinishReasonFiltered
	case "":
		return ""
	default:
		return api.FinishReasonStop
	}
}
