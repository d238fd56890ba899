package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/provider"
)

func unmarshalEvent(payload string, ev *StreamEvent) error {
	return json.Unmarshal([]byte(payload), ev)
}

// translateRequest converts a normalized request into the Messages API
// shape. System messages move to the top-level system field; tool result
// messages become user messages carrying a tool_result block.
func translateRequest(req *provider.Request, maxTokens, thinkingBudget int) *MessagesRequest {
	out := &MessagesRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.Thinking {
		out.Thinking = &ThinkingParam{Type: "enabled", BudgetTokens: thinkingBudget}
	}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "tool":
			out.Messages = append(out.Messages, MessageParam{
				Role: "user",
				Content: []ContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case "assistant":
			var blocks []ContentBlock
			if m.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			out.Messages = append(out.Messages, MessageParam{Role: "assistant", Content: blocks})
		default:
			out.Messages = append(out.Messages, MessageParam{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	out.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ToolParam{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	if tc := req.ToolChoice; tc != nil {
		switch {
		case tc.Name != "":
			out.ToolChoice = &ToolChoiceParam{Type: "tool", Name: tc.Name}
		case tc.Mode == "required":
			out.ToolChoice = &ToolChoiceParam{Type: "any"}
		case tc.Mode != "":
			out.ToolChoice = &ToolChoiceParam{Type: tc.Mode}
		}
	}
	return out
}

// translateResponse converts a non-streaming Messages response into the
// normalized form.
func translateResponse(resp *MessagesResponse) *provider.Response {
	out := &provider.Response{
		Model:        resp.Model,
		FinishReason: mapStopReason(resp.StopReason),
	}
	var text, thinking strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			thinking.WriteString(block.Thinking)
			out.ThinkingSignature += block.Signature
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out.Text = text.String()
	out.Thinking = thinking.String()
	if resp.Usage != nil {
		out.Usage = &api.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out
}

func mapStopReason(reason string) api.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return api.FinishReasonStop
	case "max_tokens":
		return api.FinishReasonLength
	case "tool_use":
		return api.FinishReasonToolCalls
	case "refusal":
		return api.FinishReasonFiltered
	case "":
		return ""
	default:
		return api.FinishReasonStop
	}
}
