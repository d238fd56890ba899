package responses

import (
	"encoding/json"
	"strings"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/provider"
)

// translateRequest converts a normalized request into the Responses API
// shape. System messages move to the instructions field; assistant tool
// calls and tool results become function_call / function_call_output
// items.
func translateRequest(req *provider.Request) *responsesRequest {
	out := &responsesRequest{
		Model:           req.Model,
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
		Stream:          req.Stream,
		Store:           false,
	}
	if req.Thinking {
		out.Reasoning = &reasoningOpts{Summary: "auto"}
	}

	var instructions []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			instructions = append(instructions, m.Content)
		case "tool":
			out.Input = append(out.Input, responsesItem{
				Type:   "function_call_output",
				CallID: m.ToolCallID,
				Output: m.Content,
			})
		case "assistant":
			if m.Content != "" {
				out.Input = append(out.Input, messageItem("assistant", "output_text", m.Content))
			}
			for _, tc := range m.ToolCalls {
				out.Input = append(out.Input, responsesItem{
					Type:      "function_call",
					CallID:    tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments,
				})
			}
		default:
			out.Input = append(out.Input, messageItem("user", "input_text", m.Content))
		}
	}
	out.Instructions = strings.Join(instructions, "\n\n")

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, responsesTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	if tc := req.ToolChoice; tc != nil {
		if tc.Name != "" {
			out.ToolChoice = map[string]string{"type": "function", "name": tc.Name}
		} else if tc.Mode != "" {
			out.ToolChoice = tc.Mode
		}
	}
	return out
}

func messageItem(role, partType, text string) responsesItem {
	parts, _ := json.Marshal([]responsesContentPart{{Type: partType, Text: text}})
	return responsesItem{Type: "message", Role: role, Content: parts}
}

// translateResponse converts a non-streaming response object into the
// normalized form.
func translateResponse(resp *responsesResponse) *provider.Response {
	out := &provider.Response{
		Model:        resp.Model,
		FinishReason: mapStatus(resp),
	}
	var text, thinking strings.Builder
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			var parts []responsesContentPart
			if err := json.Unmarshal(item.Content, &parts); err != nil {
				continue
			}
			for _, p := range parts {
				if p.Type == "output_text" {
					text.WriteString(p.Text)
				}
			}
		case "reasoning":
			var parts []responsesContentPart
			if err := json.Unmarshal(item.Content, &parts); err != nil {
				continue
			}
			for _, p := range parts {
				thinking.WriteString(p.Text)
			}
		case "function_call":
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				ID:        item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	out.Text = text.String()
	out.Thinking = thinking.String()
	if resp.Usage != nil {
		out.Usage = &api.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return out
}
