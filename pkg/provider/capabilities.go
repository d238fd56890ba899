package provider

import "github.com/tributary-ai/tributary/pkg/api"

// Capabilities declares what features a backend supports. Used by the
// engine for early request validation and for deciding whether tool
// calling must fall back to the text-embedded XML syntax.
type Capabilities struct {
	// Streaming indicates whether the provider supports streaming responses.
	Streaming bool

	// ToolCalling indicates whether the provider supports native
	// function/tool calls. When false and a request carries tools, the
	// engine routes visible text through the XML tool-call parser instead.
	ToolCalling bool

	// Thinking indicates whether the provider exposes a structured
	// reasoning side-channel. Inline thinking markup may appear either way.
	Thinking bool
}

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
//
// A request with tools against a provider without native tool calling is
// NOT an error: the engine handles it via the XML fallback syntax.
func ValidateCapabilities(caps Capabilities, req *Request) *api.APIError {
	if req.Stream && !caps.Streaming {
		return api.NewInvalidRequestError("stream",
			"the configured provider does not support streaming responses")
	}

	if req.ToolChoice != nil && req.ToolChoice.Mode == "required" && len(req.Tools) == 0 {
		return api.NewInvalidRequestError("tool_choice",
			"tool_choice requires at least one tool")
	}

	return nil
}
