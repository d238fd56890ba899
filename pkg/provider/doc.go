// Package provider defines the backend abstraction for tributary: the
// [Provider] interface, the normalized streaming [Event] model, and the
// request types shared by all vendor adapters.
//
// Each vendor adapter (openaicompat, anthropic, responses) decodes its own
// wire protocol into the same ordered Event sequence:
//
//	TextDelta* | ThinkingDelta* | ToolCallDelta* ... Done
//
// so that everything downstream (thinking-tag filtering, tool-call
// assembly, XML tool-call extraction) is vendor-independent.
package provider
