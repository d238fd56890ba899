// Package openaicompat implements a Provider adapter for OpenAI-compatible
// Chat Completions backends (OpenAI, OpenRouter, vLLM, LiteLLM, and the
// long tail of gateways speaking the same wire format).
//
// The streaming decoder normalizes line-delimited SSE chunks into the
// shared provider.Event model. Tool-call deltas are index-addressed.
// Reasoning content delivered through a side-channel field
// (reasoning_content or reasoning; first non-empty wins) becomes
// ThinkingDelta events. Gateways that place the final message object on a
// terminal "message" field instead of incremental "delta" fields are
// normalized through the same path.
package openaicompat
