// Package anthropic implements a Provider adapter for the Anthropic
// Messages API.
//
// The streaming decoder consumes the event/data SSE framing
// (message_start, content_block_start, content_block_delta,
// content_block_stop, message_delta, message_stop, ping, error) and
// normalizes it into provider events. Thinking arrives as a typed
// content block rather than a side-channel field; signature_delta
// fragments are forwarded opaquely. Tool-call deltas are
// index-addressed, with the stable call id known from the block start.
package anthropic
