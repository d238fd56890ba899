// Package engine orchestrates one completion request end to end: it
// drives a provider stream, routes normalized events through the
// thinking-markup filter and the tool-call assembler, recovers
// text-embedded XML tool calls for backends without native tool
// calling, and retries once non-streaming when a stream ends with no
// output at all.
package engine
