// Package toolcall reconciles incremental tool-call data into completed
// invocation records.
//
// Two independent mechanisms live here:
//
//   - [Assembler] consumes per-fragment tool-call deltas (id/name/argument
//     pieces, keyed by output position or by identifier) as produced by the
//     vendor stream decoders, and returns completed calls at stream end.
//   - [XMLParser] extracts the text-embedded XML tool-call syntax
//     ("<toolName><param>value</param></toolName>") from visible text when
//     a provider has no native function calling.
//
// Neither validates tool arguments: argument text is assembled verbatim,
// and [DecodeArguments] degrades to an empty object when it does not parse.
package toolcall
