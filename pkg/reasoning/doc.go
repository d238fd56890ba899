// Package reasoning filters inline chain-of-thought markup out of a
// streamed visible-text channel.
//
// Some backends prepend their reasoning as plaintext markup (for example
// a leading "<think>...</think>" section) instead of using a structured
// side-channel field. [TagFilter] splits the visible-text stream into
// plain text and thinking sub-streams without ever assuming that a
// fragment boundary aligns with a tag boundary.
package reasoning
