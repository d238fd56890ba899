// Package api defines the shared protocol-facing types for tributary.
//
// This package provides the pieces that every other package builds on:
// structured errors ([APIError], [ProviderHTTPError]), token usage
// accounting ([Usage]), finish reasons, and call-identifier generation.
//
// The package has zero external dependencies (Go standard library only)
// and performs no I/O.
package api
