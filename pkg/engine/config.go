package engine

import "github.com/tributary-ai/tributary/pkg/reasoning"

// Config holds configuration for the engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	// Empty string means a model is always required in the request.
	DefaultModel string

	// Filter configures thinking-markup tag recognition. The zero value
	// means the default tag set (<think> preamble, <thinking> block).
	// The Enabled flag is derived per request and ignored here.
	Filter reasoning.Config

	// TrimXMLValues trims surrounding whitespace from XML tool-call
	// parameter values. Off by default; values are preserved verbatim.
	TrimXMLValues bool

	// DisableEmptyFallback turns off the single non-streaming retry for
	// streams that produce no output.
	DisableEmptyFallback bool
}

// filterConfig returns the effective tag filter configuration with the
// enabled flag set for this request.
func (c Config) filterConfig(thinking bool) reasoning.Config {
	cfg := c.Filter
	if cfg.Preamble == nil && cfg.Block == nil {
		cfg = reasoning.DefaultConfig()
	}
	cfg.Enabled = thinking
	return cfg
}
