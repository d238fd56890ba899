// Package config provides unified configuration for tributary.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TRIBUTARY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for tributary.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Engine    EngineConfig    `yaml:"engine"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ProviderConfig selects and configures the backend adapter.
type ProviderConfig struct {
	// Type is the wire protocol: "openaicompat", "anthropic", or
	// "responses". Default: "openaicompat".
	Type string `yaml:"type"`

	// BaseURL is the backend root URL. Required.
	BaseURL string `yaml:"base_url"`

	// Name overrides the provider name used in logs and metrics.
	Name string `yaml:"name"`

	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key

	// Timeout applies to non-streaming requests. Default: 120s.
	Timeout time.Duration `yaml:"timeout"`

	// ToolCalling marks an openaicompat backend as supporting native
	// tool calls. Anthropic and Responses backends always do.
	ToolCalling bool `yaml:"tool_calling"`

	// Thinking marks an openaicompat backend as having a reasoning
	// side-channel.
	Thinking bool `yaml:"thinking"`
}

// EngineConfig holds orchestration settings.
type EngineConfig struct {
	DefaultModel string `yaml:"default_model"` // optional

	// DisableEmptyFallback turns off the single non-streaming retry for
	// streams that produce no output.
	DisableEmptyFallback bool `yaml:"disable_empty_fallback"`
}

// ReasoningConfig holds thinking-markup filter settings.
type ReasoningConfig struct {
	// PreambleHandling is "forward" or "drop" for the stream-start tag
	// family. Default: "forward".
	PreambleHandling string `yaml:"preamble_handling"`

	// BlockHandling is "forward" or "drop" for the line-anchored tag
	// family. Default: "forward".
	BlockHandling string `yaml:"block_handling"`

	// TrimXMLValues trims whitespace around XML tool-call parameter
	// values. Default: false (preserve verbatim).
	TrimXMLValues bool `yaml:"trim_xml_values"`
}

// StorageConfig holds transcript persistence settings.
type StorageConfig struct {
	// Type is "none", "memory", or "postgres". Default: "none".
	Type     string         `yaml:"type"`
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // default: ":9090"
	Path    string `yaml:"path"` // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Type:    "openaicompat",
			Timeout: 120 * time.Second,
		},
		Reasoning: ReasoningConfig{
			PreambleHandling: "forward",
			BlockHandling:    "forward",
		},
		Storage: StorageConfig{
			Type:    "none",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}
