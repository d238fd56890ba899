package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider.Type {
	case "openaicompat", "anthropic", "responses":
		// valid
	default:
		errs = append(errs, fmt.Errorf("provider.type must be \"openaicompat\", \"anthropic\", or \"responses\", got %q", c.Provider.Type))
	}

	// The anthropic adapter has a built-in default base URL; the other
	// two are generic and need one.
	if c.Provider.BaseURL == "" && c.Provider.Type != "anthropic" {
		errs = append(errs, fmt.Errorf("provider.base_url is required"))
	}

	switch c.Reasoning.PreambleHandling {
	case "forward", "drop":
		// valid
	default:
		errs = append(errs, fmt.Errorf("reasoning.preamble_handling must be \"forward\" or \"drop\", got %q", c.Reasoning.PreambleHandling))
	}
	switch c.Reasoning.BlockHandling {
	case "forward", "drop":
		// valid
	default:
		errs = append(errs, fmt.Errorf("reasoning.block_handling must be \"forward\" or \"drop\", got %q", c.Reasoning.BlockHandling))
	}

	switch c.Storage.Type {
	case "none", "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\", or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	return errors.Join(errs...)
}
