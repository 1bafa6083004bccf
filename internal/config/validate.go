package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration required for the given mode is
// present. Modes: "serve", "analyze", "export", "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	}
	needProviders := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.OpenAI.Key == "" {
			problems = append(problems, "openai.key is required")
		}
		if c.Perplexity.Key == "" {
			problems = append(problems, "perplexity.key is required")
		}
		if c.Gemini.Key == "" {
			problems = append(problems, "gemini.key is required")
		}
	}

	switch mode {
	case "serve":
		needStore()
		needProviders()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	case "analyze":
		needStore()
		needProviders()
	case "export", "migrate":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" || mode == "analyze" {
		if c.Engine.MaxUnits < 0 || c.Engine.MaxUnits > 1000 {
			problems = append(problems, "engine.max_units must be between 0 and 1000")
		}
		if c.Engine.ProviderRate < 0 {
			problems = append(problems, "engine.provider_rate must be >= 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
