// Package config holds the runtime configuration for the concierge service:
// provider preference order, credentials, tool limits, authentication and
// logging. Configuration is loaded from YAML with environment variable
// overrides.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use human-readable
// values like "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Bare numbers are taken as
// seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ProviderConfig configures a single model provider entry in the fallback
// chain.
type ProviderConfig struct {
	// Name identifies the provider implementation: "anthropic", "openai"
	// or "gemini".
	Name string `yaml:"name"`

	// Model is the provider-specific model identifier. Empty selects the
	// adapter default.
	Model string `yaml:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key. Empty
	// falls back to the adapter's conventional variable.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// MaxTokens caps the completion length. Zero selects the adapter
	// default.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature controls sampling. Nil selects the adapter default.
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// JWTSecretEnv names the environment variable holding the HS256
	// signing secret. Empty disables JWT auth; all requests are then
	// treated as unauthenticated.
	JWTSecretEnv string `yaml:"jwt_secret_env,omitempty"`

	// Issuer is the expected iss claim, if set.
	Issuer string `yaml:"issuer,omitempty"`

	// Audience is the expected aud claim, if set.
	Audience string `yaml:"audience,omitempty"`
}

// ToolConfig configures tool execution limits.
type ToolConfig struct {
	// Timeout bounds a single tool invocation.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// ModelConfig configures the provider manager.
type ModelConfig struct {
	// Providers is the ordered fallback chain. Earlier entries are
	// preferred.
	Providers []ProviderConfig `yaml:"providers"`

	// CallTimeout bounds a single provider call.
	CallTimeout Duration `yaml:"call_timeout,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is "json" or "text".
	Format string `yaml:"format,omitempty"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr,omitempty"`
}

// MemoryConfig configures conversation persistence.
type MemoryConfig struct {
	// RetainCheckpoints bounds the per-thread checkpoint audit trail.
	// Zero retains all checkpoints.
	RetainCheckpoints int `yaml:"retain_checkpoints,omitempty"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Auth    AuthConfig    `yaml:"auth"`
	Tools   ToolConfig    `yaml:"tools"`
	Memory  MemoryConfig  `yaml:"memory"`
	Logging LoggingConfig `yaml:"logging"`
}

// Defaults returns the built-in configuration: an Anthropic-then-OpenAI
// fallback chain with conventional credential variables.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Model: ModelConfig{
			Providers: []ProviderConfig{
				{Name: "anthropic"},
				{Name: "openai"},
			},
			CallTimeout: Duration(60 * time.Second),
		},
		Tools: ToolConfig{
			Timeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Model.Providers) == 0 {
		return fmt.Errorf("model.providers must list at least one provider")
	}
	seen := make(map[string]bool, len(c.Model.Providers))
	for i, p := range c.Model.Providers {
		switch p.Name {
		case "anthropic", "openai", "gemini":
		case "":
			return fmt.Errorf("model.providers[%d]: name is required", i)
		default:
			return fmt.Errorf("model.providers[%d]: unknown provider %q", i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("model.providers[%d]: duplicate provider %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	if c.Model.CallTimeout < 0 {
		return fmt.Errorf("model.call_timeout must not be negative")
	}
	if c.Tools.Timeout < 0 {
		return fmt.Errorf("tools.timeout must not be negative")
	}
	if c.Memory.RetainCheckpoints < 0 {
		return fmt.Errorf("memory.retain_checkpoints must not be negative")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
