package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CONCIERGE_CONFIG env, ./concierge.yaml,
//     /etc/concierge/config.yaml)
//  3. Environment variable overrides
//  4. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path. An explicit path wins,
// then CONCIERGE_CONFIG, then conventional locations. Returns empty when
// nothing is found, in which case defaults plus env overrides apply.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CONCIERGE_CONFIG"); envPath != "" {
		return envPath
	}
	candidates := []string{
		"concierge.yaml",
		"/etc/concierge/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps flat environment variables onto the config for
// container deployments that avoid mounting files.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONCIERGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CONCIERGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CONCIERGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CONCIERGE_JWT_SECRET_ENV"); v != "" {
		cfg.Auth.JWTSecretEnv = v
	}
	if v := os.Getenv("CONCIERGE_TOOL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tools.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("CONCIERGE_MODEL_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Model.CallTimeout = Duration(d)
		}
	}
	if v := os.Getenv("CONCIERGE_RETAIN_CHECKPOINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Memory.RetainCheckpoints = n
		}
	}
}
