package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults applied before environment overrides.
const (
	DefaultProvider      = "anthropic"
	DefaultModel         = "claude-sonnet-4-6"
	DefaultWorkDir       = "./workspace"
	DefaultMaxIterations = 20
	DefaultScriptTimeout = 30 * time.Second
	DefaultLogLevel      = "info"
)

// Config holds runtime configuration assembled from defaults and
// environment variables.
type Config struct {
	// Agent
	Provider      string
	Model         string
	WorkDir       string
	MaxIterations int
	ScriptTimeout time.Duration
	LogLevel      string

	// Provider credentials
	AnthropicAPIKey  string
	AnthropicBaseURL string // override for custom proxies
	OpenAIAPIKey     string
}

// Load builds a Config from defaults overridden by the environment.
func Load() *Config {
	cfg := &Config{
		Provider:      DefaultProvider,
		Model:         DefaultModel,
		WorkDir:       DefaultWorkDir,
		MaxIterations: DefaultMaxIterations,
		ScriptTimeout: DefaultScriptTimeout,
		LogLevel:      DefaultLogLevel,
	}
	applyEnvOverrides(cfg)
	return cfg
}

// APIKey returns the credential for the configured provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("CODEWRIGHT_PROVIDER", ""); v != "" {
		cfg.Provider = v
	}
	if v := getEnv("CODEWRIGHT_MODEL", ""); v != "" {
		cfg.Model = v
	}
	if v := getEnv("CODEWRIGHT_WORKDIR", ""); v != "" {
		cfg.WorkDir = v
	}
	if v := getEnv("CODEWRIGHT_MAX_ITERATIONS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxIterations = n
		}
	}
	if v := getEnv("CODEWRIGHT_SCRIPT_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ScriptTimeout = d
		}
	}
	if v := getEnv("CODEWRIGHT_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("OPENAI_API_KEY", ""); v != "" {
		cfg.OpenAIAPIKey = v
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
