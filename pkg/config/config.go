// Package config provides configuration loading and model/provider resolution
// for the influence simulation trainer.
//
// Configuration is split three ways:
//
//   - Role settings: which model, sampling temperature, and reasoning effort
//     each persona (designer, facilitator, evaluator) uses. Loaded from an
//     optional YAML file, with defaults matching the shipped personas.
//   - Provider resolution: model name → API provider, via the KnownModels
//     registry with prefix-pattern fallback.
//   - Secrets: API keys, resolved with encrypted-secrets-file → environment
//     precedence (see secrets.go).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variable names for API keys and hosts.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// DefaultOllamaHost is used when OLLAMA_HOST is not set.
const DefaultOllamaHost = "http://localhost:11434"

// Role names for the three personas.
const (
	RoleDesigner    = "designer"
	RoleFacilitator = "facilitator"
	RoleEvaluator   = "evaluator"
)

// ModelInfo contains static information about a known model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels contains pricing and provider information for common models.
// Unknown models fall back to ProviderPatterns inference.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"o3-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.6,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.3,
		OutputCPM:        2.5,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern maps a model-name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Static inference table
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
}

// ProviderForModel resolves the API provider for a model name.
func ProviderForModel(modelName string) (string, error) {
	if info, ok := KnownModels[modelName]; ok {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("cannot infer provider for model %q", modelName)
}

// RoleConfig holds the per-persona model settings.
type RoleConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	ReasoningEffort string  `yaml:"reasoning_effort,omitempty"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// Roles groups the three persona configurations.
type Roles struct {
	Designer    RoleConfig `yaml:"designer"`
	Facilitator RoleConfig `yaml:"facilitator"`
	Evaluator   RoleConfig `yaml:"evaluator"`
}

// GatewayConfig holds settings applied to every gateway call.
type GatewayConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ArchiveConfig holds settings for the sqlite session archive.
type ArchiveConfig struct {
	Path string `yaml:"path"` // Empty disables archiving
}

// MetricsConfig holds settings for the optional Prometheus summary query.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url,omitempty"`
}

// Config is the top-level configuration aggregate.
type Config struct {
	Roles   Roles         `yaml:"roles"`
	Gateway GatewayConfig `yaml:"gateway"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the configuration matching the shipped personas:
// a high-effort reasoning model for scenario design and a conversational
// model at temperature 0.7 for facilitation and evaluation.
func DefaultConfig() *Config {
	return &Config{
		Roles: Roles{
			Designer: RoleConfig{
				Model:           "o3-mini",
				ReasoningEffort: "high",
				MaxTokens:       4096,
			},
			Facilitator: RoleConfig{
				Model:       "gpt-4o",
				Temperature: 0.7,
				MaxTokens:   4096,
			},
			Evaluator: RoleConfig{
				Model:       "gpt-4o",
				Temperature: 0.7,
				MaxTokens:   4096,
			},
		},
		Gateway: GatewayConfig{
			TimeoutSeconds: 120,
		},
		Archive: ArchiveConfig{
			Path: "influencesim.db",
		},
	}
}

// Load reads configuration from a YAML file overlaid on DefaultConfig.
// A missing file is not an error: defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	roles := map[string]*RoleConfig{
		RoleDesigner:    &c.Roles.Designer,
		RoleFacilitator: &c.Roles.Facilitator,
		RoleEvaluator:   &c.Roles.Evaluator,
	}
	for name, rc := range roles {
		if rc.Model == "" {
			return fmt.Errorf("role %s: model cannot be empty", name)
		}
		if rc.MaxTokens <= 0 {
			return fmt.Errorf("role %s: max tokens must be positive", name)
		}
		if rc.Temperature < 0.0 || rc.Temperature > 2.0 {
			return fmt.Errorf("role %s: temperature must be between 0.0 and 2.0", name)
		}
		if _, err := ProviderForModel(rc.Model); err != nil {
			return fmt.Errorf("role %s: %w", name, err)
		}
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	return nil
}

// Timeout returns the per-call gateway timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// GetAPIKey returns the credential for a provider using the standard
// precedence (decrypted secrets file, then environment). For Ollama it
// returns the host URL instead, since the local runtime has no API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err != nil {
		return "", fmt.Errorf("no API key for provider %s: %w", provider, err)
	}
	return key, nil
}
