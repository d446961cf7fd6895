// Package config provides agent configuration, provider resolution, and API key lookup.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider constants. These are the canonical provider names used for
// registry lookup, credential resolution, and metrics labels.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// API key environment variable names.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	DefaultOllamaHost = "http://localhost:11434"
)

// Model name constants.
const (
	ModelGPT4          = "gpt-4"
	ModelGPT4o         = "gpt-4o"
	ModelClaudeSonnet4 = "claude-sonnet-4-5"
	ModelGeminiFlash   = "gemini-2.5-flash"
	ModelGeminiPro     = "gemini-2.5-pro"
)

// providerAliases maps alternate provider spellings to canonical names.
// Normalization happens before any registry lookup.
//
//nolint:gochecknoglobals // Static alias table
var providerAliases = map[string]string{
	"gemini": ProviderGoogle,
	"claude": ProviderAnthropic,
}

// modelPrefixes maps bare model-name prefixes to providers for keys that
// omit the "provider/" part.
//
//nolint:gochecknoglobals // Static lookup table
var modelPrefixes = []struct {
	Prefix   string
	Provider string
}{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"mistral", ProviderOllama},
	{"qwen", ProviderOllama},
	{"deepseek", ProviderOllama},
}

// NormalizeProvider resolves provider aliases to canonical provider names.
func NormalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// ResolveModelKey splits a "provider/model" key into a canonical provider
// and a model name. Keys without a provider part are resolved by model-name
// prefix. Unresolvable keys are a configuration error, never a fallthrough.
func ResolveModelKey(key string) (provider, model string, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", fmt.Errorf("model key cannot be empty")
	}

	if before, after, found := strings.Cut(key, "/"); found {
		provider = NormalizeProvider(before)
		model = after
		switch provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
			return provider, model, nil
		default:
			return "", "", fmt.Errorf("unknown provider %q in model key %q", before, key)
		}
	}

	lower := strings.ToLower(key)
	for _, entry := range modelPrefixes {
		if strings.HasPrefix(lower, entry.Prefix) {
			return entry.Provider, key, nil
		}
	}

	return "", "", fmt.Errorf("cannot determine provider for model %q", key)
}

// GetAPIKey returns the credential for a provider from environment
// variables. For Ollama it returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	provider = NormalizeProvider(provider)

	if provider == ProviderOllama {
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	}

	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("missing API key: %s not set for provider %s", envVar, provider)
	}
	return key, nil
}

// AgentConfig holds the agent behavior settings.
type AgentConfig struct {
	DefaultModel    string  `yaml:"default_model"`
	SafetyTier      string  `yaml:"safety_tier"`
	AutoExecute     bool    `yaml:"auto_execute"`
	RequireApproval bool    `yaml:"require_approval"`
	StreamResponses bool    `yaml:"stream_responses"`
	MaxSteps        int     `yaml:"max_steps"`
	MaxHistory      int     `yaml:"max_history"`
	MaxContextCells int     `yaml:"max_context_cells"`
	Temperature     float32 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// TranscriptConfig controls the optional SQLite transcript sink.
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the top-level configuration document.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// DefaultConfig returns the built-in defaults, used when no config file is
// present and as the base for partial files.
func DefaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			DefaultModel:    "openai/" + ModelGPT4,
			SafetyTier:      "balanced",
			AutoExecute:     false,
			RequireApproval: true,
			StreamResponses: true,
			MaxSteps:        10,
			MaxHistory:      100,
			MaxContextCells: 20,
			Temperature:     0.7,
			MaxTokens:       4096,
		},
		Transcript: TranscriptConfig{
			Enabled: false,
			Path:    "nbagent.db",
		},
	}
}

// Load reads a YAML config file, layering it over the defaults. A missing
// file is not an error; NBAGENT_MODEL overrides the model key either way.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if model := os.Getenv("NBAGENT_MODEL"); model != "" {
		cfg.Agent.DefaultModel = model
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if _, _, err := ResolveModelKey(c.Agent.DefaultModel); err != nil {
		return fmt.Errorf("invalid default_model: %w", err)
	}
	switch c.Agent.SafetyTier {
	case "strict", "balanced", "permissive":
	default:
		return fmt.Errorf("safety_tier must be strict, balanced, or permissive, got %q", c.Agent.SafetyTier)
	}
	if c.Agent.MaxHistory <= 0 {
		return fmt.Errorf("max_history must be positive")
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Agent.Temperature < 0.0 || c.Agent.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}
