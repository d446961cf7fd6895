// Package agent provides the generation-backend registry and response streamer.
package agent

import (
	"strings"
	"sync"

	"nbagent/pkg/agent/internal/llmimpl/anthropic"
	"nbagent/pkg/agent/internal/llmimpl/google"
	"nbagent/pkg/agent/internal/llmimpl/ollama"
	"nbagent/pkg/agent/internal/llmimpl/openai"
	"nbagent/pkg/agent/llm"
	"nbagent/pkg/agent/llmerrors"
	"nbagent/pkg/config"
)

// Constructor builds a raw client for a provider from a resolved credential
// and model name. For Ollama the credential is the host URL.
type Constructor func(credential, model string) llm.Client

// Registry maps canonical provider names to client constructors and
// tracks which providers have a streaming implementation registered.
// Unknown keys fail with a configuration error at lookup.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	streaming    map[string]bool
	clients      map[string]llm.Client // cache keyed by provider/model
	overrides    map[string]llm.Client // pre-built clients, bypass credentials
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		streaming:    make(map[string]bool),
		clients:      make(map[string]llm.Client),
		overrides:    make(map[string]llm.Client),
	}
}

// DefaultRegistry creates a registry with all built-in providers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.ProviderAnthropic, anthropic.NewClient, true)
	r.Register(config.ProviderOpenAI, openai.NewClient, true)
	r.Register(config.ProviderGoogle, google.NewClient, true)
	r.Register(config.ProviderOllama, ollama.NewClient, true)
	return r
}

// Register adds a provider constructor. streaming declares whether the
// provider has a streaming implementation; providers registered without it
// are served through the non-streaming fallback.
func (r *Registry) Register(provider string, ctor Constructor, streaming bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	provider = config.NormalizeProvider(provider)
	r.constructors[provider] = ctor
	r.streaming[provider] = streaming
}

// RegisterClient installs a pre-built client for a provider, bypassing
// credential resolution. Used for tests and embedded backends.
func (r *Registry) RegisterClient(provider string, client llm.Client, streaming bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	provider = config.NormalizeProvider(provider)
	r.overrides[provider] = client
	r.streaming[provider] = streaming
}

// SupportsStreaming reports whether a provider has a streaming implementation.
func (r *Registry) SupportsStreaming(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streaming[config.NormalizeProvider(provider)]
}

// Resolve maps a "provider/model" key to a client. The provider part is
// alias-normalized before lookup. An unknown provider or a missing
// credential is a configuration error, never a silent fallthrough.
func (r *Registry) Resolve(key string) (llm.Client, string, error) {
	var provider, model string
	if before, after, found := strings.Cut(key, "/"); found {
		provider = config.NormalizeProvider(before)
		model = after
	} else {
		var err error
		provider, model, err = config.ResolveModelKey(key)
		if err != nil {
			return nil, "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeConfiguration, err, "cannot resolve model key")
		}
	}

	r.mu.RLock()
	override := r.overrides[provider]
	ctor := r.constructors[provider]
	cached := r.clients[provider+"/"+model]
	r.mu.RUnlock()

	if override != nil {
		return override, provider, nil
	}
	if cached != nil {
		return cached, provider, nil
	}
	if ctor == nil {
		return nil, "", llmerrors.NewErrorf(llmerrors.ErrorTypeConfiguration, "unknown provider %q for model key %q", provider, key)
	}

	credential, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeConfiguration, err, "credential resolution failed")
	}

	client := ctor(credential, model)

	r.mu.Lock()
	r.clients[provider+"/"+model] = client
	r.mu.Unlock()

	return client, provider, nil
}
