package ai

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) (Runtime, error)

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// APIKey authenticates Gemini and OpenRouter.
	APIKey string
	// Host is the Ollama address, or a base URL override for the others.
	Host string
}

func (c RuntimeConfig) withDefaults(timeout time.Duration, retries int, base, max time.Duration) RuntimeConfig {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = timeout
	}
	if c.RetryMax <= 0 {
		c.RetryMax = retries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = base
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = max
	}
	return c
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// Providers lists the registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewRuntime creates a Runtime for the named provider.
func NewRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", name, Providers())
	}
	return f(cfg)
}

// NewEmbedder creates an embedding client for the named provider.
func NewEmbedder(name string, cfg RuntimeConfig) (Embedder, error) {
	switch name {
	case ProviderGemini, "":
		return NewGeminiClient(context.Background(), cfg)
	case ProviderOpenRouter:
		return NewOpenRouterClient(cfg), nil
	case ProviderOllama:
		return NewOllamaEmbClient(cfg), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", name)
}

func init() {
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) (Runtime, error) {
		return NewGeminiClient(context.Background(), c)
	})
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) (Runtime, error) {
		return NewOpenRouterClient(c), nil
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) (Runtime, error) {
		return NewOllamaClient(c), nil
	})
}
