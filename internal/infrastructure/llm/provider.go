package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
)

// Provider is the infrastructure-layer LLM provider interface. Each
// concrete adapter (anthropic, openai, gemini, mock) implements
// service.LLMClient's Chat/Name/SupportsModel plus availability/model
// listing for the Router.
type Provider interface {
	service.LLMClient

	// Models returns the list of supported model identifiers.
	Models() []string

	// IsAvailable checks if the provider is reachable.
	IsAvailable(ctx context.Context) bool
}

// ProviderConfig holds configuration for an LLM provider.
type ProviderConfig struct {
	Name     string
	Type     string // "openai" (default) | "anthropic" | "gemini" | "mock"
	BaseURL  string
	APIKey   string
	Models   []string
	Priority int // carried from config; the Router tries providers in insertion order, not by Priority
}

// ProviderFactory creates a Provider from config.
type ProviderFactory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory for the given type name.
// Called from init() in each provider adapter file (anthropic.go, openai.go,
// gemini.go, mock.go).
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider creates a Provider using the registered factory for cfg.Type.
// If Type is empty, defaults to "openai".
func CreateProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "openai"
	}

	factoryMu.RLock()
	factory, ok := factories[t]
	factoryMu.RUnlock()

	if !ok {
		available := make([]string, 0, len(factories))
		factoryMu.RLock()
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", t, available)
	}

	return factory(cfg, logger), nil
}
