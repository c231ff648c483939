package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
)

// Router implements service.LLMClient by routing to the first available
// provider that supports the requested model, with per-provider circuit
// breakers and latency/failure stats — unchanged from the teacher's
// design, minus GenerateStream (the harness never streams).
type Router struct {
	providers []Provider
	stats     map[string]*providerStats
	breakers  map[string]*CircuitBreaker
	mu        sync.RWMutex
	logger    *zap.Logger
}

type providerStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

// NewRouter creates a new LLM router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		stats:    make(map[string]*providerStats),
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger.With(zap.String("component", "llm-router")),
	}
}

var _ service.LLMClient = (*Router)(nil)

// AddProvider adds a provider to the router. Providers are tried in
// insertion order.
func (r *Router) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.stats[p.Name()] = &providerStats{}
	r.breakers[p.Name()] = NewCircuitBreakerForProvider(p.Name())
	r.logger.Info("LLM provider added", zap.String("name", p.Name()), zap.Strings("models", p.Models()))
}

// Name implements service.LLMClient; the Router itself is addressed as "router".
func (r *Router) Name() string { return "router" }

// SupportsModel reports whether any registered provider supports model.
func (r *Router) SupportsModel(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.SupportsModel(model) {
			return true
		}
	}
	return false
}

// Chat implements service.LLMClient by routing to the first healthy,
// model-supporting provider in insertion order.
func (r *Router) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (string, error) {
	r.mu.RLock()
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	var lastErr error

	for _, p := range providers {
		if !p.SupportsModel(opts.Model) {
			continue
		}
		if !p.IsAvailable(ctx) {
			r.logger.Debug("provider unavailable, skipping", zap.String("provider", p.Name()))
			continue
		}
		if cb, ok := r.breakers[p.Name()]; ok && !cb.Allow() {
			r.logger.Debug("provider circuit open, skipping", zap.String("provider", p.Name()))
			continue
		}

		start := time.Now()
		text, err := p.Chat(ctx, messages, opts)
		latency := time.Since(start)

		r.mu.Lock()
		if s, ok := r.stats[p.Name()]; ok {
			s.TotalCalls++
			s.LastLatency = latency
			if err != nil {
				s.FailureCount++
			}
		}
		r.mu.Unlock()

		if err != nil {
			if cb, ok := r.breakers[p.Name()]; ok {
				cb.RecordFailure()
			}
			lastErr = err
			r.logger.Warn("provider failed, trying next",
				zap.String("provider", p.Name()), zap.Duration("latency", latency), zap.Error(err))
			continue
		}

		if cb, ok := r.breakers[p.Name()]; ok {
			cb.RecordSuccess()
		}
		return text, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
	}
	return "", fmt.Errorf("no provider available for model %q", opts.Model)
}

// ListProviders returns names, status, and performance stats of all registered providers.
func (r *Router) ListProviders(ctx context.Context) []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ProviderStatus
	for _, p := range r.providers {
		ps := ProviderStatus{Name: p.Name(), Models: p.Models(), Available: p.IsAvailable(ctx)}
		if s, ok := r.stats[p.Name()]; ok {
			ps.TotalCalls = s.TotalCalls
			ps.FailureCount = s.FailureCount
			ps.LastLatencyMs = float64(s.LastLatency) / float64(time.Millisecond)
		}
		if cb, ok := r.breakers[p.Name()]; ok {
			ps.CircuitState = cb.State().String()
		}
		result = append(result, ps)
	}
	return result
}

// ProviderStatus describes a provider's current state and performance.
type ProviderStatus struct {
	Name          string
	Models        []string
	Available     bool
	TotalCalls    int64
	FailureCount  int64
	LastLatencyMs float64
	CircuitState  string
}
