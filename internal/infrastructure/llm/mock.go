package llm

import (
	"context"
	"fmt"

	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
)

func init() {
	RegisterFactory("mock", newMockProvider)
}

// MockProvider is a deterministic, scriptable LLMClient used by test
// scenarios S1-S6 (§8) and by any run configured with a provider of type
// "mock". It never calls out to a network; once its Script is exhausted
// (or when none is set) every call returns a canned "TASK_COMPLETE: done"
// turn with no tool call, so the Executor's turn loop and scoring path are
// exercised end-to-end without external dependencies.
type MockProvider struct {
	name   string
	models []string
	logger *zap.Logger

	// Script, if set, is consulted in order for canned responses per call
	// index — used by tests to drive S2's "first 10 calls throttle" shape.
	Script []MockTurn
	calls  int
}

// MockTurn is one scripted response.
type MockTurn struct {
	Text string
	Err  error
}

func newMockProvider(cfg ProviderConfig, logger *zap.Logger) Provider {
	return &MockProvider{
		name:   firstNonEmpty(cfg.Name, "mock"),
		models: cfg.Models,
		logger: logger.With(zap.String("provider", "mock")),
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (m *MockProvider) Name() string    { return m.name }
func (m *MockProvider) Models() []string { return m.models }

func (m *MockProvider) SupportsModel(model string) bool {
	if len(m.models) == 0 {
		return true // an unconfigured mock accepts anything
	}
	for _, mm := range m.models {
		if mm == model {
			return true
		}
	}
	return false
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool { return true }

// Chat returns the next scripted turn, or a generic "done" response once
// the script is exhausted.
func (m *MockProvider) Chat(ctx context.Context, messages []service.ChatMessage, opts service.ChatOptions) (string, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.Script) {
		t := m.Script[idx]
		if t.Err != nil {
			return "", t.Err
		}
		return t.Text, nil
	}
	return "TASK_COMPLETE: done", nil
}

// DescribeTurnCount is a small observability helper for tests asserting
// how many calls a scripted mock actually received.
func (m *MockProvider) DescribeTurnCount() string {
	return fmt.Sprintf("%s: %d calls", m.name, m.calls)
}
