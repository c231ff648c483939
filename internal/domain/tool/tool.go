// Package tool defines the mocked tool registry the Executor (C3) invokes
// against during a test turn. Real execution never happens: every call is
// simulated against a Bernoulli success rate (task.ToolSuccessRate), but
// the registry/definition shape is kept exactly like a real tool-calling
// system so the Executor's parsing and dispatch code would be unchanged
// if real execution were ever wired in.
package tool

import (
	"fmt"
	"sync"
)

// Definition describes one tool the model may call — name, description,
// and a JSON-Schema-shaped parameter spec included in prompts.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	// Category loosely groups tools for the tool_misuse / semantic_drift
	// flaw injectors, which need to find "another tool of a different
	// category" or "an adjacent but wrong" substitute.
	Category string
}

// Registry is the read-only catalogue of tools available to a task. It is
// built for each test run (from the ground-truth Workflow's optimal/required
// tools) and never mutated mid-test.
type Registry interface {
	Get(name string) (Definition, bool)
	List() []Definition
	Has(name string) bool
}

// InMemoryRegistry is the concrete Registry the harness uses.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]Definition)}
}

// Register adds a tool definition. Returns an error if the name is taken.
func (r *InMemoryRegistry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns a tool definition by name.
func (r *InMemoryRegistry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns every registered tool definition.
func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	return defs
}

// Has reports whether name is registered.
func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// NamesByCategory groups registered tool names by Category, used by the
// tool_misuse/semantic_drift flaw injectors to pick a plausible substitute.
func (r *InMemoryRegistry) NamesByCategory() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string)
	for _, def := range r.tools {
		out[def.Category] = append(out[def.Category], def.Name)
	}
	return out
}
