// Package tool builds and drives the mocked tool registry a test turn
// executes against, grounded on the teacher's RegisterAllTools wiring
// pattern (internal/infrastructure/tool/registry.go) but repurposed: the
// harness never runs a real tool, it seeds a domain tool.InMemoryRegistry
// from the task's Workflow and simulates each call with a Bernoulli draw.
package tool

import (
	"fmt"
	"math/rand"

	domaintool "github.com/evalharness/evalharness/internal/domain/tool"
)

// BuildRegistry seeds a registry from a workflow's tool universe
// (OptimalSequence ∪ RequiredTools), assigning a category to each tool by
// simple round-robin so the flaw injectors always have "another category"
// to substitute from, even for tiny workflows.
func BuildRegistry(optimalSequence, requiredTools []string) *domaintool.InMemoryRegistry {
	reg := domaintool.NewInMemoryRegistry()
	categories := []string{"read", "write", "compute", "network", "control"}

	seen := make(map[string]struct{})
	idx := 0
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		_ = reg.Register(domaintool.Definition{
			Name:        name,
			Description: fmt.Sprintf("simulated tool %q", name),
			Parameters:  map[string]interface{}{"type": "object"},
			Category:    categories[idx%len(categories)],
		})
		idx++
	}
	for _, t := range optimalSequence {
		add(t)
	}
	for _, t := range requiredTools {
		add(t)
	}
	return reg
}

// Simulator drives Bernoulli-sampled tool execution for one test run. Each
// call to Invoke is an independent Bernoulli trial at rate p — §9's Open
// Question resolution: tool_success_rate is per-call, not per-task.
type Simulator struct {
	rng *rand.Rand
}

// NewSimulator returns a simulator seeded deterministically, so a fixed
// seed reproduces a fixed sequence of tool outcomes for test scenarios
// (S1-S6 in §8 rely on deterministic Bernoulli draws).
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Invoke simulates one tool call against p, the task's tool_success_rate.
// It returns true (the call "succeeded") with probability p.
func (s *Simulator) Invoke(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.rng.Float64() < p
}
