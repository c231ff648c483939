package entity

// Workflow is the read-only plan-time object a TaskLibrary returns (§6
// "Workflow object"). It is never mutated in place — flaw injection and
// any other transformation work on a copy of OptimalSequence.
type Workflow struct {
	TaskType        TaskType
	OptimalSequence []string // may be empty
	RequiredTools   []string // subset of OptimalSequence ∪ others
	Metadata        map[string]string
}

// Clone returns a deep copy so callers can perturb OptimalSequence without
// touching the cached original (the WorkflowProvider caches one Workflow per
// (task type, difficulty) and hands out copies that share its slices, so it
// must never be mutated in place — §3 Lifecycle).
func (w Workflow) Clone() Workflow {
	out := Workflow{
		TaskType:        w.TaskType,
		OptimalSequence: append([]string(nil), w.OptimalSequence...),
		RequiredTools:   append([]string(nil), w.RequiredTools...),
	}
	if w.Metadata != nil {
		out.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// OptimalSet returns OptimalSequence as a set. HeuristicPhase2Scorer uses it
// to measure vocabulary quality — the share of executed tool calls that name
// a tool appearing anywhere in the optimal sequence, order notwithstanding —
// which is a separate term from workflow_score's own order-sensitive
// longest-common-subsequence computation (§4.2).
func (w Workflow) OptimalSet() map[string]struct{} {
	set := make(map[string]struct{}, len(w.OptimalSequence))
	for _, t := range w.OptimalSequence {
		set[t] = struct{}{}
	}
	return set
}

// WorkflowProvider is the external contract (C7 TaskLibrary, read side) the
// BatchRunner depends on for workflow objects. The core never generates
// workflows; it only consumes them (§9 DESIGN NOTES: no global singleton
// workflow generator owned by the core).
type WorkflowProvider interface {
	// Workflow returns the canonical workflow for a (taskType, difficulty)
	// pair. Implementations are expected to cache per difficulty.
	Workflow(taskType TaskType, difficulty Difficulty) (Workflow, error)
}
