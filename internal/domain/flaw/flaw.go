// Package flaw implements the seven §6 flaw-injection transformations. Each
// transformation operates on a Workflow clone's OptimalSequence only — the
// cached original workflow is never mutated (entity.Workflow.Clone).
package flaw

import (
	"fmt"
	"math/rand"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/tool"
)

// Inject returns a perturbed clone of wf for the given flaw kind. registry is
// used by tool_misuse and semantic_drift to find a same-or-different category
// substitute; it may be nil, in which case tool_misuse falls back to a
// substitute tool named "<tool>_alt" and semantic_drift to one named
// "<tool>_similar".
func Inject(wf entity.Workflow, kind entity.FlawKind, registry tool.Registry, rng *rand.Rand) entity.Workflow {
	out := wf.Clone()
	seq := out.OptimalSequence

	switch kind {
	case entity.FlawSequenceDisorder:
		out.OptimalSequence = sequenceDisorder(seq, rng)
	case entity.FlawToolMisuse:
		out.OptimalSequence = toolMisuse(seq, registry, rng)
	case entity.FlawParameterError:
		out.OptimalSequence = parameterError(seq, rng)
	case entity.FlawMissingStep:
		out.OptimalSequence = missingStep(seq, rng)
	case entity.FlawRedundantOperations:
		out.OptimalSequence = redundantOperations(seq, rng)
	case entity.FlawLogicalInconsistency:
		out.OptimalSequence = logicalInconsistency(seq, registry)
	case entity.FlawSemanticDrift:
		out.OptimalSequence = semanticDrift(seq, registry, rng)
	}

	return out
}

// sequenceDisorder permutes one adjacent pair.
func sequenceDisorder(seq []string, rng *rand.Rand) []string {
	if len(seq) < 2 {
		return seq
	}
	out := append([]string(nil), seq...)
	i := rng.Intn(len(out) - 1)
	out[i], out[i+1] = out[i+1], out[i]
	return out
}

// toolMisuse replaces one step with another valid tool of a different category.
func toolMisuse(seq []string, registry tool.Registry, rng *rand.Rand) []string {
	if len(seq) == 0 {
		return seq
	}
	out := append([]string(nil), seq...)
	i := rng.Intn(len(out))
	out[i] = differentCategoryTool(out[i], registry)
	return out
}

// parameterError marks one step as carrying invalid parameters. The
// sequence stores tool names only, so the corruption is encoded as a
// suffix the Executor's transcript renderer can surface distinctly from a
// clean tool name.
func parameterError(seq []string, rng *rand.Rand) []string {
	if len(seq) == 0 {
		return seq
	}
	out := append([]string(nil), seq...)
	i := rng.Intn(len(out))
	out[i] = fmt.Sprintf("%s!badparam", out[i])
	return out
}

// missingStep drops one non-first, non-last step.
func missingStep(seq []string, rng *rand.Rand) []string {
	if len(seq) < 3 {
		return seq
	}
	i := 1 + rng.Intn(len(seq)-2)
	out := make([]string, 0, len(seq)-1)
	out = append(out, seq[:i]...)
	out = append(out, seq[i+1:]...)
	return out
}

// redundantOperations duplicates one step immediately after itself.
func redundantOperations(seq []string, rng *rand.Rand) []string {
	if len(seq) == 0 {
		return seq
	}
	i := rng.Intn(len(seq))
	out := make([]string, 0, len(seq)+1)
	out = append(out, seq[:i+1]...)
	out = append(out, seq[i])
	out = append(out, seq[i+1:]...)
	return out
}

// logicalInconsistency swaps the first "input" category step (read) with the
// first "output" category step (write or network) that comes after it, so
// the output step now precedes the input step; if there is no such pair the
// sequence is returned unchanged.
func logicalInconsistency(seq []string, registry tool.Registry) []string {
	if registry == nil || len(seq) < 2 {
		return seq
	}
	readIdx, writeIdx := -1, -1
	for i, name := range seq {
		def, ok := registry.Get(name)
		if !ok {
			continue
		}
		switch def.Category {
		case "read":
			if readIdx == -1 {
				readIdx = i
			}
		case "write", "network":
			if writeIdx == -1 && readIdx != -1 && i > readIdx {
				writeIdx = i
			}
		}
	}
	if readIdx == -1 || writeIdx == -1 {
		return seq
	}
	out := append([]string(nil), seq...)
	out[readIdx], out[writeIdx] = out[writeIdx], out[readIdx]
	return out
}

// semanticDrift swaps one step for a tool whose semantics are adjacent but
// wrong: same category, different tool, distinguishing it from tool_misuse
// which deliberately picks a *different* category.
func semanticDrift(seq []string, registry tool.Registry, rng *rand.Rand) []string {
	if len(seq) == 0 {
		return seq
	}
	out := append([]string(nil), seq...)
	i := rng.Intn(len(out))
	out[i] = sameCategoryTool(out[i], registry)
	return out
}

func differentCategoryTool(name string, registry tool.Registry) string {
	if registry == nil {
		return name + "_alt"
	}
	def, ok := registry.Get(name)
	if !ok {
		return name + "_alt"
	}
	for _, cand := range registry.List() {
		if cand.Category != def.Category && cand.Name != name {
			return cand.Name
		}
	}
	return name + "_alt"
}

func sameCategoryTool(name string, registry tool.Registry) string {
	if registry == nil {
		return name + "_similar"
	}
	def, ok := registry.Get(name)
	if !ok {
		return name + "_similar"
	}
	for _, cand := range registry.List() {
		if cand.Category == def.Category && cand.Name != name {
			return cand.Name
		}
	}
	return name + "_similar"
}
