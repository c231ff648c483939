package application

import (
	"fmt"
	"strings"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/tool"
)

// buildPrompt composes the first user message for one of the four §4.2
// templates. workflow is already the per-test copy — for flawed prompt
// types the caller perturbs it via flaw.Inject before calling buildPrompt,
// and the flawed sequence is rendered exactly like "optimal": the model is
// never told the plan is broken, that is the point of the robustness
// measurement.
func buildPrompt(task entity.TestTask, workflow entity.Workflow, registry tool.Registry) string {
	var b strings.Builder

	b.WriteString("You are completing an automated evaluation task.\n\n")
	b.WriteString("Task type: " + string(task.TaskType) + "\n")
	if task.Instance != nil {
		b.WriteString("Task description: " + task.Instance.Description + "\n")
		if len(task.Instance.ExpectedOutputs) > 0 {
			b.WriteString("Expected outputs: " + strings.Join(task.Instance.ExpectedOutputs, ", ") + "\n")
		}
	}

	b.WriteString("\nAvailable tools:\n")
	for _, def := range registry.List() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", def.Name, def.Description))
	}
	b.WriteString("\nInvoke a tool with the exact line: TOOL_CALL: name(args)\n")
	b.WriteString("When the task is fully done, reply with: TASK_COMPLETE: <summary>\n")

	basePrompt := task.PromptType
	if task.IsFlawed {
		basePrompt = entity.PromptOptimal
	}

	switch basePrompt {
	case entity.PromptOptimal:
		b.WriteString("\nRecommended sequence of tool calls:\n")
		writeSequence(&b, workflow.OptimalSequence)
	case entity.PromptCOT:
		b.WriteString("\nThink step by step before acting. Recommended sequence of tool calls:\n")
		writeSequence(&b, workflow.OptimalSequence)
		b.WriteString("\nReason about each step before issuing the corresponding TOOL_CALL.\n")
	default: // baseline: no workflow hint given
	}

	return b.String()
}

func writeSequence(b *strings.Builder, seq []string) {
	for i, name := range seq {
		fmt.Fprintf(b, "%d. %s\n", i+1, name)
	}
}

// continuationPrompt is sent after a turn that issued tool calls but did
// not declare TASK_COMPLETE, reporting back what the simulated layer did.
func continuationPrompt(executed []tool.Definition, results []bool) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for i, def := range executed {
		status := "ok"
		if i < len(results) && !results[i] {
			status = "failed"
		}
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, status)
	}
	b.WriteString("\nContinue with TOOL_CALL lines, or reply TASK_COMPLETE: <summary> when done.\n")
	return b.String()
}
