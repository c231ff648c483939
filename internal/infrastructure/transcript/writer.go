// Package transcript writes the optional, human-readable per-test log file
// (§6): one file per test, named and sectioned exactly per the external
// file-logging contract, written only when the caller enables --save-logs.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

// FileName builds the §6 naming convention:
// <model>_<task_type>_inst<N>_test<R>_<prompt>[_<flaw>].txt
// N is the cell instance index (TaskInstance.InstanceIndex); R distinguishes
// repeated runs of the same cell within one invocation (0 for the first).
func FileName(task entity.TestTask, runIndex int) string {
	instance := 0
	if task.Instance != nil {
		instance = task.Instance.InstanceIndex
	}
	base := fmt.Sprintf("%s_%s_inst%d_test%d_%s", sanitize(task.ModelID), task.TaskType, instance, runIndex, basePromptLabel(task))
	if task.IsFlawed {
		base += "_" + string(task.FlawType)
	}
	return base + ".txt"
}

func basePromptLabel(task entity.TestTask) string {
	if task.IsFlawed {
		return "optimal"
	}
	return string(task.PromptType)
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "-", ":", "-", " ", "_").Replace(s)
}

// Write renders one test's full log to dir/FileName(task, runIndex).
func Write(dir string, task entity.TestTask, record entity.TestRecord, runIndex int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, FileName(task, runIndex))

	var b strings.Builder
	writeHeader(&b, task, record)
	writeTaskInstance(&b, task)
	writeConversation(&b, record)
	writeExecutionHistory(&b, record)
	writeResults(&b, record)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeHeader(b *strings.Builder, task entity.TestTask, record entity.TestRecord) {
	fmt.Fprintf(b, "==== Test Log ====\n")
	fmt.Fprintf(b, "test_id: %s\n", task.ID)
	fmt.Fprintf(b, "model: %s\n", task.ModelID)
	fmt.Fprintf(b, "generated_at: %s\n\n", record.Timestamp.Format(time.RFC3339))
}

func writeTaskInstance(b *strings.Builder, task entity.TestTask) {
	fmt.Fprintf(b, "==== Task Instance ====\n")
	fmt.Fprintf(b, "task_type: %s\n", task.TaskType)
	fmt.Fprintf(b, "difficulty: %s\n", task.Difficulty)
	fmt.Fprintf(b, "prompt_type: %s\n", task.PromptType)
	if task.IsFlawed {
		fmt.Fprintf(b, "flaw: %s\n", task.FlawType)
	}
	fmt.Fprintf(b, "tool_success_rate: %.2f\n", task.ToolSuccessRate)
	if task.Instance != nil {
		fmt.Fprintf(b, "description: %s\n", task.Instance.Description)
	}
	b.WriteString("\n")
}

// writeConversation renders the "Prompt"/"LLM Response"/"Conversation
// History" sections together, grouped by turn, since the Transcript already
// carries messages in turn order.
func writeConversation(b *strings.Builder, record entity.TestRecord) {
	fmt.Fprintf(b, "==== Conversation History ====\n")
	currentTurn := -1
	for _, m := range record.Result.Transcript.Messages {
		if m.TurnIndex != currentTurn {
			currentTurn = m.TurnIndex
			fmt.Fprintf(b, "\n-- turn %d --\n", currentTurn)
		}
		fmt.Fprintf(b, "[%s] %s\n", m.Role, m.Content)
	}
	b.WriteString("\n")
}

func writeExecutionHistory(b *strings.Builder, record entity.TestRecord) {
	fmt.Fprintf(b, "==== Execution History ====\n")
	for _, tc := range record.Result.Transcript.ToolCalls {
		status := "ok"
		if !tc.Succeeded {
			status = "failed"
		}
		fmt.Fprintf(b, "turn %d: %s(%s) -> %s\n", tc.TurnIndex, tc.ToolName, tc.Args, status)
	}
	b.WriteString("\n")
}

func writeResults(b *strings.Builder, record entity.TestRecord) {
	r := record.Result
	fmt.Fprintf(b, "==== Results ====\n")
	fmt.Fprintf(b, "success: %v\n", r.Success)
	fmt.Fprintf(b, "success_level: %s\n", r.SuccessLevel)
	fmt.Fprintf(b, "turns: %d\n", r.Turns)
	fmt.Fprintf(b, "execution_time_seconds: %.3f\n", r.ExecutionTimeSeconds)
	fmt.Fprintf(b, "workflow_score: %.3f\n", r.WorkflowScore)
	fmt.Fprintf(b, "phase2_score: %.3f\n", r.Phase2Score)
	fmt.Fprintf(b, "quality_score: %.3f\n", r.QualityScore)
	fmt.Fprintf(b, "final_score: %.3f\n", r.FinalScore)
	fmt.Fprintf(b, "tool_coverage_rate: %.3f\n", r.ToolCoverageRate)
	if r.ErrorMessage != "" {
		fmt.Fprintf(b, "error_message: %s\n", r.ErrorMessage)
	}
	if record.AIErrorCategory != "" {
		fmt.Fprintf(b, "ai_error_category: %s\n", record.AIErrorCategory)
		fmt.Fprintf(b, "ai_error_reason: %s\n", record.AIErrorReason)
		fmt.Fprintf(b, "ai_confidence: %.2f\n", record.AIConfidence)
	}
}
