package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

func baseTask() entity.TestTask {
	return entity.TestTask{
		ID:         "t-1",
		ModelID:    "provider/model-a",
		TaskType:   entity.TaskSimple,
		Difficulty: entity.DifficultyEasy,
		PromptType: entity.PromptBaseline,
	}
}

func TestFileName_SanitizesModelIDAndOmitsFlawSuffixWhenClean(t *testing.T) {
	name := FileName(baseTask(), 0)
	if strings.Contains(name, "/") {
		t.Fatalf("expected model ID path separators to be sanitized, got %q", name)
	}
	if strings.Contains(name, "_"+string(entity.FlawSequenceDisorder)) {
		t.Fatalf("did not expect a flaw suffix on a clean task: %q", name)
	}
	if !strings.HasSuffix(name, ".txt") {
		t.Fatalf("expected .txt suffix, got %q", name)
	}
}

func TestFileName_FlawedTaskAppendsFlawTypeAndUsesOptimalLabel(t *testing.T) {
	task := baseTask()
	task.IsFlawed = true
	task.FlawType = entity.FlawMissingStep
	task.PromptType = entity.FlawedPromptType(entity.FlawMissingStep)

	name := FileName(task, 0)
	if !strings.Contains(name, "_optimal_missing_step.txt") {
		t.Fatalf("expected flawed file name to end with _optimal_<flaw>.txt, got %q", name)
	}
}

func TestFileName_InstanceAndRunIndexAppearInName(t *testing.T) {
	task := baseTask()
	task.Instance = &entity.TaskInstance{InstanceIndex: 3}
	name := FileName(task, 2)
	if !strings.Contains(name, "inst3") || !strings.Contains(name, "test2") {
		t.Fatalf("expected instance/run markers in file name, got %q", name)
	}
}

func TestWrite_ProducesAllFiveSections(t *testing.T) {
	dir := t.TempDir()
	task := baseTask()
	record := entity.TestRecord{
		ID:      task.ID,
		Result: entity.TestResult{
			SuccessLevel: entity.FullSuccess,
			Turns:        2,
			Transcript: entity.Transcript{
				Messages: []entity.Message{
					{Role: entity.RoleUser, Content: "do the thing", TurnIndex: 0},
					{Role: entity.RoleAssistant, Content: "TASK_COMPLETE: done", TurnIndex: 0},
				},
				ToolCalls: []entity.ToolExecution{
					{ToolName: "read_file", Args: "{}", Succeeded: true, TurnIndex: 0},
				},
			},
		},
		Timestamp: time.Now(),
	}

	if err := Write(dir, task, record, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName(task, 0)))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	for _, section := range []string{
		"==== Test Log ====",
		"==== Task Instance ====",
		"==== Conversation History ====",
		"==== Execution History ====",
		"==== Results ====",
	} {
		if !strings.Contains(content, section) {
			t.Fatalf("expected section %q in transcript, got:\n%s", section, content)
		}
	}
	if !strings.Contains(content, "read_file({}) -> ok") {
		t.Fatalf("expected tool call line in execution history, got:\n%s", content)
	}
}

func TestWrite_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	task := baseTask()
	record := entity.TestRecord{ID: task.ID, Timestamp: time.Now()}

	if err := Write(dir, task, record, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName(task, 0))); err != nil {
		t.Fatalf("expected transcript file under the newly created directory: %v", err)
	}
}
