package application

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/tool"
	"github.com/evalharness/evalharness/internal/infrastructure/llm"
)

func testRegistry() tool.Registry {
	r := tool.NewInMemoryRegistry()
	_ = r.Register(tool.Definition{Name: "read_file", Description: "reads a file", Category: "read"})
	_ = r.Register(tool.Definition{Name: "write_file", Description: "writes a file", Category: "write"})
	_ = r.Register(tool.Definition{Name: "http_post", Description: "posts data", Category: "network"})
	return r
}

func testWorkflow() entity.Workflow {
	return entity.Workflow{
		TaskType:        entity.TaskDataPipeline,
		OptimalSequence: []string{"read_file", "write_file", "http_post"},
		RequiredTools:   []string{"read_file", "write_file"},
	}
}

func baseTask() entity.TestTask {
	return entity.TestTask{
		ID:              "t-1",
		ModelID:         "mock-model",
		TaskType:        entity.TaskDataPipeline,
		PromptType:      entity.PromptOptimal,
		Difficulty:      entity.DifficultyEasy,
		ToolSuccessRate: 1.0,
		TimeoutSeconds:  60,
		RequiredTools:   []string{"read_file", "write_file"},
	}
}

func TestExecutorRun_FullSuccessOnCleanScript(t *testing.T) {
	mock := &llm.MockProvider{Script: []llm.MockTurn{
		{Text: "TOOL_CALL: read_file(path=a)\nTOOL_CALL: write_file(path=b)\nTOOL_CALL: http_post(url=c)\nTASK_COMPLETE: done"},
	}}
	exec, err := NewExecutor(mock, NoopPhase2Scorer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	wf := testWorkflow()
	task := baseTask()
	result, execErr := exec.Run(context.Background(), task, wf, wf, testRegistry())
	if execErr != nil {
		t.Fatalf("unexpected ExecutorError: %v", execErr)
	}
	if result.SuccessLevel != entity.FullSuccess {
		t.Fatalf("got success_level=%s, want full_success (workflow=%f phase2=%f)", result.SuccessLevel, result.WorkflowScore, result.Phase2Score)
	}
	if len(result.ExecutedTools) != 3 {
		t.Fatalf("got %d executed tools, want 3: %v", len(result.ExecutedTools), result.ExecutedTools)
	}
}

func TestExecutorRun_ExecutedToolsIsSubsetOfToolCalls(t *testing.T) {
	// ToolSuccessRate 0 means every simulated call fails, so ExecutedTools
	// must stay empty while ToolCalls records every attempt (Property 8).
	mock := &llm.MockProvider{Script: []llm.MockTurn{
		{Text: "TOOL_CALL: read_file(path=a)\nTOOL_CALL: write_file(path=b)"},
		{Text: "TASK_COMPLETE: done"},
	}}
	exec, err := NewExecutor(mock, NoopPhase2Scorer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	wf := testWorkflow()
	task := baseTask()
	task.ToolSuccessRate = 0.0
	result, execErr := exec.Run(context.Background(), task, wf, wf, testRegistry())
	if execErr != nil {
		t.Fatalf("unexpected ExecutorError: %v", execErr)
	}
	if len(result.ExecutedTools) != 0 {
		t.Fatalf("expected no executed tools at tool_success_rate=0, got %v", result.ExecutedTools)
	}
	if len(result.ToolCalls) != 2 {
		t.Fatalf("expected 2 attempted tool calls recorded regardless of simulated outcome, got %v", result.ToolCalls)
	}
	executedSet := make(map[string]bool, len(result.ExecutedTools))
	for _, e := range result.ExecutedTools {
		executedSet[e] = true
	}
	callSet := make(map[string]bool, len(result.ToolCalls))
	for _, c := range result.ToolCalls {
		callSet[c] = true
	}
	for e := range executedSet {
		if !callSet[e] {
			t.Fatalf("executed_tools %q not present in tool_calls %v", e, result.ToolCalls)
		}
	}
}

func TestExecutorRun_NoCompletionWithinTurnBudgetIsFailureNotCrash(t *testing.T) {
	mock := &llm.MockProvider{}
	mock.Script = make([]llm.MockTurn, DefaultMaxTurns)
	for i := range mock.Script {
		mock.Script[i] = llm.MockTurn{Text: "TOOL_CALL: read_file(path=a)"}
	}
	exec, err := NewExecutor(mock, NoopPhase2Scorer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	wf := testWorkflow()
	task := baseTask()
	result, execErr := exec.Run(context.Background(), task, wf, wf, testRegistry())
	if execErr != nil {
		t.Fatalf("unexpected ExecutorError: %v", execErr)
	}
	if result.Success {
		t.Fatalf("expected an unsuccessful result when the turn budget runs out without TASK_COMPLETE")
	}
	if result.Turns > DefaultMaxTurns {
		t.Fatalf("got %d turns, want <= %d", result.Turns, DefaultMaxTurns)
	}
	if result.ErrorMessage == "" {
		t.Fatalf("expected an error message explaining the unreached completion")
	}
}

func TestExecutorRun_LLMErrorReturnsExecutorErrorNotPanic(t *testing.T) {
	mock := &llm.MockProvider{Script: []llm.MockTurn{
		{Err: &transportErr{"connection reset by peer"}},
	}}
	exec, err := NewExecutor(mock, NoopPhase2Scorer{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	wf := testWorkflow()
	task := baseTask()
	_, execErr := exec.Run(context.Background(), task, wf, wf, testRegistry())
	if execErr == nil {
		t.Fatalf("expected an ExecutorError on LLM transport failure")
	}
}

func TestNewExecutor_RejectsNilPhase2Scorer(t *testing.T) {
	mock := &llm.MockProvider{}
	if _, err := NewExecutor(mock, nil, zap.NewNop()); err == nil {
		t.Fatalf("expected NewExecutor to reject a nil Phase2Scorer (Open Question #2)")
	}
}

func TestComputeWorkflowScore_EmptyOptimalSequenceScoresOne(t *testing.T) {
	wf := entity.Workflow{}
	if got := computeWorkflowScore(wf, []string{"anything"}); got != 1.0 {
		t.Fatalf("got %f, want 1.0 for an empty optimal sequence", got)
	}
}

func TestComputeWorkflowScore_PerfectOrderIsOne(t *testing.T) {
	wf := entity.Workflow{OptimalSequence: []string{"a", "b", "c"}}
	if got := computeWorkflowScore(wf, []string{"a", "b", "c"}); got != 1.0 {
		t.Fatalf("got %f, want 1.0", got)
	}
}

func TestComputeWorkflowScore_MissingStepDropsScoreProportionally(t *testing.T) {
	// Mirrors S6: a missing_step flaw removes one of three steps from what
	// the model executes; workflow_score must drop by exactly 1/3 against
	// the original (unflawed) ground truth.
	wf := entity.Workflow{OptimalSequence: []string{"a", "b", "c"}}
	got := computeWorkflowScore(wf, []string{"a", "c"})
	want := 2.0 / 3.0
	if got != want {
		t.Fatalf("got %f, want %f", got, want)
	}
}

type transportErr struct{ msg string }

func (e *transportErr) Error() string { return e.msg }
