// Package application wires the harness's core pipeline — prompt building,
// the turn loop (C3 Executor), error classification (C4), and batch
// orchestration (C6) — on top of the domain/service contracts.
package application

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/evalharness/evalharness/internal/domain/tool"
	infratool "github.com/evalharness/evalharness/internal/infrastructure/tool"
	"github.com/evalharness/evalharness/internal/infrastructure/monitoring"
)

// DefaultMaxTurns is the per-test turn budget (§4.2: "up to 10 turns").
const DefaultMaxTurns = 10

// staleTurnLimit is how many consecutive turns with neither a tool call nor
// a completion signal the Executor tolerates before giving up on the test.
const staleTurnLimit = 2

var (
	toolCallPattern     = regexp.MustCompile(`(?m)^\s*TOOL_CALL:\s*([A-Za-z0-9_]+)\(([^)]*)\)\s*$`)
	taskCompletePattern = regexp.MustCompile(`(?m)^\s*TASK_COMPLETE:\s*(.*)$`)
)

type parsedCall struct {
	Name string
	Args string
}

// parseReply extracts every TOOL_CALL line and reports whether a
// TASK_COMPLETE line was present. Malformed lines are simply not matched —
// §4.2's ErrKindToolParse is for the LLMClient boundary, not for a model
// that chose not to emit a tool call this turn.
func parseReply(reply string) ([]parsedCall, bool) {
	var calls []parsedCall
	for _, m := range toolCallPattern.FindAllStringSubmatch(reply, -1) {
		calls = append(calls, parsedCall{Name: strings.TrimSpace(m[1]), Args: strings.TrimSpace(m[2])})
	}
	done := taskCompletePattern.MatchString(reply)
	return calls, done
}

// Executor is C3: runs one TestTask end to end against an LLMClient and a
// simulated tool layer, producing a scored TestResult.
type Executor struct {
	llm      service.LLMClient
	phase2   Phase2Scorer
	logger   *zap.Logger
	maxTurns int
}

// NewExecutor builds an Executor. phase2 must not be nil — Open Question #2
// resolves that a missing quality judge fails the whole run at startup
// (pass NoopPhase2Scorer{} to explicitly run without one) rather than
// silently zeroing every phase2_score at test time.
func NewExecutor(llm service.LLMClient, phase2 Phase2Scorer, logger *zap.Logger) (*Executor, error) {
	if llm == nil {
		return nil, fmt.Errorf("executor: llm client is required")
	}
	if phase2 == nil {
		return nil, fmt.Errorf("executor: phase2 scorer is required (pass application.NoopPhase2Scorer{} to disable explicitly)")
	}
	return &Executor{llm: llm, phase2: phase2, logger: logger, maxTurns: DefaultMaxTurns}, nil
}

// Run executes task against promptWorkflow (what the model is shown — a
// flaw.Inject clone for flawed prompt types) and scores the outcome against
// groundTruth (the real, unflawed workflow). Scoring always uses
// groundTruth: a flawed prompt is a trap for the model, not a change to
// what counts as correct — a model that reasons past a bad recommendation
// and does the right thing must score as well as one that was never misled.
// For unflawed prompt types the caller passes the same workflow for both.
// A non-nil ExecutorError means the test produced no TestResult at all
// (throttle/timeout/transport at the LLM boundary); everything else —
// including "ran out of turns" — is encoded as a TestResult with a
// non-full SuccessLevel.
func (e *Executor) Run(ctx context.Context, task entity.TestTask, promptWorkflow, groundTruth entity.Workflow, registry tool.Registry) (result entity.TestResult, execErr *service.ExecutorError) {
	ctx, testSpan := monitoring.StartTestSpan(ctx, task.ID, task.ModelID, string(task.TaskType))
	defer func() {
		var spanErr error
		if execErr != nil {
			spanErr = execErr
		}
		monitoring.EndSpan(testSpan, spanErr)
	}()

	start := time.Now()
	sim := infratool.NewSimulator(seedFor(task.ID))

	transcript := entity.Transcript{TestID: task.ID}
	var toolCalls, executedTools []string

	prompt := buildPrompt(task, promptWorkflow, registry)
	messages := []service.ChatMessage{{Role: entity.RoleUser, Content: prompt}}
	transcript.Messages = append(transcript.Messages, entity.Message{Role: entity.RoleUser, Content: prompt, TurnIndex: 0})

	completed := false
	staleTurns := 0
	turn := 0

	for ; turn < e.maxTurns; turn++ {
		turnCtx, turnSpan := monitoring.StartTurnSpan(ctx, turn)

		if err := ctx.Err(); err != nil {
			monitoring.EndSpan(turnSpan, err)
			return entity.TestResult{}, &service.ExecutorError{
				Kind: service.ErrKindTimeout, Message: "context canceled before turn completed",
				Provider: e.llm.Name(), Model: task.ModelID, Cause: err,
			}
		}

		opts := service.ChatOptions{Model: task.ModelID, DeploymentID: task.DeploymentID, Timeout: task.EffectiveTimeoutSeconds()}
		reply, err := e.llm.Chat(turnCtx, messages, opts)
		if err != nil {
			monitoring.EndSpan(turnSpan, err)
			return entity.TestResult{}, service.ClassifyError(err, e.llm.Name(), task.ModelID)
		}

		messages = append(messages, service.ChatMessage{Role: entity.RoleAssistant, Content: reply})
		transcript.Messages = append(transcript.Messages, entity.Message{Role: entity.RoleAssistant, Content: reply, TurnIndex: turn})

		calls, done := parseReply(reply)
		if len(calls) == 0 && !done {
			staleTurns++
			monitoring.EndSpan(turnSpan, nil)
			if staleTurns >= staleTurnLimit {
				break
			}
			continue
		}
		staleTurns = 0

		executedDefs := make([]tool.Definition, 0, len(calls))
		results := make([]bool, 0, len(calls))
		for _, call := range calls {
			_, toolSpan := monitoring.StartToolSpan(turnCtx, call.Name)
			toolCalls = append(toolCalls, call.Name)
			def, _ := registry.Get(call.Name)
			ok := sim.Invoke(task.ToolSuccessRate)
			transcript.ToolCalls = append(transcript.ToolCalls, entity.ToolExecution{
				TurnIndex: turn, ToolName: call.Name, Args: call.Args, Succeeded: ok,
			})
			if ok {
				executedTools = append(executedTools, call.Name)
				monitoring.EndSpan(toolSpan, nil)
			} else {
				monitoring.EndSpan(toolSpan, fmt.Errorf("simulated tool call failed: %s", call.Name))
			}
			executedDefs = append(executedDefs, def)
			results = append(results, ok)
		}

		if done {
			completed = true
			monitoring.EndSpan(turnSpan, nil)
			break
		}

		cont := continuationPrompt(executedDefs, results)
		messages = append(messages, service.ChatMessage{Role: entity.RoleUser, Content: cont})
		transcript.Messages = append(transcript.Messages, entity.Message{Role: entity.RoleUser, Content: cont, TurnIndex: turn + 1})
		monitoring.EndSpan(turnSpan, nil)
	}

	elapsed := time.Since(start).Seconds()
	workflowScore := computeWorkflowScore(groundTruth, executedTools)

	phase2Score, enabled, err := e.phase2.Score(ctx, task, groundTruth, transcript)
	if err != nil {
		e.logger.Warn("phase2 scoring failed, falling back to workflow score", zap.String("test_id", task.ID), zap.Error(err))
		phase2Score, enabled = 0, false
	}

	finalScore := workflowScore
	qualityScore := workflowScore
	if enabled {
		finalScore = phase2Score
		qualityScore = phase2Score
	}

	coverage := entity.ComputeToolCoverageRate(executedTools, groundTruth.RequiredTools)
	// With Phase-2 scoring disabled, qualityScore holds the workflow_score
	// fallback, so the success level is judged on it instead of the unjudged
	// zero phase2_score.
	level := entity.ClassifySuccessLevel(workflowScore, qualityScore)

	// turn is one past the last turn index only when the loop ran out of
	// budget; a break leaves it on the last turn taken.
	turns := turn + 1
	if turns > e.maxTurns {
		turns = e.maxTurns
	}

	result = entity.TestResult{
		Success:              level != entity.Failure,
		SuccessLevel:         level,
		ExecutionTimeSeconds: elapsed,
		Turns:                turns,
		ToolCalls:            toolCalls,
		ExecutedTools:        executedTools,
		WorkflowScore:        workflowScore,
		Phase2Score:          phase2Score,
		QualityScore:         qualityScore,
		FinalScore:           finalScore,
		ToolCoverageRate:     coverage,
		Transcript:           transcript,
	}
	if !completed {
		result.ErrorMessage = "task did not reach TASK_COMPLETE within the turn budget"
	}

	return result, nil
}

// computeWorkflowScore is the longest-common-subsequence ratio between the
// model's executed tool calls and the workflow's optimal sequence — this
// rewards both doing the right steps and doing them in the right order,
// without requiring an exact match (§4.2 workflow_score). No file in the
// retrieval pack computes a sequence-alignment score for a simulated
// transcript, so this formula is new and documented as a design decision
// rather than adapted from a teacher file.
func computeWorkflowScore(workflow entity.Workflow, executed []string) float64 {
	optimal := workflow.OptimalSequence
	if len(optimal) == 0 {
		return 1.0
	}
	if len(executed) == 0 {
		return 0.0
	}
	lcs := longestCommonSubsequence(optimal, executed)
	return float64(lcs) / float64(len(optimal))
}

func longestCommonSubsequence(a, b []string) int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	return dp[len(a)][len(b)]
}

// seedFor derives a deterministic Simulator seed from a test ID so S1-S6's
// scenarios reproduce the same sequence of Bernoulli draws on every run.
func seedFor(testID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(testID))
	return int64(h.Sum64())
}
