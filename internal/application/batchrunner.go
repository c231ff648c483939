package application

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/flaw"
	"github.com/evalharness/evalharness/internal/domain/service"
	infratool "github.com/evalharness/evalharness/internal/infrastructure/tool"
	"github.com/evalharness/evalharness/internal/infrastructure/transcript"
	"github.com/evalharness/evalharness/internal/infrastructure/monitoring"
	"github.com/evalharness/evalharness/pkg/safego"
)

// maxThrottleRetries bounds how many throttled attempts a single task gets:
// it is requeued after each of the first maxThrottleRetries-1 throttles and
// given up on (counted as ThrottleDrop) at the maxThrottleRetries-th —
// prevents a provider stuck at zero QPS from retrying one task forever.
const maxThrottleRetries = 5

// CompletionLedger is the narrow slice of ledger.Ledger the BatchRunner
// needs, letting it run (and be tested) without the gorm-backed store.
type CompletionLedger interface {
	IsComplete(testID string) (bool, error)
	RecordCompletion(rec entity.TestRecord) error
}

// BatchSummary tallies one RunBatch call's outcomes.
type BatchSummary struct {
	Total        int
	Skipped      int // already complete per the ledger
	FullSuccess  int
	Partial      int
	Failure      int
	ThrottleDrop int // gave up after maxThrottleRetries
	Errors       int // no_workflow, or a non-throttle ExecutorError (timeout / transport); no TestRecord produced
}

// BatchRunner is C6: plans nothing itself (see Plan) but drives a fixed
// worker pool over an already-planned task list through the C2→C3→C4→C5
// pipeline in the order spec.md's data-flow diagram lays out: limiter gate,
// executor run, classifier (only on non-full-success), store write, then
// limiter outcome feedback.
type BatchRunner struct {
	executor   *Executor
	classifier service.ErrorClassifier
	store      service.ResultStore
	limiter    service.RateLimiter
	workflows  entity.WorkflowProvider
	ledger     CompletionLedger // optional, nil disables resume/skip
	logger     *zap.Logger

	workers int

	// ProgressEvery controls how often (in completed tasks) a progress line
	// is logged; 0 disables progress logging. Defaults to 10.
	ProgressEvery int

	// TranscriptDir, when non-empty, enables the §6 per-test transcript
	// file: one file per completed (non-skipped) task, named and sectioned
	// per transcript.FileName/Write. Empty disables file logging; the
	// in-memory Transcript is still always built (§4.2).
	TranscriptDir string

	// Monitor, when non-nil, receives the counter updates the optional
	// status server's /metrics and /summary endpoints read from. A nil
	// Monitor is a no-op, not an error — the server is itself optional.
	Monitor *monitoring.Monitor
}

// NewBatchRunner wires C6 against its dependencies. workers sizes the fixed
// pool; the limiter's own adaptive worker count (§4.1) throttles effective
// concurrency further via AwaitSlot, so workers should be an upper bound,
// not the expected steady-state count.
func NewBatchRunner(executor *Executor, classifier service.ErrorClassifier, store service.ResultStore, limiter service.RateLimiter, workflows entity.WorkflowProvider, ledger CompletionLedger, workers int, logger *zap.Logger) *BatchRunner {
	if workers <= 0 {
		workers = 5
	}
	return &BatchRunner{
		executor: executor, classifier: classifier, store: store, limiter: limiter,
		workflows: workflows, ledger: ledger, workers: workers, logger: logger,
		ProgressEvery: 10,
	}
}

// computeBatchTimeout implements §4.5's overall-batch ceiling:
// max(3600, min(14400, |tasks|*60)) seconds.
func computeBatchTimeout(taskCount int) time.Duration {
	secs := taskCount * 60
	if secs > 14400 {
		secs = 14400
	}
	if secs < 3600 {
		secs = 3600
	}
	return time.Duration(secs) * time.Second
}

// RunBatch drives tasks to completion (or the overall batch timeout) and
// returns tallied outcome counts. It returns no error: individual task
// failures, including those caused by a canceled context, are tallied, not
// propagated.
func (r *BatchRunner) RunBatch(ctx context.Context, tasks []entity.TestTask) BatchSummary {
	summary := BatchSummary{Total: len(tasks)}
	if len(tasks) == 0 {
		return summary
	}

	batchCtx, cancel := context.WithTimeout(ctx, computeBatchTimeout(len(tasks)))
	defer cancel()

	q := newTaskQueue(tasks)
	var mu sync.Mutex // guards summary
	var completed int64
	var wg sync.WaitGroup

	var activeWorkers int64
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		workerID := i
		// Each worker owns a private RNG seeded off its own index, so each
		// worker's sequence of flaw-injection draws is reproducible without
		// forcing every worker's entire pipeline through a single shared lock.
		// Which task receives which draw still depends on how the queue hands
		// tasks to workers, so only a single-worker run is fully repeatable.
		rng := rand.New(rand.NewSource(int64(workerID) + 1))
		safego.Go(r.logger, fmt.Sprintf("batch-worker-%d", workerID), func() {
			defer wg.Done()
			for {
				item, ok := q.pop(r.workers)
				if !ok {
					return
				}
				n := atomic.AddInt64(&activeWorkers, 1)
				if r.Monitor != nil {
					r.Monitor.SetActiveWorkers(n)
				}
				outcome := r.processOne(batchCtx, item.task, rng)
				n = atomic.AddInt64(&activeWorkers, -1)
				if r.Monitor != nil {
					r.Monitor.SetActiveWorkers(n)
				}

				if outcome.kind == outcomeThrottleRetry {
					if item.attempt+1 >= maxThrottleRetries {
						outcome.kind = outcomeThrottleDrop
					} else {
						q.pushRetry(queueItem{task: item.task, attempt: item.attempt + 1})
						continue
					}
				}

				mu.Lock()
				applyOutcome(&summary, outcome)
				mu.Unlock()

				n = atomic.AddInt64(&completed, 1)
				q.markDone()
				if r.ProgressEvery > 0 && int(n)%r.ProgressEvery == 0 {
					r.logger.Info("batch progress", zap.Int64("completed", n), zap.Int("total", len(tasks)))
				}
			}
		})
	}

	wg.Wait()
	return summary
}

type outcomeKind int

const (
	outcomeSkipped outcomeKind = iota
	outcomeFullSuccess
	outcomePartial
	outcomeFailure
	outcomeThrottleRetry
	outcomeThrottleDrop
	outcomeError
)

type taskOutcome struct {
	kind outcomeKind
}

func applyOutcome(s *BatchSummary, o taskOutcome) {
	switch o.kind {
	case outcomeSkipped:
		s.Skipped++
	case outcomeFullSuccess:
		s.FullSuccess++
	case outcomePartial:
		s.Partial++
	case outcomeFailure:
		s.Failure++
	case outcomeThrottleDrop:
		s.ThrottleDrop++
	case outcomeError:
		s.Errors++
	}
}

// processOne runs the full C2→C3→C4→C5 pipeline for one task.
func (r *BatchRunner) processOne(ctx context.Context, task entity.TestTask, rng *rand.Rand) taskOutcome {
	if r.ledger != nil {
		if done, err := r.ledger.IsComplete(task.ID); err == nil && done {
			return taskOutcome{kind: outcomeSkipped}
		}
	}

	if r.Monitor != nil {
		r.Monitor.IncTestTotal()
	}
	start := time.Now()
	defer func() {
		if r.Monitor != nil {
			r.Monitor.RecordTestLatency(time.Since(start))
		}
	}()

	r.limiter.AwaitSlot(ctx)

	groundTruth, err := r.workflows.Workflow(task.TaskType, task.Difficulty)
	if err != nil {
		r.logger.Warn("no workflow available for task", zap.String("test_id", task.ID), zap.Error(err))
		r.limiter.RecordError(err.Error())
		if r.Monitor != nil {
			r.Monitor.IncError()
		}
		return taskOutcome{kind: outcomeError}
	}

	registry := infratool.BuildRegistry(groundTruth.OptimalSequence, groundTruth.RequiredTools)

	promptWorkflow := groundTruth
	if task.IsFlawed {
		promptWorkflow = flaw.Inject(groundTruth, task.FlawType, registry, rng)
	}

	taskCtx, cancel := context.WithTimeout(ctx, time.Duration(task.EffectiveTimeoutSeconds())*time.Second)
	result, execErr := r.executor.Run(taskCtx, task, promptWorkflow, groundTruth, registry)
	cancel()

	if execErr != nil {
		if execErr.Kind.IsThrottle() {
			r.limiter.RecordThrottle(execErr.Message)
			if r.Monitor != nil {
				r.Monitor.IncModelThrottled()
			}
			return taskOutcome{kind: outcomeThrottleRetry}
		}
		r.limiter.RecordError(execErr.Message)
		r.logger.Warn("task failed at the executor boundary", zap.String("test_id", task.ID), zap.String("kind", execErr.Kind.String()), zap.Error(execErr))
		if r.Monitor != nil {
			r.Monitor.IncError()
		}
		return taskOutcome{kind: outcomeError}
	}

	r.limiter.RecordSuccess()
	if r.Monitor != nil {
		r.Monitor.IncModelCall()
		for _, tc := range result.Transcript.ToolCalls {
			r.Monitor.IncToolCallTotal()
			if tc.Succeeded {
				r.Monitor.IncToolCallSuccess()
			} else {
				r.Monitor.IncToolCallFailed()
			}
		}
	}

	record := entity.TestRecord{
		ID:              task.ID,
		ModelID:         task.ModelID,
		DeploymentID:    task.DeploymentID,
		TaskType:        task.TaskType,
		PromptType:      task.PromptType,
		Difficulty:      task.Difficulty,
		ToolSuccessRate: task.ToolSuccessRate,
		Result:          result,
		Timestamp:       time.Now(),
	}

	if result.SuccessLevel != entity.FullSuccess {
		hint := service.ErrorKindHint{Kind: result.ErrorKind, Present: result.ErrorKind != ""}
		classification := r.classifier.Classify(ctx, RenderTranscript(result.Transcript), hint)
		record.AIErrorCategory = classification.Category
		record.AIErrorReason = classification.Reason
		record.AIConfidence = classification.Confidence
	}

	if err := r.store.Write(record); err != nil {
		r.logger.Error("result store write failed", zap.String("test_id", task.ID), zap.Error(err))
	}
	if r.ledger != nil {
		if err := r.ledger.RecordCompletion(record); err != nil {
			r.logger.Warn("ledger record-completion failed", zap.String("test_id", task.ID), zap.Error(err))
		}
	}
	if r.TranscriptDir != "" {
		if err := transcript.Write(r.TranscriptDir, task, record, 0); err != nil {
			r.logger.Warn("transcript write failed", zap.String("test_id", task.ID), zap.Error(err))
		}
	}

	switch result.SuccessLevel {
	case entity.FullSuccess:
		if r.Monitor != nil {
			r.Monitor.IncTestFullSuccess()
		}
		return taskOutcome{kind: outcomeFullSuccess}
	case entity.PartialSuccess:
		if r.Monitor != nil {
			r.Monitor.IncTestPartial()
		}
		return taskOutcome{kind: outcomePartial}
	default:
		if r.Monitor != nil {
			r.Monitor.IncTestFailure()
		}
		return taskOutcome{kind: outcomeFailure}
	}
}

// taskQueue is a FIFO main queue plus a FIFO retry queue, drained
// preferentially once the retry backlog reaches the worker count (§4.5:
// "retry queue... drained preferentially when size >= worker count").
type queueItem struct {
	task    entity.TestTask
	attempt int // number of prior throttle retries
}

type taskQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	main      []queueItem
	retry     []queueItem
	remaining int // tasks not yet finally resolved (queued + in flight)
}

func newTaskQueue(tasks []entity.TestTask) *taskQueue {
	main := make([]queueItem, len(tasks))
	for i, t := range tasks {
		main[i] = queueItem{task: t}
	}
	q := &taskQueue{main: main, remaining: len(tasks)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// pushRetry requeues a throttled task without changing remaining — it was
// never finally resolved.
func (q *taskQueue) pushRetry(item queueItem) {
	q.mu.Lock()
	q.retry = append(q.retry, item)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// markDone finalizes one task's resolution (success, failure, drop, or
// error) and wakes any worker blocked waiting for more work in case this
// was the last outstanding task.
func (q *taskQueue) markDone() {
	q.mu.Lock()
	q.remaining--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until a task is available or the queue is fully drained,
// preferring the retry backlog once it reaches workerCount entries.
func (q *taskQueue) pop(workerCount int) (queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.retry) >= workerCount && len(q.retry) > 0 {
			item := q.retry[0]
			q.retry = q.retry[1:]
			return item, true
		}
		if len(q.main) > 0 {
			item := q.main[0]
			q.main = q.main[1:]
			return item, true
		}
		if len(q.retry) > 0 {
			item := q.retry[0]
			q.retry = q.retry[1:]
			return item, true
		}
		if q.remaining <= 0 {
			return queueItem{}, false
		}
		q.cond.Wait()
	}
}
