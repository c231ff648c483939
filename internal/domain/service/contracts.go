package service

import (
	"context"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

// ProviderKind selects an AdaptiveRateLimiter profile (§4.1 table).
type ProviderKind string

const (
	ProviderHighThroughput ProviderKind = "high_throughput"
	ProviderModerate       ProviderKind = "moderate"
	ProviderConservative   ProviderKind = "conservative"
)

// RateLimiterStats is the observability shape returned by Stats() (§4.1):
// raw counts alongside a numeric success ratio; no formatted ratio string is
// produced.
type RateLimiterStats struct {
	CurrentWorkers int
	CurrentQPS     float64
	TotalSuccess   int64
	TotalThrottles int64
	TotalErrors    int64
	SuccessRatio   float64 // over the trailing 100-outcome ring buffer
}

// RateLimiter is C2's public contract.
type RateLimiter interface {
	AwaitSlot(ctx context.Context)
	RecordSuccess()
	RecordThrottle(msg string)
	RecordError(msg string)
	RetryDelay() float64 // seconds
	ShouldRetry(errMsg string) bool
	CurrentLimits() (workers int, qps float64)
	Stats() RateLimiterStats
}

// ClassifierResult is C4's output: one of the eight closed categories plus
// a reason and confidence.
type ClassifierResult struct {
	Category   entity.ErrorCategory
	Reason     string
	Confidence float64
}

// ErrorClassifier is C4's public contract. Called only when
// SuccessLevel != FullSuccess (§4.3).
type ErrorClassifier interface {
	Classify(ctx context.Context, transcriptText string, hintKind ErrorKindHint) ClassifierResult
}

// ErrorKindHint carries TestResult.ErrorKind through to the classifier as a
// hint, not a decision — §4.3 forbids keyword rules on raw transcript text,
// but a structural hint from the Executor (e.g. "this was a timeout") is
// fair input.
type ErrorKindHint struct {
	Kind    entity.ErrorKind
	Present bool
}

// SummaryFilter narrows QuerySummary to a subtree (§4.4 read-only query).
// Empty fields mean "no filter on this key".
type SummaryFilter struct {
	ModelID         string
	PromptType      entity.PromptType
	ToolSuccessRate *float64
	Difficulty      entity.Difficulty
	TaskType        entity.TaskType
}

// ResultStore is C5's public contract.
type ResultStore interface {
	Write(rec entity.TestRecord) error
	WriteBatch(recs []entity.TestRecord) error
	Flush() error
	QuerySummary(filter SummaryFilter) (*entity.SummaryTree, error)
	Clear(modelID string) error
}
