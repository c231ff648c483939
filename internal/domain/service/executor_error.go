package service

import (
	"errors"
	"fmt"
	"strings"
)

// ExecutorErrorKind is the tagged-union discriminant for §7's error kinds,
// replacing the source's `return {..., error: str(e)}` pattern (§9 DESIGN
// NOTES) with a typed Result<TestResult, ExecutorError>-shaped value.
type ExecutorErrorKind int

const (
	// ErrKindThrottle means the upstream signaled a rate limit; recovered
	// locally by the retry queue + limiter backoff, never surfaced as a
	// failure record.
	ErrKindThrottle ExecutorErrorKind = iota

	// ErrKindTimeout means the per-task hard or soft deadline was hit.
	ErrKindTimeout

	// ErrKindTransport means a network/LLM transport error unrelated to
	// throttling (connection reset, 5xx, EOF).
	ErrKindTransport

	// ErrKindToolParse means the assistant's text failed tool-call parsing
	// within a turn; non-fatal, the turn continues.
	ErrKindToolParse

	// ErrKindNoWorkflow means the WorkflowProvider could not produce a
	// workflow for the task.
	ErrKindNoWorkflow

	// ErrKindStoreWrite means ResultStore.write failed after its one retry.
	ErrKindStoreWrite
)

// String returns the classifier-facing label for the error kind.
func (k ExecutorErrorKind) String() string {
	switch k {
	case ErrKindThrottle:
		return "throttle"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindTransport:
		return "transport"
	case ErrKindToolParse:
		return "tool_parse"
	case ErrKindNoWorkflow:
		return "no_workflow"
	case ErrKindStoreWrite:
		return "store_write"
	default:
		return "unknown"
	}
}

// IsThrottle reports whether this kind must never produce a TestRecord
// (§7: "Throttle... Never surfaced as a failure record").
func (k ExecutorErrorKind) IsThrottle() bool {
	return k == ErrKindThrottle
}

// ExecutorError is a structured error produced anywhere in the C2-C6
// pipeline. It wraps the original error with classification metadata the
// BatchRunner and ErrorClassifier both consume.
type ExecutorError struct {
	Kind       ExecutorErrorKind
	Message    string
	StatusCode int // HTTP status code if applicable, 0 if unknown
	Provider   string
	Model      string
	Cause      error
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap enables errors.Is/errors.As on the cause chain.
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// ClassifyError examines an LLM-call error and returns a classified
// ExecutorError. If err is already one, it is returned as-is. The
// vocabulary mirrors §6's "Errors classified at the boundary into throttle
// / timeout / transport / other" and §7's closed error-kind list.
func ClassifyError(err error, provider, model string) *ExecutorError {
	if err == nil {
		return nil
	}

	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr
	}

	errStr := strings.ToLower(err.Error())

	throttlePatterns := []string{
		"rate limit", "too many requests", "429", "tpm/rpm", "overloaded",
		"temporarily unavailable", "throttle",
	}
	for _, p := range throttlePatterns {
		if strings.Contains(errStr, p) {
			return &ExecutorError{
				Kind:       ErrKindThrottle,
				Message:    "provider signaled a rate limit",
				StatusCode: extractStatusCode(errStr),
				Provider:   provider,
				Model:      model,
				Cause:      err,
			}
		}
	}

	timeoutPatterns := []string{"timeout", "deadline exceeded", "context canceled"}
	for _, p := range timeoutPatterns {
		if strings.Contains(errStr, p) {
			return &ExecutorError{
				Kind:     ErrKindTimeout,
				Message:  "request timed out",
				Provider: provider,
				Model:    model,
				Cause:    err,
			}
		}
	}

	transportPatterns := []string{
		"connection reset", "connection refused", "eof", "server error",
		"502", "503", "504", "529",
	}
	for _, p := range transportPatterns {
		if strings.Contains(errStr, p) {
			return &ExecutorError{
				Kind:       ErrKindTransport,
				Message:    "transport error",
				StatusCode: extractStatusCode(errStr),
				Provider:   provider,
				Model:      model,
				Cause:      err,
			}
		}
	}

	// Default: transport. Unlike the teacher's default-to-transient policy,
	// the harness has no "unknown, maybe retry" bucket in §7 — an
	// unrecognized LLM error is not retried. The BatchRunner counts it, like
	// every non-throttle ExecutorError, in BatchSummary.Errors and writes no
	// TestRecord for it.
	return &ExecutorError{
		Kind:       ErrKindTransport,
		Message:    "unclassified LLM error",
		StatusCode: extractStatusCode(errStr),
		Provider:   provider,
		Model:      model,
		Cause:      err,
	}
}

// extractStatusCode tries to find HTTP status codes in an error string.
func extractStatusCode(errStr string) int {
	codes := map[string]int{
		"400": 400, "401": 401, "403": 403, "404": 404,
		"429": 429, "500": 500, "502": 502, "503": 503,
		"504": 504, "529": 529,
	}
	for code, num := range codes {
		if strings.Contains(errStr, code) {
			return num
		}
	}
	return 0
}
