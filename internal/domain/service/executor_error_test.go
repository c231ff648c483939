package service

import (
	"fmt"
	"testing"
)

func TestClassifyError_NilErrorReturnsNil(t *testing.T) {
	if got := ClassifyError(nil, "anthropic", "claude"); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestClassifyError_AlreadyClassifiedErrorPassesThrough(t *testing.T) {
	original := &ExecutorError{Kind: ErrKindTimeout, Message: "already classified"}
	got := ClassifyError(original, "anthropic", "claude")
	if got != original {
		t.Fatalf("expected the already-classified ExecutorError to be returned unchanged")
	}
}

func TestClassifyError_RecognizesEachPatternFamily(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ExecutorErrorKind
	}{
		{"rate limit phrase", fmt.Errorf("rate limit exceeded"), ErrKindThrottle},
		{"429 status", fmt.Errorf("HTTP 429 too many requests"), ErrKindThrottle},
		{"overloaded", fmt.Errorf("model is overloaded right now"), ErrKindThrottle},
		{"timeout word", fmt.Errorf("request timeout after 30s"), ErrKindTimeout},
		{"deadline exceeded", fmt.Errorf("context deadline exceeded"), ErrKindTimeout},
		{"connection reset", fmt.Errorf("connection reset by peer"), ErrKindTransport},
		{"503", fmt.Errorf("upstream returned 503"), ErrKindTransport},
		{"unrecognized", fmt.Errorf("some never-seen-before failure"), ErrKindTransport},
	}
	for _, c := range cases {
		got := ClassifyError(c.err, "anthropic", "claude-sonnet-4")
		if got.Kind != c.want {
			t.Errorf("%s: got Kind=%v, want %v", c.name, got.Kind, c.want)
		}
		if got.Cause != c.err {
			t.Errorf("%s: expected Cause to wrap the original error", c.name)
		}
		if got.Provider != "anthropic" || got.Model != "claude-sonnet-4" {
			t.Errorf("%s: expected provider/model to be carried through, got %+v", c.name, got)
		}
	}
}

func TestClassifyError_ThrottleIsNeverSurfacedAsAFailureRecord(t *testing.T) {
	got := ClassifyError(fmt.Errorf("429 rate limit"), "p", "m")
	if !got.Kind.IsThrottle() {
		t.Fatalf("expected a rate-limit error to classify as throttle")
	}
}

func TestClassifyError_ExtractsKnownStatusCodes(t *testing.T) {
	got := ClassifyError(fmt.Errorf("server responded with 503 service unavailable"), "p", "m")
	if got.StatusCode != 503 {
		t.Fatalf("got StatusCode=%d, want 503", got.StatusCode)
	}
}

func TestExecutorError_ErrorStringIncludesCauseWhenPresent(t *testing.T) {
	cause := fmt.Errorf("underlying transport failure")
	e := &ExecutorError{Kind: ErrKindTransport, Message: "transport error", Cause: cause}
	if got := e.Error(); got == "" {
		t.Fatalf("expected a non-empty error string")
	}
	if e.Unwrap() != cause {
		t.Fatalf("expected Unwrap() to return the wrapped cause")
	}
}

func TestExecutorErrorKind_StringCoversEveryKind(t *testing.T) {
	kinds := []ExecutorErrorKind{
		ErrKindThrottle, ErrKindTimeout, ErrKindTransport,
		ErrKindToolParse, ErrKindNoWorkflow, ErrKindStoreWrite,
	}
	seen := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "unknown" {
			t.Fatalf("kind %d stringified to %q, want a real label", k, s)
		}
		if seen[s] {
			t.Fatalf("duplicate string label %q for distinct kinds", s)
		}
		seen[s] = true
	}
}
