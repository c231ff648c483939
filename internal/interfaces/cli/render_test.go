package cli

import (
	"strings"
	"testing"

	"github.com/evalharness/evalharness/internal/application"
)

func TestRenderSummary_IncludesModelNameAndEveryCount(t *testing.T) {
	summary := application.BatchSummary{
		Total:        10,
		FullSuccess:  6,
		Partial:      2,
		Failure:      2,
		Skipped:      1,
		ThrottleDrop: 3,
		Errors:       0,
	}
	out := RenderSummary("claude-sonnet-4", summary)

	if !strings.Contains(out, "claude-sonnet-4") {
		t.Fatalf("expected rendered summary to include the model name, got:\n%s", out)
	}
	for _, want := range []string{"10", "6", "2", "1", "3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected rendered summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderSummary_NeverPanicsOnZeroSummary(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("RenderSummary panicked on a zero-value summary: %v", r)
		}
	}()
	out := RenderSummary("model", application.BatchSummary{})
	if out == "" {
		t.Fatalf("expected a non-empty rendered string even for a zero summary")
	}
}
