package entity

import "testing"

func TestComputeToolCoverageRate_EmptyRequiredIsOne(t *testing.T) {
	if got := ComputeToolCoverageRate([]string{"a", "b"}, nil); got != 1.0 {
		t.Fatalf("got %f, want 1.0", got)
	}
}

func TestComputeToolCoverageRate_PartialOverlap(t *testing.T) {
	got := ComputeToolCoverageRate([]string{"a", "c"}, []string{"a", "b"})
	if got != 0.5 {
		t.Fatalf("got %f, want 0.5", got)
	}
}

func TestComputeToolCoverageRate_DuplicatesInExecutedDoNotInflateRate(t *testing.T) {
	got := ComputeToolCoverageRate([]string{"a", "a", "a"}, []string{"a", "b"})
	if got != 0.5 {
		t.Fatalf("got %f, want 0.5 (duplicate executed entries must not double-count)", got)
	}
}

func TestComputeToolCoverageRate_FullCoverageIsOne(t *testing.T) {
	got := ComputeToolCoverageRate([]string{"a", "b", "c"}, []string{"a", "b"})
	if got != 1.0 {
		t.Fatalf("got %f, want 1.0", got)
	}
}

func TestClassifySuccessLevel_FullRequiresBothAboveThreshold(t *testing.T) {
	cases := []struct {
		workflow, phase2 float64
		want             SuccessLevel
	}{
		{1.0, 1.0, FullSuccess},
		{0.8, 0.8, FullSuccess},
		{0.8, 0.79, PartialSuccess},
		{0.79, 0.8, PartialSuccess},
		{0.5, 0.0, PartialSuccess},
		{0.0, 0.5, PartialSuccess},
		{0.4, 0.49, Failure},
		{0.0, 0.0, Failure},
	}
	for _, c := range cases {
		got := ClassifySuccessLevel(c.workflow, c.phase2)
		if got != c.want {
			t.Errorf("ClassifySuccessLevel(%f, %f) = %q, want %q", c.workflow, c.phase2, got, c.want)
		}
	}
}

func TestAllErrorCategories_HasExactlyEightClosedCategories(t *testing.T) {
	if len(AllErrorCategories) != 8 {
		t.Fatalf("got %d error categories, want 8", len(AllErrorCategories))
	}
	seen := make(map[ErrorCategory]bool, len(AllErrorCategories))
	for _, c := range AllErrorCategories {
		if seen[c] {
			t.Fatalf("duplicate error category %q", c)
		}
		seen[c] = true
	}
}
