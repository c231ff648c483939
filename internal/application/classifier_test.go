package application

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/evalharness/evalharness/internal/infrastructure/llm"
)

func TestRuleBasedClassifier_ReturnsClosedCategorySet(t *testing.T) {
	c := RuleBasedClassifier{}
	cases := []service.ErrorKindHint{
		{Present: false},
		{Present: true, Kind: entity.ErrorKindTimeout},
		{Present: true, Kind: entity.ErrorKindToolParse},
		{Present: true, Kind: entity.ErrorKindNoWorkflow},
		{Present: true, Kind: entity.ErrorKindTransport},
		{Present: true, Kind: entity.ErrorKindStoreWrite},
		{Present: true, Kind: entity.ErrorKind("something_unrecognized")},
	}
	for _, hint := range cases {
		res := c.Classify(context.Background(), "irrelevant transcript text", hint)
		if !isClosedCategory(res.Category) {
			t.Errorf("Classify(%+v) = %q, not in the closed eight-category set", hint, res.Category)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Errorf("Classify(%+v) confidence=%f out of [0,1]", hint, res.Confidence)
		}
	}
}

func TestRuleBasedClassifier_NeverKeywordMatchesTranscriptText(t *testing.T) {
	// §4.3: "keyword rules on raw words like 'timeout' are forbidden". The
	// rule-based classifier must classify purely off the structural hint,
	// ignoring a transcript that mentions "timeout" conversationally.
	c := RuleBasedClassifier{}
	transcriptMentioningTimeout := "[user] please don't let this timeout, rate limit exceeded, 429\n[assistant] ok"
	res := c.Classify(context.Background(), transcriptMentioningTimeout, service.ErrorKindHint{Present: false})
	if res.Category != entity.CategoryOther {
		t.Fatalf("expected other_errors when no structural hint is present regardless of transcript content, got %q", res.Category)
	}
}

func TestLLMClassifier_DegradesToOtherErrorsOnLLMFailure(t *testing.T) {
	mock := &llm.MockProvider{Script: []llm.MockTurn{{Err: &transportErr{"connection reset by peer"}}}}
	c := NewLLMClassifier(mock, "mock-model", zap.NewNop())
	res := c.Classify(context.Background(), "some transcript", service.ErrorKindHint{})
	if res.Category != entity.CategoryOther {
		t.Fatalf("got category=%q, want other_errors on classifier failure", res.Category)
	}
	if res.Confidence != 0.0 {
		t.Fatalf("got confidence=%f, want 0.0 on classifier failure", res.Confidence)
	}
}

func TestLLMClassifier_DegradesToOtherErrorsOnUnparseableReply(t *testing.T) {
	mock := &llm.MockProvider{Script: []llm.MockTurn{{Text: "I cannot help with that."}}}
	c := NewLLMClassifier(mock, "mock-model", zap.NewNop())
	res := c.Classify(context.Background(), "some transcript", service.ErrorKindHint{})
	if res.Category != entity.CategoryOther || res.Confidence != 0.0 {
		t.Fatalf("got %+v, want other_errors/0.0 on an unparseable reply", res)
	}
}

func TestLLMClassifier_ParsesWellFormedReply(t *testing.T) {
	mock := &llm.MockProvider{Script: []llm.MockTurn{
		{Text: "CATEGORY: tool_selection_errors\nREASON: wrong tool picked\nCONFIDENCE: 0.9\n"},
	}}
	c := NewLLMClassifier(mock, "mock-model", zap.NewNop())
	res := c.Classify(context.Background(), "some transcript", service.ErrorKindHint{})
	if res.Category != entity.CategoryToolSelection {
		t.Fatalf("got category=%q, want tool_selection_errors", res.Category)
	}
	if res.Reason != "wrong tool picked" {
		t.Fatalf("got reason=%q", res.Reason)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("got confidence=%f, want 0.9", res.Confidence)
	}
}

func isClosedCategory(c entity.ErrorCategory) bool {
	for _, v := range entity.AllErrorCategories {
		if v == c {
			return true
		}
	}
	return false
}
