package application

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
)

// RuleBasedClassifier is the always-available C4 fallback. §4.3 forbids
// keyword-matching the raw transcript text — "the classifier must reason
// over context", not grep it — so this classifier looks only at the
// structural ErrorKindHint carried on TestResult.ErrorKind (a typed signal,
// not text scraping) and otherwise returns the lowest-confidence
// "other_errors" bucket. Executor.Run leaves ErrorKind empty, so for the
// records the BatchRunner classifies the hint is absent and the result is
// "other_errors". It exists so a classification is
// always produced even when no LLM-backed judge is configured.
type RuleBasedClassifier struct{}

func (RuleBasedClassifier) Classify(_ context.Context, _ string, hint service.ErrorKindHint) service.ClassifierResult {
	if !hint.Present {
		return service.ClassifierResult{Category: entity.CategoryOther, Reason: "no structural signal available", Confidence: 0.2}
	}

	switch hint.Kind {
	case entity.ErrorKindTimeout:
		return service.ClassifierResult{Category: entity.CategoryTimeout, Reason: "executor reported a timeout", Confidence: 0.85}
	case entity.ErrorKindToolParse:
		return service.ClassifierResult{Category: entity.CategoryToolCallFormat, Reason: "executor reported a tool-call parse failure", Confidence: 0.8}
	case entity.ErrorKindNoWorkflow:
		return service.ClassifierResult{Category: entity.CategoryDependency, Reason: "no workflow was available for this task", Confidence: 0.7}
	case entity.ErrorKindTransport, entity.ErrorKindStoreWrite:
		return service.ClassifierResult{Category: entity.CategoryOther, Reason: "infrastructure-level failure, not a model behavior", Confidence: 0.5}
	default:
		return service.ClassifierResult{Category: entity.CategoryOther, Reason: "unrecognized structural signal", Confidence: 0.2}
	}
}

// LLMClassifier delegates to a model to read the transcript and pick one of
// the eight closed categories, the reasoning §4.3 actually asks for. It
// never throws: any call failure, timeout, or unparseable reply degrades to
// ("other_errors", "classifier unavailable", 0.0) rather than surfacing an
// error to the caller, since a failed classification must not crash a batch
// that otherwise succeeded.
type LLMClassifier struct {
	llm    service.LLMClient
	model  string
	logger *zap.Logger
}

// NewLLMClassifier builds a classifier backed by model on llm.
func NewLLMClassifier(llm service.LLMClient, model string, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{llm: llm, model: model, logger: logger}
}

func (c *LLMClassifier) Classify(ctx context.Context, transcriptText string, hint service.ErrorKindHint) service.ClassifierResult {
	prompt := classifierPrompt(transcriptText, hint)
	reply, err := c.llm.Chat(ctx, []service.ChatMessage{{Role: entity.RoleUser, Content: prompt}}, service.ChatOptions{Model: c.model, Timeout: 60})
	if err != nil {
		c.logger.Warn("classifier LLM call failed", zap.Error(err))
		return service.ClassifierResult{Category: entity.CategoryOther, Reason: "classifier unavailable", Confidence: 0.0}
	}

	category, reason, confidence, ok := parseClassifierReply(reply)
	if !ok {
		c.logger.Warn("classifier reply did not parse", zap.String("reply", reply))
		return service.ClassifierResult{Category: entity.CategoryOther, Reason: "classifier unavailable", Confidence: 0.0}
	}
	return service.ClassifierResult{Category: category, Reason: reason, Confidence: confidence}
}

func classifierPrompt(transcriptText string, hint service.ErrorKindHint) string {
	var b strings.Builder
	b.WriteString("A test run did not reach full success. Read the transcript below and classify the ")
	b.WriteString("root cause into exactly one of these categories:\n")
	for _, cat := range entity.AllErrorCategories {
		fmt.Fprintf(&b, "- %s\n", cat)
	}
	if hint.Present {
		fmt.Fprintf(&b, "\nStructural hint from the executor: %s\n", hint.Kind)
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcriptText)
	b.WriteString("\n\nReply in exactly this form:\nCATEGORY: <one of the categories above>\nREASON: <one sentence>\nCONFIDENCE: <0.0-1.0>\n")
	return b.String()
}

func parseClassifierReply(reply string) (entity.ErrorCategory, string, float64, bool) {
	var category entity.ErrorCategory
	var reason string
	var confidence float64
	found := false

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CATEGORY:"):
			val := strings.TrimSpace(strings.TrimPrefix(line, "CATEGORY:"))
			for _, cat := range entity.AllErrorCategories {
				if string(cat) == val {
					category = cat
					found = true
				}
			}
		case strings.HasPrefix(line, "REASON:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "REASON:"))
		case strings.HasPrefix(line, "CONFIDENCE:"):
			val := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			fmt.Sscanf(val, "%f", &confidence)
		}
	}

	if !found {
		return "", "", 0, false
	}
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}
	return category, reason, confidence, true
}

// RenderTranscript flattens a Transcript into the plain text the classifier
// reads — a distinct concern from the §6 file-logging format, kept minimal
// since the classifier only needs role/content, not the full turn
// bookkeeping a saved transcript file carries.
func RenderTranscript(t entity.Transcript) string {
	var b strings.Builder
	for _, m := range t.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}
