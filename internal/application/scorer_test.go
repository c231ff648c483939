package application

import (
	"context"
	"testing"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

func TestHeuristicPhase2Scorer_PerfectRunScoresNearOne(t *testing.T) {
	s := NewHeuristicPhase2Scorer(DefaultMaxTurns)
	wf := entity.Workflow{OptimalSequence: []string{"read_file", "write_file"}}
	transcript := entity.Transcript{
		Messages: []entity.Message{{TurnIndex: 0}, {TurnIndex: 1}},
		ToolCalls: []entity.ToolExecution{
			{ToolName: "read_file", Succeeded: true},
			{ToolName: "write_file", Succeeded: true},
		},
	}
	score, enabled, err := s.Score(context.Background(), entity.TestTask{}, wf, transcript)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Fatalf("expected HeuristicPhase2Scorer to always be enabled")
	}
	if score < 0.8 {
		t.Fatalf("got score=%f, want a high score for a clean, on-workflow run", score)
	}
}

func TestHeuristicPhase2Scorer_FailedToolCallsLowerScore(t *testing.T) {
	s := NewHeuristicPhase2Scorer(DefaultMaxTurns)
	wf := entity.Workflow{OptimalSequence: []string{"read_file", "write_file"}}

	clean := entity.Transcript{ToolCalls: []entity.ToolExecution{
		{ToolName: "read_file", Succeeded: true},
		{ToolName: "write_file", Succeeded: true},
	}}
	dirty := entity.Transcript{ToolCalls: []entity.ToolExecution{
		{ToolName: "read_file", Succeeded: false},
		{ToolName: "write_file", Succeeded: false},
	}}

	cleanScore, _, _ := s.Score(context.Background(), entity.TestTask{}, wf, clean)
	dirtyScore, _, _ := s.Score(context.Background(), entity.TestTask{}, wf, dirty)
	if dirtyScore >= cleanScore {
		t.Fatalf("expected failed tool calls to lower the score: clean=%f dirty=%f", cleanScore, dirtyScore)
	}
}

func TestHeuristicPhase2Scorer_ScoreAlwaysInUnitRange(t *testing.T) {
	s := NewHeuristicPhase2Scorer(2)
	wf := entity.Workflow{OptimalSequence: []string{"a"}}
	transcript := entity.Transcript{
		Messages:  []entity.Message{{TurnIndex: 50}},
		ToolCalls: nil,
	}
	score, _, err := s.Score(context.Background(), entity.TestTask{}, wf, transcript)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0 || score > 1 {
		t.Fatalf("got score=%f, want within [0,1] even when turns exceed MaxTurns", score)
	}
}

func TestNoopPhase2Scorer_NeverEnabled(t *testing.T) {
	s := NoopPhase2Scorer{}
	score, enabled, err := s.Score(context.Background(), entity.TestTask{}, entity.Workflow{}, entity.Transcript{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled {
		t.Fatalf("NoopPhase2Scorer must never report enabled=true")
	}
	if score != 0 {
		t.Fatalf("got score=%f, want 0", score)
	}
}
