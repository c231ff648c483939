package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/infrastructure/config"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(config.LedgerConfig{Type: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_IsCompleteFalseBeforeRecording(t *testing.T) {
	l := newTestLedger(t)
	done, err := l.IsComplete("task-1")
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if done {
		t.Fatalf("expected task-1 to not be complete before any recording")
	}
}

func TestLedger_RecordCompletionThenIsCompleteIsTrue(t *testing.T) {
	l := newTestLedger(t)
	rec := entity.TestRecord{
		ID:         "task-1",
		ModelID:    "model-a",
		TaskType:   entity.TaskSimple,
		PromptType: entity.PromptBaseline,
		Difficulty: entity.DifficultyEasy,
		Result:     entity.TestResult{SuccessLevel: entity.FullSuccess},
		Timestamp:  time.Now(),
	}
	if err := l.RecordCompletion(rec); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	done, err := l.IsComplete("task-1")
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if !done {
		t.Fatalf("expected task-1 to be complete after recording")
	}
}

func TestLedger_RecordCompletionIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	rec := entity.TestRecord{ID: "task-1", ModelID: "model-a", Timestamp: time.Now()}

	if err := l.RecordCompletion(rec); err != nil {
		t.Fatalf("first RecordCompletion: %v", err)
	}
	rec.Result.SuccessLevel = entity.Failure
	if err := l.RecordCompletion(rec); err != nil {
		t.Fatalf("second RecordCompletion (same ID): %v", err)
	}

	ids, err := l.CompletedIDs()
	if err != nil {
		t.Fatalf("CompletedIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d completed IDs, want exactly 1 (re-recording the same test ID must not duplicate rows)", len(ids))
	}
}

func TestLedger_CompletedIDsReflectsAllRecordedTests(t *testing.T) {
	l := newTestLedger(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := l.RecordCompletion(entity.TestRecord{ID: id, Timestamp: time.Now()}); err != nil {
			t.Fatalf("RecordCompletion(%s): %v", id, err)
		}
	}

	ids, err := l.CompletedIDs()
	if err != nil {
		t.Fatalf("CompletedIDs: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if !ids[id] {
			t.Fatalf("expected %q in CompletedIDs, got %v", id, ids)
		}
	}
}

func TestOpen_RejectsUnsupportedDialect(t *testing.T) {
	_, err := Open(config.LedgerConfig{Type: "mysql", DSN: "whatever"})
	if err == nil {
		t.Fatalf("expected an error for an unsupported ledger dialect")
	}
}
