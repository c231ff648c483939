package worklib

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

func TestLoad_MissingOverlayFileStillCoversEveryPair(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, tt := range entity.AllTaskTypes {
		for _, d := range entity.AllDifficulties {
			if _, err := p.Workflow(tt, d); err != nil {
				t.Fatalf("Workflow(%s, %s): %v", tt, d, err)
			}
		}
	}
}

func TestLoad_HarderDifficultyHasLongerSequence(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	easy, err := p.Workflow(entity.TaskSimple, entity.DifficultyVeryEasy)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	hard, err := p.Workflow(entity.TaskSimple, entity.DifficultyVeryHard)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if len(hard.OptimalSequence) <= len(easy.OptimalSequence) {
		t.Fatalf("expected very_hard sequence (%d) to be longer than very_easy (%d)", len(hard.OptimalSequence), len(easy.OptimalSequence))
	}
}

func TestWorkflow_RequiredToolsIsSubsetOfOptimalSequence(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, tt := range entity.AllTaskTypes {
		for _, d := range entity.AllDifficulties {
			wf, err := p.Workflow(tt, d)
			if err != nil {
				t.Fatalf("Workflow(%s, %s): %v", tt, d, err)
			}
			optimal := wf.OptimalSet()
			for _, req := range wf.RequiredTools {
				if _, ok := optimal[req]; !ok {
					t.Fatalf("%s/%s: required tool %q not in optimal sequence", tt, d, req)
				}
			}
		}
	}
}

func TestLoad_OverlayFileOverridesDefaultEntry(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "overlay.yaml")
	overlay := []byte(`
workflows:
  - task_type: simple_task
    difficulty: easy
    optimal_sequence: ["custom_a", "custom_b"]
    required_tools: ["custom_a"]
`)
	if err := os.WriteFile(overlayPath, overlay, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := Load(overlayPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wf, err := p.Workflow(entity.TaskSimple, entity.DifficultyEasy)
	if err != nil {
		t.Fatalf("Workflow: %v", err)
	}
	if len(wf.OptimalSequence) != 2 || wf.OptimalSequence[0] != "custom_a" {
		t.Fatalf("expected overlay to override the default sequence, got %v", wf.OptimalSequence)
	}
}
