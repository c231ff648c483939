package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "evalharness"

// HomeDir returns the harness's configuration home: ~/.evalharness
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the ~/.evalharness directory exists with default content.
// Called once at startup. Safe to call multiple times — only creates missing items.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	dirs := []string{
		root,
		filepath.Join(root, "results"),
		filepath.Join(root, "logs"),
		filepath.Join(root, "transcripts"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	defaults := map[string]string{
		filepath.Join(root, "config.yaml"): defaultConfig,
		filepath.Join(root, "flaws.yaml"):  defaultFlawCatalogue,
	}

	created := 0
	for path, content := range defaults {
		if _, err := os.Stat(path); err == nil {
			continue // already exists, never overwrite user edits
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logger.Warn("failed to write default file", zap.String("path", path), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		logger.Info("evalharness bootstrap complete",
			zap.String("home", root),
			zap.Int("files_created", created),
		)
	} else {
		logger.Debug("evalharness home directory OK", zap.String("home", root))
	}

	return nil
}

// ──────────────────────────────────────────────────────────────
// Embedded default file contents
// ──────────────────────────────────────────────────────────────

const defaultConfig = `# ═══════════════════════════════════════════════════════════════
# evalharness configuration
# Auto-generated on first launch — feel free to edit
# ═══════════════════════════════════════════════════════════════

# ─── Providers ──────────────────────────────────────────────────
# Each entry is one LLM endpoint the BatchRunner can dispatch to.
# kind selects the rate-limiter profile: high_throughput | moderate | conservative.
# Leave kind empty to classify it from name (see ProfileForProviderName).
providers: []
# Example:
# providers:
#   - name: anthropic
#     type: anthropic
#     api_key: "sk-ant-..."
#     models: ["claude-sonnet-4-20250514"]
#     priority: 1
#
#   - name: idealab-qwen
#     type: openai
#     base_url: "https://idealab.example.com/v1"
#     api_key: "..."
#     models: ["qwen2.5-72b-instruct"]
#     kind: conservative
#     priority: 2

# ─── Adaptive rate limiter defaults (§4.1) ─────────────────────
limiter:
  initial_workers: 5
  initial_qps: 10
  min_workers: 1
  max_workers: 20
  min_qps: 1
  max_qps: 50
  backoff_factor: 0.5
  recovery_factor: 1.2
  stable_threshold: 20

# ─── Result store (§4.4) ───────────────────────────────────────
store:
  format: document              # document | rowlog
  document_path: "~/.evalharness/results/summary.json"
  rowlog_path: "~/.evalharness/results/records.arrow"
  checkpoint_interval: 20        # 0 disables intermediate checkpoints

# ─── Task ledger (crash recovery) ──────────────────────────────
ledger:
  type: sqlite                  # sqlite | postgres
  dsn: "~/.evalharness/ledger.db"

# ─── Batch plan defaults (§4.6) ────────────────────────────────
plan:
  models: []
  task_types: ["all"]
  prompt_types: ["all"]
  difficulty: ["all"]
  per_cell: 1
  workers: 5
  qps: 10
  adaptive: true
  hard_timeout_seconds: 900
  soft_timeout_seconds: 600

# ─── Logging ────────────────────────────────────────────────────
log:
  level: info                   # debug | info | warn | error
  format: console                # console | json

# ─── Optional read-only HTTP status server ─────────────────────
http_enabled: false
http_addr: "127.0.0.1:8791"
`

const defaultFlawCatalogue = `# Flaw-injection catalogue (§4.2 scoring, §6 transformation table). Perturbs
# Workflow.OptimalSequence copies only, never mutates the stored workflow.
flaws:
  - name: sequence_disorder
    description: permute adjacent pairs in the optimal sequence
  - name: tool_misuse
    description: replace one tool with another valid tool of a different category
  - name: parameter_error
    description: mark one step with invalid parameters
  - name: missing_step
    description: drop one non-first, non-last step
  - name: redundant_operations
    description: duplicate one step
  - name: logical_inconsistency
    description: insert an output step before an input step
  - name: semantic_drift
    description: swap a step for a tool whose semantics are adjacent but wrong
`
