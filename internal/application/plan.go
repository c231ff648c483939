package application

import (
	"fmt"
	"strings"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

// PlanRequest is the BatchRunner's Cartesian-product input (§4.5/§4.6). Any
// of the four dimension lists may contain the single value "all" as a
// wildcard; PerCell is how many independent instances to generate per cell.
type PlanRequest struct {
	Models      []string
	TaskTypes   []string
	PromptTypes []string
	Difficulty  []string
	PerCell     int

	// ToolSuccessRate seeds every generated TestTask's Bernoulli parameter
	// for the simulated tool layer; defaults to 0.9 when zero.
	ToolSuccessRate float64
}

// CanonicalPromptTypes lists the ten prompt strategies the "all" wildcard
// expands to: the three base templates plus one "flawed_<kind>" variant per
// §6 flaw-injection catalogue entry.
func CanonicalPromptTypes() []string {
	out := []string{string(entity.PromptBaseline), string(entity.PromptOptimal), string(entity.PromptCOT)}
	for _, f := range entity.AllFlawKinds {
		out = append(out, string(entity.FlawedPromptType(f)))
	}
	return out
}

// Plan expands a PlanRequest into the concrete TestTasks the worker pool
// will run, one per (model, task type, prompt type, difficulty, instance).
func Plan(req PlanRequest) []entity.TestTask {
	taskTypes := resolveTaskTypes(req.TaskTypes)
	promptTypes := resolvePromptTypes(req.PromptTypes)
	difficulties := resolveDifficulties(req.Difficulty)
	perCell := req.PerCell
	if perCell <= 0 {
		perCell = 1
	}
	toolSuccessRate := req.ToolSuccessRate
	if toolSuccessRate <= 0 {
		toolSuccessRate = 0.9
	}

	var tasks []entity.TestTask
	for _, model := range req.Models {
		for _, tt := range taskTypes {
			for _, pt := range promptTypes {
				for _, d := range difficulties {
					for n := 0; n < perCell; n++ {
						tasks = append(tasks, entity.TestTask{
							ID:              fmt.Sprintf("%s_%s_inst%d_%s%s", model, tt, n, basePromptLabel(pt), flawSuffix(pt)),
							ModelID:         model,
							TaskType:        entity.TaskType(tt),
							PromptType:      basePromptType(pt),
							Difficulty:      entity.Difficulty(d),
							IsFlawed:        isFlawedPromptType(pt),
							FlawType:        flawKindFor(pt),
							ToolSuccessRate: toolSuccessRate,
							Instance:        &entity.TaskInstance{InstanceIndex: n},
						})
					}
				}
			}
		}
	}
	return tasks
}

func resolveTaskTypes(in []string) []string {
	if isAll(in) {
		out := make([]string, len(entity.AllTaskTypes))
		for i, t := range entity.AllTaskTypes {
			out[i] = string(t)
		}
		return out
	}
	return in
}

func resolveDifficulties(in []string) []string {
	if isAll(in) {
		out := make([]string, len(entity.AllDifficulties))
		for i, d := range entity.AllDifficulties {
			out[i] = string(d)
		}
		return out
	}
	return in
}

func resolvePromptTypes(in []string) []string {
	if isAll(in) {
		return CanonicalPromptTypes()
	}
	return in
}

func isAll(in []string) bool {
	return len(in) == 1 && strings.EqualFold(in[0], "all")
}

func isFlawedPromptType(pt string) bool {
	return strings.HasPrefix(pt, "flawed_")
}

func basePromptType(pt string) entity.PromptType {
	if isFlawedPromptType(pt) {
		return entity.PromptOptimal
	}
	return entity.PromptType(pt)
}

func basePromptLabel(pt string) string {
	if isFlawedPromptType(pt) {
		return "optimal"
	}
	return pt
}

func flawSuffix(pt string) string {
	if !isFlawedPromptType(pt) {
		return ""
	}
	return "_" + strings.TrimPrefix(pt, "flawed_")
}

func flawKindFor(pt string) entity.FlawKind {
	if !isFlawedPromptType(pt) {
		return ""
	}
	return entity.FlawKind(strings.TrimPrefix(pt, "flawed_"))
}
