package entity

import (
	"encoding/json"
	"fmt"
)

// LeafAggregate is the shape shared by every node of the summary tree,
// from the deepest (model, prompt_type, tool_success_rate, difficulty,
// task_type) leaf up to .overall (§3).
//
// avg_* fields are running means kept internally as (sum, count) so that
// merging two independently-accumulated aggregates is associative — the
// already-divided means are exposed through the AvgX methods; Merge operates
// on the underlying sums so the result is exact, not an average-of-averages.
type LeafAggregate struct {
	TotalTests     int64
	FullSuccess    int64
	PartialSuccess int64
	Failure        int64

	// running-mean accumulators; AvgX = sumX / TotalTests
	sumWorkflowScore float64
	sumPhase2Score   float64
	sumQualityScore  float64
	sumFinalScore    float64
	sumExecutionTime float64
	sumTurns         float64
	sumToolCalls     float64
	sumToolCoverage  float64

	ErrorCounts map[ErrorCategory]int64

	AssistedSuccess int64
	AssistedFailure int64
}

// leafAggregateJSON mirrors LeafAggregate with the sum accumulators exported
// so they survive a round trip through the document store — the fields
// computing AvgX are unexported on purpose (callers must go through the
// AvgX methods, not read a half-divided mean), but that means the default
// json.Marshal would silently drop them, losing every running sum on the
// next load. Custom (Un)MarshalJSON keeps the invariant and the persistence
// both intact.
type leafAggregateJSON struct {
	TotalTests     int64
	FullSuccess    int64
	PartialSuccess int64
	Failure        int64

	SumWorkflowScore float64
	SumPhase2Score   float64
	SumQualityScore  float64
	SumFinalScore    float64
	SumExecutionTime float64
	SumTurns         float64
	SumToolCalls     float64
	SumToolCoverage  float64

	ErrorCounts map[ErrorCategory]int64

	AssistedSuccess int64
	AssistedFailure int64
}

func (l *LeafAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(leafAggregateJSON{
		TotalTests:       l.TotalTests,
		FullSuccess:      l.FullSuccess,
		PartialSuccess:   l.PartialSuccess,
		Failure:          l.Failure,
		SumWorkflowScore: l.sumWorkflowScore,
		SumPhase2Score:   l.sumPhase2Score,
		SumQualityScore:  l.sumQualityScore,
		SumFinalScore:    l.sumFinalScore,
		SumExecutionTime: l.sumExecutionTime,
		SumTurns:         l.sumTurns,
		SumToolCalls:     l.sumToolCalls,
		SumToolCoverage:  l.sumToolCoverage,
		ErrorCounts:      l.ErrorCounts,
		AssistedSuccess:  l.AssistedSuccess,
		AssistedFailure:  l.AssistedFailure,
	})
}

func (l *LeafAggregate) UnmarshalJSON(data []byte) error {
	var aux leafAggregateJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.TotalTests = aux.TotalTests
	l.FullSuccess = aux.FullSuccess
	l.PartialSuccess = aux.PartialSuccess
	l.Failure = aux.Failure
	l.sumWorkflowScore = aux.SumWorkflowScore
	l.sumPhase2Score = aux.SumPhase2Score
	l.sumQualityScore = aux.SumQualityScore
	l.sumFinalScore = aux.SumFinalScore
	l.sumExecutionTime = aux.SumExecutionTime
	l.sumTurns = aux.SumTurns
	l.sumToolCalls = aux.SumToolCalls
	l.sumToolCoverage = aux.SumToolCoverage
	l.ErrorCounts = aux.ErrorCounts
	l.AssistedSuccess = aux.AssistedSuccess
	l.AssistedFailure = aux.AssistedFailure
	return nil
}

// NewLeafAggregate returns a zeroed aggregate with the error-count map
// pre-seeded for all eight categories (Property 5: sum(error_counts) ==
// total - full at every leaf requires a stable, fully-populated map).
func NewLeafAggregate() *LeafAggregate {
	l := &LeafAggregate{ErrorCounts: make(map[ErrorCategory]int64, len(AllErrorCategories))}
	for _, c := range AllErrorCategories {
		l.ErrorCounts[c] = 0
	}
	return l
}

// SuccessRate returns full_success / total_tests, 0 if no tests yet.
func (l *LeafAggregate) SuccessRate() float64 {
	if l.TotalTests == 0 {
		return 0
	}
	return float64(l.FullSuccess) / float64(l.TotalTests)
}

// WeightedSuccessScore blends full and partial outcomes, counting partial
// successes as half a success — used for the .overall summary view.
func (l *LeafAggregate) WeightedSuccessScore() float64 {
	if l.TotalTests == 0 {
		return 0
	}
	return (float64(l.FullSuccess) + 0.5*float64(l.PartialSuccess)) / float64(l.TotalTests)
}

func (l *LeafAggregate) AvgWorkflowScore() float64 { return safeDiv(l.sumWorkflowScore, l.TotalTests) }
func (l *LeafAggregate) AvgPhase2Score() float64   { return safeDiv(l.sumPhase2Score, l.TotalTests) }
func (l *LeafAggregate) AvgQualityScore() float64  { return safeDiv(l.sumQualityScore, l.TotalTests) }
func (l *LeafAggregate) AvgFinalScore() float64    { return safeDiv(l.sumFinalScore, l.TotalTests) }
func (l *LeafAggregate) AvgExecutionTime() float64 { return safeDiv(l.sumExecutionTime, l.TotalTests) }
func (l *LeafAggregate) AvgTurns() float64         { return safeDiv(l.sumTurns, l.TotalTests) }
func (l *LeafAggregate) AvgToolCalls() float64     { return safeDiv(l.sumToolCalls, l.TotalTests) }
func (l *LeafAggregate) ToolCoverageRate() float64 { return safeDiv(l.sumToolCoverage, l.TotalTests) }

func safeDiv(sum float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Accumulate folds one TestRecord into the aggregate, implementing the
// §4.4 "Summary update rule". It mutates sums, not pre-divided means, so
// repeated Accumulate calls and Merge calls commute.
func (l *LeafAggregate) Accumulate(rec TestRecord) {
	l.TotalTests++
	switch rec.Result.SuccessLevel {
	case FullSuccess:
		l.FullSuccess++
	case PartialSuccess:
		l.PartialSuccess++
	default:
		l.Failure++
	}

	l.sumWorkflowScore += rec.Result.WorkflowScore
	l.sumPhase2Score += rec.Result.Phase2Score
	l.sumQualityScore += rec.Result.QualityScore
	l.sumFinalScore += rec.Result.FinalScore
	l.sumExecutionTime += rec.Result.ExecutionTimeSeconds
	l.sumTurns += float64(rec.Result.Turns)
	l.sumToolCalls += float64(len(rec.Result.ToolCalls))
	l.sumToolCoverage += rec.Result.ToolCoverageRate

	if rec.Result.SuccessLevel != FullSuccess {
		if l.ErrorCounts == nil {
			l.ErrorCounts = make(map[ErrorCategory]int64)
		}
		l.ErrorCounts[rec.AIErrorCategory]++
	}
}

// Merge combines another aggregate into l, associatively — merging two
// store checkpoints from disjoint task sets must equal processing their
// union (Property 6 / §8 S5 crash recovery).
func (l *LeafAggregate) Merge(other *LeafAggregate) {
	if other == nil {
		return
	}
	l.TotalTests += other.TotalTests
	l.FullSuccess += other.FullSuccess
	l.PartialSuccess += other.PartialSuccess
	l.Failure += other.Failure

	l.sumWorkflowScore += other.sumWorkflowScore
	l.sumPhase2Score += other.sumPhase2Score
	l.sumQualityScore += other.sumQualityScore
	l.sumFinalScore += other.sumFinalScore
	l.sumExecutionTime += other.sumExecutionTime
	l.sumTurns += other.sumTurns
	l.sumToolCalls += other.sumToolCalls
	l.sumToolCoverage += other.sumToolCoverage

	if l.ErrorCounts == nil {
		l.ErrorCounts = make(map[ErrorCategory]int64, len(other.ErrorCounts))
	}
	for cat, n := range other.ErrorCounts {
		l.ErrorCounts[cat] += n
	}

	l.AssistedSuccess += other.AssistedSuccess
	l.AssistedFailure += other.AssistedFailure
}

// ToolSuccessRateKey stringifies the Bernoulli rate for use as a summary
// tree map key (keys must be stable strings, not floats).
type ToolSuccessRateKey string

// DifficultyBucket keys by difficulty under one tool_success_rate value.
type DifficultyBucket struct {
	ByDifficulty map[Difficulty]*TaskTypeBucket
}

// TaskTypeBucket is the deepest keyed level before the leaf aggregate.
type TaskTypeBucket struct {
	ByTaskType map[TaskType]*LeafAggregate
}

// PromptBucket keys by tool_success_rate under one prompt type.
type PromptBucket struct {
	ByToolSuccessRate map[ToolSuccessRateKey]*DifficultyBucket
}

// ModelSummary is the per-model node of the summary tree (§3).
type ModelSummary struct {
	Overall      *LeafAggregate
	ByPromptType map[PromptType]*PromptBucket
}

// NewModelSummary returns a zeroed ModelSummary with Overall initialized.
func NewModelSummary() *ModelSummary {
	return &ModelSummary{
		Overall:      NewLeafAggregate(),
		ByPromptType: make(map[PromptType]*PromptBucket),
	}
}

// SummaryTree is the full ResultStore aggregated document (§3), keyed by model_id.
type SummaryTree struct {
	Models map[string]*ModelSummary
}

// NewSummaryTree returns an empty tree.
func NewSummaryTree() *SummaryTree {
	return &SummaryTree{Models: make(map[string]*ModelSummary)}
}

// Accumulate updates every ancestor node from the leaf up to .overall for
// one record (§4.4 "locate the leaf node by the five keys, then update
// every ancestor up to .overall").
func (s *SummaryTree) Accumulate(rec TestRecord) {
	model, ok := s.Models[rec.ModelID]
	if !ok {
		model = NewModelSummary()
		s.Models[rec.ModelID] = model
	}
	model.Overall.Accumulate(rec)

	promptBucket, ok := model.ByPromptType[rec.PromptType]
	if !ok {
		promptBucket = &PromptBucket{ByToolSuccessRate: make(map[ToolSuccessRateKey]*DifficultyBucket)}
		model.ByPromptType[rec.PromptType] = promptBucket
	}

	rateKey := toolSuccessRateKey(rec.ToolSuccessRate)
	diffBucket, ok := promptBucket.ByToolSuccessRate[rateKey]
	if !ok {
		diffBucket = &DifficultyBucket{ByDifficulty: make(map[Difficulty]*TaskTypeBucket)}
		promptBucket.ByToolSuccessRate[rateKey] = diffBucket
	}

	taskBucket, ok := diffBucket.ByDifficulty[rec.Difficulty]
	if !ok {
		taskBucket = &TaskTypeBucket{ByTaskType: make(map[TaskType]*LeafAggregate)}
		diffBucket.ByDifficulty[rec.Difficulty] = taskBucket
	}

	leaf, ok := taskBucket.ByTaskType[rec.TaskType]
	if !ok {
		leaf = NewLeafAggregate()
		taskBucket.ByTaskType[rec.TaskType] = leaf
	}
	leaf.Accumulate(rec)
}

// Merge combines another tree into s, associatively over every node.
func (s *SummaryTree) Merge(other *SummaryTree) {
	if other == nil {
		return
	}
	for modelID, otherModel := range other.Models {
		model, ok := s.Models[modelID]
		if !ok {
			model = NewModelSummary()
			s.Models[modelID] = model
		}
		model.Overall.Merge(otherModel.Overall)

		for pt, otherPB := range otherModel.ByPromptType {
			pb, ok := model.ByPromptType[pt]
			if !ok {
				pb = &PromptBucket{ByToolSuccessRate: make(map[ToolSuccessRateKey]*DifficultyBucket)}
				model.ByPromptType[pt] = pb
			}
			for rk, otherDB := range otherPB.ByToolSuccessRate {
				db, ok := pb.ByToolSuccessRate[rk]
				if !ok {
					db = &DifficultyBucket{ByDifficulty: make(map[Difficulty]*TaskTypeBucket)}
					pb.ByToolSuccessRate[rk] = db
				}
				for diff, otherTB := range otherDB.ByDifficulty {
					tb, ok := db.ByDifficulty[diff]
					if !ok {
						tb = &TaskTypeBucket{ByTaskType: make(map[TaskType]*LeafAggregate)}
						db.ByDifficulty[diff] = tb
					}
					for tt, otherLeaf := range otherTB.ByTaskType {
						leaf, ok := tb.ByTaskType[tt]
						if !ok {
							leaf = NewLeafAggregate()
							tb.ByTaskType[tt] = leaf
						}
						leaf.Merge(otherLeaf)
					}
				}
			}
		}
	}
}

func toolSuccessRateKey(rate float64) ToolSuccessRateKey {
	// Stable two-decimal string key; tool_success_rate is configured, not
	// computed, so this never loses precision used for bucketing.
	return ToolSuccessRateKey(fmt.Sprintf("%.2f", rate))
}
