package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

// rowLogSchema is the columnar equivalent of the spec's PURPOSE-section
// "equivalent columnar dump": one column per TestRecord field, nullable
// where the field is optional.
var rowLogSchema = arrow.NewSchema([]arrow.Field{
	{Name: "test_id", Type: arrow.BinaryTypes.String},
	{Name: "model_id", Type: arrow.BinaryTypes.String},
	{Name: "deployment_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "task_type", Type: arrow.BinaryTypes.String},
	{Name: "prompt_type", Type: arrow.BinaryTypes.String},
	{Name: "difficulty", Type: arrow.BinaryTypes.String},
	{Name: "tool_success_rate", Type: arrow.PrimitiveTypes.Float64},
	{Name: "success", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "success_level", Type: arrow.BinaryTypes.String},
	{Name: "execution_time_seconds", Type: arrow.PrimitiveTypes.Float64},
	{Name: "turns", Type: arrow.PrimitiveTypes.Int32},
	{Name: "tool_calls_count", Type: arrow.PrimitiveTypes.Int32},
	{Name: "executed_tools_count", Type: arrow.PrimitiveTypes.Int32},
	{Name: "workflow_score", Type: arrow.PrimitiveTypes.Float64},
	{Name: "phase2_score", Type: arrow.PrimitiveTypes.Float64},
	{Name: "quality_score", Type: arrow.PrimitiveTypes.Float64},
	{Name: "final_score", Type: arrow.PrimitiveTypes.Float64},
	{Name: "tool_coverage_rate", Type: arrow.PrimitiveTypes.Float64},
	{Name: "error_message", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "error_kind", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "ai_error_category", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "ai_error_reason", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "ai_confidence", Type: arrow.PrimitiveTypes.Float64},
	{Name: "timestamp_unix", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// RowLogStore appends TestRecords as Arrow IPC stream batches to a growing
// file, one record batch per flush. The stream writer stays open across
// flushes so the schema message is written exactly once; Close() emits the
// end-of-stream marker.
type RowLogStore struct {
	path   string
	logger *zap.Logger
	pool   memory.Allocator

	mu      sync.Mutex
	file    *os.File
	writer  *ipc.Writer
	pending []entity.TestRecord
}

// NewRowLogStore opens (or creates) the row log file and its stream writer.
func NewRowLogStore(path string, logger *zap.Logger) (*RowLogStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open row log: %w", err)
	}

	w := ipc.NewWriter(f, ipc.WithSchema(rowLogSchema))

	return &RowLogStore{
		path:   path,
		logger: logger,
		pool:   memory.NewGoAllocator(),
		file:   f,
		writer: w,
	}, nil
}

// Append buffers one record for the next flush.
func (s *RowLogStore) Append(rec entity.TestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, rec)
}

// PendingCount reports how many records are buffered awaiting flush, used by
// the checkpoint policy.
func (s *RowLogStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes all pending records as one Arrow record batch and clears the buffer.
func (s *RowLogStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	rec := buildRecordBatch(s.pool, s.pending)
	defer rec.Release()

	if err := s.writer.Write(rec); err != nil {
		return fmt.Errorf("write row log batch: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsync row log: %w", err)
	}

	s.pending = s.pending[:0]
	return nil
}

// Close flushes any remainder, closes the IPC writer (EOS marker), and the file.
func (s *RowLogStore) Close() error {
	if err := s.Flush(); err != nil {
		s.logger.Warn("final row log flush failed", zap.Error(err))
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close row log writer: %w", err)
	}
	return s.file.Close()
}

func buildRecordBatch(pool memory.Allocator, records []entity.TestRecord) arrow.Record {
	testID := array.NewStringBuilder(pool)
	modelID := array.NewStringBuilder(pool)
	deploymentID := array.NewStringBuilder(pool)
	taskType := array.NewStringBuilder(pool)
	promptType := array.NewStringBuilder(pool)
	difficulty := array.NewStringBuilder(pool)
	toolSuccessRate := array.NewFloat64Builder(pool)
	success := array.NewBooleanBuilder(pool)
	successLevel := array.NewStringBuilder(pool)
	execTime := array.NewFloat64Builder(pool)
	turns := array.NewInt32Builder(pool)
	toolCallsCount := array.NewInt32Builder(pool)
	executedToolsCount := array.NewInt32Builder(pool)
	workflowScore := array.NewFloat64Builder(pool)
	phase2Score := array.NewFloat64Builder(pool)
	qualityScore := array.NewFloat64Builder(pool)
	finalScore := array.NewFloat64Builder(pool)
	toolCoverageRate := array.NewFloat64Builder(pool)
	errorMessage := array.NewStringBuilder(pool)
	errorKind := array.NewStringBuilder(pool)
	aiErrorCategory := array.NewStringBuilder(pool)
	aiErrorReason := array.NewStringBuilder(pool)
	aiConfidence := array.NewFloat64Builder(pool)
	timestamp := array.NewInt64Builder(pool)

	builders := []array.Builder{
		testID, modelID, deploymentID, taskType, promptType, difficulty,
		toolSuccessRate, success, successLevel, execTime, turns, toolCallsCount,
		executedToolsCount, workflowScore, phase2Score, qualityScore, finalScore,
		toolCoverageRate, errorMessage, errorKind, aiErrorCategory, aiErrorReason,
		aiConfidence, timestamp,
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for _, r := range records {
		testID.Append(r.ID)
		modelID.Append(r.ModelID)
		if r.DeploymentID != "" {
			deploymentID.Append(r.DeploymentID)
		} else {
			deploymentID.AppendNull()
		}
		taskType.Append(string(r.TaskType))
		promptType.Append(string(r.PromptType))
		difficulty.Append(string(r.Difficulty))
		toolSuccessRate.Append(r.ToolSuccessRate)
		success.Append(r.Result.Success)
		successLevel.Append(string(r.Result.SuccessLevel))
		execTime.Append(r.Result.ExecutionTimeSeconds)
		turns.Append(int32(r.Result.Turns))
		toolCallsCount.Append(int32(len(r.Result.ToolCalls)))
		executedToolsCount.Append(int32(len(r.Result.ExecutedTools)))
		workflowScore.Append(r.Result.WorkflowScore)
		phase2Score.Append(r.Result.Phase2Score)
		qualityScore.Append(r.Result.QualityScore)
		finalScore.Append(r.Result.FinalScore)
		toolCoverageRate.Append(r.Result.ToolCoverageRate)
		if r.Result.ErrorMessage != "" {
			errorMessage.Append(r.Result.ErrorMessage)
		} else {
			errorMessage.AppendNull()
		}
		if r.Result.ErrorKind != "" {
			errorKind.Append(string(r.Result.ErrorKind))
		} else {
			errorKind.AppendNull()
		}
		if r.AIErrorCategory != "" {
			aiErrorCategory.Append(string(r.AIErrorCategory))
		} else {
			aiErrorCategory.AppendNull()
		}
		if r.AIErrorReason != "" {
			aiErrorReason.Append(r.AIErrorReason)
		} else {
			aiErrorReason.AppendNull()
		}
		aiConfidence.Append(r.AIConfidence)
		timestamp.Append(r.Timestamp.Unix())
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecord(rowLogSchema, cols, int64(len(records)))
}
