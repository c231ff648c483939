package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/domain/service"
	"github.com/evalharness/evalharness/internal/infrastructure/config"
)

var _ service.ResultStore = (*CompositeStore)(nil)

// CompositeStore writes every record to both the row log and the summary
// document and flushes them together (spec §4.4's "must stay consistent"
// requirement). A row-log flush that fails twice is logged and its records
// stay buffered for the next flush while the document is still written, so
// until then the two can differ on disk.
type CompositeStore struct {
	doc *DocumentStore
	row *RowLogStore

	logger *zap.Logger

	checkpointInterval int
	lastFlush          time.Time

	mu      sync.Mutex
	pending int
}

// New builds the composite store from a StoreConfig. Both backends are
// always opened and written; cfg.Format (§6's STORAGE_FORMAT toggle) is not
// consulted, so there is no rowlog-only mode, and QuerySummary always reads
// the summary document.
func New(cfg config.StoreConfig, logger *zap.Logger) (*CompositeStore, error) {
	doc, err := NewDocumentStore(cfg.DocumentPath, logger)
	if err != nil {
		return nil, err
	}
	row, err := NewRowLogStore(cfg.RowLogPath, logger)
	if err != nil {
		return nil, err
	}

	return &CompositeStore{
		doc:                doc,
		row:                row,
		logger:             logger,
		checkpointInterval: cfg.CheckpointInterval,
		lastFlush:          time.Now(),
	}, nil
}

// Write buffers one record into both backends and triggers a checkpoint if
// the policy in §4.4 says to.
func (s *CompositeStore) Write(rec entity.TestRecord) error {
	return s.WriteBatch([]entity.TestRecord{rec})
}

// WriteBatch buffers several records atomically with respect to readers:
// the summary tree is updated under doc's own lock before any reader can
// observe a partial batch.
func (s *CompositeStore) WriteBatch(recs []entity.TestRecord) error {
	for _, rec := range recs {
		s.row.Append(rec)
		s.doc.Accumulate(rec)
	}

	s.mu.Lock()
	s.pending += len(recs)
	shouldFlush := s.shouldCheckpointLocked()
	s.mu.Unlock()

	if shouldFlush {
		return s.Flush()
	}
	return nil
}

// shouldCheckpointLocked implements §4.4's checkpoint policy. Interval <= 0
// disables the pending-count and adaptive triggers (only explicit Flush or
// the 600s idle trigger apply), matching batch_test_runner.py's
// "if not self.checkpoint_interval or self.enable_database_updates" branch.
func (s *CompositeStore) shouldCheckpointLocked() bool {
	sinceFlush := time.Since(s.lastFlush)
	if sinceFlush > 600*time.Second && s.pending > 0 {
		return true
	}
	if s.checkpointInterval <= 0 {
		return false
	}
	if s.pending >= s.checkpointInterval {
		return true
	}
	if s.pending >= 3 && sinceFlush > 120*time.Second {
		return true
	}
	return false
}

// Flush forces both backends to disk.
func (s *CompositeStore) Flush() error {
	if err := s.row.Flush(); err != nil {
		s.logger.Warn("row log flush failed, will retry once", zap.Error(err))
		if err2 := s.row.Flush(); err2 != nil {
			s.logger.Error("row log flush failed again; records stay buffered for the next flush", zap.Error(err2))
		}
	}
	if err := s.doc.Flush(); err != nil {
		s.logger.Warn("summary document flush failed, will retry once", zap.Error(err))
		if err2 := s.doc.Flush(); err2 != nil {
			return err2
		}
	}

	s.mu.Lock()
	s.pending = 0
	s.lastFlush = time.Now()
	s.mu.Unlock()

	return nil
}

// QuerySummary walks the in-memory tree and returns the subtree matching filter.
func (s *CompositeStore) QuerySummary(filter service.SummaryFilter) (*entity.SummaryTree, error) {
	full := s.doc.Tree()
	if filter.ModelID == "" {
		return full, nil
	}

	out := entity.NewSummaryTree()
	if model, ok := full.Models[filter.ModelID]; ok {
		out.Models[filter.ModelID] = model
	}
	return out, nil
}

// Clear drops records for modelID (or everything, if empty) from the
// in-memory summary; used by the CLI's --clear flag and by tests. The row
// log is append-only and is not rewritten by Clear.
func (s *CompositeStore) Clear(modelID string) error {
	s.doc.Clear(modelID)
	return nil
}

// Close flushes and releases both backends; call on graceful shutdown.
func (s *CompositeStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.row.Close()
}
