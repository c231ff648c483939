// Package store implements the two ResultStore backends: a growing Arrow
// row log (rowlog.go) and an atomically-rewritten summary document
// (this file), composed by CompositeStore in store.go.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/evalharness/evalharness/internal/domain/entity"
)

// DocumentStore persists the full summary tree as one JSON file, rewritten
// atomically on every flush: write to "<path>.tmp", fsync, rename over
// "<path>". A sidecar "<path>.lock" file is flocked around the rename so two
// processes pointed at the same path cannot interleave writes.
type DocumentStore struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	tree *entity.SummaryTree
}

// NewDocumentStore loads an existing document if present, recovering from a
// crash that left a ".tmp" file but never renamed it.
func NewDocumentStore(path string, logger *zap.Logger) (*DocumentStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create document store dir: %w", err)
	}

	tmp := path + ".tmp"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, tmpErr := os.Stat(tmp); tmpErr == nil {
			logger.Warn("recovering summary document from orphaned tmp file", zap.String("path", tmp))
			if err := os.Rename(tmp, path); err != nil {
				return nil, fmt.Errorf("recover tmp document: %w", err)
			}
		}
	}

	ds := &DocumentStore{path: path, logger: logger, tree: entity.NewSummaryTree()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fresh store
	case err != nil:
		return nil, fmt.Errorf("read summary document: %w", err)
	default:
		if err := json.Unmarshal(data, ds.tree); err != nil {
			return nil, fmt.Errorf("parse summary document: %w", err)
		}
	}

	return ds, nil
}

// Accumulate merges one record into the in-memory summary tree.
func (d *DocumentStore) Accumulate(rec entity.TestRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree.Accumulate(rec)
}

// Tree returns a snapshot-safe pointer for queries; callers must not mutate it.
func (d *DocumentStore) Tree() *entity.SummaryTree {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tree
}

// Clear resets the summary tree, or just one model's subtree if modelID is non-empty.
func (d *DocumentStore) Clear(modelID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if modelID == "" {
		d.tree = entity.NewSummaryTree()
		return
	}
	delete(d.tree.Models, modelID)
}

// Flush rewrites the document atomically: tmp file, fsync, flock-guarded rename.
func (d *DocumentStore) Flush() error {
	d.mu.Lock()
	data, err := json.MarshalIndent(d.tree, "", "  ")
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal summary document: %w", err)
	}

	tmp := d.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp document: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write tmp document: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync tmp document: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tmp document: %w", err)
	}

	unlock, err := d.lockRename()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("rename document into place: %w", err)
	}
	return nil
}

// lockRename takes an advisory flock on a sidecar file so concurrent
// processes sharing one document path serialize their renames.
func (d *DocumentStore) lockRename() (func(), error) {
	lockPath := d.path + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
		lf.Close()
		return nil, fmt.Errorf("flock document: %w", err)
	}
	return func() {
		syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		lf.Close()
	}, nil
}
