// Package ledger persists one row per completed test so a killed-and-restarted
// batch can skip work it already recorded, the durable half of crash recovery
// (spec Property 6 / scenario S5) that the Arrow row log cannot serve on its
// own because it is append-only and not indexed for point lookups.
package ledger

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evalharness/evalharness/internal/domain/entity"
	"github.com/evalharness/evalharness/internal/infrastructure/config"
)

// CompletionModel is the one row gorm persists per finished test.
type CompletionModel struct {
	ID          uint   `gorm:"primaryKey"`
	TestID      string `gorm:"uniqueIndex;size:64"`
	ModelID     string `gorm:"index:idx_completion_lookup"`
	TaskType    string `gorm:"index:idx_completion_lookup"`
	PromptType  string `gorm:"index:idx_completion_lookup"`
	Difficulty  string `gorm:"index:idx_completion_lookup"`
	SuccessLevel string
	CompletedAt time.Time
}

func (CompletionModel) TableName() string { return "test_completions" }

// Ledger wraps a gorm.DB opened against the configured dialect.
type Ledger struct {
	db *gorm.DB
}

// Open connects to the ledger database (sqlite or postgres) and migrates it.
func Open(cfg config.LedgerConfig) (*Ledger, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := db.AutoMigrate(&CompletionModel{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	return &Ledger{db: db}, nil
}

// RecordCompletion marks a test as done so a re-run of the same batch skips it.
func (l *Ledger) RecordCompletion(rec entity.TestRecord) error {
	row := CompletionModel{
		TestID:       rec.ID,
		ModelID:      rec.ModelID,
		TaskType:     string(rec.TaskType),
		PromptType:   string(rec.PromptType),
		Difficulty:   string(rec.Difficulty),
		SuccessLevel: string(rec.Result.SuccessLevel),
		CompletedAt:  rec.Timestamp,
	}
	return l.db.Where(CompletionModel{TestID: rec.ID}).
		Assign(row).
		FirstOrCreate(&row).Error
}

// IsComplete reports whether testID already has a ledger row.
func (l *Ledger) IsComplete(testID string) (bool, error) {
	var count int64
	err := l.db.Model(&CompletionModel{}).Where("test_id = ?", testID).Count(&count).Error
	return count > 0, err
}

// CompletedIDs returns the set of test IDs already recorded, used by the
// planner to drop tasks from a resumed run.
func (l *Ledger) CompletedIDs() (map[string]bool, error) {
	var rows []CompletionModel
	if err := l.db.Select("test_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.TestID] = true
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
