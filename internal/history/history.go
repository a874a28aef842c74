// Package history stores one row per launched load test in a local sqlite
// database.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrInvalidRun is returned when a run cannot be stored.
var ErrInvalidRun = errors.New("history: invalid run")

// Run is one launched scenario.
type Run struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Scenario   string    `gorm:"not null;index"`
	Host       string    `gorm:"not null"`
	CSVPrefix  string
	Users      int
	SpawnRate  int
	Duration   string
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt time.Time
	Status     string `gorm:"not null"`
	Error      string
}

// TableName returns the table name for the model
func (Run) TableName() string {
	return "runs"
}

// Elapsed returns the wall time of the run.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores a run, assigning an id when it has none.
func (s *Store) Record(ctx context.Context, run Run) error {
	switch {
	case run.Scenario == "":
		return fmt.Errorf("%w: scenario is required", ErrInvalidRun)
	case run.Status != StatusSucceeded && run.Status != StatusFailed:
		return fmt.Errorf("%w: status %q", ErrInvalidRun, run.Status)
	case run.StartedAt.IsZero():
		return fmt.Errorf("%w: start time is required", ErrInvalidRun)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(&run).Error
}

// List returns the most recent runs first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
