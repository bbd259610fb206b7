// Package store persists intake profiles and timelines, engine runs, active
// rituals, evening plans and morning check-ins with gorm.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
)

var (
	// ErrNoStore is returned when no database is configured.
	ErrNoStore = errors.New("no database configured")
	// ErrNoRun is returned by LatestRun when the user has no runs.
	ErrNoRun = errors.New("no engine run found")
)

// Store is a gorm-backed store. A nil *Store returns ErrNoStore from every method.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Run is what SaveRun persists.
type Run struct {
	UserID        string
	TimelineID    string
	EngineVersion string
	Goal          goal.Goal
	Result        delta.Result
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
}

// Open connects to dsn and migrates the schema. Postgres URLs and key/value
// DSNs use the postgres driver; anything else is treated as a sqlite path.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, ErrNoStore
	}

	gormLog := gormLogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&EngineRun{}, &Ritual{}, &Profile{}, &Timeline{}, &EveningPlan{}, &Checkin{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("store opened", "driver", db.Dialector.Name())
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun stores an engine run and returns the stored row.
func (s *Store) SaveRun(ctx context.Context, run Run) (*EngineRun, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	top3, err := json.Marshal(run.Result.Top3)
	if err != nil {
		return nil, fmt.Errorf("encoding top3: %w", err)
	}
	scores, err := json.Marshal(run.Result.OpportunityScores)
	if err != nil {
		return nil, fmt.Errorf("encoding opportunity scores: %w", err)
	}

	row := &EngineRun{
		ID:                uuid.NewString(),
		UserID:            run.UserID,
		TimelineID:        run.TimelineID,
		EngineVersion:     run.EngineVersion,
		Goal:              string(run.Goal),
		Top3:              top3,
		OpportunityScores: scores,
		UsedFallback:      run.Result.UsedFallback,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("saving engine run: %w", err)
	}
	return row, nil
}

// LatestRun returns the most recent run for userID.
func (s *Store) LatestRun(ctx context.Context, userID string) (*EngineRun, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var row EngineRun
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest run: %w", err)
	}
	return &row, nil
}

// UpsertRituals inserts rows or refreshes the existing ritual in the same
// (user, category, time block, name) slot. Rows that fail are logged and
// skipped; the number stored is returned.
func (s *Store) UpsertRituals(ctx context.Context, rows []Ritual) (int, error) {
	if s == nil {
		return 0, ErrNoStore
	}
	stored := 0
	for i := range rows {
		row := rows[i]
		row.ID = uuid.NewString()
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "category"}, {Name: "time_block"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tagline",
				"color",
				"impact_tag",
				"effort_tag",
				"active",
				"updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			s.logger.Warn("ritual upsert failed", "user_id", row.UserID, "name", row.Name, "error", err)
			continue
		}
		stored++
	}
	return stored, nil
}

// ActiveRituals lists a user's active rituals.
func (s *Store) ActiveRituals(ctx context.Context, userID string) ([]Ritual, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var rows []Ritual
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("time_block, name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing rituals: %w", err)
	}
	return rows, nil
}
