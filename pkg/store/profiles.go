package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

var (
	// ErrNoProfile is returned by Profile when the user never completed intake.
	ErrNoProfile = errors.New("no profile found")
	// ErrNoTimeline is returned by LatestTimeline when the user has no timelines.
	ErrNoTimeline = errors.New("no timeline found")
)

// UpsertProfile stores the intake answers for a user. Life-context flags
// already on the profile are left alone.
func (s *Store) UpsertProfile(ctx context.Context, p Profile) error {
	if s == nil {
		return ErrNoStore
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"preferred_name", "goal", "bedtime_window", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// SetLifeContext records the flags that raise the effort of some rituals.
func (s *Store) SetLifeContext(ctx context.Context, userID string, hasKids, shiftWorker bool) error {
	if s == nil {
		return ErrNoStore
	}
	p := Profile{UserID: userID, HasKids: hasKids, ShiftWorker: shiftWorker}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"has_kids", "shift_worker", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("saving life context: %w", err)
	}
	return nil
}

// Profile loads a user's profile.
func (s *Store) Profile(ctx context.Context, userID string) (*Profile, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var p Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return &p, nil
}

// SaveTimeline stores a parsed timeline and returns the stored row.
func (s *Store) SaveTimeline(ctx context.Context, userID, goal, bedtimeWindow string, tl timeline.Timeline) (*Timeline, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	row := &Timeline{
		ID:            uuid.NewString(),
		UserID:        userID,
		Goal:          goal,
		BedtimeWindow: bedtimeWindow,
		Data:          datatypes.NewJSONType(tl),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("saving timeline: %w", err)
	}
	return row, nil
}

// LatestTimeline returns the user's most recent timeline.
func (s *Store) LatestTimeline(ctx context.Context, userID string) (*Timeline, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var row Timeline
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoTimeline
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest timeline: %w", err)
	}
	return &row, nil
}
