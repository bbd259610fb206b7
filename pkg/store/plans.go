package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

var (
	// ErrNoPlan is returned when a plan does not exist or belongs to someone else.
	ErrNoPlan = errors.New("evening plan not found")
	// ErrInvalidPlan wraps evening plan validation failures.
	ErrInvalidPlan = errors.New("invalid evening plan")
	// ErrInvalidAction wraps unusable wind-down actions.
	ErrInvalidAction = errors.New("invalid plan action")
	// ErrInvalidCheckin wraps morning check-in validation failures.
	ErrInvalidCheckin = errors.New("invalid check-in")
)

// Wind-down actions sent while a plan is running.
const (
	ActionDone   = "shield_done"
	ActionSnooze = "shield_snooze"
	ActionSkip   = "shield_skip"
)

// Evening outcomes.
const (
	EveningDone    = "done"
	EveningPartly  = "partly"
	EveningSkipped = "skipped"
)

var (
	triggerPlaces   = map[string]bool{"in_hand": true, "on_bed": true, "bedside_table": true, "another_room": true}
	triggerMoods    = map[string]bool{"tired": true, "wired": true, "lonely": true, "reward": true}
	eveningOutcomes = map[string]bool{EveningDone: true, EveningPartly: true, EveningSkipped: true}
)

func validDate(d string) bool {
	_, err := time.Parse(time.DateOnly, d)
	return err == nil
}

// ValidatePlan checks an evening plan before it is stored.
func ValidatePlan(p *EveningPlan) error {
	switch {
	case p.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidPlan)
	case !validDate(p.Date):
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidPlan, p.Date)
	case utf8.RuneCountInString(p.TriggerTimeAnchor) < 2 || utf8.RuneCountInString(p.TriggerTimeAnchor) > 30:
		return fmt.Errorf("%w: trigger_time_anchor must be 2-30 characters", ErrInvalidPlan)
	case !triggerPlaces[p.TriggerPlace]:
		return fmt.Errorf("%w: unknown trigger_place %q", ErrInvalidPlan, p.TriggerPlace)
	case !triggerMoods[p.TriggerMood]:
		return fmt.Errorf("%w: unknown trigger_mood %q", ErrInvalidPlan, p.TriggerMood)
	case utf8.RuneCountInString(p.ShieldType) < 2:
		return fmt.Errorf("%w: shield_type is required", ErrInvalidPlan)
	case utf8.RuneCountInString(p.DivertRitual) < 2:
		return fmt.Errorf("%w: divert_ritual is required", ErrInvalidPlan)
	}
	if _, ok := timeline.ParseHHMM(p.ShieldTime); !ok {
		return fmt.Errorf("%w: shield_time %q is not HH:MM", ErrInvalidPlan, p.ShieldTime)
	}
	return nil
}

// SavePlan creates or replaces the user's plan for p.Date and returns the
// stored row. Replacing a plan keeps its id.
func (s *Store) SavePlan(ctx context.Context, p EveningPlan) (*EveningPlan, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	if err := ValidatePlan(&p); err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	p.ArmedAt = nil
	if p.StartedNow {
		now := time.Now().UTC()
		p.ArmedAt = &now
	}

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"trigger_time_anchor",
			"trigger_place",
			"trigger_mood",
			"shield_type",
			"shield_time",
			"divert_ritual",
			"started_now",
			"armed_at",
			"updated_at",
		}),
	}).Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("saving evening plan: %w", err)
	}

	var stored EveningPlan
	if err := db.Where("user_id = ? AND date = ?", p.UserID, p.Date).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reloading evening plan: %w", err)
	}
	return &stored, nil
}

// Plan loads a plan owned by userID.
func (s *Store) Plan(ctx context.Context, userID, planID string) (*EveningPlan, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var p EveningPlan
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", planID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPlan
	}
	if err != nil {
		return nil, fmt.Errorf("loading evening plan: %w", err)
	}
	return &p, nil
}

// ApplyPlanAction records a wind-down action. Snoozing is rescheduled by the
// client and changes nothing here; skipping needs a reason.
func (s *Store) ApplyPlanAction(ctx context.Context, userID, planID, action, reason string) error {
	if s == nil {
		return ErrNoStore
	}
	var patch map[string]any
	switch action {
	case ActionDone:
		patch = map[string]any{"completed_evening": EveningDone}
	case ActionSnooze:
	case ActionSkip:
		if utf8.RuneCountInString(reason) < 2 {
			return fmt.Errorf("%w: reason required to skip", ErrInvalidAction)
		}
		patch = map[string]any{"completed_evening": EveningSkipped, "skip_reason": reason}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	if _, err := s.Plan(ctx, userID, planID); err != nil {
		return err
	}
	if patch == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&EveningPlan{}).Where("id = ?", planID).Updates(patch).Error
	if err != nil {
		return fmt.Errorf("updating evening plan: %w", err)
	}
	return nil
}

// SaveCheckin stores the morning rating for c.Date and closes the evening
// plan for that date, or failing that the date before. It returns the date
// of the closed plan, or "" when neither date had one.
func (s *Store) SaveCheckin(ctx context.Context, c Checkin, completedEvening string) (string, error) {
	if s == nil {
		return "", ErrNoStore
	}
	switch {
	case c.UserID == "":
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidCheckin)
	case !validDate(c.Date):
		return "", fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidCheckin, c.Date)
	case c.SleepRating < 1 || c.SleepRating > 5:
		return "", fmt.Errorf("%w: sleep_rating_1_5 must be an integer between 1 and 5", ErrInvalidCheckin)
	case !eveningOutcomes[completedEvening]:
		return "", fmt.Errorf("%w: completed_evening must be done, partly or skipped", ErrInvalidCheckin)
	}

	db := s.db.WithContext(ctx)
	c.ID = uuid.NewString()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"sleep_rating_1_5", "updated_at"}),
	}).Create(&c).Error
	if err != nil {
		return "", fmt.Errorf("saving check-in: %w", err)
	}

	day, err := time.Parse(time.DateOnly, c.Date)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCheckin, err)
	}
	for _, d := range []string{c.Date, day.AddDate(0, 0, -1).Format(time.DateOnly)} {
		res := db.Model(&EveningPlan{}).
			Where("user_id = ? AND date = ?", c.UserID, d).
			Update("completed_evening", completedEvening)
		if res.Error != nil {
			return "", fmt.Errorf("closing evening plan: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return d, nil
		}
	}
	s.logger.Debug("no evening plan to close", "user_id", c.UserID, "date", c.Date)
	return "", nil
}
