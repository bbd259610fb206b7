package store

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

// EngineRun records one scoring run.
type EngineRun struct {
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	UserID            string         `gorm:"column:user_id;not null;index" json:"user_id"`
	TimelineID        string         `gorm:"column:timeline_id;index" json:"timeline_id,omitempty"`
	EngineVersion     string         `gorm:"column:engine_version;not null" json:"engine_version"`
	Goal              string         `gorm:"column:goal;not null" json:"goal"`
	Top3              datatypes.JSON `gorm:"column:top3_json" json:"top3_json"`
	OpportunityScores datatypes.JSON `gorm:"column:opportunity_scores" json:"opportunity_scores"`
	UsedFallback      bool           `gorm:"column:used_fallback;not null;default:false" json:"used_fallback"`
}

func (EngineRun) TableName() string { return "engine_runs" }

// Ritual is an active routine item for a user. A user has at most one ritual
// per name within a category and time block.
type Ritual struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;uniqueIndex:idx_ritual_slot,priority:1" json:"user_id"`
	Category  string    `gorm:"column:category;not null;uniqueIndex:idx_ritual_slot,priority:2" json:"category"`
	TimeBlock string    `gorm:"column:time_block;not null;uniqueIndex:idx_ritual_slot,priority:3" json:"time_block"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:idx_ritual_slot,priority:4" json:"name"`
	Tagline   string    `gorm:"column:tagline" json:"tagline"`
	Color     string    `gorm:"column:color" json:"color"`
	ImpactTag string    `gorm:"column:impact_tag" json:"impact_tag,omitempty"`
	EffortTag string    `gorm:"column:effort_tag" json:"effort_tag,omitempty"`
	Active    bool      `gorm:"column:active;not null;default:true" json:"active"`
}

func (Ritual) TableName() string { return "rituals" }

// Profile is what intake and settings know about a user.
type Profile struct {
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	UserID        string    `gorm:"primaryKey;size:64" json:"user_id"`
	PreferredName string    `gorm:"column:preferred_name" json:"preferred_name,omitempty"`
	Goal          string    `gorm:"column:goal" json:"goal"`
	BedtimeWindow string    `gorm:"column:bedtime_window" json:"bedtime_window,omitempty"`
	HasKids       bool      `gorm:"column:has_kids;not null;default:false" json:"has_kids"`
	ShiftWorker   bool      `gorm:"column:shift_worker;not null;default:false" json:"shift_worker"`
}

func (Profile) TableName() string { return "user_profile" }

// Timeline is a parsed routine as submitted at intake.
type Timeline struct {
	CreatedAt     time.Time                             `gorm:"not null;index" json:"created_at"`
	ID            string                                `gorm:"primaryKey;size:36" json:"id"`
	UserID        string                                `gorm:"column:user_id;not null;index" json:"user_id"`
	Goal          string                                `gorm:"column:goal" json:"goal"`
	BedtimeWindow string                                `gorm:"column:bedtime_window" json:"bedtime_window"`
	Data          datatypes.JSONType[timeline.Timeline] `gorm:"column:timeline_json" json:"timeline_json"`
}

func (Timeline) TableName() string { return "timelines" }

// EveningPlan is a user's wind-down plan for one date.
type EveningPlan struct {
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ArmedAt           *time.Time `gorm:"column:armed_at" json:"armed_at,omitempty"`
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            string     `gorm:"column:user_id;not null;uniqueIndex:idx_plan_day,priority:1" json:"user_id"`
	Date              string     `gorm:"column:date;size:10;not null;uniqueIndex:idx_plan_day,priority:2" json:"date"`
	TriggerTimeAnchor string     `gorm:"column:trigger_time_anchor" json:"trigger_time_anchor"`
	TriggerPlace      string     `gorm:"column:trigger_place" json:"trigger_place"`
	TriggerMood       string     `gorm:"column:trigger_mood" json:"trigger_mood"`
	ShieldType        string     `gorm:"column:shield_type" json:"shield_type"`
	ShieldTime        string     `gorm:"column:shield_time" json:"shield_time"`
	DivertRitual      string     `gorm:"column:divert_ritual" json:"divert_ritual"`
	CompletedEvening  string     `gorm:"column:completed_evening" json:"completed_evening,omitempty"`
	SkipReason        string     `gorm:"column:skip_reason" json:"skip_reason,omitempty"`
	StartedNow        bool       `gorm:"column:started_now;not null;default:false" json:"started_now"`
}

func (EveningPlan) TableName() string { return "evening_plans" }

// Checkin is the morning sleep rating for one date.
type Checkin struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"column:user_id;not null;uniqueIndex:idx_checkin_day,priority:1" json:"user_id"`
	Date        string    `gorm:"column:date;size:10;not null;uniqueIndex:idx_checkin_day,priority:2" json:"date"`
	SleepRating int       `gorm:"column:sleep_rating_1_5;not null" json:"sleep_rating_1_5"`
}

func (Checkin) TableName() string { return "daily_sleep_checkins" }

var palette = map[string]string{
	"Sleep":    "#8B5CF6",
	"Food":     "#F59E0B",
	"Mind":     "#06B6D4",
	"Movement": "#22C55E",
}

// Category maps a free-form category onto Food, Movement, Mind or Sleep.
func Category(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(c, "food"):
		return "Food"
	case strings.HasPrefix(c, "move"):
		return "Movement"
	case strings.HasPrefix(c, "mind"):
		return "Mind"
	default:
		return "Sleep"
	}
}

// Color returns the palette color for a category.
func Color(category string) string {
	return palette[Category(category)]
}

// TimeBlock maps a system block onto Morning, Day, Evening or Night.
func TimeBlock(systemBlock string) string {
	switch b := strings.TrimSpace(systemBlock); b {
	case "Morning", "Day", "Evening", "Night":
		return b
	default:
		return "Night"
	}
}

// RitualsFromItems converts Top-3 output into ritual rows for userID.
func RitualsFromItems(userID string, items []delta.Item) []Ritual {
	rows := make([]Ritual, 0, len(items))
	for _, it := range items {
		cat := Category(it.Category)
		rows = append(rows, Ritual{
			UserID:    userID,
			Category:  cat,
			TimeBlock: TimeBlock(it.SystemBlock),
			Name:      it.RitualName,
			Tagline:   it.HowTo,
			Color:     palette[cat],
			ImpactTag: it.ImpactTag,
			EffortTag: it.EffortTag,
			Active:    true,
		})
	}
	return rows
}
