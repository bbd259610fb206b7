package delta

import "github.com/codeGROOVE-dev/ritualz/pkg/timeline"

// Engine constants.
const (
	// ConfidenceFloor is the average anchor confidence below which scoring is skipped.
	ConfidenceFloor = 0.6
	// FallbackScore is the flat score given to fallback rituals.
	FallbackScore = 0.70
	// TimingWindow is the distance in minutes at which the timing penalty saturates.
	TimingWindow = 180
	// MissingTimingDelta is used when the user has no matching anchor.
	MissingTimingDelta = 999
	// EffortPenaltyStep is subtracted per effort level above 1.
	EffortPenaltyStep = 0.15
	// DefaultGoalWeight applies when a ritual has no weight for the goal.
	DefaultGoalWeight = 0.8
	// MaxPicks is the size of the recommendation.
	MaxPicks = 3
)

// Catalog field defaults for entries that leave them out.
const (
	defaultImpact      = 5
	defaultEffort      = 1
	defaultCategory    = "sleep"
	defaultSystemBlock = "Night"
)

// FallbackRitualIDs are recommended, in order, when the timeline is too
// uncertain to score.
var FallbackRitualIDs = []string{"dim_lights_2030", "no_screens_60m", "sunlight_30m"}

// ConflictPair names two mutually exclusive rituals.
type ConflictPair struct {
	Prefer   string
	Suppress string
}

// ConflictPairs are applied in order while scanning the ranked list.
var ConflictPairs = []ConflictPair{
	{Prefer: "no_screens_60m", Suppress: "late_screens"},
	{Prefer: "early_dinner", Suppress: "late_dinner"},
	{Prefer: "fixed_bedtime", Suppress: "variable_bedtime"},
}

// RitualAnchors maps a ritual id to the user anchors its timing is measured
// against, in order of preference. Rituals not listed have no user time.
var RitualAnchors = map[string][]timeline.AnchorKey{
	"early_dinner":       {timeline.DinnerTime},
	"dim_lights_2030":    {timeline.LightsDimTime},
	"no_screens_60m":     {timeline.ScreensEndTime},
	"cool_room":          {timeline.LightsOutTime},
	"sunlight_30m":       {timeline.SunlightTime, timeline.WakeTime},
	"caffeine_cutoff_14": {timeline.LastCaffeineTime},
}

// effortBump describes a context that makes a ritual harder to keep.
type effortBump struct {
	applies func(UserContext) bool
	ids     []string
}

var effortBumps = []effortBump{
	{applies: func(c UserContext) bool { return c.HasKids }, ids: []string{"early_dinner", "fixed_bedtime"}},
	{applies: func(c UserContext) bool { return c.ShiftWorker }, ids: []string{"fixed_bedtime"}},
}
