// Package timeline holds the nightly routine timeline and turns its named
// anchors into minute-of-day values the delta engine can score.
package timeline

// AnchorKey is one of the canonical anchor slots of a nightly routine.
type AnchorKey string

// Canonical anchor keys.
const (
	DinnerTime          AnchorKey = "dinner_time"
	LastCaffeineTime    AnchorKey = "last_caffeine_time"
	ScreensEndTime      AnchorKey = "screens_end_time"
	LightsDimTime       AnchorKey = "lights_dim_time"
	LightsOutTime       AnchorKey = "lights_out_time"
	WakeTime            AnchorKey = "wake_time"
	SunlightTime        AnchorKey = "sunlight_time"
	MorningMobilityTime AnchorKey = "morning_mobility_time"
)

// AnchorKeys lists every canonical key in vocabulary order.
var AnchorKeys = []AnchorKey{
	DinnerTime,
	LastCaffeineTime,
	ScreensEndTime,
	LightsDimTime,
	LightsOutTime,
	WakeTime,
	SunlightTime,
	MorningMobilityTime,
}

// Valid reports whether k is one of the canonical keys.
func (k AnchorKey) Valid() bool {
	for _, known := range AnchorKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Anchor is a named time event as produced by the intake normalizer.
// Confidence is nil when the producer did not supply one.
type Anchor struct {
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Name       string   `json:"name" yaml:"name"`
	Time       string   `json:"time" yaml:"time"`
}

// Timeline is the raw, unvalidated routine timeline.
type Timeline struct {
	WakeTime      string   `json:"wake_time" yaml:"wake_time"`
	BedtimeTarget string   `json:"bedtime_target" yaml:"bedtime_target"`
	BedtimeWindow string   `json:"bedtime_window" yaml:"bedtime_window"`
	Notes         string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Anchors       []Anchor `json:"anchors" yaml:"anchors"`
}

// AnchorTime is a normalized anchor. Minutes is negative when the anchor was
// rolled over into the previous night.
type AnchorTime struct {
	Minutes    int     `json:"min"`
	Confidence float64 `json:"confidence"`
}

// Normalized is the output of Normalize.
type Normalized struct {
	Anchors       map[AnchorKey]AnchorTime `json:"anchors"`
	WindowMid     *int                     `json:"window_mid"`
	AvgConfidence float64                  `json:"avg_confidence"`
	Rollover      bool                     `json:"rollover_anomaly"`
}

// Minutes returns the normalized minutes for key, if present.
func (n Normalized) Minutes(key AnchorKey) (int, bool) {
	a, ok := n.Anchors[key]
	if !ok {
		return 0, false
	}
	return a.Minutes, true
}

// Conf returns a confidence pointer, for building anchors in code.
func Conf(v float64) *float64 {
	return &v
}
