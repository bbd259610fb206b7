package timeline

import "strings"

// nameRule maps an anchor name to a canonical key when match succeeds.
type nameRule struct {
	match func(name string) bool
	key   AnchorKey
}

func containsAny(words ...string) func(string) bool {
	return func(name string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}
}

// nameRules is evaluated top to bottom against the lowercased anchor name and
// the first match wins. The order is load-bearing: "Dinner screens off" is a
// dinner anchor, "Dim screens" is a screens anchor.
var nameRules = []nameRule{
	{match: containsAny("dinner"), key: DinnerTime},
	{match: containsAny("caffeine"), key: LastCaffeineTime},
	{match: containsAny("screen"), key: ScreensEndTime},
	{match: containsAny("dim"), key: LightsDimTime},
	{match: containsAny("lights out"), key: LightsOutTime},
	{match: containsAny("wake"), key: WakeTime},
	{match: containsAny("sunlight"), key: SunlightTime},
	{match: containsAny("mobility", "walk"), key: MorningMobilityTime},
}

// KeyForName returns the canonical key for a free-form anchor name.
func KeyForName(name string) (AnchorKey, bool) {
	n := strings.ToLower(name)
	for _, r := range nameRules {
		if r.match(n) {
			return r.key, true
		}
	}
	return "", false
}

// Rules controls day-boundary handling during normalization.
type Rules struct {
	// RolloverKeys are the anchors that may belong to the previous night.
	RolloverKeys []AnchorKey
	// RolloverThreshold is the inclusive minute-of-day cutoff for rollover.
	RolloverThreshold int
	// MapEarlyMorningToPreviousNight enables rollover.
	MapEarlyMorningToPreviousNight bool
	// WindowMidpoint enables the bedtime window midpoint.
	WindowMidpoint bool
}

// DefaultRules returns the rule set used by the delta endpoint:
// 00:00-03:00 lights-out and screens-end times count as the previous night.
func DefaultRules() Rules {
	return Rules{
		RolloverKeys:                   []AnchorKey{LightsOutTime, ScreensEndTime},
		RolloverThreshold:              180,
		MapEarlyMorningToPreviousNight: true,
		WindowMidpoint:                 true,
	}
}
