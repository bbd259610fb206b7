// Package goal maps a user's stated sleep goal onto the canonical
// optimization goals the delta engine weights rituals by.
package goal

import "strings"

// Goal is a canonical optimization goal.
type Goal string

// Canonical goals.
const (
	SleepLatency  Goal = "sleep_latency"
	WakeFreshness Goal = "wake_freshness"
	Consistency   Goal = "consistency"
	Mixed         Goal = "mixed"
)

// All lists the canonical goals.
var All = []Goal{SleepLatency, WakeFreshness, Consistency, Mixed}

// Choices are the goal labels offered by the intake form.
var Choices = []string{"Fall asleep faster", "Fewer night wakeups", "Wake sharper", "Other"}

var userGoals = map[string]Goal{
	"fall asleep faster":  SleepLatency,
	"sleep latency":       SleepLatency,
	"fewer night wakeups": Consistency,
	"wake sharper":        WakeFreshness,
	"wake freshness":      WakeFreshness,
}

// Canonicalize maps a free-form goal to a canonical goal. Unknown and empty
// goals are Mixed.
func Canonicalize(userGoal string) Goal {
	if g, ok := userGoals[strings.ToLower(strings.TrimSpace(userGoal))]; ok {
		return g
	}
	return Mixed
}

// Valid reports whether g is one of the canonical goals.
func (g Goal) Valid() bool {
	switch g {
	case SleepLatency, WakeFreshness, Consistency, Mixed:
		return true
	default:
		return false
	}
}

// OrMixed re-validates an externally supplied canonical value.
func OrMixed(key string) Goal {
	if g := Goal(key); g.Valid() {
		return g
	}
	return Mixed
}

// Resolve canonicalizes a profile goal and then guards the result, the
// sequence the delta endpoint applies to stored profiles.
func Resolve(userGoal string) Goal {
	return OrMixed(string(Canonicalize(userGoal)))
}
