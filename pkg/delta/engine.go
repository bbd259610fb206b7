// Package delta ranks candidate rituals against a normalized timeline and
// picks the three highest-leverage changes for a user.
//
// Compute is a pure function of its input: no I/O, no clock, no shared
// mutable state. It is safe to call from any number of goroutines.
package delta

import (
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"

	"github.com/codeGROOVE-dev/ritualz/pkg/catalog"
	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

var blockRegex = regexp.MustCompile(`^(\d{2})-(\d{2})$`)

// UserContext carries profile flags that change how hard a ritual is.
type UserContext struct {
	HasKids     bool `json:"has_kids"`
	ShiftWorker bool `json:"shift_worker"`
}

// Input is everything Compute looks at.
type Input struct {
	Normalized timeline.Normalized
	Goal       goal.Goal
	Catalog    []catalog.Ritual
	Context    UserContext
}

// Scored is a catalog ritual with its scoring breakdown.
type Scored struct {
	catalog.Ritual

	GoalWeight     float64 `json:"goal_weight"`
	TimingPenalty  float64 `json:"timing_penalty"`
	Score          float64 `json:"opportunity_score"`
	TimingDelta    int     `json:"timing_delta"`
	AdjustedEffort int     `json:"adjusted_effort"`
}

// Item is one recommended ritual as shown to the user.
type Item struct {
	RitualName  string `json:"ritual_name"`
	ImpactTag   string `json:"impact_tag"`
	EffortTag   string `json:"effort_tag"`
	Why         string `json:"why"`
	HowTo       string `json:"how_to"`
	SystemBlock string `json:"system_block"`
	Category    string `json:"category"`
}

// OpportunityScore reports a candidate's score rounded to two decimals.
type OpportunityScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Result is the engine output.
type Result struct {
	Top3              []Item             `json:"top3_json"`
	OpportunityScores []OpportunityScore `json:"opportunity_scores"`
	// Picks holds the scoring breakdown of each Top3 item, in the same order.
	// It is empty in fallback mode.
	Picks        []Scored `json:"-"`
	UsedFallback bool     `json:"used_fallback"`
}

// Compute selects up to three rituals for the user.
func Compute(in Input) Result {
	if in.Normalized.AvgConfidence < ConfidenceFloor {
		return fallback(in.Catalog)
	}

	scored := make([]Scored, len(in.Catalog))
	for i, r := range in.Catalog {
		scored[i] = score(withDefaults(r), in.Normalized, in.Goal, in.Context)
	}

	scores := make([]OpportunityScore, len(scored))
	for i, s := range scored {
		scores[i] = OpportunityScore{ID: s.ID, Score: round2(s.Score)}
	}

	ranked := rank(scored)
	picks := pickDiverse(suppressConflicts(ranked, ConflictPairs), MaxPicks)

	top := make([]Item, len(picks))
	for i, p := range picks {
		top[i] = toItem(p.Ritual, p.AdjustedEffort, p.Score)
	}

	return Result{
		Top3:              top,
		OpportunityScores: scores,
		Picks:             picks,
	}
}

// fallback returns the fixed safe triad, skipping ids the catalog lacks.
func fallback(rituals []catalog.Ritual) Result {
	top := make([]Item, 0, len(FallbackRitualIDs))
	for _, id := range FallbackRitualIDs {
		for _, r := range rituals {
			if r.ID != id {
				continue
			}
			r = withDefaults(r)
			top = append(top, toItem(r, r.Effort, FallbackScore))
			break
		}
	}
	return Result{
		Top3:              top,
		OpportunityScores: []OpportunityScore{},
		UsedFallback:      true,
	}
}

func score(r catalog.Ritual, n timeline.Normalized, g goal.Goal, uc UserContext) Scored {
	s := Scored{
		Ritual:         r,
		GoalWeight:     goalWeight(r, g),
		TimingDelta:    MissingTimingDelta,
		AdjustedEffort: adjustEffort(r.Effort, r.ID, uc),
	}

	if userTime, ok := userTime(r.ID, n); ok {
		s.TimingDelta = abs(userTime - idealMid(r.Block))
	}
	s.TimingPenalty = clamp(float64(s.TimingDelta)/TimingWindow, 0, 1)

	effortPenalty := float64(s.AdjustedEffort-1) * EffortPenaltyStep
	s.Score = float64(r.Impact)/5*s.GoalWeight*(1-s.TimingPenalty) - effortPenalty
	return s
}

// goalWeight resolves how much a ritual serves g.
func goalWeight(r catalog.Ritual, g goal.Goal) float64 {
	if w, ok := r.GoalWeights[g]; ok {
		return w
	}
	if g != goal.Mixed || len(r.GoalWeights) == 0 {
		return DefaultGoalWeight
	}
	// Sum in key order so the result does not depend on map iteration.
	keys := make([]string, 0, len(r.GoalWeights))
	for k := range r.GoalWeights {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += r.GoalWeights[goal.Goal(k)]
	}
	return sum / float64(len(keys))
}

// idealMid returns the midpoint minute of an "HH-HH" block, or 0.
func idealMid(block string) int {
	m := blockRegex.FindStringSubmatch(block)
	if m == nil {
		return 0
	}
	h1, err1 := strconv.Atoi(m[1])
	h2, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0
	}
	return (h1 + h2) * 30
}

func userTime(id string, n timeline.Normalized) (int, bool) {
	for _, key := range RitualAnchors[id] {
		if m, ok := n.Minutes(key); ok {
			return m, true
		}
	}
	return 0, false
}

func adjustEffort(effort int, id string, uc UserContext) int {
	for _, b := range effortBumps {
		if !b.applies(uc) {
			continue
		}
		for _, bumped := range b.ids {
			if id == bumped {
				effort++
			}
		}
	}
	return min(effort, 3)
}

// rank orders by score, then cheaper effort, then larger timing headroom.
// Equal candidates keep catalog order.
func rank(scored []Scored) []Scored {
	ranked := make([]Scored, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AdjustedEffort != b.AdjustedEffort {
			return a.AdjustedEffort < b.AdjustedEffort
		}
		return a.TimingDelta > b.TimingDelta
	})
	return ranked
}

// suppressConflicts applies pairs in order: when a pair's preferred ritual is
// present anywhere in the list, its counterpart is removed wherever it ranks.
func suppressConflicts(ranked []Scored, pairs []ConflictPair) []Scored {
	kept := make([]Scored, len(ranked))
	copy(kept, ranked)
	for _, p := range pairs {
		if !slices.ContainsFunc(kept, func(s Scored) bool { return s.ID == p.Prefer }) {
			continue
		}
		kept = slices.DeleteFunc(kept, func(s Scored) bool { return s.ID == p.Suppress })
	}
	return kept
}

// pickDiverse takes up to n rituals with distinct system blocks, then fills
// any remaining slots from the same list regardless of block.
func pickDiverse(candidates []Scored, n int) []Scored {
	picks := make([]Scored, 0, n)
	taken := make([]bool, len(candidates))
	usedBlocks := make(map[string]bool)

	for i, s := range candidates {
		if len(picks) == n {
			break
		}
		if usedBlocks[s.SystemBlock] {
			continue
		}
		usedBlocks[s.SystemBlock] = true
		taken[i] = true
		picks = append(picks, s)
	}

	for i, s := range candidates {
		if len(picks) == n {
			break
		}
		if taken[i] {
			continue
		}
		taken[i] = true
		picks = append(picks, s)
	}

	return picks
}

func toItem(r catalog.Ritual, effort int, opp float64) Item {
	name := r.Name
	if name == "" {
		name = r.ID
	}
	return Item{
		RitualName:  name,
		ImpactTag:   impactTag(r.Impact, opp),
		EffortTag:   effortTag(effort),
		Why:         r.Why,
		HowTo:       r.HowTo,
		SystemBlock: r.SystemBlock,
		Category:    r.Category,
	}
}

// impactTag labels a ritual's expected payoff. Base impact 5 is always High.
func impactTag(impact int, opp float64) string {
	switch {
	case impact >= 5 || opp >= 0.75:
		return "High"
	case opp >= 0.5:
		return "Medium"
	default:
		return "Low"
	}
}

func effortTag(effort int) string {
	switch effort {
	case 1:
		return "Low"
	case 2:
		return "Medium"
	default:
		return "High"
	}
}

// withDefaults fills catalog fields an entry left out.
func withDefaults(r catalog.Ritual) catalog.Ritual {
	if r.Impact == 0 {
		r.Impact = defaultImpact
	}
	if r.Effort == 0 {
		r.Effort = defaultEffort
	}
	if r.Category == "" {
		r.Category = defaultCategory
	}
	if r.SystemBlock == "" {
		r.SystemBlock = defaultSystemBlock
	}
	return r
}

// round2 rounds half up to two decimals.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
