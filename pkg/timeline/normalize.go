package timeline

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	minutesPerDay     = 1440
	defaultConfidence = 0.5
	windowSeparator   = "–" // en dash, as the intake form writes "22:00–23:00"
)

var hhmmRegex = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// ParseHHMM converts "HH:MM" to minutes since midnight.
func ParseHHMM(s string) (int, bool) {
	m := hhmmRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h > 23 {
		return 0, false
	}
	mins, err := strconv.Atoi(m[2])
	if err != nil || mins > 59 {
		return 0, false
	}
	return h*60 + mins, true
}

// FormatMinutes renders a minute-of-day value as "HH:MM", wrapping negative
// (previous night) and overflowing values onto the clock.
func FormatMinutes(m int) string {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Normalize maps timeline anchors onto canonical keys and minute-of-day
// values. It never fails: unmappable names and malformed times are dropped,
// and a nil timeline yields an empty result.
func Normalize(tl *Timeline, rules Rules) Normalized {
	out := Normalized{Anchors: make(map[AnchorKey]AnchorTime)}
	if tl == nil {
		return out
	}

	var confs []float64
	for _, a := range tl.Anchors {
		key, ok := KeyForName(a.Name)
		if !ok {
			continue
		}
		mins, ok := ParseHHMM(a.Time)
		if !ok {
			continue
		}
		conf := defaultConfidence
		if a.Confidence != nil {
			conf = clampUnit(*a.Confidence)
		}
		// Later anchors for the same key replace earlier ones.
		out.Anchors[key] = AnchorTime{Minutes: mins, Confidence: conf}
		confs = append(confs, conf)
	}

	if rules.MapEarlyMorningToPreviousNight {
		for _, k := range rules.RolloverKeys {
			a, ok := out.Anchors[k]
			if !ok || a.Minutes > rules.RolloverThreshold {
				continue
			}
			a.Minutes -= minutesPerDay
			out.Anchors[k] = a
			out.Rollover = true
		}
	}

	if rules.WindowMidpoint {
		out.WindowMid = windowMidpoint(tl.BedtimeWindow)
	}

	if len(confs) > 0 {
		var sum float64
		for _, c := range confs {
			sum += c
		}
		out.AvgConfidence = sum / float64(len(confs))
	}

	return out
}

// windowMidpoint parses "HH:MM–HH:MM" and returns the rounded midpoint.
func windowMidpoint(window string) *int {
	if window == "" {
		return nil
	}
	parts := strings.Split(window, windowSeparator)
	if len(parts) != 2 {
		return nil
	}
	// Parts are strict HH:MM; "22:00 – 23:00" has no midpoint.
	start, ok := ParseHHMM(parts[0])
	if !ok {
		return nil
	}
	end, ok := ParseHHMM(parts[1])
	if !ok {
		return nil
	}
	mid := int(math.Floor(float64(start+end)/2 + 0.5))
	return &mid
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(1, v))
}
