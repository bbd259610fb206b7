// Package chart renders normalized nights and recommendations for the terminal.
package chart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

const (
	// The night chart runs noon to noon so every anchor fits on one axis.
	chartStart = 12 * 60
	bucketSize = 30
	rows       = 48
	ruleWidth  = 50
)

type marker struct {
	color  *color.Color
	symbol string
	label  string
}

var markers = map[timeline.AnchorKey]marker{
	timeline.DinnerTime:          {color.New(color.FgYellow), "D", "dinner"},
	timeline.LastCaffeineTime:    {color.New(color.FgRed), "C", "last caffeine"},
	timeline.ScreensEndTime:      {color.New(color.FgCyan), "S", "screens off"},
	timeline.LightsDimTime:       {color.New(color.FgMagenta), "d", "lights dim"},
	timeline.LightsOutTime:       {color.New(color.FgBlue), "L", "lights out"},
	timeline.WakeTime:            {color.New(color.FgGreen), "W", "wake"},
	timeline.SunlightTime:        {color.New(color.FgHiYellow), "U", "sunlight"},
	timeline.MorningMobilityTime: {color.New(color.FgHiGreen), "M", "morning movement"},
}

// axis places a minute value on the noon-to-noon axis.
func axis(minutes int) int {
	for minutes < chartStart {
		minutes += 24 * 60
	}
	for minutes >= chartStart+24*60 {
		minutes -= 24 * 60
	}
	return minutes
}

func bucketOf(minutes int) int {
	return (axis(minutes) - chartStart) / bucketSize
}

// RenderNight draws a normalized timeline as half-hour rows from noon to noon,
// marking anchors and shading the sleep period between lights out and wake.
func RenderNight(n timeline.Normalized) string {
	var out strings.Builder
	rule := strings.Repeat("─", ruleWidth) + "\n"

	out.WriteString("🌙 Night Timeline (30-minute resolution)\n")
	out.WriteString(rule)
	if len(n.Anchors) == 0 {
		out.WriteString("No recognized anchors\n")
		return out.String()
	}

	labels := make([][]string, rows)
	symbols := make([]string, rows)
	for _, key := range timeline.AnchorKeys {
		a, ok := n.Anchors[key]
		if !ok {
			continue
		}
		m := markers[key]
		b := bucketOf(a.Minutes)
		if symbols[b] == "" {
			symbols[b] = m.color.Sprint(m.symbol)
		}
		labels[b] = append(labels[b], fmt.Sprintf("%s %s (%.0f%%)", m.label, timeline.FormatMinutes(a.Minutes), a.Confidence*100))
	}

	if n.WindowMid != nil {
		b := bucketOf(*n.WindowMid)
		if symbols[b] == "" {
			symbols[b] = color.New(color.FgHiMagenta).Sprint("◆")
		}
		labels[b] = append(labels[b], "bedtime window midpoint "+timeline.FormatMinutes(*n.WindowMid))
	}

	sleepFrom, sleepTo := -1, -1
	start, haveStart := n.Minutes(timeline.LightsOutTime)
	if !haveStart && n.WindowMid != nil {
		start, haveStart = *n.WindowMid, true
	}
	if end, ok := n.Minutes(timeline.WakeTime); ok && haveStart {
		if from, to := bucketOf(start), bucketOf(end); from < to {
			sleepFrom, sleepTo = from, to
		}
	}

	sleepColor := color.New(color.FgBlue)
	barColor := color.New(color.FgHiBlack)
	for b := range rows {
		t := chartStart + b*bucketSize
		line := fmt.Sprintf("%02d:%02d ", (t/60)%24, t%60)

		switch {
		case symbols[b] != "":
			line += symbols[b] + " "
		case b >= sleepFrom && b < sleepTo:
			line += sleepColor.Sprint("z") + " "
		default:
			line += "  "
		}

		if b >= sleepFrom && b < sleepTo {
			line += sleepColor.Sprint(strings.Repeat("█", 8))
		} else if len(labels[b]) > 0 {
			line += barColor.Sprint("·")
		}
		if len(labels[b]) > 0 {
			line += " " + strings.Join(labels[b], ", ")
		}
		out.WriteString(strings.TrimRight(line, " ") + "\n")
	}

	out.WriteString(rule)
	out.WriteString(fmt.Sprintf("Average confidence: %.2f\n", n.AvgConfidence))
	if n.Rollover {
		out.WriteString("⚠️  After-midnight lights out or screens off was counted toward the previous night\n")
	}
	return out.String()
}

func tagColor(tag string) *color.Color {
	switch tag {
	case "High", "Low effort":
		return color.New(color.FgGreen)
	case "Medium":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

// RenderTop3 lists the recommended changes.
func RenderTop3(res delta.Result) string {
	var out strings.Builder
	out.WriteString("✨ Your Top 3 Changes\n")
	out.WriteString(strings.Repeat("─", ruleWidth) + "\n")
	if res.UsedFallback {
		out.WriteString("⚠️  Not enough confident anchors; showing the safe starter set\n")
	}
	if len(res.Top3) == 0 {
		out.WriteString("No changes recommended\n")
		return out.String()
	}

	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for i, it := range res.Top3 {
		out.WriteString(fmt.Sprintf("%d. %s  [impact %s · effort %s]  %s\n",
			i+1,
			bold.Sprint(it.RitualName),
			tagColor(it.ImpactTag).Sprint(it.ImpactTag),
			tagColor(effortTagKey(it.EffortTag)).Sprint(it.EffortTag),
			dim.Sprintf("%s/%s", it.SystemBlock, it.Category),
		))
		if it.Why != "" {
			out.WriteString("   Why: " + it.Why + "\n")
		}
		if it.HowTo != "" {
			out.WriteString("   How: " + it.HowTo + "\n")
		}
	}
	return out.String()
}

// Low effort is good news, so it shares High impact's color.
func effortTagKey(tag string) string {
	if tag == "Low" {
		return "Low effort"
	}
	return tag
}

// RenderScores draws a bar per opportunity score, best first, up to limit rows.
// Non-positive scores get no bar.
func RenderScores(scores []delta.OpportunityScore, limit int) string {
	var out strings.Builder
	out.WriteString("📊 Opportunity Scores\n")
	out.WriteString(strings.Repeat("─", ruleWidth) + "\n")
	if len(scores) == 0 {
		out.WriteString("No scores (fallback)\n")
		return out.String()
	}

	sorted := append([]delta.OpportunityScore(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	width := 0
	for _, s := range sorted {
		width = max(width, len(s.ID))
	}
	barColor := color.New(color.FgCyan)
	for _, s := range sorted {
		bar := ""
		if n := int(s.Score*20 + 0.5); n > 0 {
			bar = barColor.Sprint(strings.Repeat("█", n))
		}
		out.WriteString(strings.TrimRight(fmt.Sprintf("%-*s %5.2f %s", width, s.ID, s.Score, bar), " ") + "\n")
	}
	return out.String()
}
