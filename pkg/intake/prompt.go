package intake

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// maxRoutineChars bounds the routine text sent to the model.
const maxRoutineChars = 4000

var htmlTagRegex = regexp.MustCompile(`<[a-zA-Z][^>]*>`)

// Request is what the intake form collects.
type Request struct {
	PreferredName string `json:"preferred_name,omitempty"`
	Goal          string `json:"goal"`
	BedtimeWindow string `json:"bedtime_window"`
	RoutineText   string `json:"routine_text"`
}

// CleanRoutineText normalizes pasted routine text. Routines copied from notes
// apps or web pages often arrive as HTML; those are converted to markdown so
// the model sees the text and list structure rather than markup.
func CleanRoutineText(s string) string {
	s = strings.TrimSpace(s)
	if htmlTagRegex.MatchString(s) {
		if converted, err := md.ConvertString(s); err == nil {
			s = strings.TrimSpace(converted)
		}
	}
	if r := []rune(s); len(r) > maxRoutineChars {
		s = string(r[:maxRoutineChars])
	}
	return s
}

// Prompt builds the intake normalizer prompt.
func Prompt(req Request) string {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		goal = "Fall asleep faster"
	}
	routine := CleanRoutineText(req.RoutineText)
	if routine == "" {
		routine = "No details provided."
	}

	lines := []string{
		"You are a sleep intake normalizer. Return only strict JSON.",
		"Parse the user routine into a timeline and up to 3 simple rituals.",
		"Times must be 24h HH:MM. If vague, make safe best guesses from the bedtime window.",
		"Give every anchor a confidence between 0 and 1; guesses get low confidence.",
		"Name anchors with these words where they apply: Dinner, Last caffeine, Screens off, Lights dim, Lights out, Wake, Sunlight, Morning walk.",
		"Rituals should be easy and high leverage for the next 7 days.",
		"",
	}
	if name := strings.TrimSpace(req.PreferredName); name != "" {
		lines = append(lines, "Preferred name: "+name)
	}
	lines = append(lines, "Primary goal: "+goal)
	if w := strings.TrimSpace(req.BedtimeWindow); w != "" {
		lines = append(lines, "Bedtime window: "+w)
	}
	lines = append(lines, "Routine:", routine)
	return strings.Join(lines, "\n")
}
