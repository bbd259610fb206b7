package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/ritualz/pkg/cache"
)

type fakeGenerator struct {
	err      error
	response string
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const goodResponse = `{
  "timeline_json": {
    "wake_time": "06:30",
    "bedtime_target": "22:30",
    "bedtime_window": "22:00–23:00",
    "anchors": [
      {"name": "Dinner", "time": "19:30", "confidence": 0.9},
      {"name": "Lights out", "time": "23:15", "confidence": 0.6}
    ],
    "notes": "late screens"
  },
  "seed_rituals": [
    {"name": "Dim lights", "tagline": "Lamps only after 21:00", "category": "Sleep", "time_block": "Evening"},
    {"name": "X", "tagline": "too short name", "category": "Sleep", "time_block": "Night"},
    {"name": "Brunch", "tagline": "unknown category", "category": "Social", "time_block": "Day"}
  ]
}`

func TestParse(t *testing.T) {
	gen := &fakeGenerator{response: "Here you go:\n```json\n" + goodResponse + "\n```"}
	p := NewParser(gen, nil, "test-model", testLogger())

	got, err := p.Parse(context.Background(), Request{Goal: "Fall asleep faster", RoutineText: "dinner 19:30"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Timeline.WakeTime != "06:30" || len(got.Timeline.Anchors) != 2 {
		t.Errorf("timeline = %+v", got.Timeline)
	}
	if len(got.SeedRituals) != 1 || got.SeedRituals[0].Name != "Dim lights" {
		t.Errorf("seed rituals = %+v; want only Dim lights", got.SeedRituals)
	}
}

func TestParseRejectsInvalidTimeline(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "I could not parse that routine."},
		{"bad wake time", `{"timeline_json":{"wake_time":"6:30","bedtime_target":"22:30","bedtime_window":"22:00–23:00","anchors":[]}}`},
		{"missing anchors", `{"timeline_json":{"wake_time":"06:30","bedtime_target":"22:30","bedtime_window":"22:00–23:00"}}`},
		{"confidence out of range", `{"timeline_json":{"wake_time":"06:30","bedtime_target":"22:30","anchors":[{"name":"Dinner","time":"19:00","confidence":1.5}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(&fakeGenerator{response: tt.response}, nil, "m", testLogger())
			_, err := p.Parse(context.Background(), Request{RoutineText: "x"})
			if !errors.Is(err, ErrInvalidTimeline) {
				t.Errorf("err = %v; want ErrInvalidTimeline", err)
			}
		})
	}
}

func TestParseGeneratorError(t *testing.T) {
	boom := errors.New("upstream down")
	p := NewParser(&fakeGenerator{err: boom}, nil, "m", testLogger())
	if _, err := p.Parse(context.Background(), Request{}); !errors.Is(err, boom) {
		t.Errorf("err = %v; want %v", err, boom)
	}
}

func TestParseWithoutGenerator(t *testing.T) {
	p := NewParser(nil, nil, "m", testLogger())
	if _, err := p.Parse(context.Background(), Request{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v; want ErrNoAPIKey", err)
	}
}

func TestParseUsesCache(t *testing.T) {
	gen := &fakeGenerator{response: goodResponse}
	c := cache.NewMemoryOnly(time.Hour, testLogger())
	req := Request{Goal: "Wake up fresher", RoutineText: "wake 06:30"}

	p := NewParser(gen, c, "m1", testLogger())
	for range 2 {
		if _, err := p.Parse(context.Background(), req); err != nil {
			t.Fatalf("Parse: %v", err)
		}
	}
	if len(gen.prompts) != 1 {
		t.Errorf("generator called %d times; want 1", len(gen.prompts))
	}

	// A different model must not reuse the entry.
	other := NewParser(gen, c, "m2", testLogger())
	if _, err := other.Parse(context.Background(), req); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(gen.prompts) != 2 {
		t.Errorf("generator called %d times after model change; want 2", len(gen.prompts))
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced json", "text\n```json\n{\"a\":1}\n```\nmore", `{"a":1}`, false},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose", `Sure! {"a":1} hope that helps`, `{"a":1}`, false},
		{"none", "no json here", "", true},
		{"array only", `[1,2]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q; want %q", got, tt.want)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	got := Prompt(Request{PreferredName: "Sam", Goal: "Wake up fresher", BedtimeWindow: "22:00–23:00", RoutineText: "  coffee at 3pm  "})
	for _, want := range []string{"Preferred name: Sam", "Primary goal: Wake up fresher", "Bedtime window: 22:00–23:00", "coffee at 3pm", "HH:MM"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}

	empty := Prompt(Request{})
	if !strings.Contains(empty, "Primary goal: Fall asleep faster") || !strings.Contains(empty, "No details provided.") {
		t.Errorf("defaults missing:\n%s", empty)
	}
	if strings.Contains(empty, "Preferred name") {
		t.Error("empty name should be omitted")
	}
}

func TestCleanRoutineText(t *testing.T) {
	if got := CleanRoutineText("  plain text  "); got != "plain text" {
		t.Errorf("plain = %q", got)
	}

	got := CleanRoutineText("<ul><li>Dinner 19:30</li><li>Bed 23:00</li></ul>")
	if strings.Contains(got, "<li>") {
		t.Errorf("html not converted: %q", got)
	}
	if !strings.Contains(got, "Dinner 19:30") || !strings.Contains(got, "Bed 23:00") {
		t.Errorf("content lost: %q", got)
	}

	long := CleanRoutineText(strings.Repeat("z", maxRoutineChars+50))
	if len(long) != maxRoutineChars {
		t.Errorf("len = %d; want %d", len(long), maxRoutineChars)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"Error 503: service unavailable", true},
		{"quota exceeded", true},
		{"context deadline exceeded", true},
		{"Error 400: invalid argument", false},
		{"permission denied", false},
	}
	for _, tt := range tests {
		if got := isTransient(errors.New(tt.err)); got != tt.want {
			t.Errorf("isTransient(%q) = %v; want %v", tt.err, got, tt.want)
		}
	}
}

func TestNewGeminiDefaults(t *testing.T) {
	g := NewGemini("", "", "", testLogger())
	if g.Model() != DefaultModel {
		t.Errorf("model = %q; want %q", g.Model(), DefaultModel)
	}
	if NewGemini("", "models/gemini-x", "", testLogger()).Model() != "gemini-x" {
		t.Error("models/ prefix not trimmed")
	}
}

func TestGeminiWithoutCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	g := NewGemini("", "", "", testLogger())
	if _, err := g.Generate(context.Background(), "hi"); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v; want ErrNoAPIKey", err)
	}
}
