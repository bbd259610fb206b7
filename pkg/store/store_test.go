package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ritualz.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

var sampleItems = []delta.Item{
	{RitualName: "Dim lights at 20:30", ImpactTag: "High", EffortTag: "Low", HowTo: "Lamps only", SystemBlock: "Evening", Category: "sleep"},
	{RitualName: "No screens 60m", ImpactTag: "High", EffortTag: "Medium", HowTo: "Phone in the kitchen", SystemBlock: "Night", Category: "mind"},
}

func TestSaveAndLatestRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestRun(ctx, "u1"); !errors.Is(err, ErrNoRun) {
		t.Fatalf("LatestRun on empty store: err = %v; want ErrNoRun", err)
	}

	res := delta.Result{
		Top3:              sampleItems,
		OpportunityScores: []delta.OpportunityScore{{ID: "dim_lights_2030", Score: 1}},
	}
	saved, err := s.SaveRun(ctx, Run{UserID: "u1", TimelineID: "t1", EngineVersion: "v1.0", Goal: goal.SleepLatency, Result: res})
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if saved.ID == "" {
		t.Error("SaveRun did not assign an id")
	}

	got, err := s.LatestRun(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got.ID != saved.ID || got.EngineVersion != "v1.0" || got.Goal != "sleep_latency" || got.UsedFallback {
		t.Errorf("LatestRun = %+v", got)
	}
	var items []delta.Item
	if err := json.Unmarshal(got.Top3, &items); err != nil {
		t.Fatalf("decoding top3_json: %v", err)
	}
	if len(items) != 2 || items[0].RitualName != "Dim lights at 20:30" {
		t.Errorf("top3_json = %+v", items)
	}

	if _, err := s.LatestRun(ctx, "someone-else"); !errors.Is(err, ErrNoRun) {
		t.Errorf("other user: err = %v; want ErrNoRun", err)
	}
}

func TestUpsertRitualsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertRituals(ctx, RitualsFromItems("u1", sampleItems))
	if err != nil || n != 2 {
		t.Fatalf("first upsert = %d, %v; want 2, nil", n, err)
	}

	changed := append([]delta.Item(nil), sampleItems...)
	changed[0].HowTo = "Warm lamps only"
	if n, err := s.UpsertRituals(ctx, RitualsFromItems("u1", changed)); err != nil || n != 2 {
		t.Fatalf("second upsert = %d, %v; want 2, nil", n, err)
	}

	rows, err := s.ActiveRituals(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveRituals: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rituals; want 2 (upsert must not duplicate)", len(rows))
	}
	// Ordered by time block: Evening before Night.
	if rows[0].Name != "Dim lights at 20:30" || rows[0].Tagline != "Warm lamps only" {
		t.Errorf("rows[0] = %+v; want refreshed tagline", rows[0])
	}
	if rows[0].Color != "#8B5CF6" || rows[1].Color != "#06B6D4" || rows[1].Category != "Mind" {
		t.Errorf("colors/categories = %+v", rows)
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if _, err := s.SaveRun(ctx, Run{}); !errors.Is(err, ErrNoStore) {
		t.Errorf("SaveRun err = %v", err)
	}
	if _, err := s.UpsertRituals(ctx, nil); !errors.Is(err, ErrNoStore) {
		t.Errorf("UpsertRituals err = %v", err)
	}
	if _, err := s.ActiveRituals(ctx, "u"); !errors.Is(err, ErrNoStore) {
		t.Errorf("ActiveRituals err = %v", err)
	}
	if _, err := s.LatestRun(ctx, "u"); !errors.Is(err, ErrNoStore) {
		t.Errorf("LatestRun err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil store: %v", err)
	}
	if _, err := Open("", slog.Default()); !errors.Is(err, ErrNoStore) {
		t.Errorf("Open(\"\") err = %v", err)
	}
}

func TestCategoryAndTimeBlock(t *testing.T) {
	categories := map[string]string{
		"food":      "Food",
		"Foods":     "Food",
		"movement":  "Movement",
		"move":      "Movement",
		"mindset":   "Mind",
		"sleep":     "Sleep",
		"":          "Sleep",
		"nutrition": "Sleep",
	}
	for in, want := range categories {
		if got := Category(in); got != want {
			t.Errorf("Category(%q) = %q; want %q", in, got, want)
		}
	}
	if Color("movement") != "#22C55E" || Color("food") != "#F59E0B" {
		t.Error("palette mismatch")
	}

	blocks := map[string]string{"Morning": "Morning", "Day": "Day", "Evening": "Evening", "Night": "Night", "Afternoon": "Night", "": "Night"}
	for in, want := range blocks {
		if got := TimeBlock(in); got != want {
			t.Errorf("TimeBlock(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestDialector(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/db":     "postgres",
		"postgresql://localhost/db":       "postgres",
		"host=localhost user=u dbname=db": "postgres",
		"/tmp/ritualz.db":                 "sqlite",
		"sqlite:///tmp/ritualz.db":        "sqlite",
	}
	for dsn, want := range tests {
		if got := dialector(dsn).Name(); got != want {
			t.Errorf("dialector(%q) = %q; want %q", dsn, got, want)
		}
	}
}
