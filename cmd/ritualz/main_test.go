package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadTimeline(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"night.yaml": `wake_time: "06:30"
bedtime_target: "23:00"
bedtime_window: "22:00–23:00"
anchors:
  - name: Dinner
    time: "19:00"
    confidence: 0.9
  - name: Lights out
    time: "00:30"
`,
		"night.json": `{"wake_time":"06:30","bedtime_target":"23:00","bedtime_window":"22:00–23:00",
"anchors":[{"name":"Dinner","time":"19:00","confidence":0.9},{"name":"Lights out","time":"00:30"}]}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		tl, err := readTimeline(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if tl.WakeTime != "06:30" || tl.BedtimeWindow != "22:00–23:00" || len(tl.Anchors) != 2 {
			t.Errorf("%s: timeline = %+v", name, tl)
		}
		if c := tl.Anchors[0].Confidence; c == nil || *c != 0.9 {
			t.Errorf("%s: dinner confidence = %v", name, c)
		}
		if tl.Anchors[1].Confidence != nil {
			t.Errorf("%s: missing confidence should stay nil", name)
		}
	}

	if _, err := readTimeline(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
