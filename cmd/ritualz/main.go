// Package main implements the ritualz CLI, which recommends the next three
// sleep ritual changes for a described routine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/ritualz/pkg/chart"
	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
	"github.com/codeGROOVE-dev/ritualz/pkg/intake"
	"github.com/codeGROOVE-dev/ritualz/pkg/ritualz"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

var (
	geminiAPIKey  = flag.String("gemini-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	geminiModel   = flag.String("gemini-model", intake.DefaultModel, "Gemini model to use (or set GEMINI_MODEL)")
	gcpProject    = flag.String("gcp-project", "", "GCP project ID (or set GCP_PROJECT)")
	cacheDir      = flag.String("cache-dir", "", "Cache directory (or set CACHE_DIR)")
	catalogFile   = flag.String("catalog", "", "Ritual catalog YAML/JSON file (or set RITUALZ_CATALOG)")
	databaseURL   = flag.String("database", "", "Postgres URL or sqlite path for saving runs (or set DATABASE_URL)")
	noCache       = flag.Bool("no-cache", false, "Disable caching")
	routine       = flag.String("routine", "", "Describe your evening-to-morning routine in plain text instead of passing a timeline file")
	bedtimeWindow = flag.String("window", "", "Bedtime window for -routine, e.g. 22:00–23:00")
	goalFlag      = flag.String("goal", "Fall asleep faster", "Goal: "+strings.Join(goal.Choices, ", ")+", or a canonical key")
	userID        = flag.String("user", "", "User id for saving intake and runs, or scoring the latest stored timeline (requires -database)")
	hasKids       = flag.Bool("kids", false, "Household has kids")
	shiftWorker   = flag.Bool("shift-worker", false, "Works shifts")
	jsonOutput    = flag.Bool("json", false, "Print the result as JSON")
	showScores    = flag.Bool("scores", false, "Show every opportunity score")
	verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	version       = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("ritualz CLI %s\n", ritualz.EngineVersion)
		return
	}

	args := flag.Args()
	if len(args) > 1 || (len(args) == 0 && *routine == "" && *userID == "") {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <timeline.yaml|timeline.json|->\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s [flags] -routine \"dinner around 8, phone in bed until midnight\"\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -database ritualz.db -user <id>   (latest stored timeline)\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *geminiAPIKey == "" {
		*geminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if *geminiModel == intake.DefaultModel && os.Getenv("GEMINI_MODEL") != "" {
		*geminiModel = os.Getenv("GEMINI_MODEL")
	}
	if *gcpProject == "" {
		*gcpProject = os.Getenv("GCP_PROJECT")
	}
	if *cacheDir == "" {
		*cacheDir = os.Getenv("CACHE_DIR")
	}
	if *catalogFile == "" {
		*catalogFile = os.Getenv("RITUALZ_CATALOG")
	}
	if *databaseURL == "" {
		*databaseURL = os.Getenv("DATABASE_URL")
	}

	opts := []ritualz.Option{
		ritualz.WithGeminiAPIKey(*geminiAPIKey),
		ritualz.WithGeminiModel(*geminiModel),
		ritualz.WithGCPProject(*gcpProject),
	}
	if *catalogFile != "" {
		opts = append(opts, ritualz.WithCatalogFile(*catalogFile))
	}
	if *databaseURL != "" {
		opts = append(opts, ritualz.WithDatabase(*databaseURL))
	}
	if *noCache {
		opts = append(opts, ritualz.WithNoCache())
	} else if *cacheDir != "" {
		opts = append(opts, ritualz.WithCacheDir(*cacheDir))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := run(ctx, logger, opts, args); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "ritualz: %v\n", err)
		os.Exit(1) //nolint:gocritic // cancel already called
	}
}

func run(ctx context.Context, logger *slog.Logger, opts []ritualz.Option, args []string) error {
	planner, err := ritualz.NewWithLogger(ctx, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := planner.Close(); err != nil {
			logger.Error("Failed to close planner", "error", err)
		}
	}()

	req := ritualz.Request{
		UserID: *userID,
		Profile: ritualz.Profile{
			Goal:        *goalFlag,
			HasKids:     *hasKids,
			ShiftWorker: *shiftWorker,
		},
	}
	switch {
	case len(args) == 1:
		tl, err := readTimeline(args[0])
		if err != nil {
			return err
		}
		req.Timeline = &tl
	case *routine != "":
		parsed, err := planner.SubmitIntake(ctx, *userID, intake.Request{
			Goal:          *goalFlag,
			BedtimeWindow: *bedtimeWindow,
			RoutineText:   *routine,
		})
		if err != nil {
			return fmt.Errorf("parsing routine: %w", err)
		}
		req.Timeline = &parsed.Timeline
		req.TimelineID = parsed.TimelineID
		if !*jsonOutput && len(parsed.SeedRituals) > 0 {
			fmt.Println("\n🌱 Suggested by your routine")
			for _, s := range parsed.SeedRituals {
				fmt.Printf("   • %s: %s (%s, %s)\n", s.Name, s.Tagline, s.Category, s.TimeBlock)
			}
		}
	default:
		logger.Debug("scoring latest stored timeline", "user_id", *userID)
	}

	res, err := planner.Recommend(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("\n🎯 Goal: %s  (engine %s, catalog %s)\n\n", res.Goal, res.EngineVersion, res.CatalogVersion)
	fmt.Print(chart.RenderNight(res.Normalized))
	fmt.Println()
	fmt.Print(chart.RenderTop3(delta.Result{Top3: res.Top3, UsedFallback: res.FallbackUsed}))
	if *showScores {
		fmt.Println()
		fmt.Print(chart.RenderScores(res.OpportunityScores, 0))
	}
	if res.RunID != "" {
		fmt.Printf("\nSaved run %s\n", res.RunID)
	}
	return nil
}

// readTimeline loads a timeline from a YAML or JSON file, or stdin for "-".
func readTimeline(path string) (timeline.Timeline, error) {
	var tl timeline.Timeline
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return tl, fmt.Errorf("reading timeline: %w", err)
	}
	if err := yaml.Unmarshal(data, &tl); err != nil {
		return tl, fmt.Errorf("decoding timeline %s: %w", path, err)
	}
	return tl, nil
}
