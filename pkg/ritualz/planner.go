// Package ritualz turns a described evening-to-morning routine into the three
// sleep ritual changes most worth making next.
package ritualz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/ritualz/pkg/cache"
	"github.com/codeGROOVE-dev/ritualz/pkg/catalog"
	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
	"github.com/codeGROOVE-dev/ritualz/pkg/intake"
	"github.com/codeGROOVE-dev/ritualz/pkg/store"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

// EngineVersion identifies the scoring rules in persisted runs.
const EngineVersion = "v1.0"

// ErrSaveFailed wraps storage failures after a routine was parsed.
var ErrSaveFailed = errors.New("saving intake failed")

// Planner normalizes timelines, scores the catalog and persists runs.
type Planner struct {
	logger    *slog.Logger
	catalog   *catalog.Catalog
	rituals   []catalog.Ritual
	rules     timeline.Rules
	parser    *intake.Parser
	cache     *cache.Cache
	store     *store.Store
	ownsStore bool
}

// NewWithLogger creates a Planner with a custom logger. Cache problems are
// logged and tolerated; a bad catalog file or database is an error.
func NewWithLogger(ctx context.Context, logger *slog.Logger, opts ...Option) (*Planner, error) {
	optHolder := &OptionHolder{}
	for _, opt := range opts {
		opt(optHolder)
	}

	cat := optHolder.catalog
	if optHolder.catalogFile != "" {
		loaded, err := catalog.LoadFile(optHolder.catalogFile)
		if err != nil {
			return nil, err
		}
		cat = loaded
	}
	if cat == nil {
		cat = catalog.Default()
	}

	rules := timeline.DefaultRules()
	if optHolder.rules != nil {
		rules = *optHolder.rules
	}

	var c *cache.Cache
	switch {
	case optHolder.noCache:
		logger.Info("caching disabled by --no-cache flag")
	case optHolder.memoryOnlyCache:
		c = cache.NewMemoryOnly(12*time.Hour, logger)
	default:
		var cacheDir string
		if optHolder.cacheDir != "" {
			cacheDir = optHolder.cacheDir
		} else if userCacheDir, err := os.UserCacheDir(); err == nil {
			cacheDir = filepath.Join(userCacheDir, "ritualz")
		} else {
			logger.Debug("could not determine user cache directory", "error", err)
		}
		if cacheDir != "" {
			var err error
			c, err = cache.New(ctx, cacheDir, 7*24*time.Hour, logger)
			if err != nil {
				logger.Warn("cache initialization failed", "error", err, "cache_dir", cacheDir)
				c = nil
			}
		}
	}

	gen := optHolder.generator
	model := optHolder.geminiModel
	if gen == nil {
		g := intake.NewGemini(optHolder.geminiAPIKey, optHolder.geminiModel, optHolder.gcpProject, logger)
		gen, model = g, g.Model()
	}

	p := &Planner{
		logger:  logger,
		catalog: cat,
		rituals: cat.Rituals(),
		rules:   rules,
		parser:  intake.NewParser(gen, c, model, logger),
		cache:   c,
		store:   optHolder.store,
	}

	if optHolder.store == nil && optHolder.databaseURL != "" {
		s, err := store.Open(optHolder.databaseURL, logger)
		if err != nil {
			if c != nil {
				_ = c.Close() //nolint:errcheck // already failing
			}
			return nil, err
		}
		p.store, p.ownsStore = s, true
	}

	logger.Debug("planner ready", "catalog_version", cat.Version(), "rituals", cat.Len(), "persistence", p.store != nil)
	return p, nil
}

// New creates a Planner with the default logger.
func New(ctx context.Context, opts ...Option) (*Planner, error) {
	return NewWithLogger(ctx, slog.Default(), opts...)
}

// Close saves the cache and closes a store the Planner opened.
func (p *Planner) Close() error {
	var errs []error
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	if p.ownsStore {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}

// Catalog returns the ideal map in use.
func (p *Planner) Catalog() *catalog.Catalog {
	return p.catalog
}

// Store returns the store, or nil when persistence is off.
func (p *Planner) Store() *store.Store {
	return p.store
}

// ProfileGoal resolves a stored profile goal. Canonical keys pass through;
// anything else goes through the intake label mapping.
func ProfileGoal(raw string) goal.Goal {
	if g := goal.Goal(raw); g.Valid() {
		return g
	}
	return goal.Resolve(raw)
}

// Recommend normalizes the timeline, scores the catalog and, when a store is
// configured and the request names a user, records the run and upserts the
// Top-3 as the user's active rituals.
func (p *Planner) Recommend(ctx context.Context, req Request) (*Result, error) {
	if req.Timeline == nil && req.UserID != "" {
		stored, err := p.storedRequest(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		req = *stored
	}

	normalized := timeline.Normalize(req.Timeline, p.rules)
	g := ProfileGoal(req.Profile.Goal)

	res := delta.Compute(delta.Input{
		Normalized: normalized,
		Goal:       g,
		Catalog:    p.rituals,
		Context: delta.UserContext{
			HasKids:     req.Profile.HasKids,
			ShiftWorker: req.Profile.ShiftWorker,
		},
	})

	out := &Result{
		Normalized:        normalized,
		EngineVersion:     EngineVersion,
		Goal:              g,
		CatalogVersion:    p.catalog.Version(),
		Top3:              res.Top3,
		OpportunityScores: res.OpportunityScores,
		Picks:             res.Picks,
		FallbackUsed:      res.UsedFallback,
	}
	p.logger.Info("recommendation computed",
		"goal", g,
		"anchors", len(normalized.Anchors),
		"avg_confidence", normalized.AvgConfidence,
		"fallback", res.UsedFallback,
		"top3", len(res.Top3))

	if p.store == nil || req.UserID == "" {
		return out, nil
	}

	run, err := p.store.SaveRun(ctx, store.Run{
		UserID:        req.UserID,
		TimelineID:    req.TimelineID,
		EngineVersion: EngineVersion,
		Goal:          g,
		Result:        res,
	})
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	out.RunID = run.ID

	n, err := p.store.UpsertRituals(ctx, store.RitualsFromItems(req.UserID, res.Top3))
	if err != nil {
		return nil, fmt.Errorf("updating rituals: %w", err)
	}
	p.logger.Debug("run persisted", "run_id", run.ID, "user_id", req.UserID, "rituals_upserted", n)
	return out, nil
}

// storedRequest rebuilds a request from the user's latest timeline and
// profile. A user without a profile is scored with default context.
func (p *Planner) storedRequest(ctx context.Context, userID string) (*Request, error) {
	row, err := p.store.LatestTimeline(ctx, userID)
	if err != nil {
		return nil, err
	}
	req := &Request{UserID: userID, TimelineID: row.ID}
	tl := row.Data.Data()
	req.Timeline = &tl

	prof, err := p.store.Profile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNoProfile):
		p.logger.Debug("no stored profile, using defaults", "user_id", userID)
	case err != nil:
		return nil, err
	default:
		req.Profile = Profile{Goal: prof.Goal, HasKids: prof.HasKids, ShiftWorker: prof.ShiftWorker}
	}
	return req, nil
}

// SubmitIntake parses routine text into a validated timeline. For a named
// user with a store configured it also saves the intake answers as the
// profile, stores the timeline and activates the suggested seed rituals.
func (p *Planner) SubmitIntake(ctx context.Context, userID string, req intake.Request) (*Intake, error) {
	parsed, err := p.parser.Parse(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &Intake{Result: *parsed}
	if p.store == nil || userID == "" {
		return out, nil
	}

	if err := p.store.UpsertProfile(ctx, store.Profile{
		UserID:        userID,
		PreferredName: req.PreferredName,
		Goal:          req.Goal,
		BedtimeWindow: req.BedtimeWindow,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	row, err := p.store.SaveTimeline(ctx, userID, req.Goal, req.BedtimeWindow, parsed.Timeline)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	out.TimelineID = row.ID

	seeds := make([]store.Ritual, 0, len(parsed.SeedRituals))
	for _, sr := range parsed.SeedRituals {
		seeds = append(seeds, store.Ritual{
			UserID:    userID,
			Category:  store.Category(sr.Category),
			TimeBlock: store.TimeBlock(sr.TimeBlock),
			Name:      sr.Name,
			Tagline:   sr.Tagline,
			Color:     store.Color(sr.Category),
			Active:    true,
		})
	}
	n, err := p.store.UpsertRituals(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	p.logger.Info("intake stored", "user_id", userID, "timeline_id", row.ID, "seed_rituals", n)
	return out, nil
}

// ActiveRituals lists a user's stored rituals.
func (p *Planner) ActiveRituals(ctx context.Context, userID string) ([]store.Ritual, error) {
	return p.store.ActiveRituals(ctx, userID)
}
