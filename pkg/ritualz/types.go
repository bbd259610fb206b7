package ritualz

import (
	"github.com/codeGROOVE-dev/ritualz/pkg/catalog"
	"github.com/codeGROOVE-dev/ritualz/pkg/delta"
	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
	"github.com/codeGROOVE-dev/ritualz/pkg/intake"
	"github.com/codeGROOVE-dev/ritualz/pkg/store"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

// Option configures a Planner.
type Option func(*OptionHolder)

// WithGeminiAPIKey sets the Gemini API key used to parse routine text.
func WithGeminiAPIKey(key string) Option {
	return func(o *OptionHolder) {
		o.geminiAPIKey = key
	}
}

// WithGeminiModel sets the Gemini model.
func WithGeminiModel(model string) Option {
	return func(o *OptionHolder) {
		o.geminiModel = model
	}
}

// WithGCPProject sets the GCP project for Vertex AI access.
func WithGCPProject(projectID string) Option {
	return func(o *OptionHolder) {
		o.gcpProject = projectID
	}
}

// WithGenerator replaces the Gemini generator, mainly for tests.
func WithGenerator(gen intake.Generator) Option {
	return func(o *OptionHolder) {
		o.generator = gen
	}
}

// WithCatalog sets the ideal map rituals are scored from.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *OptionHolder) {
		o.catalog = c
	}
}

// WithCatalogFile loads the ideal map from a YAML or JSON file.
func WithCatalogFile(path string) Option {
	return func(o *OptionHolder) {
		o.catalogFile = path
	}
}

// WithRules overrides the anchor normalization rules.
func WithRules(r timeline.Rules) Option {
	return func(o *OptionHolder) {
		o.rules = &r
	}
}

// WithCacheDir sets the directory for the parse cache.
func WithCacheDir(dir string) Option {
	return func(o *OptionHolder) {
		o.cacheDir = dir
	}
}

// WithNoCache disables caching entirely.
func WithNoCache() Option {
	return func(o *OptionHolder) {
		o.noCache = true
	}
}

// WithMemoryOnlyCache keeps the cache in memory (for servers).
func WithMemoryOnlyCache() Option {
	return func(o *OptionHolder) {
		o.memoryOnlyCache = true
	}
}

// WithStore persists runs to an already opened store. The caller owns it.
func WithStore(s *store.Store) Option {
	return func(o *OptionHolder) {
		o.store = s
	}
}

// WithDatabase opens a store for dsn; the Planner closes it.
func WithDatabase(dsn string) Option {
	return func(o *OptionHolder) {
		o.databaseURL = dsn
	}
}

// OptionHolder holds configuration options.
type OptionHolder struct {
	generator       intake.Generator
	catalog         *catalog.Catalog
	rules           *timeline.Rules
	store           *store.Store
	geminiAPIKey    string
	geminiModel     string
	gcpProject      string
	catalogFile     string
	cacheDir        string
	databaseURL     string
	noCache         bool
	memoryOnlyCache bool
}

// Profile holds what the engine needs to know about the user.
type Profile struct {
	Goal        string `json:"goal" yaml:"goal"`
	HasKids     bool   `json:"has_kids" yaml:"has_kids"`
	ShiftWorker bool   `json:"shift_worker" yaml:"shift_worker"`
}

// Request asks for a recommendation. A request that names a user but carries
// no timeline is scored against the user's latest stored timeline and profile.
type Request struct {
	Timeline   *timeline.Timeline `json:"timeline,omitempty"`
	UserID     string             `json:"user_id,omitempty"`
	TimelineID string             `json:"timeline_id,omitempty"`
	Profile    Profile            `json:"profile"`
}

// Intake is a parsed routine. TimelineID is set when it was stored for a user.
type Intake struct {
	intake.Result
	TimelineID string `json:"timeline_id,omitempty"`
}

// Result is a recommendation.
type Result struct {
	Normalized        timeline.Normalized      `json:"-"`
	EngineVersion     string                   `json:"engine_version"`
	Goal              goal.Goal                `json:"goal"`
	RunID             string                   `json:"run_id,omitempty"`
	CatalogVersion    string                   `json:"catalog_version"`
	Top3              []delta.Item             `json:"top3_json"`
	OpportunityScores []delta.OpportunityScore `json:"opportunity_scores"`
	Picks             []delta.Scored           `json:"-"`
	FallbackUsed      bool                     `json:"fallback_used"`
}
