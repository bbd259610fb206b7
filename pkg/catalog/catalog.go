// Package catalog provides the ideal map: the static, versioned list of
// candidate rituals the delta engine scores. A Catalog is immutable once
// built and safe to share across goroutines.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/codeGROOVE-dev/ritualz/pkg/goal"
	"gopkg.in/yaml.v3"
)

//go:embed ideal_sleep.yaml
var defaultCatalog []byte

// ErrUnknownRitual is returned by Get when an id is absent.
var ErrUnknownRitual = errors.New("unknown ritual")

// Ritual is one candidate behavior change.
type Ritual struct {
	GoalWeights map[goal.Goal]float64 `json:"goal_weights,omitempty" yaml:"goal_weights,omitempty"`
	ID          string                `json:"id" yaml:"id"`
	Name        string                `json:"ritual_name" yaml:"ritual_name"`
	Category    string                `json:"category" yaml:"category"`
	Block       string                `json:"block" yaml:"block"` // "HH-HH" ideal hour range
	Why         string                `json:"why" yaml:"why"`
	HowTo       string                `json:"how_to" yaml:"how_to"`
	SystemBlock string                `json:"system_block" yaml:"system_block"` // Morning, Day, Evening or Night
	Impact      int                   `json:"impact" yaml:"impact"`             // 1..5
	Effort      int                   `json:"effort" yaml:"effort"`             // 1..3
}

// Catalog is a versioned, read-only set of rituals.
type Catalog struct {
	byID    map[string]int
	version string
	rituals []Ritual
}

type document struct {
	Version string   `yaml:"version"`
	Rituals []Ritual `yaml:"rituals"`
}

// New builds a catalog from rituals. The slice is copied. When an id repeats,
// lookups resolve to its first occurrence.
func New(version string, rituals []Ritual) *Catalog {
	c := &Catalog{
		version: version,
		rituals: make([]Ritual, len(rituals)),
		byID:    make(map[string]int, len(rituals)),
	}
	for i, r := range rituals {
		c.rituals[i] = cloneRitual(r)
		if _, seen := c.byID[r.ID]; !seen {
			c.byID[r.ID] = i
		}
	}
	return c
}

// Parse reads a catalog document. YAML and JSON are both accepted.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(doc.Rituals) == 0 {
		return nil, errors.New("catalog has no rituals")
	}
	for i, r := range doc.Rituals {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog ritual %d has no id", i)
		}
	}
	return New(doc.Version, doc.Rituals), nil
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

var loadDefault = sync.OnceValue(func() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
})

// Default returns the embedded catalog. It is parsed once per process.
func Default() *Catalog {
	return loadDefault()
}

// Version returns the catalog version label.
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of rituals.
func (c *Catalog) Len() int {
	return len(c.rituals)
}

// Rituals returns a copy of the rituals in catalog order.
func (c *Catalog) Rituals() []Ritual {
	out := make([]Ritual, len(c.rituals))
	for i, r := range c.rituals {
		out[i] = cloneRitual(r)
	}
	return out
}

// Lookup returns the ritual with id.
func (c *Catalog) Lookup(id string) (Ritual, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Ritual{}, false
	}
	return cloneRitual(c.rituals[i]), true
}

// Get is Lookup with an error for callers that need one.
func (c *Catalog) Get(id string) (Ritual, error) {
	r, ok := c.Lookup(id)
	if !ok {
		return Ritual{}, fmt.Errorf("%w: %s", ErrUnknownRitual, id)
	}
	return r, nil
}

func cloneRitual(r Ritual) Ritual {
	if r.GoalWeights != nil {
		w := make(map[goal.Goal]float64, len(r.GoalWeights))
		for k, v := range r.GoalWeights {
			w[k] = v
		}
		r.GoalWeights = w
	}
	return r
}
