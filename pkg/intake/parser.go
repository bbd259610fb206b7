// Package intake turns free-text routine descriptions into structured sleep
// timelines using an LLM, validating what comes back before anything
// downstream sees it.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeGROOVE-dev/ritualz/pkg/cache"
	"github.com/codeGROOVE-dev/ritualz/pkg/timeline"
)

// ErrInvalidTimeline wraps timeline.ErrInvalidTimeline for model output that
// fails the timeline contract.
var ErrInvalidTimeline = timeline.ErrInvalidTimeline

// SeedRitual is a ritual suggested by the model alongside the timeline.
type SeedRitual struct {
	Name      string `json:"name"`
	Tagline   string `json:"tagline"`
	Category  string `json:"category"`
	TimeBlock string `json:"time_block"`
}

// Result is a parsed intake.
type Result struct {
	Timeline    timeline.Timeline `json:"timeline_json"`
	SeedRituals []SeedRitual      `json:"seed_rituals,omitempty"`
}

// Parser produces timelines from intake requests.
type Parser struct {
	gen       Generator
	cache     *cache.Cache
	logger    *slog.Logger
	namespace string
}

// NewParser returns a parser. A nil cache disables caching; model is part of
// the cache namespace so switching models never serves stale output.
func NewParser(gen Generator, c *cache.Cache, model string, logger *slog.Logger) *Parser {
	return &Parser{
		gen:       gen,
		cache:     c,
		logger:    logger,
		namespace: "timeline/" + model,
	}
}

// Parse prompts the generator and returns a validated timeline.
func (p *Parser) Parse(ctx context.Context, req Request) (*Result, error) {
	if p.gen == nil {
		return nil, ErrNoAPIKey
	}
	prompt := Prompt(req)

	if p.cache != nil {
		if data, ok := p.cache.Get(p.namespace, []byte(prompt)); ok {
			var cached Result
			if err := json.Unmarshal(data, &cached); err == nil {
				p.logger.Debug("timeline served from cache")
				return &cached, nil
			}
			p.logger.Warn("discarding unreadable cached timeline")
		}
	}

	text, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result, err := decode(text)
	if err != nil {
		p.logger.Warn("model returned an unusable timeline", "error", err, "response_text", text)
		return nil, err
	}

	if p.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			p.cache.Set(p.namespace, []byte(prompt), data)
		}
	}
	p.logger.Info("timeline parsed", "anchors", len(result.Timeline.Anchors), "seed_rituals", len(result.SeedRituals))
	return result, nil
}

// decode extracts, unmarshals and validates a model response.
func decode(text string) (*Result, error) {
	jsonText, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimeline, err)
	}
	var result Result
	if err := json.Unmarshal([]byte(jsonText), &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimeline, err)
	}
	result.Timeline.BedtimeWindow = strings.TrimSpace(result.Timeline.BedtimeWindow)
	if err := timeline.Validate(&result.Timeline); err != nil {
		return nil, err
	}

	seeds := make([]SeedRitual, 0, len(result.SeedRituals))
	for _, s := range result.SeedRituals {
		s.Name = strings.TrimSpace(s.Name)
		s.Tagline = strings.TrimSpace(s.Tagline)
		if validSeed(s) {
			seeds = append(seeds, s)
		}
		if len(seeds) == 3 {
			break
		}
	}
	result.SeedRituals = seeds
	return &result, nil
}

var (
	seedCategories = map[string]bool{"Food": true, "Movement": true, "Mind": true, "Sleep": true}
	seedBlocks     = map[string]bool{"Morning": true, "Day": true, "Evening": true, "Night": true}
)

func validSeed(s SeedRitual) bool {
	return len(s.Name) >= 2 && len(s.Tagline) >= 4 && seedCategories[s.Category] && seedBlocks[s.TimeBlock]
}

// ExtractJSON pulls a JSON object out of a response that may wrap it in
// prose or markdown fences.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if isJSONObject(text) {
		return text, nil
	}

	for _, fence := range []string{"```json", "```"} {
		if start := strings.Index(text, fence); start != -1 {
			start += len(fence)
			if end := strings.Index(text[start:], "```"); end != -1 {
				candidate := strings.TrimSpace(text[start : start+end])
				if isJSONObject(candidate) {
					return candidate, nil
				}
			}
		}
	}

	if start := strings.Index(text, "{"); start != -1 {
		if end := strings.LastIndex(text, "}"); end > start {
			candidate := text[start : end+1]
			if isJSONObject(candidate) {
				return candidate, nil
			}
		}
	}
	return "", errors.New("no JSON object found in response")
}

func isJSONObject(s string) bool {
	var obj map[string]any
	return json.Unmarshal([]byte(s), &obj) == nil
}
