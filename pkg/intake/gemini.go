package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// ErrNoAPIKey is returned when neither an API key nor a GCP project is configured.
var ErrNoAPIKey = errors.New("no Gemini API key or GCP project configured")

// Generator produces raw JSON text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini generates timelines with Google's Gemini models.
type Gemini struct {
	client     *genai.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	gcpProject string
	mu         sync.Mutex
}

// NewGemini returns a Gemini generator. The SDK client is created on first use.
func NewGemini(apiKey, model, gcpProject string, logger *slog.Logger) *Gemini {
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		apiKey:     apiKey,
		model:      strings.TrimPrefix(model, "models/"),
		gcpProject: gcpProject,
		logger:     logger,
	}
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

func (g *Gemini) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	var config *genai.ClientConfig
	switch {
	case g.apiKey != "":
		config = &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: g.apiKey}
		g.logger.Debug("using Gemini API with API key")
	default:
		project := g.gcpProject
		if project == "" {
			project = os.Getenv("GOOGLE_CLOUD_PROJECT")
		}
		if project == "" {
			return nil, ErrNoAPIKey
		}
		config = &genai.ClientConfig{Backend: genai.BackendVertexAI, Project: project, Location: "us-central1"}
		g.logger.Debug("using Vertex AI with Application Default Credentials", "project", project)
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.client = client
	return client, nil
}

// Generate calls the model with a structured-output schema, retrying
// transient failures with jittered exponential backoff.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return "", err
	}

	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  2000,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	var resp *genai.GenerateContentResponse
	err = retry.Do(
		func() error {
			var callErr error
			resp, callErr = client.Models.GenerateContent(ctx, g.model, contents, config)
			if callErr != nil && !isTransient(callErr) {
				return retry.Unrecoverable(callErr)
			}
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(4),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(100*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Debug("retrying Gemini call", "attempt", n+1, "model", g.model, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("empty response from Gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return "", errors.New("no content in Gemini response")
	}
	return candidate.Content.Parts[0].Text, nil
}

func isTransient(err error) bool {
	s := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"rate limit", "quota", "timeout", "deadline", "unavailable",
		"internal server error", "502", "503", "504",
	} {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

func responseSchema() *genai.Schema {
	hhmm := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc + " in 24h HH:MM"}
	}
	anchor := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":       {Type: genai.TypeString, Description: "Anchor name, e.g. Dinner, Screens off, Lights out"},
			"time":       hhmm("Time of the event"),
			"confidence": {Type: genai.TypeNumber, Description: "0 to 1; low when the time was guessed"},
		},
		Required: []string{"name", "time", "confidence"},
	}
	seed := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":       {Type: genai.TypeString},
			"tagline":    {Type: genai.TypeString},
			"category":   {Type: genai.TypeString, Enum: []string{"Food", "Movement", "Mind", "Sleep"}},
			"time_block": {Type: genai.TypeString, Enum: []string{"Morning", "Day", "Evening", "Night"}},
		},
		Required: []string{"name", "tagline", "category", "time_block"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"timeline_json": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"wake_time":      hhmm("Usual wake time"),
					"bedtime_target": hhmm("Target bedtime"),
					"bedtime_window": {Type: genai.TypeString, Description: "Bedtime window as HH:MM–HH:MM with an en dash"},
					"anchors":        {Type: genai.TypeArray, Items: anchor},
					"notes":          {Type: genai.TypeString},
				},
				Required: []string{"wake_time", "bedtime_target", "bedtime_window", "anchors"},
			},
			"seed_rituals": {Type: genai.TypeArray, Items: seed},
		},
		PropertyOrdering: []string{"timeline_json", "seed_rituals"},
		Required:         []string{"timeline_json"},
	}
}
