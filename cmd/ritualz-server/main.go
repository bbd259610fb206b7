// Package main implements the ritualz web server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeGROOVE-dev/ritualz/pkg/intake"
	"github.com/codeGROOVE-dev/ritualz/pkg/ritualz"
)

var (
	port         = flag.String("port", "8080", "Port for web server (or set PORT)")
	geminiAPIKey = flag.String("gemini-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	geminiModel  = flag.String("gemini-model", intake.DefaultModel, "Gemini model to use (or set GEMINI_MODEL)")
	gcpProject   = flag.String("gcp-project", "", "GCP project ID (or set GCP_PROJECT)")
	catalogFile  = flag.String("catalog", "", "Ritual catalog YAML/JSON file (or set RITUALZ_CATALOG)")
	databaseURL  = flag.String("database", "", "Postgres URL or sqlite path (or set DATABASE_URL)")
	apiToken     = flag.String("api-token", "", "Bearer token required for user requests (or set RITUALZ_API_TOKEN)")
	timezone     = flag.String("timezone", "", "IANA zone for default plan and check-in dates (or set RITUALZ_TIMEZONE)")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	version      = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("ritualz Server %s\n", ritualz.EngineVersion)
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if p := os.Getenv("PORT"); p != "" && *port == "8080" {
		*port = p
	}
	if *geminiAPIKey == "" {
		*geminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if *geminiModel == intake.DefaultModel && os.Getenv("GEMINI_MODEL") != "" {
		*geminiModel = os.Getenv("GEMINI_MODEL")
	}
	if *gcpProject == "" {
		*gcpProject = os.Getenv("GCP_PROJECT")
	}
	if *catalogFile == "" {
		*catalogFile = os.Getenv("RITUALZ_CATALOG")
	}
	if *databaseURL == "" {
		*databaseURL = os.Getenv("DATABASE_URL")
	}
	if *apiToken == "" {
		*apiToken = os.Getenv("RITUALZ_API_TOKEN")
	}
	if *timezone == "" {
		*timezone = os.Getenv("RITUALZ_TIMEZONE")
	}
	loc := time.UTC
	if *timezone != "" {
		l, err := time.LoadLocation(*timezone)
		if err != nil {
			logger.Error("Invalid timezone", "timezone", *timezone, "error", err)
			os.Exit(1)
		}
		loc = l
	}

	// Log configuration (without exposing sensitive keys)
	logger.Info("Server configuration",
		"port", *port,
		"verbose", *verbose,
		"gemini_model", *geminiModel,
		"catalog", *catalogFile,
		"has_gemini_key", *geminiAPIKey != "",
		"has_gcp_project", *gcpProject != "",
		"has_database", *databaseURL != "",
		"has_api_token", *apiToken != "",
		"timezone", loc.String())
	if *apiToken == "" && *databaseURL != "" {
		logger.Warn("No API token set; user requests must be authenticated by a trusted proxy")
	}

	opts := []ritualz.Option{
		ritualz.WithGeminiAPIKey(*geminiAPIKey),
		ritualz.WithGeminiModel(*geminiModel),
		ritualz.WithGCPProject(*gcpProject),
		ritualz.WithMemoryOnlyCache(),
	}
	if *catalogFile != "" {
		opts = append(opts, ritualz.WithCatalogFile(*catalogFile))
	}
	if *databaseURL != "" {
		opts = append(opts, ritualz.WithDatabase(*databaseURL))
	}

	planner, err := ritualz.NewWithLogger(context.Background(), logger, opts...)
	if err != nil {
		logger.Error("Failed to create planner", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := planner.Close(); err != nil {
			logger.Error("Failed to close planner", "error", err)
		}
	}()

	s := newServer(planner, logger)
	s.apiToken = *apiToken
	s.loc = loc
	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", *port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}
