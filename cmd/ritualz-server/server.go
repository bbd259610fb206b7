package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/ritualz/pkg/cache"
	"github.com/codeGROOVE-dev/ritualz/pkg/intake"
	"github.com/codeGROOVE-dev/ritualz/pkg/ritualz"
	"github.com/codeGROOVE-dev/ritualz/pkg/store"
)

const maxBodyBytes = 64 << 10

type rateLimiter struct {
	requests map[string][]time.Time
	window   time.Duration
	limit    int
	mu       sync.Mutex
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[ip] = valid
		return false
	}

	rl.requests[ip] = append(valid, now)
	return true
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

type server struct {
	planner      *ritualz.Planner
	results      *cache.Cache
	parseLimiter *rateLimiter
	deltaLimiter *rateLimiter
	metrics      *metrics
	logger       *slog.Logger
	now          func() time.Time
	loc          *time.Location
	// apiToken, when set, is required as a bearer token on every request
	// that reads or writes a user's data.
	apiToken string
}

func newServer(planner *ritualz.Planner, logger *slog.Logger) *server {
	return &server{
		planner:      planner,
		results:      cache.NewMemoryOnly(time.Hour, logger),
		parseLimiter: newRateLimiter(10, time.Hour),
		deltaLimiter: newRateLimiter(30, time.Minute),
		metrics:      newMetrics(),
		logger:       logger,
		now:          time.Now,
		loc:          time.UTC,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/timeline", s.handleTimeline)
	mux.HandleFunc("POST /api/v1/delta", s.handleDelta)
	mux.HandleFunc("GET /api/v1/rituals/{user}", s.handleRituals)
	mux.HandleFunc("PUT /api/v1/profiles/{user}", s.handleLifeContext)
	mux.HandleFunc("POST /api/v1/plans", s.handlePlan)
	mux.HandleFunc("POST /api/v1/plans/{id}/events", s.handlePlanEvent)
	mux.HandleFunc("POST /api/v1/checkins", s.handleCheckin)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.handler())

	antiCSRF := http.NewCrossOriginProtection()
	return s.wrap(antiCSRF.Handler(mux))
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// authorized reports whether r may act on a user's data. Without a token
// the server relies on a front proxy to have authenticated the caller.
func (s *server) authorized(w http.ResponseWriter, r *http.Request, requestID string) bool {
	if s.apiToken == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if ok && subtle.ConstantTimeCompare([]byte(got), []byte(s.apiToken)) == 1 {
		return true
	}
	s.logger.Warn("Unauthorized user request",
		"request_id", requestID,
		"path", r.URL.Path,
		"client_ip", clientIP(r))
	s.writeError(w, requestID, http.StatusUnauthorized, errorResponse{
		Error:   "Unauthorized",
		Details: "A valid bearer token is required for user requests.",
		Code:    "UNAUTHORIZED",
	})
	return false
}

// today is the server's calendar date for plans and check-ins.
func (s *server) today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

func (s *server) wrap(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]

				s.logger.Error("PANIC: Request handler crashed",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", requestID,
					"client_ip", clientIP(r),
					"user_agent", r.Header.Get("User-Agent"),
					"stack", string(buf))
				http.Error(rec, "Internal server error", http.StatusInternalServerError)
			}
			s.metrics.observe(routeLabel(r.URL.Path), rec.status, time.Since(start))
		}()

		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		handler.ServeHTTP(rec, r)
	})
}

func (s *server) writeJSON(w http.ResponseWriter, requestID string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response",
			"request_id", requestID,
			"error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, requestID string, status int, resp errorResponse) {
	s.writeJSON(w, requestID, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (s *server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := clientIP(r)
	requestID := w.Header().Get("X-Request-ID")

	if !s.parseLimiter.allow(ip) {
		s.metrics.rateLimited.WithLabelValues("timeline").Inc()
		s.logger.Error("Rate limit exceeded",
			"request_id", requestID,
			"client_ip", ip,
			"route", "timeline")
		s.writeError(w, requestID, http.StatusTooManyRequests, errorResponse{
			Error:   "Rate limit exceeded",
			Details: "Routine parsing is limited to 10 requests per hour. Please try again later.",
			Code:    "RATE_LIMITED",
		})
		return
	}

	var req struct {
		intake.Request
		UserID string `json:"user_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.logger.Error("Invalid request body",
			"request_id", requestID,
			"error", err,
			"client_ip", ip)
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if strings.TrimSpace(req.RoutineText) == "" {
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{
			Error:   "Missing routine",
			Details: "routine_text is required.",
			Code:    "BAD_REQUEST",
		})
		return
	}
	if req.UserID != "" && !s.authorized(w, r, requestID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 45*time.Second)
	defer cancel()

	parsed, err := s.planner.SubmitIntake(ctx, req.UserID, req.Request)
	if err != nil {
		status, resp := parseFailure(err)
		s.metrics.parses.WithLabelValues(resp.Code).Inc()
		s.logger.Error("Timeline parse failed",
			"request_id", requestID,
			"error", err,
			"code", resp.Code,
			"duration_ms", time.Since(start).Milliseconds())
		s.writeError(w, requestID, status, resp)
		return
	}

	s.metrics.parses.WithLabelValues("ok").Inc()
	s.logger.Info("Timeline parsed",
		"request_id", requestID,
		"anchors", len(parsed.Timeline.Anchors),
		"seed_rituals", len(parsed.SeedRituals),
		"timeline_id", parsed.TimelineID,
		"duration_ms", time.Since(start).Milliseconds())
	s.writeJSON(w, requestID, http.StatusOK, parsed)
}

func parseFailure(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, ritualz.ErrSaveFailed):
		return http.StatusInternalServerError, errorResponse{
			Error:   "Saving intake failed",
			Details: "The timeline was parsed but could not be saved. Please try again.",
			Code:    "STORE_ERROR",
		}
	case errors.Is(err, intake.ErrNoAPIKey):
		return http.StatusServiceUnavailable, errorResponse{
			Error:   "Routine parsing unavailable",
			Details: "No Gemini API key or GCP project is configured on this server.",
			Code:    "NO_API_KEY",
		}
	case errors.Is(err, intake.ErrInvalidTimeline):
		return http.StatusUnprocessableEntity, errorResponse{
			Error:   "Could not build a timeline",
			Details: err.Error(),
			Code:    "INVALID_TIMELINE",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorResponse{
			Error:   "Parsing took too long",
			Details: "The AI service did not answer in time. Please try again.",
			Code:    "TIMEOUT",
		}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, errorResponse{
			Error:   "Request was canceled",
			Details: "The request was canceled before completion. Please try again.",
			Code:    "CANCELED",
		}
	default:
		return http.StatusBadGateway, errorResponse{
			Error:   "AI analysis service unavailable",
			Details: "The Gemini service returned an error. Please try again in a moment.",
			Code:    "GEMINI_ERROR",
		}
	}
}

func (s *server) handleDelta(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip := clientIP(r)
	requestID := w.Header().Get("X-Request-ID")

	if !s.deltaLimiter.allow(ip) {
		s.metrics.rateLimited.WithLabelValues("delta").Inc()
		s.logger.Error("Rate limit exceeded",
			"request_id", requestID,
			"client_ip", ip,
			"route", "delta")
		s.writeError(w, requestID, http.StatusTooManyRequests, errorResponse{
			Error:   "Rate limit exceeded",
			Details: "Please slow down and try again in a minute.",
			Code:    "RATE_LIMITED",
		})
		return
	}

	var req ritualz.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.logger.Error("Invalid request body",
			"request_id", requestID,
			"error", err,
			"client_ip", ip)
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if req.UserID != "" && !s.authorized(w, r, requestID) {
		return
	}

	// Anonymous requests have no side effects, so identical ones share a result.
	var cacheKey []byte
	if req.UserID == "" {
		var err error
		if cacheKey, err = json.Marshal(req); err == nil {
			if data, ok := s.results.Get("delta", cacheKey); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "memory-hit")
				if _, err := w.Write(data); err != nil {
					s.logger.Error("Failed to write cached response", "request_id", requestID, "error", err)
				}
				return
			}
		}
	}

	res, err := s.planner.Recommend(r.Context(), req)
	if err != nil {
		s.logger.Error("Recommendation failed",
			"request_id", requestID,
			"user_id", req.UserID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		status, resp := storeFailure(err)
		s.writeError(w, requestID, status, resp)
		return
	}
	s.metrics.recommendations.WithLabelValues(string(res.Goal), strconv.FormatBool(res.FallbackUsed)).Inc()

	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("JSON encoding failed", "request_id", requestID, "error", err)
		s.writeError(w, requestID, http.StatusInternalServerError, errorResponse{Error: "Encoding failed", Code: "INTERNAL_ERROR"})
		return
	}
	if cacheKey != nil {
		s.results.Set("delta", cacheKey, data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response", "request_id", requestID, "error", err)
		return
	}
	s.logger.Info("Recommendation completed",
		"request_id", requestID,
		"goal", res.Goal,
		"fallback", res.FallbackUsed,
		"run_id", res.RunID,
		"duration_ms", time.Since(start).Milliseconds())
}

// storeFailure maps persistence errors onto HTTP responses.
func storeFailure(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, store.ErrNoStore):
		return http.StatusNotImplemented, errorResponse{
			Error:   "Persistence disabled",
			Details: "This server was started without a database.",
			Code:    "NO_STORE",
		}
	case errors.Is(err, store.ErrNoTimeline):
		return http.StatusNotFound, errorResponse{
			Error:   "No timeline found",
			Details: "Complete intake first or send a timeline with the request.",
			Code:    "NO_TIMELINE",
		}
	case errors.Is(err, store.ErrNoPlan):
		return http.StatusNotFound, errorResponse{Error: "Evening plan not found", Code: "NO_PLAN"}
	case errors.Is(err, store.ErrInvalidPlan), errors.Is(err, store.ErrInvalidAction), errors.Is(err, store.ErrInvalidCheckin):
		return http.StatusUnprocessableEntity, errorResponse{Error: "Validation failed", Details: err.Error(), Code: "VALIDATION_ERROR"}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "Storage failed",
			Details: "The request could not be saved. Please try again.",
			Code:    "STORE_ERROR",
		}
	}
}

func (s *server) writeStoreError(w http.ResponseWriter, requestID, userID string, err error) {
	status, resp := storeFailure(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Store request failed", "request_id", requestID, "user_id", userID, "error", err)
	}
	s.writeError(w, requestID, status, resp)
}

func (s *server) handleRituals(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	userID := r.PathValue("user")
	if !s.authorized(w, r, requestID) {
		return
	}

	rituals, err := s.planner.ActiveRituals(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, requestID, userID, err)
		return
	}
	s.writeJSON(w, requestID, http.StatusOK, map[string]any{
		"user_id": userID,
		"rituals": rituals,
	})
}

func (s *server) handleLifeContext(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	userID := r.PathValue("user")
	if !s.authorized(w, r, requestID) {
		return
	}
	var req struct {
		HasKids     bool `json:"has_kids"`
		ShiftWorker bool `json:"shift_worker"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if err := s.planner.SetLifeContext(r.Context(), userID, req.HasKids, req.ShiftWorker); err != nil {
		s.writeStoreError(w, requestID, userID, err)
		return
	}
	s.writeJSON(w, requestID, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handlePlan(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	if !s.authorized(w, r, requestID) {
		return
	}
	var plan store.EveningPlan
	if err := decodeBody(w, r, &plan); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if plan.Date == "" {
		plan.Date = s.today()
	}

	saved, err := s.planner.PlanTonight(r.Context(), plan)
	if err != nil {
		s.writeStoreError(w, requestID, plan.UserID, err)
		return
	}
	s.writeJSON(w, requestID, http.StatusOK, map[string]any{
		"plan_id": saved.ID,
		"date":    saved.Date,
	})
}

func (s *server) handlePlanEvent(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	if !s.authorized(w, r, requestID) {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error(), Code: "BAD_REQUEST"})
		return
	}

	if err := s.planner.PlanEvent(r.Context(), req.UserID, r.PathValue("id"), req.Action, req.Reason); err != nil {
		s.writeStoreError(w, requestID, req.UserID, err)
		return
	}
	s.writeJSON(w, requestID, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	if !s.authorized(w, r, requestID) {
		return
	}
	var req struct {
		UserID           string `json:"user_id"`
		Date             string `json:"date"`
		CompletedEvening string `json:"completed_evening"`
		SleepRating      int    `json:"sleep_rating_1_5"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, requestID, http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if req.Date == "" {
		req.Date = s.today()
	}

	closed, err := s.planner.MorningCheckin(r.Context(), store.Checkin{
		UserID:      req.UserID,
		Date:        req.Date,
		SleepRating: req.SleepRating,
	}, req.CompletedEvening)
	if err != nil {
		s.writeStoreError(w, requestID, req.UserID, err)
		return
	}

	resp := map[string]any{"ok": true, "closed_evening_for": nil}
	if closed != "" {
		resp["closed_evening_for"] = closed
	} else {
		resp["warning"] = "No evening plan matched this or the previous date; saved the morning check-in only."
	}
	s.writeJSON(w, requestID, http.StatusOK, resp)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	requestID := w.Header().Get("X-Request-ID")
	s.writeJSON(w, requestID, http.StatusOK, map[string]any{
		"status":          "ok",
		"engine_version":  ritualz.EngineVersion,
		"catalog_version": s.planner.Catalog().Version(),
		"rituals":         s.planner.Catalog().Len(),
		"persistence":     s.planner.Store() != nil,
	})
}
