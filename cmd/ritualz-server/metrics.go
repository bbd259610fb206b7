package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	recommendations *prometheus.CounterVec
	parses          *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualz_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ritualz_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualz_recommendations_total",
			Help: "Computed recommendations by goal and whether the fallback set was used.",
		}, []string{"goal", "fallback"}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualz_timeline_parses_total",
			Help: "Routine text parses by outcome.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualz_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter.",
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.recommendations,
		m.parses,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observe(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// routeLabel keeps label cardinality bounded.
func routeLabel(path string) string {
	switch {
	case path == "/api/v1/timeline", path == "/api/v1/delta", path == "/healthz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/api/v1/rituals/"):
		return "/api/v1/rituals"
	case strings.HasPrefix(path, "/api/v1/profiles/"):
		return "/api/v1/profiles"
	case path == "/api/v1/plans", path == "/api/v1/checkins":
		return path
	case strings.HasPrefix(path, "/api/v1/plans/") && strings.HasSuffix(path, "/events"):
		return "/api/v1/plans/events"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
