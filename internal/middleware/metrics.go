package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/bryanwahyu/derma-lens/internal/domain/analysis"
)

const namespace = "dermalens"

var (
	once sync.Once

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	RequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120},
	}, []string{"route"})

	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "total",
		Help:      "Analyses by output format and outcome.",
	}, []string{"format", "outcome"})

	SectionsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "sections_total",
		Help:      "Sections by the strategy that produced them; source=none means left empty.",
	}, []string{"source"})
)

// RegisterMetrics registers the collectors with the default registry once.
func RegisterMetrics() {
	once.Do(func() {
		prometheus.MustRegister(RequestsTotal, RequestsInFlight, RequestDuration, AnalysesTotal, SectionsResolved)
	})
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware tracks request counts and latency per chi route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		start := time.Now()
		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordAnalysis counts a finished analysis. res may be nil on failure.
func RecordAnalysis(format domain.OutputFormat, res *domain.Result, err error) {
	if err != nil {
		AnalysesTotal.WithLabelValues(string(format), "error").Inc()
		return
	}
	AnalysesTotal.WithLabelValues(string(format), "ok").Inc()
	if res == nil || res.Format == domain.FormatText {
		return
	}
	for _, s := range domain.Sections {
		src := res.Provenance[s]
		if src == domain.SourceNone {
			src = "none"
		}
		SectionsResolved.WithLabelValues(string(src)).Inc()
	}
}
