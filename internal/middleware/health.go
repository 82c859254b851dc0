package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const checkTimeout = 5 * time.Second

var startedAt = time.Now()

// HealthChecker is implemented by dependencies that can report their state,
// such as the upload stager.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Check(ctx context.Context) error { return f(ctx) }

type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// runChecks calls every checker under one shared deadline.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) (HealthReport, []string) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	report := HealthReport{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}
	var failing []string
	for name, checker := range checkers {
		start := time.Now()
		err := checker.Check(ctx)
		res := CheckResult{Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			res.Status = "unhealthy"
			res.Error = err.Error()
			failing = append(failing, name)
			report.Status = "unhealthy"
		}
		report.Checks[name] = res
	}
	sort.Strings(failing)
	return report, failing
}

// HealthHandler reports every check in detail and answers 503 if any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, failing := runChecks(r.Context(), checkers)
		status := http.StatusOK
		if len(failing) > 0 {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// ReadinessHandler answers 200 only while every dependency needed to serve an
// analysis is reachable.
func ReadinessHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, failing := runChecks(r.Context(), checkers)
		if len(failing) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "failing": failing})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

// LivenessHandler only proves the process is serving.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
