// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Reconciliation ─────────────────────────────────────────────────────────

// ReconcileRuns counts reconciliation passes by result (changed, unchanged, failed).
var ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "reconcile",
	Name:      "runs_total",
	Help:      "Total reconciliation passes by result.",
}, []string{"result"})

// ReconcileReassigned counts payments moved to a different governing term.
var ReconcileReassigned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "reconcile",
	Name:      "reassigned_total",
	Help:      "Total payments whose governing term reference changed.",
})

// ReconcileOrphaned counts payments left without a governing term.
var ReconcileOrphaned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "reconcile",
	Name:      "orphaned_total",
	Help:      "Total payments flagged orphaned by reconciliation.",
})

// ─── Reports ────────────────────────────────────────────────────────────────

// ReportDuration tracks how long each report takes to compute, cache hits included.
var ReportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "scadenze",
	Subsystem: "report",
	Name:      "duration_seconds",
	Help:      "Report computation latency in seconds.",
	Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"report"})

// ReportCacheLookups counts report cache lookups by outcome (hit, miss).
var ReportCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "report",
	Name:      "cache_lookups_total",
	Help:      "Report cache lookups by outcome.",
}, []string{"outcome"})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsPublished counts domain events handed to the broker, by type and result.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Domain events published by type and result.",
}, []string{"type", "result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts served requests by method, route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route and status.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "scadenze",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// RateLimited counts requests rejected by the per-client limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the rate limiter.",
})

// SuspiciousRequests counts requests matching a known probing pattern.
var SuspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "scadenze",
	Subsystem: "http",
	Name:      "suspicious_requests_total",
	Help:      "Requests flagged by the probe detector.",
})

// ObserveReport records the time since start under the report label.
func ObserveReport(report string, start time.Time) {
	ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}

// RecordReconcile updates the reconciliation collectors for one pass.
func RecordReconcile(reassigned, orphaned int, err error) {
	switch {
	case err != nil:
		ReconcileRuns.WithLabelValues("failed").Inc()
		return
	case reassigned+orphaned == 0:
		ReconcileRuns.WithLabelValues("unchanged").Inc()
	default:
		ReconcileRuns.WithLabelValues("changed").Inc()
	}
	ReconcileReassigned.Add(float64(reassigned))
	ReconcileOrphaned.Add(float64(orphaned))
}

// Result maps an error to the result label used by counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
