// Package metrics exposes the Prometheus instrumentation for the admission
// engine. Collector names carry the credit_system_ prefix so dashboards
// built against the deployed system keep working, with careful attention
// to label cardinality:
//
//   - stage:         pipeline stage that produced the outcome
//     (rate_limit, bind, type, amount, balance, metadata,
//     reference_id, integrity, admitted)
//   - outcome:       "admitted" or "rejected" (admissions),
//     "allowed"/"blocked"/"degraded" (rate limiting)
//   - type:          transaction type (purchase/reward/burn/transfer/refund)
//   - identity_type: rate-limited identity class (ip/user/api_key)
//   - op:            store operation that failed (incr/exists/setnx/ttl/del)
//
// All collectors are safe for concurrent use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// admissions counts pipeline decisions by stage and outcome. Admitted
	// submissions carry stage="admitted"; rejections carry the stage that
	// stopped them.
	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_system_admissions_total",
			Help: "Total number of admission decisions by pipeline stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	// processing records end-to-end admission latency in seconds by
	// transaction type. Submissions rejected before the type is known are
	// recorded under type="unknown".
	processing = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credit_system_transaction_processing_seconds",
			Help:    "Duration of credit transaction admission processing.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// rateLimitDecisions counts per-identity-type limiter outcomes. A single
	// submission may contribute several samples, one per identity checked.
	rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_system_rate_limit_decisions_total",
			Help: "Total number of rate limit decisions by identity type and outcome.",
		},
		[]string{"identity_type", "outcome"},
	)

	// storeErrors counts shared-store failures by operation so degraded
	// (fail-open) rate limiting and fail-closed integrity registration are
	// both visible.
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_system_store_errors_total",
			Help: "Total number of shared store operation failures.",
		},
		[]string{"op"},
	)

	// auditFailures counts audit sink write failures. Recording is
	// best-effort and never blocks an admission, so this counter is the
	// only place a lost trail shows up besides the error log.
	auditFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_system_audit_failures_total",
			Help: "Total number of audit sink record failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(admissions, processing, rateLimitDecisions, storeErrors, auditFailures)
}

// Rate limit decision outcomes.
const (
	OutcomeAllowed  = "allowed"
	OutcomeBlocked  = "blocked"
	OutcomeDegraded = "degraded"
)

// Admission outcomes.
const (
	OutcomeAdmitted = "admitted"
	OutcomeRejected = "rejected"
)

// ObserveAdmission records one pipeline decision and its latency. stage is
// the rejecting stage, or "admitted" for accepted submissions; txType may be
// empty when rejection happened before the payload was parsed.
func ObserveAdmission(stage, outcome, txType string, elapsed time.Duration) {
	if txType == "" {
		txType = "unknown"
	}
	admissions.WithLabelValues(stage, outcome).Inc()
	processing.WithLabelValues(txType).Observe(elapsed.Seconds())
}

// ObserveRateLimit records one limiter decision for a single identity.
func ObserveRateLimit(identityType, outcome string) {
	rateLimitDecisions.WithLabelValues(identityType, outcome).Inc()
}

// IncStoreError records a failed shared-store operation.
func IncStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}

// IncAuditFailure records a failed audit sink write.
func IncAuditFailure() {
	auditFailures.Inc()
}
