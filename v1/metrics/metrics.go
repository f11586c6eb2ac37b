// Package metrics exposes prometheus collectors for the reservation core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquireCounter tracks successful lock acquisitions.
	LockAcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resv_lock_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// LockContentionCounter tracks acquisitions that exhausted their wait budget.
	LockContentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resv_lock_contention_total",
		Help: "Total number of lock acquisitions failed due to contention",
	})
	// LockReleaseRaceCounter tracks releases rejected as NotOwner or AlreadyExpired.
	LockReleaseRaceCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resv_lock_release_race_total",
		Help: "Total number of release calls losing to expiry or re-acquisition",
	})
	// AuditRecordCounter tracks appended audit records.
	AuditRecordCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "resv_audit_records_total",
		Help: "Total number of audit records appended",
	})
	// PipelineFailureCounter tracks failed pipeline invocations by stage.
	PipelineFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resv_pipeline_failures_total",
		Help: "Total number of failed pipeline invocations",
	}, []string{"stage"})
	// PipelineDuration observes end-to-end pipeline latency.
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resv_pipeline_duration_seconds",
		Help:    "Latency of complete pipeline invocations",
		Buckets: prometheus.DefBuckets,
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the reservation core metrics on the
// provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		LockAcquireCounter,
		LockContentionCounter,
		LockReleaseRaceCounter,
		AuditRecordCounter,
		PipelineFailureCounter,
		PipelineDuration,
	)
}
