package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview"

var (
	registry = prometheus.NewRegistry()

	recoveryCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_cycles_total",
		Help:      "Recovery cycles by outcome.",
	}, []string{"outcome"})

	recoveryCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recovery_cycle_duration_seconds",
		Help:      "Duration of recovery cycles.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	orphansRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_orphans_recovered_total",
		Help:      "Stalled interviews moved to failed by timeout.",
	})

	retriesDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_retries_dispatched_total",
		Help:      "Failed interviews requeued for reprocessing.",
	})

	permanentFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recovery_permanent_failures_total",
		Help:      "Interviews finalized after exhausting retries.",
	})

	updateConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conditional_update_conflicts_total",
		Help:      "Conditional updates that lost a race.",
	}, []string{"transition"})

	notificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Owner notifications that could not be delivered.",
	})

	recordsQuarantined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_quarantined_total",
		Help:      "Stored interview records rejected by validation.",
	})

	cleanupDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_deleted_total",
		Help:      "Interviews removed by retention cleanup.",
	})

	pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_runs_total",
		Help:      "Pipeline runs by outcome.",
	}, []string{"outcome"})

	pipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Duration of pipeline runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	workerJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Queue jobs handled by workers by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		recoveryCycles,
		recoveryCycleDuration,
		orphansRecovered,
		retriesDispatched,
		permanentFailures,
		updateConflicts,
		notificationFailures,
		recordsQuarantined,
		cleanupDeleted,
		pipelineRuns,
		pipelineDuration,
		workerJobs,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// Registry returns the registry all service metrics are registered on.
func Registry() *prometheus.Registry {
	return registry
}

// IncRecoveryCycle counts a finished recovery cycle.
func IncRecoveryCycle(outcome string) {
	recoveryCycles.WithLabelValues(outcome).Inc()
}

// ObserveRecoveryCycleSeconds records how long a cycle took.
func ObserveRecoveryCycleSeconds(value float64) {
	if value < 0 {
		value = 0
	}
	recoveryCycleDuration.Observe(value)
}

func IncOrphanRecovered() { orphansRecovered.Inc() }

func IncRetryDispatched() { retriesDispatched.Inc() }

func IncPermanentFailure() { permanentFailures.Inc() }

// IncUpdateConflict counts a conditional update that found the row already changed.
func IncUpdateConflict(transition string) {
	updateConflicts.WithLabelValues(transition).Inc()
}

func IncNotificationFailed() { notificationFailures.Inc() }

func IncRecordQuarantined() { recordsQuarantined.Inc() }

// AddCleanupDeleted adds n deleted interviews.
func AddCleanupDeleted(n int64) {
	if n > 0 {
		cleanupDeleted.Add(float64(n))
	}
}

// IncPipelineRun counts a pipeline run ("completed", "failed", "skipped").
func IncPipelineRun(outcome string) {
	pipelineRuns.WithLabelValues(outcome).Inc()
}

// ObservePipelineSeconds records a pipeline run duration.
func ObservePipelineSeconds(value float64) {
	if value < 0 {
		value = 0
	}
	pipelineDuration.Observe(value)
}

// IncWorkerJob counts a queue job ("received", "completed", "failed", "deleted_unrecoverable").
func IncWorkerJob(outcome string) {
	workerJobs.WithLabelValues(outcome).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
