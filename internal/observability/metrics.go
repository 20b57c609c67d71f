package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wellness"

var (
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of sync runs grouped by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	syncFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "failures_total",
		Help:      "Number of failed sync runs grouped by failing stage.",
	}, []string{"stage"})

	syncRejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "rejected_total",
		Help:      "Number of sync triggers rejected because a sync was already running.",
	})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Wall time of sync runs from fetch to commit.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Duration of endpoint fetches.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"endpoint"})

	fetchRowsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "rows_total",
		Help:      "Rows returned by endpoint fetches.",
	}, []string{"endpoint"})

	coercionWarningsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "normalize",
		Name:      "coercion_warnings_total",
		Help:      "Fields dropped because their value could not be coerced.",
	}, []string{"field"})

	generationRowsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "generation_rows",
		Help:      "Rows in the most recently committed generation.",
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync.",
	})

	watermarkGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "watermark_timestamp_seconds",
		Help:      "Unix timestamp of the latest source timestamp seen by a successful sync.",
	})
)

func init() {
	prometheus.MustRegister(
		syncRunsCounter,
		syncFailuresCounter,
		syncRejectedCounter,
		syncDuration,
		fetchDuration,
		fetchRowsCounter,
		coercionWarningsCounter,
		generationRowsGauge,
		lastSyncGauge,
		watermarkGauge,
	)
}

// RecordSyncSucceeded records a committed generation.
func RecordSyncSucceeded(trigger string, rows int, elapsed time.Duration, at time.Time) {
	syncRunsCounter.WithLabelValues(trigger, "success").Inc()
	syncDuration.Observe(elapsed.Seconds())
	generationRowsGauge.Set(float64(rows))
	if !at.IsZero() {
		lastSyncGauge.Set(float64(at.Unix()))
	}
}

// RecordSyncFailed records a run that stopped at stage.
func RecordSyncFailed(trigger, stage string, elapsed time.Duration) {
	syncRunsCounter.WithLabelValues(trigger, "failure").Inc()
	syncFailuresCounter.WithLabelValues(stage).Inc()
	syncDuration.Observe(elapsed.Seconds())
}

// RecordSyncRejected counts a trigger refused while another sync ran.
func RecordSyncRejected() {
	syncRejectedCounter.Inc()
}

// RecordFetch observes one endpoint fetch.
func RecordFetch(endpoint string, rows int, elapsed time.Duration) {
	fetchDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	fetchRowsCounter.WithLabelValues(endpoint).Add(float64(rows))
}

// RecordCoercionWarning counts a dropped field value.
func RecordCoercionWarning(field string) {
	coercionWarningsCounter.WithLabelValues(field).Inc()
}

// RecordWatermark updates the watermark gauge.
func RecordWatermark(ts time.Time) {
	if ts.IsZero() {
		return
	}
	watermarkGauge.Set(float64(ts.Unix()))
}
