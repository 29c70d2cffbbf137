// Package observability registers the Prometheus metrics exported by the bot.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lda_bot"

var (
	// SyncRuns counts finished pipeline runs by terminal state.
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Pipeline runs by terminal state (done, partial, failed).",
	}, []string{"state"})

	// SyncDuration observes wall time of a pipeline run.
	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Time spent loading known ids, fetching and processing one sync run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// FilingsIngested counts newly stored filings.
	FilingsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "filings_ingested_total",
		Help:      "Filings upserted for the first time, labeled by relevance.",
	}, []string{"relevant"})

	// RecordsSkipped counts records dropped from a batch.
	RecordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_skipped_total",
		Help:      "Remote records skipped during processing, labeled by reason.",
	}, []string{"reason"})

	// FetchPages counts filings API pages read.
	FetchPages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "pages_total",
		Help:      "Pages retrieved from the LDA filings API.",
	})

	// FetchOrderViolations counts fetches that observed results out of newest-first order.
	FetchOrderViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "order_violations_total",
		Help:      "Fetches where early stop was disabled because results were not newest-first.",
	})

	// NotificationsFailed counts best-effort delivery failures.
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Failed notification deliveries by notifier.",
	}, []string{"notifier"})

	// ConsumerMessages counts relay consumer outcomes (processed, skipped, failed).
	ConsumerMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Filing events read by the relay consumer, labeled by outcome.",
	}, []string{"outcome"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent run that reached done.",
	})
)

func init() {
	prometheus.MustRegister(SyncRuns, SyncDuration, FilingsIngested, RecordsSkipped, FetchPages,
		FetchOrderViolations, NotificationsFailed, ConsumerMessages, lastSyncGauge)
}

// RecordSyncSuccess updates the last-success watermark.
func RecordSyncSuccess(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}
