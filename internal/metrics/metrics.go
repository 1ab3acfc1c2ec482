// Package metrics exposes poller and storage observations as Prometheus
// metrics. A Collector implements both poller.Observer and the Pebble
// wrapper's MetricsHook.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
)

const namespace = "zpoll"

// Collector holds the metric vectors. Create one per registry.
type Collector struct {
	gatherer prometheus.Gatherer

	DequeueAttempts  *prometheus.CounterVec
	DequeueLatency   *prometheus.HistogramVec
	Conflicts        *prometheus.CounterVec
	Processed        *prometheus.CounterVec
	ProcessLatency   *prometheus.HistogramVec
	Requeued         *prometheus.CounterVec
	Recovered        *prometheus.CounterVec
	StorageReadBytes prometheus.Counter
	StorageCommits   prometheus.Counter
	StorageCommitOps prometheus.Counter
	StorageLatency   *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg. A nil reg uses a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		gatherer: reg,
		DequeueAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dequeue_total",
			Help:      "Dequeue attempts by outcome (claimed or empty).",
		}, []string{"queue", "outcome"}),
		DequeueLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dequeue_duration_seconds",
			Help:      "Time to run a dequeue transaction including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "txn_conflicts_total",
			Help:      "Optimistic transactions retried after a watched key changed.",
		}, []string{"queue"}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_total",
			Help:      "Items handed to the process callback, by result.",
		}, []string{"queue", "result"}),
		ProcessLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Duration of the process callback.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),
		Requeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requeued_total",
			Help:      "Items put back into the queue after failure or on shutdown.",
		}, []string{"queue"}),
		Recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_total",
			Help:      "Members restored from the snapshot by recovery.",
		}, []string{"queue"}),
		StorageReadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "read_bytes_total",
			Help:      "Bytes returned by point reads.",
		}),
		StorageCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_commits_total",
			Help:      "Committed write batches.",
		}),
		StorageCommitOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_ops_total",
			Help:      "Operations contained in committed batches.",
		}),
		StorageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Storage operation latency by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
	}
	reg.MustRegister(
		c.DequeueAttempts, c.DequeueLatency, c.Conflicts,
		c.Processed, c.ProcessLatency, c.Requeued, c.Recovered,
		c.StorageReadBytes, c.StorageCommits, c.StorageCommitOps, c.StorageLatency,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveClaim(queue string, claimed bool, elapsed time.Duration) {
	outcome := "empty"
	if claimed {
		outcome = "claimed"
	}
	c.DequeueAttempts.WithLabelValues(queue, outcome).Inc()
	c.DequeueLatency.WithLabelValues(queue).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveConflict(queue string) {
	c.Conflicts.WithLabelValues(queue).Inc()
}

func (c *Collector) ObserveProcessed(queue string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Processed.WithLabelValues(queue, result).Inc()
	c.ProcessLatency.WithLabelValues(queue).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRecovery(queue string, report poller.RecoveryReport) {
	c.Recovered.WithLabelValues(queue).Add(float64(report.Restored))
}

func (c *Collector) ObserveRequeue(queue string) {
	c.Requeued.WithLabelValues(queue).Inc()
}

func (c *Collector) ObserveRead(elapsed time.Duration, bytes int) {
	c.StorageReadBytes.Add(float64(bytes))
	c.StorageLatency.WithLabelValues("read").Observe(elapsed.Seconds())
}

func (c *Collector) ObserveBatchCommit(elapsed time.Duration, numOps int, _ int) {
	c.StorageCommits.Inc()
	c.StorageCommitOps.Add(float64(numOps))
	c.StorageLatency.WithLabelValues("commit").Observe(elapsed.Seconds())
}
