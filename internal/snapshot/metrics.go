package snapshot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instrumentation for a snapshot controller.
// It is safe to call any of its methods on a nil *Metrics: every
// observation then becomes a no-op, so callers that don't care about
// metrics never need to guard against a nil *Metrics themselves.
type Metrics struct {
	operationDuration  *prometheus.HistogramVec
	operationFailures  *prometheus.CounterVec
	duplicateCommits   prometheus.Counter
	chunksSent         prometheus.Counter
	chunksReceived     prometheus.Counter
	chunksRejected     *prometheus.CounterVec
	replicationAborts  prometheus.Counter
	committedSnapshots prometheus.Gauge
}

// NewMetrics builds the snapshot controller's Prometheus instrumentation
// and, if registry is non-nil, registers it. With a nil registry the
// collectors still record observations but are registered nowhere, so
// nothing is exported.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snapctl",
			Subsystem: "snapshot",
			Name:      "operation_duration_seconds",
			Help:      "Duration of snapshot lifecycle operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapctl",
			Subsystem: "snapshot",
			Name:      "operation_failures_total",
			Help:      "Snapshot lifecycle operations that ended in failure, by operation.",
		}, []string{"operation"}),
		duplicateCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapctl",
			Subsystem: "snapshot",
			Name:      "duplicate_commits_total",
			Help:      "Commits skipped because a committed snapshot with the same id already existed.",
		}),
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapctl",
			Subsystem: "replication",
			Name:      "chunks_sent_total",
			Help:      "Snapshot chunks transmitted to replication targets.",
		}),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapctl",
			Subsystem: "replication",
			Name:      "chunks_received_total",
			Help:      "Snapshot chunks accepted from a replication source.",
		}),
		chunksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapctl",
			Subsystem: "replication",
			Name:      "chunks_rejected_total",
			Help:      "Snapshot chunks rejected during assembly, by reason.",
		}, []string{"reason"}),
		replicationAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snapctl",
			Subsystem: "replication",
			Name:      "aborts_total",
			Help:      "In-flight snapshot replications aborted due to a checksum mismatch or transport error.",
		}),
		committedSnapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snapctl",
			Subsystem: "snapshot",
			Name:      "committed_count",
			Help:      "Number of committed snapshots currently retained.",
		}),
	}
	if registry != nil {
		registry.MustRegister(
			m.operationDuration,
			m.operationFailures,
			m.duplicateCommits,
			m.chunksSent,
			m.chunksReceived,
			m.chunksRejected,
			m.replicationAborts,
			m.committedSnapshots,
		)
	}
	return m
}

// observeSnapshotOperation records how long a named lifecycle operation
// (take, take_temp, replicate, recover) took, and whether it failed.
func (m *Metrics) observeSnapshotOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.operationFailures.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) incDuplicateCommit() {
	if m == nil {
		return
	}
	m.duplicateCommits.Inc()
}

func (m *Metrics) incChunksSent(n int) {
	if m == nil {
		return
	}
	m.chunksSent.Add(float64(n))
}

func (m *Metrics) incChunksReceived() {
	if m == nil {
		return
	}
	m.chunksReceived.Inc()
}

func (m *Metrics) incChunkRejected(reason string) {
	if m == nil {
		return
	}
	m.chunksRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) incReplicationAbort() {
	if m == nil {
		return
	}
	m.replicationAborts.Inc()
}

func (m *Metrics) setCommittedSnapshots(n int) {
	if m == nil {
		return
	}
	m.committedSnapshots.Set(float64(n))
}
