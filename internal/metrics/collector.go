// Package metrics exposes datastore activity as Prometheus metrics.
package metrics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/0xRadioAc7iv/caskdb/core"
)

const (
	namespace = "caskdb"
	subsystem = "datastore"
)

// Collector is a core.Observer that records everything it is told into its
// own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	BytesWritten      prometheus.Counter
	BytesRead         prometheus.Counter

	CorruptReadsTotal prometheus.Counter
	RotationsTotal    prometheus.Counter

	RecoveryFiles     prometheus.Gauge
	RecoveryRecords   prometheus.Gauge
	RecoveryCorrupt   prometheus.Gauge
	RecoveryTruncated prometheus.Gauge
	RecoveryBytes     prometheus.Gauge
	RecoveryDuration  prometheus.Gauge
}

var _ core.Observer = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics on a fresh
// registry, so several collectors can live in one process.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Total number of datastore operations by operation and outcome",
		}, []string{"op", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Histogram of datastore operation durations",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to 2.6s
		}, []string{"op"}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "written_bytes_total",
			Help:      "Total bytes appended to data files, headers included",
		}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_bytes_total",
			Help:      "Total value bytes returned by get",
		}),
		CorruptReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "corrupt_reads_total",
			Help:      "Total number of records that failed their checksum on read",
		}),
		RotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rotations_total",
			Help:      "Total number of active data file rotations",
		}),
		RecoveryFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "files_scanned",
			Help:      "Data files replayed by the last recovery",
		}),
		RecoveryRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "records_replayed",
			Help:      "Valid records applied by the last recovery",
		}),
		RecoveryCorrupt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "corrupt_records",
			Help:      "Records skipped for a bad checksum by the last recovery",
		}),
		RecoveryTruncated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "truncated_files",
			Help:      "Files with a torn tail found by the last recovery",
		}),
		RecoveryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "scanned_bytes",
			Help:      "Bytes of valid and corrupt records read by the last recovery",
		}),
		RecoveryDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "duration_seconds",
			Help:      "Wall time of the last recovery",
		}),
	}
}

func (c *Collector) OnRecovery(stats core.RecoveryStats) {
	c.RecoveryFiles.Set(float64(stats.FilesScanned))
	c.RecoveryRecords.Set(float64(stats.RecordsReplayed))
	c.RecoveryCorrupt.Set(float64(stats.CorruptRecords))
	c.RecoveryTruncated.Set(float64(stats.TruncatedFiles))
	c.RecoveryBytes.Set(float64(stats.BytesScanned))
	c.RecoveryDuration.Set(stats.Duration.Seconds())
}

func (c *Collector) OnCorruptRead(string, int64) {
	c.CorruptReadsTotal.Inc()
}

func (c *Collector) OnRotate(string, string) {
	c.RotationsTotal.Inc()
}

func (c *Collector) OnOperation(op core.Op, outcome core.Outcome, n int, elapsed time.Duration) {
	c.OperationsTotal.WithLabelValues(string(op), string(outcome)).Inc()
	c.OperationDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())

	if outcome != core.OutcomeOK {
		return
	}
	switch op {
	case core.OpGet:
		c.BytesRead.Add(float64(n))
	case core.OpInsert, core.OpDelete:
		c.BytesWritten.Add(float64(n))
	}
}

// Registry returns the registry the metrics live on, for serving or
// gathering.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Snapshot renders every metric in the Prometheus text format.
func (c *Collector) Snapshot() (string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}
