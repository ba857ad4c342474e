// Package metrics exposes the bridge's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BridgeMetrics struct {
	CyclesTotal        prometheus.Counter
	CycleFailures      prometheus.Counter
	CycleOverruns      prometheus.Counter
	CycleDuration      prometheus.Histogram
	AdvanceFailures    prometheus.Counter
	BatchWrites        prometheus.Counter
	BatchWriteFailures prometheus.Counter
	ReadBackFailures   prometheus.Counter
	PendingPoints      prometheus.Gauge
}

func New(reg prometheus.Registerer) *BridgeMetrics {
	factory := promauto.With(reg)
	return &BridgeMetrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sync_cycles_total",
			Help: "Completed synchronization cycles.",
		}),
		CycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sync_cycle_failures_total",
			Help: "Cycles aborted by an unexpected error.",
		}),
		CycleOverruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sync_cycle_overruns_total",
			Help: "Cycles that took longer than the configured step time.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_sync_cycle_duration_seconds",
			Help:    "Wall time of one synchronization cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		AdvanceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_simulator_advance_failures_total",
			Help: "Failed simulator advance calls (cycle skipped).",
		}),
		BatchWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_device_batch_writes_total",
			Help: "Device batch write submissions.",
		}),
		BatchWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_device_batch_write_failures_total",
			Help: "Device batch writes that failed after retries.",
		}),
		ReadBackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_device_readback_failures_total",
			Help: "Output points skipped during read-back.",
		}),
		PendingPoints: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_points_pending",
			Help: "Points awaiting a confirmed device write.",
		}),
	}
}
