// Package engine runs the per-tick synchronization cycle between the
// simulator and the device registry.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/equipment"
	"boptest2bacnet/internal/core/point"
	"boptest2bacnet/internal/core/port"
	"boptest2bacnet/internal/metrics"

	"go.uber.org/zap"
)

// Loop is the steady-state cycle orchestrator:
// advance -> KPI merge -> fan-out -> write-back -> read-back -> pacing.
// It is the only mutator of point state.
type Loop struct {
	sim      port.SimulatorClient
	registry *equipment.Registry
	step     time.Duration
	sinks    []port.TelemetrySink
	metrics  *metrics.BridgeMetrics
	logger   *zap.Logger

	// device-derived inputs accumulated during the previous cycle's
	// read-back, fed into the next advance. Empty on the first cycle.
	prevInputs map[string]float64

	mu    sync.Mutex
	stats Stats
}

// Stats is a snapshot of loop progress for the status endpoints.
type Stats struct {
	Cycles        uint64    `json:"cycles"`
	LastCompleted time.Time `json:"last_completed"`
	LastDuration  float64   `json:"last_duration_seconds"`
	LastError     string    `json:"last_error,omitempty"`
}

func NewLoop(sim port.SimulatorClient, registry *equipment.Registry, step time.Duration,
	m *metrics.BridgeMetrics, sinks []port.TelemetrySink, logger *zap.Logger) *Loop {
	return &Loop{
		sim:        sim,
		registry:   registry,
		step:       step,
		sinks:      sinks,
		metrics:    m,
		logger:     logger,
		prevInputs: map[string]float64{},
	}
}

// Run executes cycles on the step cadence until the context is cancelled.
// Cancellation is checked only at cycle boundaries; a started cycle always
// runs to completion.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("synchronization loop started", zap.Duration("step", l.step))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("synchronization loop stopped")
			return
		default:
		}

		start := time.Now()
		err := l.safeCycle(ctx)
		elapsed := time.Since(start)

		l.metrics.CyclesTotal.Inc()
		l.metrics.CycleDuration.Observe(elapsed.Seconds())
		l.recordStats(elapsed, err)

		if remainder := l.step - elapsed; remainder > 0 {
			if !sleepCtx(ctx, remainder) {
				l.logger.Info("synchronization loop stopped")
				return
			}
		} else {
			// proceed immediately, no cycle is ever skipped or queued
			l.metrics.CycleOverruns.Inc()
			l.logger.Warn("cycle overran step time",
				zap.Duration("elapsed", elapsed),
				zap.Duration("step", l.step))
		}
	}
}

// safeCycle absorbs panics so a single bad cycle never terminates the loop.
func (l *Loop) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			l.metrics.CycleFailures.Inc()
			l.logger.Error("recovered cycle panic", zap.Any("panic", r))
		}
	}()
	if err := l.runCycle(ctx); err != nil {
		l.metrics.CycleFailures.Inc()
		l.logger.Error("cycle failed", zap.Error(err))
		return err
	}
	return nil
}

func (l *Loop) runCycle(ctx context.Context) error {
	now := time.Now()

	// 1. advance with the previous cycle's device-derived inputs
	payload, err := l.sim.Advance(ctx, l.prevInputs)
	if err != nil {
		// skipped cycle: no point updates, no device writes
		l.metrics.AdvanceFailures.Inc()
		return fmt.Errorf("advance simulation: %w", err)
	}

	// 2. merge KPIs, KPI keys win on collision
	merged := payload
	kpis, err := l.sim.KPIs(ctx)
	if err != nil {
		l.logger.Error("failed to retrieve KPIs, proceeding with simulation payload only", zap.Error(err))
	} else {
		merged = make(map[string]any, len(payload)+len(kpis))
		for k, v := range payload {
			merged[k] = v
		}
		for k, v := range kpis {
			merged[k] = v
		}
	}

	// 3. fan the merged payload out to every point
	l.fanOut(merged)

	// 4. batch-write pending points per device
	l.writeBack(ctx)

	// 5. read device outputs back for the next advance
	l.prevInputs = l.readBack(ctx)

	l.publishTelemetry(kpis, now)
	return nil
}

func (l *Loop) fanOut(payload map[string]any) {
	for _, eq := range l.registry.Equipments() {
		for _, p := range eq.Points {
			if p.Kind() == domain.KindActivation {
				// simulator-independent, forced active every tick
				p.Ingest(nil)
				continue
			}
			key := p.SimulatorKey()
			if key == "" {
				l.logger.Warn("point has no simulator key configured",
					zap.String("equipment", eq.Name), zap.String("point", p.Name()))
				continue
			}
			raw, ok := payload[key]
			if !ok {
				// point retains its prior value and pending state
				l.logger.Warn("no simulator value for point",
					zap.String("equipment", eq.Name),
					zap.String("point", p.Name()),
					zap.String("key", key))
				continue
			}
			p.Ingest(raw)
		}
	}
}

func (l *Loop) writeBack(ctx context.Context) {
	pendingTotal := 0
	pendingByDevice := l.registry.PendingByDevice()
	for _, dev := range l.registry.Devices() {
		pending := pendingByDevice[dev]
		if len(pending) == 0 {
			continue
		}
		pendingTotal += len(pending)

		var requests []domain.BatchRequest
		var included []point.Point
		for _, p := range pending {
			reqs := p.BatchRequests()
			if len(reqs) == 0 {
				continue
			}
			requests = append(requests, reqs...)
			included = append(included, p)
		}
		if len(requests) == 0 {
			continue
		}

		l.metrics.BatchWrites.Inc()
		if err := dev.SubmitBatch(ctx, requests); err != nil {
			// points stay pending and retry next cycle
			l.metrics.BatchWriteFailures.Inc()
			l.logger.Error("device batch write failed",
				zap.String("device", dev.Address()),
				zap.Int("requests", len(requests)),
				zap.Error(err))
			continue
		}
		for _, p := range included {
			p.MarkSynced()
			pendingTotal--
		}
		l.logger.Debug("device batch write succeeded",
			zap.String("device", dev.Address()),
			zap.Int("points", len(included)))
	}
	l.metrics.PendingPoints.Set(float64(pendingTotal))
}

func (l *Loop) readBack(ctx context.Context) map[string]float64 {
	inputs := map[string]float64{}
	outputsByDevice := l.registry.OutputsByDevice()
	for _, dev := range l.registry.Devices() {
		for _, op := range outputsByDevice[dev] {
			payload := op.SimulatorPayload(ctx, dev)
			if len(payload) == 0 {
				l.metrics.ReadBackFailures.Inc()
				continue
			}
			for k, v := range payload {
				inputs[k] = v
			}
		}
	}
	return inputs
}

func (l *Loop) publishTelemetry(kpis map[string]any, at time.Time) {
	if len(l.sinks) == 0 {
		return
	}
	for _, eq := range l.registry.Equipments() {
		for _, p := range eq.Points {
			v, ok := p.Value()
			if !ok {
				continue
			}
			for _, sink := range l.sinks {
				sink.RecordPointValue(eq.Name, p.Name(), v, at)
			}
		}
	}
	if len(kpis) == 0 {
		return
	}
	numeric := map[string]float64{}
	for k, v := range kpis {
		if f, ok := v.(float64); ok {
			numeric[k] = f
		}
	}
	if len(numeric) == 0 {
		return
	}
	for _, sink := range l.sinks {
		sink.RecordKPIs(numeric, at)
	}
}

func (l *Loop) recordStats(elapsed time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Cycles++
	l.stats.LastCompleted = time.Now()
	l.stats.LastDuration = elapsed.Seconds()
	if err != nil {
		l.stats.LastError = err.Error()
	} else {
		l.stats.LastError = ""
	}
}

// Stats returns a snapshot of loop progress.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Healthy reports whether a cycle completed within the given window.
func (l *Loop) Healthy(window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.stats.LastCompleted.IsZero() && time.Since(l.stats.LastCompleted) <= window
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
