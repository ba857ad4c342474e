// Package port declares the interfaces through which the sync engine
// consumes its external collaborators. Implementations live under
// internal/adapter.
package port

import (
	"context"
	"time"

	"boptest2bacnet/internal/core/domain"
)

// SimulatorClient talks to the building-performance simulation server.
type SimulatorClient interface {
	// SelectScenario activates a scenario and returns the test-run id.
	SelectScenario(ctx context.Context, name string) (string, error)
	// Initialize starts the run at the given Unix time after a warmup period.
	Initialize(ctx context.Context, startTimeUnix int64, warmupPeriodSeconds float64) error
	// SetStepSize sets the simulation step in seconds.
	SetStepSize(ctx context.Context, seconds float64) error
	// Advance moves the simulation one step. Input keys are simulator point
	// names with numeric or 0/1 values. Returns the simulation payload.
	Advance(ctx context.Context, inputs map[string]float64) (map[string]any, error)
	// KPIs returns the current key performance indicators.
	KPIs(ctx context.Context) (map[string]any, error)
}

// DeviceClient talks to one BACnet REST controller. One client exists per
// distinct device address; equipment units sharing an address share the
// client.
type DeviceClient interface {
	Address() string
	// DiscoverEndpoints fetches the addressable object catalog. Called once
	// per connection at startup; the result is cached for InstanceNumber.
	DiscoverEndpoints(ctx context.Context) (map[string]domain.Endpoint, error)
	// InstanceNumber resolves an object name of the given type against the
	// discovered catalog.
	InstanceNumber(objectName string, objectType domain.ObjectType) (int, bool)
	// PropertyValue reads a single property of an object.
	PropertyValue(ctx context.Context, objectType domain.ObjectType, instance int, property string) (any, error)
	// SubmitBatch executes the batched sub-requests. The client owns
	// bounded retry with backoff and reports only terminal failure.
	SubmitBatch(ctx context.Context, requests []domain.BatchRequest) error
	// DisableNTP turns off the device's own time synchronization so the
	// bridge can impose the scenario clock.
	DisableNTP(ctx context.Context) error
	// SetTimeAndZone sets the device clock and timezone.
	SetTimeAndZone(ctx context.Context, unixTime int64, timezone string) error
}

// DeviceClientProvider builds the device client for an address. Injected so
// the registry can be exercised against fakes.
type DeviceClientProvider func(address string) (DeviceClient, error)

// TelemetrySink receives point values and KPIs observed during a cycle.
// Sink failures never affect the cycle.
type TelemetrySink interface {
	RecordPointValue(equipment, point string, value float64, at time.Time)
	RecordKPIs(kpis map[string]float64, at time.Time)
	Close()
}
