// Package point implements the per-point synchronization state machines.
//
// A point carries one synchronized variable between the simulator and a
// device. Input-direction kinds (AnalogInput, AnalogValue, BinaryInput,
// BinaryValue) ingest simulator values and produce device batch writes.
// Output-direction kinds (AnalogOutput, BinaryOutput) read the device and
// produce override inputs for the next simulator step. Activation points
// force a constant active signal onto the device.
package point

import (
	"context"
	"fmt"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/port"
	"boptest2bacnet/internal/units"

	"go.uber.org/zap"
)

// Point is the contract shared by every kind.
type Point interface {
	Name() string
	Kind() domain.PointKind
	ObjectType() domain.ObjectType
	SimulatorKey() string

	// AssignInstance resolves the device-side address. Immutable once set.
	AssignInstance(instance int)
	Instance() (int, bool)

	// Ingest consumes a raw simulator value. Invalid values are logged and
	// discarded; a value change marks the point pending.
	Ingest(raw any)

	// HasPendingSync reports whether the point has a value change not yet
	// confirmed written to the device.
	HasPendingSync() bool

	// MarkSynced clears the pending flag after a confirmed batch write.
	MarkSynced()

	// BatchRequests builds the point's device batch sub-requests. Empty
	// (and logged) when the instance is unresolved or no value is set.
	BatchRequests() []domain.BatchRequest

	// Value is the numeric projection of the current value (booleans map
	// to 0/1). The second return is false before the first ingest.
	Value() (float64, bool)
}

// OutputPoint is implemented by device-to-simulator kinds.
type OutputPoint interface {
	Point

	// SimulatorPayload reads the device present-value and builds the
	// simulator override inputs, always pairing the value with the
	// override-enable key set to 1. Empty on read failure or unmappable
	// value; the engine then skips this simulator input for the tick.
	SimulatorPayload(ctx context.Context, dev port.DeviceClient) map[string]float64
}

// New constructs the point variant selected by the configuration record.
// The kind set is closed: an unknown object type or a missing mandatory
// field fails construction with an error wrapping domain.ErrConfig, which
// drops that single point without aborting the rest of the equipment.
func New(cfg config.PointRecord, conv *units.Registry, logger *zap.Logger) (Point, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: point record missing name", domain.ErrConfig)
	}
	objectType, err := domain.ParseObjectType(cfg.ObjectType)
	if err != nil {
		return nil, err
	}
	log := logger.With(zap.String("point", cfg.Name))
	b := base{
		name:       cfg.Name,
		objectType: objectType,
		simKey:     cfg.SimulatorKey,
		logger:     log,
	}

	if cfg.Activate {
		return &Activation{base: b}, nil
	}

	kind, err := domain.KindForObjectType(objectType)
	if err != nil {
		return nil, err
	}
	switch kind {
	case domain.KindAnalogInput:
		return &AnalogInput{analog: newAnalog(b, cfg, conv)}, nil
	case domain.KindAnalogValue:
		return &AnalogValue{analog: newAnalog(b, cfg, conv), priority: writePriority(cfg)}, nil
	case domain.KindBinaryInput, domain.KindBinaryValue:
		if cfg.Threshold == nil {
			return nil, fmt.Errorf("%w: %s point %q requires a threshold", domain.ErrConfig, kind, cfg.Name)
		}
		bin := binary{base: b, threshold: *cfg.Threshold}
		if kind == domain.KindBinaryInput {
			return &BinaryInput{binary: bin}, nil
		}
		return &BinaryValue{binary: bin}, nil
	case domain.KindAnalogOutput, domain.KindBinaryOutput:
		if cfg.SimulatorKey == "" {
			return nil, fmt.Errorf("%w: %s point %q requires a simulator_key", domain.ErrConfig, kind, cfg.Name)
		}
		if cfg.SimulatorOverrideKey == "" {
			return nil, fmt.Errorf("%w: %s point %q requires a simulator_override_key", domain.ErrConfig, kind, cfg.Name)
		}
		if kind == domain.KindAnalogOutput {
			return &AnalogOutput{base: b, overrideKey: cfg.SimulatorOverrideKey}, nil
		}
		return &BinaryOutput{base: b, overrideKey: cfg.SimulatorOverrideKey}, nil
	}
	return nil, fmt.Errorf("%w: unsupported point kind %q", domain.ErrConfig, kind)
}

func writePriority(cfg config.PointRecord) int {
	if cfg.Priority != nil {
		return *cfg.Priority
	}
	return domain.DefaultWritePriority
}

// base carries the state common to every kind.
type base struct {
	name       string
	objectType domain.ObjectType
	simKey     string
	instance   int
	resolved   bool
	pending    bool
	logger     *zap.Logger
}

func (b *base) Name() string                  { return b.name }
func (b *base) ObjectType() domain.ObjectType { return b.objectType }
func (b *base) SimulatorKey() string          { return b.simKey }
func (b *base) HasPendingSync() bool          { return b.pending }
func (b *base) MarkSynced()                   { b.pending = false }

func (b *base) AssignInstance(instance int) {
	if b.resolved {
		return
	}
	b.instance = instance
	b.resolved = true
	b.logger.Debug("assigned object instance", zap.Int("instance", instance))
}

func (b *base) Instance() (int, bool) {
	return b.instance, b.resolved
}

// objectURL is the relative object path used in batch sub-requests.
func (b *base) objectURL() string {
	return fmt.Sprintf("/api/rest/v2/services/bacnet/local/objects/%s/%d", b.objectType.KebabPlural(), b.instance)
}

// markChanged updates the pending flag after an ingest. changed means the
// stored value differs from the immediately preceding one (strict
// comparison, no tolerance).
func (b *base) markChanged(changed bool, value any) {
	if changed {
		b.pending = true
		b.logger.Debug("value changed, marked for synchronization", zap.Any("value", value))
	} else {
		b.logger.Debug("value unchanged", zap.Any("value", value))
	}
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	}
	return 0, false
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
