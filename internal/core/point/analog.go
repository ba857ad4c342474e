package point

import (
	"fmt"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/units"

	"go.uber.org/zap"
)

// analog holds the shared ingest path of AnalogInput and AnalogValue:
// numeric validation, unit conversion, change detection.
type analog struct {
	base
	conv          *units.Registry
	unit          string
	alternateUnit string
	convertToAlt  bool
	value         *float64
}

func newAnalog(b base, cfg config.PointRecord, conv *units.Registry) analog {
	return analog{
		base:          b,
		conv:          conv,
		unit:          cfg.Unit,
		alternateUnit: cfg.AlternateUnit,
		convertToAlt:  cfg.ConvertToAlternateUnits,
	}
}

func (p *analog) Ingest(raw any) {
	v, ok := coerceFloat(raw)
	if !ok {
		p.logger.Error("invalid simulator value type", zap.Any("raw", raw))
		return
	}
	converted, err := p.convert(v)
	if err != nil {
		// previous value retained, this ingest is a no-op
		p.logger.Error("unit conversion failed", zap.Error(err))
		return
	}
	prev := p.value
	p.value = &converted
	p.markChanged(prev == nil || *prev != converted, converted)
}

// convert applies the configured unit policy: alternate-unit override when
// requested, otherwise conversion to a distinct configured target unit,
// otherwise pass-through.
func (p *analog) convert(v float64) (float64, error) {
	if p.convertToAlt {
		if p.alternateUnit == "" {
			return 0, fmt.Errorf("%w: convert_to_alternate_units set but no alternate_unit configured", domain.ErrConfig)
		}
		return p.conv.Convert(v, p.unit, p.alternateUnit)
	}
	if p.alternateUnit != "" && p.alternateUnit != p.unit {
		return p.conv.Convert(v, p.unit, p.alternateUnit)
	}
	return v, nil
}

func (p *analog) Value() (float64, bool) {
	if p.value == nil {
		return 0, false
	}
	return *p.value, true
}

// writeReady guards batch building: unresolved instances and unset values
// produce no requests, never a failure.
func (p *analog) writeReady() bool {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping batch request")
		return false
	}
	if p.value == nil {
		p.logger.Warn("no value set, skipping batch request")
		return false
	}
	return true
}

// AnalogInput synchronizes a simulator measurement onto a device
// analog-input object. The object is forced out-of-service so the device
// accepts the externally written present-value.
type AnalogInput struct {
	analog
}

func (p *AnalogInput) Kind() domain.PointKind { return domain.KindAnalogInput }

func (p *AnalogInput) BatchRequests() []domain.BatchRequest {
	if !p.writeReady() {
		return nil
	}
	return []domain.BatchRequest{
		{
			ID:     p.name + "_out_of_service",
			Method: "POST",
			URL:    p.objectURL(),
			Body:   map[string]any{"out-of-service": true},
		},
		{
			ID:     p.name + "_present_value",
			Method: "POST",
			URL:    p.objectURL(),
			Body:   map[string]any{domain.PresentValueProperty: *p.value},
		},
	}
}

// AnalogValue synchronizes a simulator value onto a device analog-value
// object through a prioritized relinquish-capable write.
type AnalogValue struct {
	analog
	priority int
}

func (p *AnalogValue) Kind() domain.PointKind { return domain.KindAnalogValue }

func (p *AnalogValue) BatchRequests() []domain.BatchRequest {
	if !p.writeReady() {
		return nil
	}
	return []domain.BatchRequest{
		{
			ID:     p.name,
			Method: "POST",
			URL:    p.objectURL() + "/set-value-at",
			Body: map[string]any{
				"priority": float64(p.priority),
				"value":    *p.value,
			},
		},
	}
}
