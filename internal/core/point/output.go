package point

import (
	"context"
	"strings"

	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/port"

	"go.uber.org/zap"
)

// AnalogOutput mirrors a device analog-output object into the simulator.
// The device reports a 0-100 percentage; the simulator-bound payload is
// always normalized to a 0-1 fraction.
type AnalogOutput struct {
	base
	overrideKey string
	value       *float64
}

func (p *AnalogOutput) Kind() domain.PointKind { return domain.KindAnalogOutput }

func (p *AnalogOutput) Ingest(raw any) {
	v, ok := coerceFloat(raw)
	if !ok {
		p.logger.Error("invalid simulator value type", zap.Any("raw", raw))
		return
	}
	prev := p.value
	p.value = &v
	p.markChanged(prev == nil || *prev != v, v)
}

func (p *AnalogOutput) Value() (float64, bool) {
	if p.value == nil {
		return 0, false
	}
	return *p.value, true
}

func (p *AnalogOutput) BatchRequests() []domain.BatchRequest {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping batch request")
		return nil
	}
	if p.value == nil {
		p.logger.Warn("no value set, skipping batch request")
		return nil
	}
	return []domain.BatchRequest{
		{
			ID:     p.name + "_present_value",
			Method: "POST",
			URL:    p.objectURL(),
			Body:   map[string]any{domain.PresentValueProperty: *p.value},
		},
	}
}

func (p *AnalogOutput) SimulatorPayload(ctx context.Context, dev port.DeviceClient) map[string]float64 {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping read-back")
		return nil
	}
	raw, err := dev.PropertyValue(ctx, p.objectType, p.instance, domain.PresentValueProperty)
	if err != nil {
		p.logger.Warn("present-value read failed, skipping simulator input", zap.Error(err))
		return nil
	}
	v, ok := coerceFloat(raw)
	if !ok {
		p.logger.Error("unmappable present-value, skipping simulator input", zap.Any("raw", raw))
		return nil
	}
	return map[string]float64{
		p.simKey:      v / 100.0,
		p.overrideKey: 1,
	}
}

// BinaryOutput mirrors a device binary-output object into the simulator
// as a 0/1 signal.
type BinaryOutput struct {
	base
	overrideKey string
	value       bool
	ingested    bool
}

func (p *BinaryOutput) Kind() domain.PointKind { return domain.KindBinaryOutput }

func (p *BinaryOutput) Ingest(raw any) {
	v, ok := coerceFloat(raw)
	if !ok || (v != 0 && v != 1) {
		p.logger.Error("invalid simulator value, expected 0 or 1", zap.Any("raw", raw))
		return
	}
	next := v == 1
	changed := !p.ingested || next != p.value
	p.value = next
	p.ingested = true
	p.markChanged(changed, next)
}

func (p *BinaryOutput) Value() (float64, bool) {
	if !p.ingested {
		return 0, false
	}
	return boolToFloat(p.value), true
}

func (p *BinaryOutput) BatchRequests() []domain.BatchRequest {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping batch request")
		return nil
	}
	return []domain.BatchRequest{
		{
			ID:     p.name + "_present_value",
			Method: "POST",
			URL:    p.objectURL(),
			Body:   map[string]any{domain.PresentValueProperty: p.value},
		},
	}
}

func (p *BinaryOutput) SimulatorPayload(ctx context.Context, dev port.DeviceClient) map[string]float64 {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping read-back")
		return nil
	}
	raw, err := dev.PropertyValue(ctx, p.objectType, p.instance, domain.PresentValueProperty)
	if err != nil {
		p.logger.Warn("present-value read failed, skipping simulator input", zap.Error(err))
		return nil
	}
	b, ok := coercePresentValueBool(raw)
	if !ok {
		p.logger.Error("unmappable present-value, skipping simulator input", zap.Any("raw", raw))
		return nil
	}
	return map[string]float64{
		p.simKey:      boolToFloat(b),
		p.overrideKey: 1,
	}
}

// coercePresentValueBool maps the device's present-value representations
// onto a boolean: native booleans, the "active"/"inactive" strings, and
// numeric zero/non-zero.
func coercePresentValueBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "active":
			return true, true
		case "inactive":
			return false, true
		}
		return false, false
	}
	if f, ok := coerceFloat(raw); ok {
		return f != 0, true
	}
	return false, false
}
