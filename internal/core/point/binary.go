package point

import (
	"boptest2bacnet/internal/core/domain"

	"go.uber.org/zap"
)

// binary holds the shared ingest path of BinaryInput and BinaryValue: a
// continuous simulator signal is cut into a boolean at the configured
// threshold. Strictly greater-than; a value equal to the threshold is false.
type binary struct {
	base
	threshold float64
	value     bool
	ingested  bool
}

func (p *binary) Ingest(raw any) {
	v, ok := coerceFloat(raw)
	if !ok {
		p.logger.Error("invalid simulator value type", zap.Any("raw", raw))
		return
	}
	next := v > p.threshold
	changed := next != p.value
	p.value = next
	p.ingested = true
	p.markChanged(changed, next)
}

func (p *binary) Value() (float64, bool) {
	if !p.ingested {
		return 0, false
	}
	return boolToFloat(p.value), true
}

func (p *binary) writeReady() bool {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping batch request")
		return false
	}
	return true
}

// BinaryInput synchronizes a thresholded simulator signal onto a device
// binary-input object, forcing it out-of-service first.
type BinaryInput struct {
	binary
}

func (p *BinaryInput) Kind() domain.PointKind { return domain.KindBinaryInput }

func (p *BinaryInput) BatchRequests() []domain.BatchRequest {
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
			Body:   map[string]any{domain.PresentValueProperty: p.value},
		},
	}
}

// BinaryValue synchronizes a thresholded simulator signal onto a device
// binary-value object.
type BinaryValue struct {
	binary
}

func (p *BinaryValue) Kind() domain.PointKind { return domain.KindBinaryValue }

func (p *BinaryValue) BatchRequests() []domain.BatchRequest {
	if !p.writeReady() {
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
