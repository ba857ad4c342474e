package point

import (
	"boptest2bacnet/internal/core/domain"
)

// Activation holds a device object in its active state for the duration of
// the run. It ignores whatever the simulator provides: every tick forces
// the value to 1, and only the first (or a post-reset) tick marks it
// pending. It never feeds anything back to the simulator.
type Activation struct {
	base
	value *float64
}

func (p *Activation) Kind() domain.PointKind { return domain.KindActivation }

func (p *Activation) Ingest(_ any) {
	one := 1.0
	prev := p.value
	p.value = &one
	p.markChanged(prev == nil, one)
}

func (p *Activation) Value() (float64, bool) {
	if p.value == nil {
		return 0, false
	}
	return *p.value, true
}

func (p *Activation) BatchRequests() []domain.BatchRequest {
	if !p.resolved {
		p.logger.Error("object instance not assigned, skipping batch request")
		return nil
	}
	if p.value == nil {
		p.logger.Warn("no activation value set, skipping batch request")
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
