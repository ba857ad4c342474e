// Package units provides value conversions between the engineering units
// used by the simulator and the units configured on device points.
//
// The registry is an immutable table built once at startup and shared
// read-only by every conversion call site.
package units

import (
	"fmt"

	"boptest2bacnet/internal/core/domain"
)

type dimension int

const (
	dimTemperature dimension = iota
	dimPressure
	dimFlow
	dimDimensionless
	dimPower
	dimEnergy
)

// unitDef converts to the dimension's base unit as base = value*factor + offset.
// Base units: kelvin, pascal, m3/s, fraction, watt, joule.
type unitDef struct {
	dim    dimension
	factor float64
	offset float64
}

// Registry is the process-wide unit-definition table.
type Registry struct {
	units map[string]unitDef
}

// NewRegistry builds the builtin unit table. Aliases share a definition so
// configuration may use either spelling.
func NewRegistry() *Registry {
	defs := map[string]unitDef{}
	define := func(def unitDef, names ...string) {
		for _, n := range names {
			defs[n] = def
		}
	}

	// temperature
	define(unitDef{dimTemperature, 1, 0}, "K", "kelvin")
	define(unitDef{dimTemperature, 1, 273.15}, "degC", "C", "celsius")
	define(unitDef{dimTemperature, 5.0 / 9.0, 255.3722222222222}, "degF", "F", "fahrenheit")

	// pressure
	define(unitDef{dimPressure, 1, 0}, "Pa", "pascal")
	define(unitDef{dimPressure, 1000, 0}, "kPa")
	define(unitDef{dimPressure, 100000, 0}, "bar")
	define(unitDef{dimPressure, 6894.757, 0}, "psi")
	define(unitDef{dimPressure, 249.082, 0}, "inH2O")

	// volumetric flow
	define(unitDef{dimFlow, 1, 0}, "m3/s")
	define(unitDef{dimFlow, 1.0 / 3600.0, 0}, "m3/h")
	define(unitDef{dimFlow, 0.001, 0}, "L/s")
	define(unitDef{dimFlow, 0.0004719474432, 0}, "ft3/min", "cfm")

	// dimensionless
	define(unitDef{dimDimensionless, 1, 0}, "1", "fraction", "dimensionless")
	define(unitDef{dimDimensionless, 0.01, 0}, "%", "percent")
	define(unitDef{dimDimensionless, 1e-6, 0}, "ppm")

	// power
	define(unitDef{dimPower, 1, 0}, "W", "watt")
	define(unitDef{dimPower, 1000, 0}, "kW")

	// energy
	define(unitDef{dimEnergy, 1, 0}, "J", "joule")
	define(unitDef{dimEnergy, 3600, 0}, "Wh")
	define(unitDef{dimEnergy, 3600000, 0}, "kWh")

	return &Registry{units: defs}
}

// Convert transforms value from one unit to another. Both units must be
// defined and share a dimension; otherwise the error wraps
// domain.ErrConversion and the caller keeps its previous value.
func (r *Registry) Convert(value float64, from, to string) (float64, error) {
	if from == to {
		return value, nil
	}
	fromDef, ok := r.units[from]
	if !ok {
		return 0, fmt.Errorf("%w: undefined unit %q", domain.ErrConversion, from)
	}
	toDef, ok := r.units[to]
	if !ok {
		return 0, fmt.Errorf("%w: undefined unit %q", domain.ErrConversion, to)
	}
	if fromDef.dim != toDef.dim {
		return 0, fmt.Errorf("%w: incompatible units %q and %q", domain.ErrConversion, from, to)
	}
	base := value*fromDef.factor + fromDef.offset
	return (base - toDef.offset) / toDef.factor, nil
}

// Defined reports whether a unit name is known to the registry.
func (r *Registry) Defined(unit string) bool {
	_, ok := r.units[unit]
	return ok
}
