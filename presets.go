package adcsim

// Bounds the presentation layers enforce on user input.
const (
	MinRangeBound     = -1000.0
	MaxRangeBound     = 1000.0
	MinReferenceVolts = 1.0
	MaxReferenceVolts = 10.0
)

// Defaults shown when a converter is first opened.
const (
	DefaultSignal           = Signal1To5V
	DefaultResolutionBits   = 10
	DefaultReferenceVoltage = 5.0
	DefaultUnit             = "units"
)

// DefaultRange is the engineering range a new channel starts with.
var DefaultRange = EngineeringRange{Min: -20, Max: 100, Unit: "°C"}

// UnitPreset is a named example unit offered next to the free-text unit field.
type UnitPreset struct {
	Name string
	Unit string
}

var unitPresets = []UnitPreset{
	{Name: "Custom", Unit: DefaultUnit},
	{Name: "Temperature °C", Unit: "°C"},
	{Name: "Temperature °F", Unit: "°F"},
	{Name: "Pressure (bar)", Unit: "bar"},
	{Name: "Level (%)", Unit: "%"},
}

// UnitPresets returns the example units in menu order.
func UnitPresets() []UnitPreset {
	out := make([]UnitPreset, len(unitPresets))
	copy(out, unitPresets)
	return out
}

// PresetUnit returns the unit for a preset name, or DefaultUnit for unknown names.
func PresetUnit(name string) string {
	for _, p := range unitPresets {
		if p.Name == name {
			return p.Unit
		}
	}
	return DefaultUnit
}

// Midpoint returns the centre of the range.
func (r EngineeringRange) Midpoint() float64 {
	return (r.Min + r.Max) / 2
}

// NextResolution returns the following entry of Resolutions, wrapping around. Unsupported
// values restart at the first entry.
func NextResolution(bits int) int {
	for i, b := range Resolutions {
		if b == bits {
			return Resolutions[(i+1)%len(Resolutions)]
		}
	}
	return Resolutions[0]
}
