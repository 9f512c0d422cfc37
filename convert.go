package adcsim

import (
	"fmt"
	"math"
)

// Resolutions lists the supported converter resolutions in bits.
var Resolutions = []int{8, 10, 12, 16, 24, 32}

// EngineeringRange is the physical span a sensor represents, e.g. -20..100 °C.
type EngineeringRange struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Unit string  `json:"unit" yaml:"unit"`
}

// Validate rejects ranges with Min >= Max. Callers check this before letting a user convert.
func (r EngineeringRange) Validate() error {
	if !(r.Min < r.Max) {
		return &InvalidRangeError{Min: r.Min, Max: r.Max}
	}
	return nil
}

// AdcConfig is the converter's resolution and reference voltage.
type AdcConfig struct {
	ResolutionBits   int     `json:"bits" yaml:"bits"`
	ReferenceVoltage float64 `json:"vref" yaml:"vref"`
}

func (c AdcConfig) Validate() error {
	supported := false
	for _, b := range Resolutions {
		if c.ResolutionBits == b {
			supported = true
			break
		}
	}
	if !supported || !(c.ReferenceVoltage > 0) || math.IsInf(c.ReferenceVoltage, 1) {
		return &InvalidAdcConfigError{ResolutionBits: c.ResolutionBits, ReferenceVoltage: c.ReferenceVoltage}
	}
	return nil
}

// Combinations is 2^bits.
func (c AdcConfig) Combinations() uint64 {
	return 1 << uint(c.ResolutionBits)
}

// MaxCode is the full-scale digital code, 2^bits - 1.
func (c AdcConfig) MaxCode() uint64 {
	return c.Combinations() - 1
}

// ResolutionVolts is the voltage of one LSB relative to the reference.
func (c AdcConfig) ResolutionVolts() float64 {
	return c.ReferenceVoltage / float64(c.Combinations())
}

// QuantizationError is half an LSB.
func (c AdcConfig) QuantizationError() float64 {
	return c.ResolutionVolts() / 2
}

// Result is the outcome of one conversion.
type Result struct {
	DigitalCode        uint64
	ElectricalValue    float64 // volts, after clamping
	BinaryString       string
	PercentOfVariable  float64
	PercentOfReference float64
	MaxDigitalCode     uint64

	LoopCurrent float64 // mA before the shunt; zero for voltage standards
	Clamped     bool
}

// Hex renders the code as 0x followed by upper-case hex digits.
func (r Result) Hex() string {
	return fmt.Sprintf("0x%X", r.DigitalCode)
}

// Octal renders the code as 0o followed by octal digits.
func (r Result) Octal() string {
	return fmt.Sprintf("0o%o", r.DigitalCode)
}

// FormatBinary renders code in base 2, zero padded to bits digits.
func FormatBinary(code uint64, bits int) (string, error) {
	s := fmt.Sprintf("%0*b", bits, code)
	if len(s) != bits {
		return "", &DigitalCodeOutOfRangeError{Scaled: float64(code), MaxCode: 1<<uint(bits) - 1, Bits: bits}
	}
	return s, nil
}

// Convert maps value, expressed in the engineering range r, through the signal standard s onto
// the converter described by cfg.
//
// A degenerate range (Min == Max) yields the zero Result with BinaryString "0" regardless of the
// other arguments. Values outside the range are allowed: the percentages leave [0, 100] and the
// electrical value is clamped to the signal's window. Codes are truncated, not rounded, so a
// result may sit up to one LSB below the ideal value.
func Convert(value float64, r EngineeringRange, s Signal, cfg AdcConfig) (Result, error) {
	span := r.Max - r.Min
	if r.Max == r.Min {
		return Result{BinaryString: "0"}, nil
	}
	if err := r.Validate(); err != nil {
		return Result{}, err
	}
	std, err := s.standard()
	if err != nil {
		return Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	percent := (value - r.Min) / span * 100

	var res Result
	res.PercentOfVariable = percent
	electrical := std.transfer(percent)
	if std.domain == Current {
		res.LoopCurrent = electrical
		electrical = electrical * shuntVoltsPerMilliamp
	}

	low, high := 0.0, cfg.ReferenceVoltage
	if std.bipolar {
		low, high = std.low, std.high
	}
	v := math.Max(low, math.Min(electrical, high))
	res.ElectricalValue = v
	res.Clamped = v != electrical

	res.MaxDigitalCode = cfg.MaxCode()
	ratio := (v - low) / (high - low)
	scaled := ratio * float64(res.MaxDigitalCode)
	if !(scaled >= 0 && scaled <= float64(res.MaxDigitalCode)) {
		return Result{}, &DigitalCodeOutOfRangeError{Scaled: scaled, MaxCode: res.MaxDigitalCode, Bits: cfg.ResolutionBits}
	}
	res.DigitalCode = uint64(scaled)

	res.BinaryString, err = FormatBinary(res.DigitalCode, cfg.ResolutionBits)
	if err != nil {
		return Result{}, err
	}
	res.PercentOfReference = ratio * 100
	return res, nil
}
