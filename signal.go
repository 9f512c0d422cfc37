package adcsim

import (
	"fmt"
	"strings"
)

// Signal is an industrial transmission standard feeding the converter input.
type Signal int

const (
	Signal0To5V Signal = iota
	Signal0To10V
	Signal4To20mA
	Signal0To20mA
	Signal1To5V
	SignalBipolar10V
	SignalBipolar5V
	signalCount
)

// Domain is the electrical quantity a signal standard transmits.
type Domain int

const (
	Voltage Domain = iota
	Current
)

func (d Domain) String() string {
	if d == Current {
		return "current"
	}
	return "voltage"
}

// shuntVoltsPerMilliamp models the 250 Ω burden resistor that turns a current loop into a voltage.
const shuntVoltsPerMilliamp = 0.250

// standard describes one signal variant. transfer maps percent of engineering range to the raw
// electrical value: volts for voltage standards, milliamps for current loops. Bipolar standards
// clamp to the fixed window [low, high]; unipolar ones clamp to [0, vref].
//
// The explicit float64 conversions round the product before the offset is added (no fused
// multiply-add).
type standard struct {
	name      string
	domain    Domain
	transfer  func(p float64) float64
	bipolar   bool
	low, high float64
}

var standards = [signalCount]standard{
	Signal0To5V: {
		name:     "0-5V",
		domain:   Voltage,
		transfer: func(p float64) float64 { return p / 100 * 5.0 },
	},
	Signal0To10V: {
		name:     "0-10V",
		domain:   Voltage,
		transfer: func(p float64) float64 { return p / 100 * 10.0 },
	},
	Signal4To20mA: {
		name:     "4-20mA",
		domain:   Current,
		transfer: func(p float64) float64 { return float64(p/100*16) + 4 },
	},
	Signal0To20mA: {
		name:     "0-20mA",
		domain:   Current,
		transfer: func(p float64) float64 { return p / 100 * 20 },
	},
	Signal1To5V: {
		name:     "1-5V",
		domain:   Voltage,
		transfer: func(p float64) float64 { return float64(p/100*4) + 1 },
	},
	SignalBipolar10V: {
		name:     "±10V",
		domain:   Voltage,
		transfer: func(p float64) float64 { return float64(p/100*20) - 10 },
		bipolar:  true,
		low:      -10,
		high:     10,
	},
	SignalBipolar5V: {
		name:     "±5V",
		domain:   Voltage,
		transfer: func(p float64) float64 { return float64(p/100*10) - 5 },
		bipolar:  true,
		low:      -5,
		high:     5,
	},
}

// Every enumerated signal must carry a complete table entry.
func init() {
	for s, std := range standards {
		if std.name == "" || std.transfer == nil {
			panic(fmt.Sprintf("adcsim: signal %d has no transfer function", s))
		}
		if std.bipolar && !(std.low < std.high) {
			panic(fmt.Sprintf("adcsim: signal %s has an empty clamp window", std.name))
		}
	}
}

// Signals returns all supported standards in menu order.
func Signals() []Signal {
	out := make([]Signal, 0, signalCount)
	for s := Signal(0); s < signalCount; s++ {
		out = append(out, s)
	}
	return out
}

func (s Signal) standard() (standard, error) {
	if s < 0 || s >= signalCount {
		return standard{}, &UnsupportedSignalError{Signal: s}
	}
	return standards[s], nil
}

// Valid reports whether s is one of the enumerated standards.
func (s Signal) Valid() bool {
	return s >= 0 && s < signalCount
}

func (s Signal) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Signal(%d)", int(s))
	}
	return standards[s].name
}

// Domain returns the electrical domain of the standard. Unknown signals report Voltage.
func (s Signal) Domain() Domain {
	if !s.Valid() {
		return Voltage
	}
	return standards[s].domain
}

// Bipolar reports whether the standard spans negative voltages.
func (s Signal) Bipolar() bool {
	return s.Valid() && standards[s].bipolar
}

// Next returns the following standard in menu order, wrapping around.
func (s Signal) Next() Signal {
	if !s.Valid() {
		return Signal0To5V
	}
	return (s + 1) % signalCount
}

// ParseSignal accepts the menu names ("4-20mA", "±10V", ...). The bipolar standards may also be
// written with an ASCII "+-" or "+/-" prefix.
func ParseSignal(name string) (Signal, error) {
	n := strings.TrimSpace(name)
	n = strings.Replace(n, "+/-", "±", 1)
	n = strings.Replace(n, "+-", "±", 1)
	for s, std := range standards {
		if strings.EqualFold(std.name, n) {
			return Signal(s), nil
		}
	}
	return 0, &UnsupportedSignalError{Signal: -1, Name: name}
}

func (s Signal) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &UnsupportedSignalError{Signal: s}
	}
	return []byte(s.String()), nil
}

func (s *Signal) UnmarshalText(text []byte) error {
	v, err := ParseSignal(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
