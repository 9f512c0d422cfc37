package adcsim

import (
	"fmt"
	"math"
	"slices"
	"sync"
)

// ChannelState is the mutable part of a channel at one instant.
type ChannelState struct {
	Value  float64
	Signal Signal
	ADC    AdcConfig
}

// Channel is a simulated converter input: a sensor range wired through a signal standard into an
// ADC, exposed at Address on unit UnitID. The live value, signal and ADC settings may change while
// the server reads the channel.
type Channel struct {
	Name    string
	UnitID  uint8
	Address uint16
	Range   EngineeringRange

	mu    sync.RWMutex
	state ChannelState
}

// NewChannel validates cfg and returns a channel holding its initial value.
func NewChannel(cfg ChannelConfig) (*Channel, error) {
	cfg = cfg.withDefaults()
	if cfg.Name == "" {
		return nil, fmt.Errorf("channel at unit %d address %d has no name", cfg.UnitID, cfg.Address)
	}
	r := cfg.Range()
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, err)
	}
	s, err := cfg.ParsedSignal()
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, err)
	}
	adc := cfg.ADC()
	if err := adc.Validate(); err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.Name, err)
	}
	if int(cfg.Address)+int(inputRegCount) > math.MaxUint16+1 {
		return nil, fmt.Errorf("channel %s: register block at %d exceeds the address space", cfg.Name, cfg.Address)
	}
	value := r.Midpoint()
	if cfg.Value != nil {
		value = *cfg.Value
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("channel %s: initial value %v is not finite", cfg.Name, value)
	}

	return &Channel{
		Name:    cfg.Name,
		UnitID:  cfg.UnitID,
		Address: cfg.Address,
		Range:   r,
		state:   ChannelState{Value: value, Signal: s, ADC: adc},
	}, nil
}

func (c *Channel) State() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) Value() float64 {
	return c.State().Value
}

// SetValue moves the simulated input. Values outside the range are accepted; NaN and infinities
// are not.
func (c *Channel) SetValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrIllegalDataValue
	}
	c.mu.Lock()
	c.state.Value = v
	c.mu.Unlock()
	return nil
}

// Step moves the value by percent of the range span.
func (c *Channel) Step(percent float64) {
	c.mu.Lock()
	c.state.Value += (c.Range.Max - c.Range.Min) * percent / 100
	c.mu.Unlock()
}

func (c *Channel) SetSignal(s Signal) error {
	if !s.Valid() {
		return &UnsupportedSignalError{Signal: s}
	}
	c.mu.Lock()
	c.state.Signal = s
	c.mu.Unlock()
	return nil
}

func (c *Channel) SetADC(adc AdcConfig) error {
	if err := adc.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.state.ADC = adc
	c.mu.Unlock()
	return nil
}

// Sample converts the current state.
func (c *Channel) Sample() (ChannelState, Result, error) {
	st := c.State()
	r, err := Convert(st.Value, c.Range, st.Signal, st.ADC)
	return st, r, err
}

// Bank is the set of channels served by one Modbus server.
type Bank struct {
	channels []*Channel
}

// NewBank builds the channels of cfgs. Names must be unique and register blocks of channels on
// the same unit must not overlap.
func NewBank(cfgs []ChannelConfig) (*Bank, error) {
	b := &Bank{}
	names := make(map[string]bool)
	for _, cfg := range cfgs {
		ch, err := NewChannel(cfg)
		if err != nil {
			return nil, err
		}
		if names[ch.Name] {
			return nil, fmt.Errorf("duplicate channel name: %s", ch.Name)
		}
		names[ch.Name] = true
		for _, other := range b.channels {
			if other.UnitID == ch.UnitID && overlaps(other.Address, ch.Address) {
				return nil, fmt.Errorf("channel %s overlaps %s on unit %d", ch.Name, other.Name, ch.UnitID)
			}
		}
		b.channels = append(b.channels, ch)
	}
	return b, nil
}

func overlaps(a, b uint16) bool {
	return int(a) < int(b)+int(inputRegCount) && int(b) < int(a)+int(inputRegCount)
}

func (b *Bank) Channels() []*Channel {
	return b.channels
}

func (b *Bank) Channel(name string) (*Channel, bool) {
	for _, ch := range b.channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return nil, false
}

// Units returns the distinct unit ids in ascending order.
func (b *Bank) Units() []uint8 {
	var units []uint8
	for _, ch := range b.channels {
		if !slices.Contains(units, ch.UnitID) {
			units = append(units, ch.UnitID)
		}
	}
	slices.Sort(units)
	return units
}

// Snapshot converts every channel of unit and lays the results out in a MemoryMap. obs may be nil.
func (b *Bank) Snapshot(unit uint8, obs Observer) (*MemoryMap, error) {
	mm := NewMemoryMap()
	for _, ch := range b.channels {
		if ch.UnitID != unit {
			continue
		}
		st, r, err := ch.Sample()
		if obs != nil {
			obs.ObserveSample(ch, st, r, err)
		}
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		mm.putChannel(ch.Address, st, r)
	}
	return mm, nil
}

// WriteHolding writes values starting at addr on unit and moves every channel whose value
// registers were touched. Partial writes keep the untouched word of the value.
func (b *Bank) WriteHolding(unit uint8, addr uint16, values []uint16) error {
	mm, err := b.Snapshot(unit, nil)
	if err != nil {
		return err
	}
	for i, v := range values {
		a := addr + uint16(i)
		if _, ok := mm.GetHoldingReg(a); !ok {
			return ErrIllegalDataAddress
		}
		mm.PutHoldingReg(a, v)
	}

	type update struct {
		ch    *Channel
		value float64
	}
	var updates []update
	end := int(addr) + len(values)
	for _, ch := range b.channels {
		if ch.UnitID != unit {
			continue
		}
		if int(ch.Address) >= end || int(ch.Address)+int(holdingCount) <= int(addr) {
			continue
		}
		hi, _ := mm.GetHoldingReg(ch.Address + regValueHigh)
		lo, _ := mm.GetHoldingReg(ch.Address + regValueLow)
		v := float64(WordsToFloat32(hi, lo))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrIllegalDataValue
		}
		updates = append(updates, update{ch: ch, value: v})
	}
	for _, u := range updates {
		if err := u.ch.SetValue(u.value); err != nil {
			return err
		}
	}
	return nil
}
