package modbus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/simonvetter/modbus"
)

// Reading is one channel as seen over the wire.
type Reading struct {
	Channel  adcsim.ChannelConfig
	Code     uint32
	Volts    float32
	Bits     int           // live resolution reported by the server
	Signal   adcsim.Signal // live signal standard reported by the server
	Value    float32
	Clamped  bool
	Received time.Time
}

func (r Reading) Binary() string {
	s, err := adcsim.FormatBinary(uint64(r.Code), r.Bits)
	if err != nil {
		return fmt.Sprintf("%b", r.Code)
	}
	return s
}

func (r Reading) Hex() string {
	return adcsim.Result{DigitalCode: uint64(r.Code)}.Hex()
}

func (r Reading) Octal() string {
	return adcsim.Result{DigitalCode: uint64(r.Code)}.Octal()
}

// Adapter reads and moves simulated channels through a Modbus TCP client.
type Adapter struct {
	client *modbus.ModbusClient
}

func NewAdapter(server adcsim.ServerConfig) (Adapter, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     server.Url,
		Timeout: time.Duration(server.Timeout) * time.Millisecond,
	})
	if err != nil {
		return Adapter{}, fmt.Errorf("new client: %w", err)
	}
	if err = client.Open(); err != nil {
		return Adapter{}, fmt.Errorf("open %s: %w", server.Url, err)
	}
	return Adapter{client: client}, nil
}

func (a Adapter) Close() {
	_ = a.client.Close()
}

// ReadChannels reads every channel, skipping the ones that fail.
func (a Adapter) ReadChannels(channels []adcsim.ChannelConfig) []Reading {
	var rr []Reading
	for _, ch := range channels {
		r, err := a.ReadChannel(ch)
		if err != nil {
			slog.Error("error reading channel", "channel", ch.Name, "unit", ch.UnitID, "err", err)
			continue
		}
		rr = append(rr, r)
	}
	return rr
}

func (a Adapter) ReadChannel(ch adcsim.ChannelConfig) (Reading, error) {
	if err := a.client.SetUnitId(ch.UnitID); err != nil {
		return Reading{}, fmt.Errorf("set unit id: %w", err)
	}

	regs, err := a.client.ReadRegisters(ch.Address, adcsim.ChannelRegisters, modbus.INPUT_REGISTER)
	if err != nil {
		return Reading{}, fmt.Errorf("read input registers: %w", err)
	}
	value, err := a.client.ReadFloat32(ch.Address, modbus.HOLDING_REGISTER)
	if err != nil {
		return Reading{}, fmt.Errorf("read holding registers: %w", err)
	}
	clamped, err := a.client.ReadDiscreteInput(ch.Address)
	if err != nil {
		return Reading{}, fmt.Errorf("read discrete input: %w", err)
	}

	return Reading{
		Channel:  ch,
		Code:     adcsim.WordsToUint32(regs[0], regs[1]),
		Volts:    adcsim.WordsToFloat32(regs[2], regs[3]),
		Bits:     int(regs[4]),
		Signal:   adcsim.Signal(regs[5]),
		Value:    value,
		Clamped:  clamped,
		Received: time.Now(),
	}, nil
}

// WriteValue moves the engineering value of ch.
func (a Adapter) WriteValue(ch adcsim.ChannelConfig, value float32) error {
	if err := a.client.SetUnitId(ch.UnitID); err != nil {
		return fmt.Errorf("set unit id: %w", err)
	}
	return a.client.WriteFloat32(ch.Address, value)
}
