package modbus

import (
	"testing"

	"github.com/GSB-WEB/adcsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Adapter, *adcsim.Bank, []adcsim.ChannelConfig) {
	t.Helper()
	cfg := adcsim.DefaultConfig()
	cfg.Channels = append(cfg.Channels, adcsim.ChannelConfig{
		Name: "PT-201", UnitID: 2, Address: 16, Min: 0, Max: 16, Unit: "bar", Signal: "4-20mA", Bits: 12, Vref: 5,
	})
	bank, err := adcsim.NewBank(cfg.Channels)
	require.NoError(t, err)

	server, err := adcsim.NewModbusServer("tcp://127.0.0.1:0", bank, nil, nil)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(func() { _ = server.Stop() })
	server.Connect(1)
	server.Connect(2)

	adapter, err := NewAdapter(adcsim.ServerConfig{Url: "tcp://" + server.Addr().String(), Timeout: 1000})
	require.NoError(t, err)
	t.Cleanup(adapter.Close)
	return adapter, bank, cfg.Channels
}

func TestAdapterReadChannel(t *testing.T) {
	adapter, _, channels := setup(t)

	r, err := adapter.ReadChannel(channels[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(613), r.Code)
	assert.Equal(t, float32(3.0), r.Volts)
	assert.Equal(t, float32(40), r.Value)
	assert.False(t, r.Clamped)
	assert.Equal(t, 10, r.Bits)
	assert.Equal(t, adcsim.Signal1To5V, r.Signal)
	assert.Equal(t, "1001100101", r.Binary())
	assert.Equal(t, "0x265", r.Hex())
	assert.Equal(t, "0o1145", r.Octal())
}

func TestAdapterWriteValue(t *testing.T) {
	adapter, _, channels := setup(t)
	pt := channels[1]

	require.NoError(t, adapter.WriteValue(pt, 16))
	r, err := adapter.ReadChannel(pt)
	require.NoError(t, err)
	assert.Equal(t, uint32(4095), r.Code)
	assert.Equal(t, "111111111111", r.Binary())

	require.NoError(t, adapter.WriteValue(pt, -8))
	r, err = adapter.ReadChannel(pt)
	require.NoError(t, err)
	assert.True(t, r.Clamped)
	assert.Equal(t, uint32(0), r.Code)
}

func TestAdapterReadChannelsSkipsFailures(t *testing.T) {
	adapter, _, channels := setup(t)
	missing := adcsim.ChannelConfig{Name: "XX-999", UnitID: 1, Address: 400, Bits: 10}

	rr := adapter.ReadChannels([]adcsim.ChannelConfig{channels[0], missing, channels[1]})
	require.Len(t, rr, 2)
	assert.Equal(t, "TT-101", rr[0].Channel.Name)
	assert.Equal(t, "PT-201", rr[1].Channel.Name)
}

func TestNewAdapterFailsWithoutServer(t *testing.T) {
	_, err := NewAdapter(adcsim.ServerConfig{Url: "tcp://127.0.0.1:1", Timeout: 100})
	assert.Error(t, err)
}

func TestAdapterReadsLiveResolutionAndSignal(t *testing.T) {
	adapter, bank, channels := setup(t)
	ch, ok := bank.Channel("TT-101")
	require.True(t, ok)

	require.NoError(t, ch.SetADC(adcsim.AdcConfig{ResolutionBits: 16, ReferenceVoltage: 5}))
	require.NoError(t, ch.SetSignal(adcsim.SignalBipolar5V))

	// the configured channel still says 10 bits and 1-5V
	r, err := adapter.ReadChannel(channels[0])
	require.NoError(t, err)
	assert.Equal(t, 16, r.Bits)
	assert.Equal(t, adcsim.SignalBipolar5V, r.Signal)
	assert.Equal(t, uint32(32767), r.Code)
	assert.Equal(t, "0111111111111111", r.Binary())
	assert.Len(t, r.Binary(), r.Bits)
}
