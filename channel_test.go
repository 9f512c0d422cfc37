package adcsim

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func testChannels() []ChannelConfig {
	return []ChannelConfig{
		{Name: "TT-101", UnitID: 1, Address: 0, Min: -20, Max: 100, Unit: "°C", Signal: "1-5V", Bits: 10, Vref: 5},
		{Name: "PT-201", UnitID: 1, Address: 8, Min: 0, Max: 100, Unit: "bar", Signal: "4-20mA", Bits: 8, Vref: 5, Value: ptr(0)},
		{Name: "FT-301", UnitID: 2, Address: 0, Min: -50, Max: 50, Signal: "±5V", Bits: 8, Vref: 5, Value: ptr(50)},
	}
}

func TestNewBankValidatesChannels(t *testing.T) {
	_, err := NewBank([]ChannelConfig{{Name: "bad", Min: 10, Max: 0}})
	var rangeErr *InvalidRangeError
	assert.True(t, errors.As(err, &rangeErr))

	_, err = NewBank([]ChannelConfig{{Name: "flat", Min: 10, Max: 10}})
	assert.True(t, errors.As(err, &rangeErr))

	_, err = NewBank([]ChannelConfig{{Name: "sig", Min: 0, Max: 10, Signal: "2-10V"}})
	var sigErr *UnsupportedSignalError
	assert.True(t, errors.As(err, &sigErr))

	_, err = NewBank([]ChannelConfig{{Name: "bits", Min: 0, Max: 10, Bits: 14}})
	var cfgErr *InvalidAdcConfigError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewBank([]ChannelConfig{{Min: 0, Max: 10}})
	assert.ErrorContains(t, err, "has no name")

	_, err = NewBank([]ChannelConfig{{Name: "a", Min: 0, Max: 10}, {Name: "a", Address: 8, Min: 0, Max: 10}})
	assert.ErrorContains(t, err, "duplicate channel name")

	_, err = NewBank([]ChannelConfig{{Name: "a", Min: 0, Max: 10}, {Name: "b", Address: 5, Min: 0, Max: 10}})
	assert.ErrorContains(t, err, "overlaps")

	_, err = NewBank([]ChannelConfig{{Name: "end", Address: 65531, Min: 0, Max: 10}})
	assert.ErrorContains(t, err, "exceeds the address space")

	_, err = NewBank([]ChannelConfig{{Name: "nan", Min: 0, Max: 10, Value: ptr(math.NaN())}})
	assert.ErrorContains(t, err, "not finite")
}

func TestBankUnits(t *testing.T) {
	bank, err := NewBank(testChannels())
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2}, bank.Units())
	assert.Len(t, bank.Channels(), 3)
	_, ok := bank.Channel("nope")
	assert.False(t, ok)
}

func TestChannelMutations(t *testing.T) {
	bank, err := NewBank(testChannels())
	require.NoError(t, err)
	ch, _ := bank.Channel("TT-101")

	ch.Step(25)
	assert.Equal(t, 70.0, ch.Value())
	ch.Step(-50)
	assert.Equal(t, 10.0, ch.Value())

	assert.ErrorIs(t, ch.SetValue(math.Inf(1)), ErrIllegalDataValue)
	require.NoError(t, ch.SetValue(1e6))
	_, r, err := ch.Sample()
	require.NoError(t, err)
	assert.True(t, r.Clamped)
	assert.Equal(t, uint64(1023), r.DigitalCode)

	assert.Error(t, ch.SetSignal(Signal(9)))
	require.NoError(t, ch.SetSignal(SignalBipolar10V))
	assert.Error(t, ch.SetADC(AdcConfig{ResolutionBits: 9, ReferenceVoltage: 5}))
	require.NoError(t, ch.SetADC(AdcConfig{ResolutionBits: 16, ReferenceVoltage: 5}))
	st, r, err := ch.Sample()
	require.NoError(t, err)
	assert.Equal(t, SignalBipolar10V, st.Signal)
	assert.Equal(t, uint64(65535), r.DigitalCode)
}

func TestBankSnapshotLayout(t *testing.T) {
	bank, err := NewBank(testChannels())
	require.NoError(t, err)

	mm, err := bank.Snapshot(1, nil)
	require.NoError(t, err)

	hi, _ := mm.GetInputReg(0)
	lo, _ := mm.GetInputReg(1)
	assert.Equal(t, uint32(613), WordsToUint32(hi, lo))
	hi, _ = mm.GetInputReg(2)
	lo, _ = mm.GetInputReg(3)
	assert.Equal(t, float32(3.0), WordsToFloat32(hi, lo))
	hi, _ = mm.GetHoldingReg(0)
	lo, _ = mm.GetHoldingReg(1)
	assert.Equal(t, float32(40), WordsToFloat32(hi, lo))
	bits, _ := mm.GetInputReg(4)
	assert.Equal(t, uint16(10), bits)
	sig, _ := mm.GetInputReg(5)
	assert.Equal(t, uint16(Signal1To5V), sig)
	clamped, ok := mm.GetDiscreteInput(0)
	assert.True(t, ok)
	assert.False(t, clamped)

	hi, _ = mm.GetInputReg(8)
	lo, _ = mm.GetInputReg(9)
	assert.Equal(t, uint32(51), WordsToUint32(hi, lo))
	sig, _ = mm.GetInputReg(13)
	assert.Equal(t, uint16(Signal4To20mA), sig)

	_, ok = mm.GetHoldingReg(2)
	assert.False(t, ok)
	_, ok = mm.GetInputReg(6)
	assert.False(t, ok)
	_, ok = mm.GetInputReg(14)
	assert.False(t, ok)

	mm, err = bank.Snapshot(2, nil)
	require.NoError(t, err)
	hi, _ = mm.GetInputReg(0)
	lo, _ = mm.GetInputReg(1)
	assert.Equal(t, uint32(255), WordsToUint32(hi, lo))
}

type recordingObserver struct {
	requests []uint8
	samples  []string
}

func (o *recordingObserver) ObserveRequest(fc uint8, _ error) { o.requests = append(o.requests, fc) }
func (o *recordingObserver) ObserveSample(ch *Channel, _ ChannelState, _ Result, _ error) {
	o.samples = append(o.samples, ch.Name)
}

func TestBankSnapshotObservesSamples(t *testing.T) {
	bank, err := NewBank(testChannels())
	require.NoError(t, err)
	obs := &recordingObserver{}
	_, err = bank.Snapshot(1, obs)
	require.NoError(t, err)
	assert.Equal(t, []string{"TT-101", "PT-201"}, obs.samples)
}

func TestBankWriteHolding(t *testing.T) {
	bank, err := NewBank(testChannels())
	require.NoError(t, err)
	tt, _ := bank.Channel("TT-101")
	pt, _ := bank.Channel("PT-201")

	hi, lo := Float32ToWords(-20)
	require.NoError(t, bank.WriteHolding(1, 0, []uint16{hi, lo}))
	assert.Equal(t, -20.0, tt.Value())

	// a write spanning into the input-only part of the block is rejected
	assert.ErrorIs(t, bank.WriteHolding(1, 0, []uint16{hi, lo, 0}), ErrIllegalDataAddress)

	// partial write keeps the other word
	hi, lo = Float32ToWords(75)
	require.NoError(t, bank.WriteHolding(1, 8, []uint16{hi}))
	require.NoError(t, bank.WriteHolding(1, 9, []uint16{lo}))
	assert.Equal(t, 75.0, pt.Value())

	nanHi, nanLo := Float32ToWords(float32(math.NaN()))
	assert.ErrorIs(t, bank.WriteHolding(1, 8, []uint16{nanHi, nanLo}), ErrIllegalDataValue)
	assert.Equal(t, 75.0, pt.Value())

	assert.ErrorIs(t, bank.WriteHolding(9, 0, []uint16{1}), ErrIllegalDataAddress)
}

func TestBankSnapshotWhileChannelsMove(t *testing.T) {
	bank, err := NewBank(testChannels())
	require.NoError(t, err)
	tt, _ := bank.Channel("TT-101")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = tt.SetValue(float64(i % 120))
			tt.Step(1)
			_ = tt.SetSignal(tt.State().Signal.Next())
		}
	}()
	failures := make(chan error, 500)
	go func() {
		defer wg.Done()
		for n := 0; n < 500; n++ {
			mm, err := bank.Snapshot(1, nil)
			if err != nil {
				failures <- err
				continue
			}
			bits, _ := mm.GetInputReg(regBits)
			if bits != 10 {
				failures <- ErrServerDeviceFailure
			}
		}
	}()
	wg.Wait()
	close(failures)

	for err := range failures {
		require.NoError(t, err)
	}
}
