package adcsim

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalsMenuOrder(t *testing.T) {
	var names []string
	for _, s := range Signals() {
		names = append(names, s.String())
	}
	assert.Equal(t, []string{"0-5V", "0-10V", "4-20mA", "0-20mA", "1-5V", "±10V", "±5V"}, names)
}

func TestSignalDomain(t *testing.T) {
	assert.Equal(t, Current, Signal4To20mA.Domain())
	assert.Equal(t, Current, Signal0To20mA.Domain())
	assert.Equal(t, Voltage, Signal1To5V.Domain())
	assert.True(t, SignalBipolar5V.Bipolar())
	assert.False(t, Signal0To10V.Bipolar())
	assert.False(t, Signal(42).Bipolar())
}

func TestParseSignal(t *testing.T) {
	for _, s := range Signals() {
		parsed, err := ParseSignal(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	s, err := ParseSignal("+-10V")
	require.NoError(t, err)
	assert.Equal(t, SignalBipolar10V, s)

	s, err = ParseSignal(" +/-5v ")
	require.NoError(t, err)
	assert.Equal(t, SignalBipolar5V, s)

	_, err = ParseSignal("2-10V")
	var sigErr *UnsupportedSignalError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, "2-10V", sigErr.Name)
}

func TestSignalNextWraps(t *testing.T) {
	assert.Equal(t, Signal0To10V, Signal0To5V.Next())
	assert.Equal(t, Signal0To5V, SignalBipolar5V.Next())
	assert.Equal(t, Signal0To5V, Signal(-3).Next())
}

func TestSignalText(t *testing.T) {
	bb, err := json.Marshal(struct {
		Signal Signal `json:"signal"`
	}{Signal4To20mA})
	require.NoError(t, err)
	assert.JSONEq(t, `{"signal":"4-20mA"}`, string(bb))

	var v struct {
		Signal Signal `json:"signal"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"signal":"±10V"}`), &v))
	assert.Equal(t, SignalBipolar10V, v.Signal)

	assert.Error(t, json.Unmarshal([]byte(`{"signal":"bogus"}`), &v))

	_, err = Signal(17).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Signal(17)", Signal(17).String())
}
