package adcsim

import "fmt"

// Error is a constant protocol error.
type Error string

const (
	ErrProtocolError     Error = "protocol error"
	ErrUnknownProtocolId Error = "unknown protocol identifier"
	ErrInvalidURL        Error = "invalid server url"

	// modbus exceptions
	ErrIllegalFunction     Error = "illegal function"
	ErrIllegalDataAddress  Error = "illegal data address"
	ErrIllegalDataValue    Error = "illegal data value"
	ErrServerDeviceFailure Error = "server device failure"
)

// Error implements the error interface.
func (me Error) Error() (s string) {
	s = string(me)
	return
}

// InvalidRangeError reports an engineering range whose minimum is not below its maximum.
type InvalidRangeError struct {
	Min, Max float64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: min %g must be less than max %g", e.Min, e.Max)
}

// UnsupportedSignalError reports a signal outside the enumerated standards. Name carries the
// rejected text when the error comes from parsing.
type UnsupportedSignalError struct {
	Signal Signal
	Name   string
}

func (e *UnsupportedSignalError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unsupported signal: %q", e.Name)
	}
	return fmt.Sprintf("unsupported signal: %d", int(e.Signal))
}

// DigitalCodeOutOfRangeError reports a scaled code outside [0, MaxCode]. Correct clamping makes it
// unreachable for finite inputs.
type DigitalCodeOutOfRangeError struct {
	Scaled  float64
	MaxCode uint64
	Bits    int
}

func (e *DigitalCodeOutOfRangeError) Error() string {
	return fmt.Sprintf("digital code %g out of range [0, %d] for %d bits", e.Scaled, e.MaxCode, e.Bits)
}

// InvalidAdcConfigError reports an unsupported resolution or a non-positive reference voltage.
type InvalidAdcConfigError struct {
	ResolutionBits   int
	ReferenceVoltage float64
}

func (e *InvalidAdcConfigError) Error() string {
	return fmt.Sprintf("invalid adc config: %d bits, reference %g V (bits must be one of %v, reference > 0)",
		e.ResolutionBits, e.ReferenceVoltage, Resolutions)
}
