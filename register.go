package adcsim

import "math"

// Register block of one channel, relative to its base address.
const (
	regCodeHigh   uint16 = 0 // input: digital code, high word
	regCodeLow    uint16 = 1 // input: digital code, low word
	regVoltsHigh  uint16 = 2 // input: electrical value float32, high word
	regVoltsLow   uint16 = 3 // input: electrical value float32, low word
	regBits       uint16 = 4 // input: live resolution in bits
	regSignal     uint16 = 5 // input: live signal standard index
	regValueHigh  uint16 = 0 // holding: engineering value float32, high word
	regValueLow   uint16 = 1 // holding: engineering value float32, low word
	inputRegCount uint16 = 6
	holdingCount  uint16 = 2
)

// ChannelRegisters is the number of input registers in one channel block; blocks on the same unit
// must be at least this far apart.
const ChannelRegisters = inputRegCount

// MemoryMap is a snapshot of one unit's Modbus address space.
type MemoryMap struct {
	discreteInputs map[uint16]bool
	inputRegs      map[uint16]uint16
	holdingRegs    map[uint16]uint16
}

// NewMemoryMap creates a new MemoryMap instance.
func NewMemoryMap() *MemoryMap {
	return &MemoryMap{
		discreteInputs: make(map[uint16]bool),
		inputRegs:      make(map[uint16]uint16),
		holdingRegs:    make(map[uint16]uint16),
	}
}

// PutDiscreteInput sets the value of a discrete input in the memory map.
func (mm *MemoryMap) PutDiscreteInput(address uint16, value bool) {
	mm.discreteInputs[address] = value
}

func (mm *MemoryMap) GetDiscreteInput(address uint16) (bool, bool) {
	value, ok := mm.discreteInputs[address]
	return value, ok
}

// PutInputReg sets the value of an input register in the memory map.
func (mm *MemoryMap) PutInputReg(address uint16, value uint16) {
	mm.inputRegs[address] = value
}

func (mm *MemoryMap) GetInputReg(address uint16) (uint16, bool) {
	value, ok := mm.inputRegs[address]
	return value, ok
}

// PutHoldingReg sets the value of a holding register in the memory map.
func (mm *MemoryMap) PutHoldingReg(address uint16, value uint16) {
	mm.holdingRegs[address] = value
}

func (mm *MemoryMap) GetHoldingReg(address uint16) (uint16, bool) {
	value, ok := mm.holdingRegs[address]
	return value, ok
}

// putChannel lays out the register block of one converted channel at base.
func (mm *MemoryMap) putChannel(base uint16, st ChannelState, r Result) {
	code := uint32(r.DigitalCode)
	mm.PutInputReg(base+regCodeHigh, uint16(code>>16))
	mm.PutInputReg(base+regCodeLow, uint16(code))
	hi, lo := Float32ToWords(float32(r.ElectricalValue))
	mm.PutInputReg(base+regVoltsHigh, hi)
	mm.PutInputReg(base+regVoltsLow, lo)
	mm.PutInputReg(base+regBits, uint16(st.ADC.ResolutionBits))
	mm.PutInputReg(base+regSignal, uint16(st.Signal))

	hi, lo = Float32ToWords(float32(st.Value))
	mm.PutHoldingReg(base+regValueHigh, hi)
	mm.PutHoldingReg(base+regValueLow, lo)

	mm.PutDiscreteInput(base, r.Clamped)
}

// Float32ToWords splits f into two registers, high word first.
func Float32ToWords(f float32) (hi, lo uint16) {
	bits := math.Float32bits(f)
	return uint16(bits >> 16), uint16(bits)
}

// WordsToFloat32 joins two registers, high word first.
func WordsToFloat32(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}

// WordsToUint32 joins two registers, high word first.
func WordsToUint32(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}
