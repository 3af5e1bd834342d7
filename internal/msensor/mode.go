package msensor

import (
	"encoding/binary"
	"fmt"
)

const (
	// RawDataSize is the capacity of a mode's raw buffer: 8 values of
	// 4 bytes each.
	RawDataSize = 32

	// MaxValues is the largest number of values a mode may report.
	MaxValues = 8

	// MaxDecimals bounds the fixed-point scale of a mode.
	MaxDecimals = 9
)

// Bound selects one of the stored range limits of a mode.
type Bound int

const (
	RawMin Bound = iota
	RawMax
	PctMin
	PctMax
	SIMin
	SIMax
)

var boundNames = [...]string{"raw_min", "raw_max", "pct_min", "pct_max", "si_min", "si_max"}

func (b Bound) String() string {
	if b < 0 || int(b) >= len(boundNames) {
		return fmt.Sprintf("Bound(%d)", int(b))
	}
	return boundNames[b]
}

// Bounds lists all bounds in attribute order.
func Bounds() []Bound {
	return []Bound{RawMin, RawMax, PctMin, PctMax, SIMin, SIMax}
}

// Mode describes one measurement mode of a sensor together with the most
// recent raw sample taken in that mode.
//
// The range limits are IEEE 754 bit patterns; they are scaled by Decimals
// when read through Bound.
type Mode struct {
	Name     string
	Decimals uint
	DataSets int
	Format   Format

	RawMin uint32
	RawMax uint32
	PctMin uint32
	PctMax uint32
	SIMin  uint32
	SIMax  uint32

	Units string

	Raw [RawDataSize]byte
}

// Bound returns the range limit b as a fixed-point integer with the mode's
// decimal places.
func (m *Mode) Bound(b Bound) int32 {
	var f uint32
	switch b {
	case RawMin:
		f = m.RawMin
	case RawMax:
		f = m.RawMax
	case PctMin:
		f = m.PctMin
	case PctMax:
		f = m.PctMax
	case SIMin:
		f = m.SIMin
	case SIMax:
		f = m.SIMax
	}
	return FloatToFixed(f, m.Decimals)
}

// Value decodes value index from the raw buffer according to the mode's
// format.
func (m *Mode) Value(index int) (int32, error) {
	if index < 0 || index >= m.DataSets {
		return 0, fmt.Errorf("%w: %d (mode %s has %d values)",
			ErrIndexOutOfRange, index, m.Name, m.DataSets)
	}

	switch m.Format {
	case FormatS8:
		return int32(int8(m.Raw[index])), nil
	case FormatS16:
		return int32(int16(binary.LittleEndian.Uint16(m.Raw[index*2:]))), nil
	case FormatS32:
		return int32(binary.LittleEndian.Uint32(m.Raw[index*4:])), nil
	case FormatFloat:
		return FloatToFixed(binary.LittleEndian.Uint32(m.Raw[index*4:]), m.Decimals), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, m.Format)
}

// RawSize is the number of meaningful bytes in the raw buffer.
func (m *Mode) RawSize() int {
	return m.DataSets * m.Format.Size()
}

func (m *Mode) validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: mode without name", ErrInvalidTable)
	}
	if !m.Format.Valid() {
		return fmt.Errorf("%w: mode %s: %w", ErrInvalidTable, m.Name, ErrUnsupportedFormat)
	}
	if m.DataSets < 1 || m.DataSets > MaxValues {
		return fmt.Errorf("%w: mode %s: data sets %d not in [1, %d]",
			ErrInvalidTable, m.Name, m.DataSets, MaxValues)
	}
	if m.RawSize() > RawDataSize {
		return fmt.Errorf("%w: mode %s: %d x %s exceeds %d byte buffer",
			ErrInvalidTable, m.Name, m.DataSets, m.Format, RawDataSize)
	}
	if m.Decimals > MaxDecimals {
		return fmt.Errorf("%w: mode %s: %d decimals, max %d",
			ErrInvalidTable, m.Name, m.Decimals, MaxDecimals)
	}
	return nil
}
