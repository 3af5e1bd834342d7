// Package sim provides a simulated multi-mode sensor driven entirely by its
// profile. It is used for development setups without hardware and in tests.
package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
)

// rampSteps is the number of samples a value needs to sweep its raw range.
const rampSteps = 16

// Driver simulates a sensor. Read-only modes produce ramps across each
// mode's raw range; writable modes echo the bytes last written.
type Driver struct {
	mu      sync.Mutex
	modes   []types.ModeDefinition
	mode    int
	tick    uint64
	written map[int][]byte
}

func NewDriver(modes []types.ModeDefinition) *Driver {
	return &Driver{
		modes:   modes,
		written: make(map[int][]byte),
	}
}

func (d *Driver) Mode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *Driver) SetMode(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index < 0 || index >= len(d.modes) {
		return fmt.Errorf("mode %d not supported", index)
	}
	d.mode = index
	d.tick = 0
	return nil
}

// WriteData stores data for the active mode if the mode is writable. Data
// past the end of the raw buffer is cut off.
func (d *Driver) WriteData(data []byte, offset int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.modes) == 0 || !d.modes[d.mode].Writable {
		return 0, fmt.Errorf("mode does not accept data")
	}
	if offset < 0 || offset >= msensor.RawDataSize {
		return 0, fmt.Errorf("offset %d out of range", offset)
	}

	buf, ok := d.written[d.mode]
	if !ok {
		buf = make([]byte, msensor.RawDataSize)
		d.written[d.mode] = buf
	}
	return copy(buf[offset:], data), nil
}

// Sample returns the next simulated raw buffer for the active mode.
func (d *Driver) Sample(ctx context.Context) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.modes) == 0 {
		return 0, nil, msensor.ErrNoModes
	}

	raw := make([]byte, msensor.RawDataSize)
	def := d.modes[d.mode]

	if def.Writable {
		copy(raw, d.written[d.mode])
		return d.mode, raw, nil
	}

	for i := 0; i < def.DataSets; i++ {
		pos := float64((d.tick+uint64(i))%rampSteps) / (rampSteps - 1)
		value := float64(def.RawMin) + pos*float64(def.RawMax-def.RawMin)
		if err := encode(raw, i, def.Format, value); err != nil {
			return 0, nil, err
		}
	}
	d.tick++

	return d.mode, raw, nil
}

func encode(raw []byte, index int, format types.DataFormat, value float64) error {
	switch format {
	case types.DataFormatS8:
		raw[index] = byte(int8(clamp(value, math.MinInt8, math.MaxInt8)))
	case types.DataFormatS16:
		binary.LittleEndian.PutUint16(raw[index*2:], uint16(int16(clamp(value, math.MinInt16, math.MaxInt16))))
	case types.DataFormatS32:
		binary.LittleEndian.PutUint32(raw[index*4:], uint32(int32(clamp(value, math.MinInt32, math.MaxInt32))))
	case types.DataFormatFloat:
		binary.LittleEndian.PutUint32(raw[index*4:], math.Float32bits(float32(value)))
	default:
		return fmt.Errorf("%w: %s", msensor.ErrUnsupportedFormat, format)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Round(math.Max(lo, math.Min(hi, v)))
}
