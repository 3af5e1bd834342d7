package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
)

// SensorDriver reads a multi-mode sensor over modbus/TCP. Every mode maps to
// a block of holding registers starting at its profile register; switching
// modes writes the mode index to the connection's mode register.
//
// Register values are big-endian with the high word first for 32 bit values.
// Samples are converted to the little-endian layout of the raw buffer.
type SensorDriver struct {
	Client       *Client
	unitID       uint8
	modeRegister uint16
	modes        []types.ModeDefinition
	timeout      time.Duration

	mu   sync.Mutex
	mode int
}

func NewSensorDriver(
	address string,
	unitID uint8,
	profile *types.SensorProfileDefinition,
	timeout time.Duration,
) *SensorDriver {
	var modeRegister uint16
	if profile.Connection != nil {
		modeRegister = profile.Connection.ModeRegister
		if unitID == 0 {
			unitID = uint8(profile.Connection.UnitID)
		}
	}

	return &SensorDriver{
		Client:       NewClient(address, timeout),
		unitID:       unitID,
		modeRegister: modeRegister,
		modes:        profile.Modes,
		timeout:      timeout,
	}
}

func (d *SensorDriver) Connect() error {
	return d.Client.Connect()
}

func (d *SensorDriver) Close() error {
	return d.Client.Close()
}

func (d *SensorDriver) Mode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode writes index to the mode register. The local mode only changes
// once the sensor acknowledged the write.
func (d *SensorDriver) SetMode(index int) error {
	if index < 0 || index >= len(d.modes) {
		return fmt.Errorf("mode %d not supported", index)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.Client.WriteSingleRegister(ctx, d.unitID, d.modeRegister, uint16(index)); err != nil {
		return fmt.Errorf("failed to write mode register: %w", err)
	}

	d.mu.Lock()
	d.mode = index
	d.mu.Unlock()

	return nil
}

// Sample reads the registers of the active mode.
func (d *SensorDriver) Sample(ctx context.Context) (int, []byte, error) {
	mode := d.Mode()
	if mode >= len(d.modes) {
		return 0, nil, msensor.ErrNoModes
	}
	def := d.modes[mode]

	size, err := valueSize(def.Format)
	if err != nil {
		return 0, nil, err
	}
	quantity := uint16((def.DataSets*size + 1) / 2)

	registers, err := d.Client.ReadHoldingRegisters(ctx, d.unitID, def.Register, quantity)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read mode %s: %w", def.Name, err)
	}

	wire := make([]byte, 2*len(registers))
	for i, r := range registers {
		binary.BigEndian.PutUint16(wire[2*i:], r)
	}

	raw := make([]byte, msensor.RawDataSize)
	swapValues(raw, wire[:def.DataSets*size], size)

	return mode, raw, nil
}

// WriteData writes whole values of the active mode's raw layout back to the
// sensor. Offset and length must be register and value aligned.
func (d *SensorDriver) WriteData(data []byte, offset int64) (int, error) {
	mode := d.Mode()
	if mode >= len(d.modes) {
		return 0, msensor.ErrNoModes
	}
	def := d.modes[mode]
	if !def.Writable {
		return 0, fmt.Errorf("mode %s does not accept data", def.Name)
	}

	size, err := valueSize(def.Format)
	if err != nil {
		return 0, err
	}
	align := int64(size)
	if align < 2 {
		align = 2
	}
	if offset < 0 || offset+int64(len(data)) > msensor.RawDataSize {
		return 0, fmt.Errorf("write of %d bytes at %d exceeds raw buffer", len(data), offset)
	}
	if offset%align != 0 || int64(len(data))%align != 0 || len(data) == 0 {
		return 0, fmt.Errorf("write must be aligned to %d bytes", align)
	}

	wire := make([]byte, len(data))
	swapValues(wire, data, size)

	values := make([]uint16, len(wire)/2)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(wire[2*i:])
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.Client.WriteMultipleRegisters(ctx, d.unitID, def.Register+uint16(offset/2), values); err != nil {
		return 0, fmt.Errorf("failed to write mode %s: %w", def.Name, err)
	}
	return len(data), nil
}

func valueSize(format types.DataFormat) (int, error) {
	f, err := msensor.ParseFormat(string(format))
	if err != nil {
		return 0, err
	}
	return f.Size(), nil
}

// swapValues copies src to dst reversing the byte order of every value of
// size bytes. Single bytes are copied as they are.
func swapValues(dst, src []byte, size int) {
	for i := 0; i+size <= len(src); i += size {
		for j := 0; j < size; j++ {
			dst[i+j] = src[i+size-1-j]
		}
	}
}
