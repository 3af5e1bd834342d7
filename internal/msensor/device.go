package msensor

import (
	"fmt"
	"strings"
)

// Driver is implemented once per physical sensor type. The Device calls it
// for everything that needs knowledge of the hardware.
type Driver interface {
	// Mode returns the index of the active mode. It must be a valid table
	// index from the moment the device is created.
	Mode() int

	// SetMode switches the sensor to the mode at index. On error the
	// previous mode stays active.
	SetMode(index int) error

	// WriteData accepts bytes for the raw buffer of the active mode and
	// returns the number of bytes taken. Offset and length checks are the
	// driver's job.
	WriteData(data []byte, offset int64) (int, error)
}

// Device binds a mode table to the driver of one sensor.
//
// Device does no locking. Callers serialise mode switches, raw buffer
// updates and reads with a single lock per device.
type Device struct {
	typeID int
	modes  []Mode
	driver Driver
}

// NewDevice takes ownership of modes. The table is validated but may be
// empty; mode dependent operations then fail with ErrNoModes.
func NewDevice(typeID int, modes []Mode, driver Driver) (*Device, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: nil driver", ErrInvalidTable)
	}

	seen := make(map[string]bool, len(modes))
	for i := range modes {
		if err := modes[i].validate(); err != nil {
			return nil, err
		}
		if seen[modes[i].Name] {
			return nil, fmt.Errorf("%w: duplicate mode %s", ErrInvalidTable, modes[i].Name)
		}
		seen[modes[i].Name] = true
	}

	return &Device{
		typeID: typeID,
		modes:  modes,
		driver: driver,
	}, nil
}

func (d *Device) TypeID() int { return d.typeID }

func (d *Device) NumModes() int { return len(d.modes) }

// Modes returns the mode table. Entries must not be modified outside the
// device lock.
func (d *Device) Modes() []Mode { return d.modes }

// CurrentMode asks the driver for the active mode index.
func (d *Device) CurrentMode() (int, error) {
	if len(d.modes) == 0 {
		return 0, ErrNoModes
	}
	index := d.driver.Mode()
	if index < 0 || index >= len(d.modes) {
		return 0, fmt.Errorf("%w: driver reports mode %d of %d", ErrInvalidMode, index, len(d.modes))
	}
	return index, nil
}

// Mode returns the descriptor of the active mode.
func (d *Device) Mode() (*Mode, error) {
	index, err := d.CurrentMode()
	if err != nil {
		return nil, err
	}
	return &d.modes[index], nil
}

// ModeIndex looks up a mode by exact name.
func (d *Device) ModeIndex(name string) (int, error) {
	for i := range d.modes {
		if d.modes[i].Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, name)
}

// SetMode switches to the mode called name.
func (d *Device) SetMode(name string) error {
	index, err := d.ModeIndex(name)
	if err != nil {
		return err
	}
	return d.SetModeIndex(index)
}

// SetModeIndex switches to the mode at index.
func (d *Device) SetModeIndex(index int) error {
	if index < 0 || index >= len(d.modes) {
		return fmt.Errorf("%w: index %d", ErrInvalidMode, index)
	}
	if err := d.driver.SetMode(index); err != nil {
		return fmt.Errorf("%w: set mode %s: %w", ErrDriverRejected, d.modes[index].Name, err)
	}
	return nil
}

// ModeList returns all mode names separated by spaces, the active one in
// brackets: "US-DIST-CM [US-DIST-IN] US-LISTEN".
func (d *Device) ModeList() (string, error) {
	current, err := d.CurrentMode()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := range d.modes {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i == current {
			b.WriteByte('[')
			b.WriteString(d.modes[i].Name)
			b.WriteByte(']')
		} else {
			b.WriteString(d.modes[i].Name)
		}
	}
	return b.String(), nil
}

// Value decodes value index of the active mode.
func (d *Device) Value(index int) (int32, error) {
	m, err := d.Mode()
	if err != nil {
		return 0, err
	}
	return m.Value(index)
}

// Values decodes all values of the active mode.
func (d *Device) Values() ([]int32, error) {
	m, err := d.Mode()
	if err != nil {
		return nil, err
	}
	values := make([]int32, m.DataSets)
	for i := range values {
		if values[i], err = m.Value(i); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// Bound returns range limit b of the active mode.
func (d *Device) Bound(b Bound) (int32, error) {
	m, err := d.Mode()
	if err != nil {
		return 0, err
	}
	return m.Bound(b), nil
}

func (d *Device) Units() (string, error) {
	m, err := d.Mode()
	if err != nil {
		return "", err
	}
	return m.Units, nil
}

func (d *Device) Decimals() (uint, error) {
	m, err := d.Mode()
	if err != nil {
		return 0, err
	}
	return m.Decimals, nil
}

func (d *Device) NumValues() (int, error) {
	m, err := d.Mode()
	if err != nil {
		return 0, err
	}
	return m.DataSets, nil
}

// BinDataFormat returns the name of the active mode's raw format.
func (d *Device) BinDataFormat() (string, error) {
	m, err := d.Mode()
	if err != nil {
		return "", err
	}
	if !m.Format.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, m.Format)
	}
	return m.Format.String(), nil
}

// WriteRaw hands data for the active mode's raw buffer to the driver.
func (d *Device) WriteRaw(offset int64, data []byte) (int, error) {
	n, err := d.driver.WriteData(data, offset)
	if err != nil {
		return n, fmt.Errorf("%w: write data: %w", ErrDriverRejected, err)
	}
	return n, nil
}

// ReadRaw copies up to maxLen bytes of the active mode's raw buffer starting
// at offset. Reads at or past the end of the buffer return an empty slice.
func (d *Device) ReadRaw(offset int64, maxLen int) []byte {
	m, err := d.Mode()
	if err != nil || offset < 0 || offset >= RawDataSize || maxLen <= 0 {
		return []byte{}
	}
	end := offset + int64(maxLen)
	if end > RawDataSize {
		end = RawDataSize
	}
	out := make([]byte, end-offset)
	copy(out, m.Raw[offset:end])
	return out
}

// RawBuffer gives drivers write access to the raw buffer of mode index.
func (d *Device) RawBuffer(index int) ([]byte, error) {
	if index < 0 || index >= len(d.modes) {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidMode, index)
	}
	return d.modes[index].Raw[:], nil
}
