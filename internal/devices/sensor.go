package devices

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/attr"
	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"github.com/google/uuid"
)

// Sampler is implemented by drivers that produce samples on request. Sample
// may block on I/O and is called without the sensor lock; mode reports the
// mode the sample was taken in.
type Sampler interface {
	Sample(ctx context.Context) (mode int, raw []byte, err error)
}

// Reading is one committed sample, decoded.
type Reading struct {
	Mode     string    `json:"mode" cbor:"1,keyasint"`
	Units    string    `json:"units,omitempty" cbor:"2,keyasint,omitempty"`
	Decimals uint      `json:"decimals" cbor:"3,keyasint"`
	Values   []int32   `json:"values" cbor:"4,keyasint"`
	Raw      []byte    `json:"raw" cbor:"5,keyasint"`
	TakenAt  time.Time `json:"taken_at" cbor:"6,keyasint"`
}

// Sensor is an attached measurement device with its driver. mu is the one
// lock that orders mode switches, raw buffer commits and attribute reads.
type Sensor struct {
	ID          uuid.UUID
	Name        string
	ProfileName string
	Profile     *types.SensorProfileDefinition
	Driver      types.DriverKind
	Address     string

	Device *msensor.Device
	Attrs  *attr.Surface

	mu      sync.Mutex
	sampler Sampler
	closer  io.Closer

	stateMu    sync.RWMutex
	lastSample time.Time
	lastErr    error
}

func newSensor(spec SensorSpec, profile *types.SensorProfileDefinition, modes []msensor.Mode, driver msensor.Driver) (*Sensor, error) {
	dev, err := msensor.NewDevice(profile.SensorProfile.TypeID, modes, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	s := &Sensor{
		ID:          uuid.New(),
		Name:        spec.Name,
		ProfileName: spec.Profile,
		Profile:     profile,
		Driver:      spec.Driver,
		Address:     spec.Address,
		Device:      dev,
	}
	s.Attrs = attr.New(dev, &s.mu)

	if sampler, ok := driver.(Sampler); ok {
		s.sampler = sampler
	}
	if closer, ok := driver.(io.Closer); ok {
		s.closer = closer
	}

	return s, nil
}

// Commit copies raw into the buffer of mode if that mode is still active.
// It reports false for samples that raced with a mode switch.
func (s *Sensor) Commit(mode int, raw []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Device.CurrentMode()
	if err != nil {
		return false, err
	}
	if current != mode {
		return false, nil
	}

	buf, err := s.Device.RawBuffer(mode)
	if err != nil {
		return false, err
	}
	copy(buf, raw)
	return true, nil
}

// Reading decodes the active mode's buffer.
func (s *Sensor) Reading() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.Device.Mode()
	if err != nil {
		return Reading{}, err
	}
	values, err := s.Device.Values()
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Mode:     m.Name,
		Units:    m.Units,
		Decimals: m.Decimals,
		Values:   values,
		Raw:      s.Device.ReadRaw(0, m.RawSize()),
		TakenAt:  time.Now(),
	}, nil
}

// Info returns the runtime summary used by the API.
func (s *Sensor) Info() types.SensorInfo {
	info := types.SensorInfo{
		ID:        s.ID,
		Name:      s.Name,
		Profile:   s.ProfileName,
		Driver:    s.Driver,
		Address:   s.Address,
		TypeID:    s.Device.TypeID(),
		Connected: s.Healthy(),
	}

	s.mu.Lock()
	if m, err := s.Device.Mode(); err == nil {
		info.Mode = m.Name
	}
	s.mu.Unlock()

	return info
}

// Healthy reports whether the last sample succeeded. Sensors without a
// sampler are always healthy.
func (s *Sensor) Healthy() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastErr == nil
}

func (s *Sensor) LastSample() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastSample
}

func (s *Sensor) recordSample(err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastSample = time.Now()
	}
}

func (s *Sensor) close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
