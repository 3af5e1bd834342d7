package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/drivers/sim"
	"github.com/KevinKickass/OpenMachineSensors/internal/modbus"
	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSensorNotFound = errors.New("sensor not found")
	ErrSensorExists   = errors.New("sensor already attached")
)

// Listener is notified about sensor lifecycle and samples. Calls come from
// poller goroutines and must not block.
type Listener interface {
	SensorAttached(s *Sensor)
	SensorDetached(s *Sensor)
	SampleTaken(s *Sensor, r Reading)
	SampleFailed(s *Sensor, err error)
}

// NopListener can be embedded to implement only part of Listener.
type NopListener struct{}

func (NopListener) SensorAttached(*Sensor)       {}
func (NopListener) SensorDetached(*Sensor)       {}
func (NopListener) SampleTaken(*Sensor, Reading) {}
func (NopListener) SampleFailed(*Sensor, error)  {}

// SensorSpec describes a sensor to attach.
type SensorSpec struct {
	Name         string
	Profile      string
	Driver       types.DriverKind
	Address      string
	UnitID       uint8
	PollInterval time.Duration
}

type Manager struct {
	loader        *ProfileLoader
	composer      *Composer
	modbusTimeout time.Duration
	sensors       map[uuid.UUID]*Sensor
	pollers       map[uuid.UUID]*Poller
	listeners     []Listener
	mu            sync.RWMutex
	logger        *zap.Logger
}

func NewManager(searchPaths []string, modbusTimeout time.Duration, logger *zap.Logger) (*Manager, error) {
	loader, err := NewProfileLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	return &Manager{
		loader:        loader,
		composer:      NewComposer(logger),
		modbusTimeout: modbusTimeout,
		sensors:       make(map[uuid.UUID]*Sensor),
		pollers:       make(map[uuid.UUID]*Poller),
		logger:        logger,
	}, nil
}

func (m *Manager) Loader() *ProfileLoader {
	return m.loader
}

// AddListener registers l for all sensors attached from now on.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) currentListeners() []Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listeners
}

// Attach loads the profile, builds the mode table and driver and registers
// the sensor. Polling is started separately.
func (m *Manager) Attach(spec SensorSpec) (*Sensor, error) {
	if _, exists := m.GetSensorByName(spec.Name); exists {
		return nil, fmt.Errorf("%w: %s", ErrSensorExists, spec.Name)
	}

	profile, err := m.loader.Load(spec.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", spec.Profile, err)
	}

	return m.AttachProfile(spec, profile)
}

// AttachProfile is Attach with an already loaded profile.
func (m *Manager) AttachProfile(spec SensorSpec, profile *types.SensorProfileDefinition) (*Sensor, error) {
	if spec.Driver == "" {
		spec.Driver = types.DriverSim
		if profile.Connection != nil {
			spec.Driver = types.DriverModbus
		}
	}

	modes, err := m.composer.ComposeModes(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to compose modes: %w", err)
	}

	driver, err := m.newDriver(spec, profile)
	if err != nil {
		return nil, err
	}

	sensor, err := newSensor(spec, profile, modes, driver)
	if err != nil {
		if c, ok := driver.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}

	m.mu.Lock()
	for _, existing := range m.sensors {
		if existing.Name == spec.Name {
			m.mu.Unlock()
			_ = sensor.close()
			return nil, fmt.Errorf("%w: %s", ErrSensorExists, spec.Name)
		}
	}
	m.sensors[sensor.ID] = sensor
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l.SensorAttached(sensor)
	}

	m.logger.Info("Sensor attached",
		zap.String("name", sensor.Name),
		zap.String("profile", spec.Profile),
		zap.String("driver", string(spec.Driver)),
		zap.Int("modes", sensor.Device.NumModes()))

	return sensor, nil
}

func (m *Manager) newDriver(spec SensorSpec, profile *types.SensorProfileDefinition) (msensor.Driver, error) {
	switch spec.Driver {
	case types.DriverSim:
		return sim.NewDriver(profile.Modes), nil

	case types.DriverModbus:
		if spec.Address == "" {
			return nil, fmt.Errorf("modbus sensor %s needs an address", spec.Name)
		}
		timeout := m.modbusTimeout
		if profile.Connection != nil && profile.Connection.TimeoutMs > 0 {
			timeout = time.Duration(profile.Connection.TimeoutMs) * time.Millisecond
		}
		driver := modbus.NewSensorDriver(spec.Address, spec.UnitID, profile, timeout)
		if err := driver.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect sensor %s: %w", spec.Name, err)
		}
		return driver, nil
	}

	return nil, fmt.Errorf("unknown driver: %q", spec.Driver)
}

// AttachAndPoll attaches a sensor and starts sampling it. The interval is
// taken from the spec, then the profile, then defaultInterval.
func (m *Manager) AttachAndPoll(spec SensorSpec, defaultInterval time.Duration) (*Sensor, error) {
	sensor, err := m.Attach(spec)
	if err != nil {
		return nil, err
	}

	interval := spec.PollInterval
	if interval <= 0 && sensor.Profile.Connection != nil && sensor.Profile.Connection.PollIntervalMs > 0 {
		interval = time.Duration(sensor.Profile.Connection.PollIntervalMs) * time.Millisecond
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	if err := m.StartPoller(sensor.ID, interval); err != nil {
		_ = m.Detach(sensor.ID)
		return nil, err
	}
	return sensor, nil
}

// StartPoller starts sampling a sensor
func (m *Manager) StartPoller(sensorID uuid.UUID, interval time.Duration) error {
	m.mu.RLock()
	sensor, exists := m.sensors[sensorID]
	_, running := m.pollers[sensorID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, sensorID)
	}
	if running {
		return nil
	}

	poller := NewPoller(sensor, interval, m.logger, m.currentListeners)
	if err := poller.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	m.mu.Lock()
	m.pollers[sensorID] = poller
	m.mu.Unlock()

	return nil
}

// Detach stops polling, closes the driver and forgets the sensor.
func (m *Manager) Detach(sensorID uuid.UUID) error {
	m.mu.Lock()
	sensor, exists := m.sensors[sensorID]
	poller := m.pollers[sensorID]
	delete(m.sensors, sensorID)
	delete(m.pollers, sensorID)
	listeners := m.listeners
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, sensorID)
	}

	if poller != nil {
		poller.Stop()
	}
	if err := sensor.close(); err != nil {
		m.logger.Warn("Failed to close driver",
			zap.String("sensor", sensor.Name),
			zap.Error(err))
	}

	for _, l := range listeners {
		l.SensorDetached(sensor)
	}

	m.logger.Info("Sensor detached", zap.String("name", sensor.Name))
	return nil
}

// GetSensor returns sensor by ID
func (m *Manager) GetSensor(sensorID uuid.UUID) (*Sensor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sensor, exists := m.sensors[sensorID]
	return sensor, exists
}

// GetSensorByName returns sensor by name
func (m *Manager) GetSensorByName(name string) (*Sensor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sensor := range m.sensors {
		if sensor.Name == name {
			return sensor, true
		}
	}

	return nil, false
}

// ListSensors returns all sensors ordered by name
func (m *Manager) ListSensors() []*Sensor {
	m.mu.RLock()
	sensors := make([]*Sensor, 0, len(m.sensors))
	for _, sensor := range m.sensors {
		sensors = append(sensors, sensor)
	}
	m.mu.RUnlock()

	sort.Slice(sensors, func(i, j int) bool {
		return sensors[i].Name < sensors[j].Name
	})
	return sensors
}

// StopAll stops all pollers and detaches all sensors
func (m *Manager) StopAll(ctx context.Context) error {
	for _, sensor := range m.ListSensors() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Detach(sensor.ID); err != nil {
			m.logger.Error("Failed to detach sensor",
				zap.String("sensor", sensor.Name),
				zap.Error(err))
		}
	}

	return nil
}
