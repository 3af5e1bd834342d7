package devices

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingListener struct {
	mu       sync.Mutex
	attached []string
	detached []string
	readings []Reading
	failures []error
}

func (r *recordingListener) SensorAttached(s *Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached = append(r.attached, s.Name)
}

func (r *recordingListener) SensorDetached(s *Sensor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, s.Name)
}

func (r *recordingListener) SampleTaken(_ *Sensor, reading Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, reading)
}

func (r *recordingListener) SampleFailed(_ *Sensor, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recordingListener) readingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readings)
}

func newTestManager(t *testing.T) (*Manager, *recordingListener) {
	t.Helper()
	m, err := NewManager([]string{profileDir(t)}, time.Second, zap.NewNop())
	require.NoError(t, err)

	l := &recordingListener{}
	m.AddListener(l)
	return m, l
}

func TestManagerAttachDetach(t *testing.T) {
	m, l := newTestManager(t)

	s, err := m.Attach(SensorSpec{Name: "front", Profile: "lego/ev3-ultrasonic"})
	require.NoError(t, err)
	assert.Equal(t, types.DriverSim, s.Driver)
	assert.Equal(t, 30, s.Device.TypeID())
	assert.Equal(t, 3, s.Device.NumModes())

	got, ok := m.GetSensor(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, err = m.Attach(SensorSpec{Name: "front", Profile: "lego/ev3-color"})
	assert.ErrorIs(t, err, ErrSensorExists)

	_, err = m.Attach(SensorSpec{Name: "side", Profile: "lego/ev3-color"})
	require.NoError(t, err)

	sensors := m.ListSensors()
	require.Len(t, sensors, 2)
	assert.Equal(t, "front", sensors[0].Name)
	assert.Equal(t, "side", sensors[1].Name)

	require.NoError(t, m.Detach(s.ID))
	assert.ErrorIs(t, m.Detach(s.ID), ErrSensorNotFound)

	_, ok = m.GetSensorByName("front")
	assert.False(t, ok)

	assert.Equal(t, []string{"front", "side"}, l.attached)
	assert.Equal(t, []string{"front"}, l.detached)

	require.NoError(t, m.StopAll(context.Background()))
	assert.Empty(t, m.ListSensors())
}

func TestManagerAttachErrors(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Attach(SensorSpec{Name: "x", Profile: "lego/missing"})
	assert.Error(t, err)

	_, err = m.Attach(SensorSpec{Name: "x", Profile: "lego/ev3-color", Driver: types.DriverModbus})
	assert.Error(t, err, "modbus without address")

	_, err = m.Attach(SensorSpec{Name: "x", Profile: "lego/ev3-color", Driver: "i2c"})
	assert.Error(t, err)

	assert.Empty(t, m.ListSensors())
}

func TestAttachProfileClosesDriverOnInvalidTable(t *testing.T) {
	m, _ := newTestManager(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := lis.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	profile := &types.SensorProfileDefinition{
		SensorProfile: types.SensorProfileInfo{ID: "dup", Vendor: "v", Model: "m", TypeID: 1},
		Connection:    &types.ConnectionConfig{Protocol: "modbus_tcp"},
		Modes: []types.ModeDefinition{
			{Name: "A", DataSets: 1, Format: types.DataFormatS16},
			{Name: "A", DataSets: 1, Format: types.DataFormatS16},
		},
	}

	_, err = m.AttachProfile(SensorSpec{Name: "dup", Address: lis.Addr().String()}, profile)
	require.ErrorIs(t, err, msensor.ErrInvalidTable)
	assert.Empty(t, m.ListSensors())

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("driver never connected")
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF, "driver connection left open")
}

func TestSensorsDoNotShareBuffers(t *testing.T) {
	m, _ := newTestManager(t)

	a, err := m.Attach(SensorSpec{Name: "a", Profile: "lego/ev3-color"})
	require.NoError(t, err)
	b, err := m.Attach(SensorSpec{Name: "b", Profile: "lego/ev3-color"})
	require.NoError(t, err)

	raw := make([]byte, msensor.RawDataSize)
	raw[0] = 77
	ok, err := a.Commit(0, raw)
	require.NoError(t, err)
	require.True(t, ok)

	va, err := a.Device.Value(0)
	require.NoError(t, err)
	vb, err := b.Device.Value(0)
	require.NoError(t, err)
	assert.Equal(t, int32(77), va)
	assert.Equal(t, int32(0), vb)
}

func TestPollerPollCommitsSample(t *testing.T) {
	m, l := newTestManager(t)

	s, err := m.Attach(SensorSpec{Name: "color", Profile: "lego/ev3-color"})
	require.NoError(t, err)
	require.NoError(t, s.Attrs.Set("mode", "RGB-RAW"))

	p := NewPoller(s, 100*time.Millisecond, zap.NewNop(), m.currentListeners)
	p.Poll()
	p.Poll()

	require.Len(t, l.readings, 2)
	r := l.readings[1]
	assert.Equal(t, "RGB-RAW", r.Mode)
	require.Len(t, r.Values, 3)
	// second ramp step of 0..1020 over 16 samples
	assert.Equal(t, int32(68), r.Values[0])
	assert.Equal(t, int32(136), r.Values[1])
	assert.Len(t, r.Raw, 6)
	assert.True(t, s.Healthy())
	assert.False(t, s.LastSample().IsZero())
}

// racingDriver reports samples for a mode other than the active one.
type racingDriver struct {
	mode       int
	sampleMode int
	err        error
}

func (d *racingDriver) Mode() int                                   { return d.mode }
func (d *racingDriver) SetMode(index int) error                     { d.mode = index; return nil }
func (d *racingDriver) WriteData(data []byte, _ int64) (int, error) { return len(data), nil }

func (d *racingDriver) Sample(context.Context) (int, []byte, error) {
	if d.err != nil {
		return 0, nil, d.err
	}
	raw := make([]byte, msensor.RawDataSize)
	raw[0] = 5
	return d.sampleMode, raw, nil
}

func newRacingSensor(t *testing.T, drv *racingDriver) *Sensor {
	t.Helper()
	modes := []msensor.Mode{
		{Name: "A", DataSets: 1, Format: msensor.FormatS8},
		{Name: "B", DataSets: 1, Format: msensor.FormatS8},
	}
	profile := &types.SensorProfileDefinition{SensorProfile: types.SensorProfileInfo{ID: "race", TypeID: 1}}
	s, err := newSensor(SensorSpec{Name: "race"}, profile, modes, drv)
	require.NoError(t, err)
	return s
}

func TestPollerDropsSampleAfterModeSwitch(t *testing.T) {
	drv := &racingDriver{sampleMode: 1}
	s := newRacingSensor(t, drv)
	l := &recordingListener{}

	p := NewPoller(s, 100*time.Millisecond, zap.NewNop(), func() []Listener { return []Listener{l} })
	p.Poll()

	assert.Empty(t, l.readings)
	assert.Empty(t, l.failures)
	v, err := s.Device.Value(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), v)

	drv.sampleMode = 0
	p.Poll()
	require.Len(t, l.readings, 1)
	assert.Equal(t, []int32{5}, l.readings[0].Values)
}

func TestPollerReportsFailure(t *testing.T) {
	drv := &racingDriver{err: errors.New("bus timeout")}
	s := newRacingSensor(t, drv)
	l := &recordingListener{}

	p := NewPoller(s, 100*time.Millisecond, zap.NewNop(), func() []Listener { return []Listener{l} })
	p.Poll()

	require.Len(t, l.failures, 1)
	assert.False(t, s.Healthy())
	assert.False(t, s.Info().Connected)
}

func TestManagerStartPoller(t *testing.T) {
	m, l := newTestManager(t)

	s, err := m.Attach(SensorSpec{Name: "dist", Profile: "lego/ev3-ultrasonic"})
	require.NoError(t, err)

	require.NoError(t, m.StartPoller(s.ID, 10*time.Millisecond))
	require.NoError(t, m.StartPoller(s.ID, 10*time.Millisecond))

	assert.Eventually(t, func() bool { return l.readingCount() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Detach(s.ID))
	assert.Error(t, m.StartPoller(s.ID, 10*time.Millisecond))
}

func TestManagerAttachAndPoll(t *testing.T) {
	m, l := newTestManager(t)

	s, err := m.AttachAndPoll(SensorSpec{Name: "color", Profile: "lego/ev3-color"}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return l.readingCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = m.AttachAndPoll(SensorSpec{Name: "color", Profile: "lego/ev3-color"}, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrSensorExists)

	_, err = m.AttachAndPoll(SensorSpec{Name: "bad", Profile: "lego/ev3-color"}, 0)
	assert.Error(t, err, "no interval")
	_, ok := m.GetSensorByName("bad")
	assert.False(t, ok)

	require.NoError(t, m.StopAll(context.Background()))
	_, ok = m.GetSensor(s.ID)
	assert.False(t, ok)
}
