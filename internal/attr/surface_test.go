package attr

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/KevinKickass/OpenMachineSensors/internal/msensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDriver struct {
	mode    int
	reject  bool
	written []byte
}

func (s *stubDriver) Mode() int { return s.mode }

func (s *stubDriver) SetMode(index int) error {
	if s.reject {
		return errors.New("rejected")
	}
	s.mode = index
	return nil
}

func (s *stubDriver) WriteData(data []byte, offset int64) (int, error) {
	if offset >= BinDataSize {
		return 0, errors.New("offset out of range")
	}
	s.written = append(s.written[:0], data...)
	return len(data), nil
}

func newColorSurface(t *testing.T) (*Surface, *msensor.Device, *stubDriver) {
	t.Helper()

	modes := []msensor.Mode{
		{
			Name:     "COL-REFLECT",
			DataSets: 1,
			Format:   msensor.FormatS8,
			RawMax:   math.Float32bits(100),
			PctMax:   math.Float32bits(100),
			SIMax:    math.Float32bits(100),
			Units:    "pct",
		},
		{
			Name:     "RGB-RAW",
			DataSets: 3,
			Format:   msensor.FormatS16,
			RawMax:   math.Float32bits(1020),
			PctMax:   math.Float32bits(100),
			SIMax:    math.Float32bits(1020),
		},
		{
			Name:     "TEMP",
			Decimals: 1,
			DataSets: 1,
			Format:   msensor.FormatFloat,
			RawMin:   math.Float32bits(-20),
			RawMax:   math.Float32bits(60),
			SIMin:    math.Float32bits(-20),
			SIMax:    math.Float32bits(60),
			PctMax:   math.Float32bits(100),
			Units:    "C",
		},
	}

	drv := &stubDriver{}
	dev, err := msensor.NewDevice(29, modes, drv)
	require.NoError(t, err)

	return New(dev, &sync.Mutex{}), dev, drv
}

func TestSurfaceGet(t *testing.T) {
	s, dev, _ := newColorSurface(t)
	raw, err := dev.RawBuffer(0)
	require.NoError(t, err)
	raw[0] = 42

	tests := []struct {
		name string
		want string
	}{
		{TypeID, "29"},
		{Mode, "[COL-REFLECT] RGB-RAW TEMP"},
		{Modes, "COL-REFLECT RGB-RAW TEMP"},
		{"raw_min", "0"},
		{"raw_max", "100"},
		{"pct_max", "100"},
		{"si_max", "100"},
		{SIUnits, "pct"},
		{DP, "0"},
		{NumValues, "1"},
		{BinDataFormat, "s8"},
		{"value0", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSurfaceValueBeyondNumValues(t *testing.T) {
	s, _, _ := newColorSurface(t)

	_, err := s.Get("value1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, msensor.ErrIndexOutOfRange)

	for _, name := range []string{"value", "value8", "value-1", "value+1", "valuex", "bogus", BinData} {
		_, err := s.Get(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestSurfaceSetMode(t *testing.T) {
	s, dev, drv := newColorSurface(t)

	require.NoError(t, s.Set(Mode, "TEMP\n"))
	assert.Equal(t, 2, drv.mode)

	raw, err := dev.RawBuffer(2)
	require.NoError(t, err)
	raw[0], raw[1], raw[2], raw[3] = 0x00, 0x00, 0xBC, 0x41 // 23.5

	got, err := s.Get("value0")
	require.NoError(t, err)
	assert.Equal(t, "235", got)

	got, err = s.Get("raw_min")
	require.NoError(t, err)
	assert.Equal(t, "-200", got)

	got, err = s.Get(BinDataFormat)
	require.NoError(t, err)
	assert.Equal(t, "float", got)

	err = s.Set(Mode, "COLOR")
	assert.ErrorIs(t, err, msensor.ErrInvalidMode)
	assert.Equal(t, 2, drv.mode)

	drv.reject = true
	err = s.Set(Mode, "RGB-RAW")
	assert.ErrorIs(t, err, msensor.ErrDriverRejected)
	assert.Equal(t, 2, drv.mode)
}

func TestSurfaceSetReadOnly(t *testing.T) {
	s, _, _ := newColorSurface(t)

	assert.ErrorIs(t, s.Set(TypeID, "1"), ErrReadOnly)
	assert.ErrorIs(t, s.Set("value0", "1"), ErrReadOnly)
	assert.ErrorIs(t, s.Set(BinData, "1"), ErrReadOnly)
	assert.ErrorIs(t, s.Set("bogus", "1"), ErrNotFound)
}

func TestSurfaceBinary(t *testing.T) {
	s, dev, drv := newColorSurface(t)
	require.NoError(t, s.Set(Mode, "RGB-RAW"))

	raw, err := dev.RawBuffer(1)
	require.NoError(t, err)
	copy(raw, []byte{1, 0, 2, 0, 3, 0})

	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, s.ReadBinary(0, 6))
	assert.Len(t, s.ReadBinary(0, 64), BinDataSize)
	assert.Empty(t, s.ReadBinary(BinDataSize, 1))

	n, err := s.WriteBinary(0, []byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{9, 9}, drv.written)

	_, err = s.WriteBinary(BinDataSize, []byte{1})
	assert.ErrorIs(t, err, msensor.ErrDriverRejected)
}

func TestSurfaceSnapshot(t *testing.T) {
	s, _, _ := newColorSurface(t)
	require.NoError(t, s.Set(Mode, "RGB-RAW"))

	snap := s.Snapshot()
	assert.Equal(t, "3", snap[NumValues])
	assert.Contains(t, snap, "value2")
	assert.NotContains(t, snap, "value3")
	assert.NotContains(t, snap, BinData)
}

type countingLocker struct {
	sync.Mutex
	locks int
}

func (l *countingLocker) Lock() {
	l.Mutex.Lock()
	l.locks++
}

func TestSurfaceSnapshotSingleLock(t *testing.T) {
	_, dev, _ := newColorSurface(t)
	l := &countingLocker{}
	s := New(dev, l)
	require.NoError(t, s.Set(Mode, "RGB-RAW"))

	l.locks = 0
	snap := s.Snapshot()
	assert.Equal(t, 1, l.locks)
	assert.Equal(t, "RGB-RAW", snap[Mode])
	assert.Equal(t, "3", snap[NumValues])
}

func TestSurfaceSnapshotConsistentDuringModeSwitch(t *testing.T) {
	s, _, _ := newColorSurface(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			mode := "RGB-RAW"
			if i%2 == 0 {
				mode = "COL-REFLECT"
			}
			_ = s.Set(Mode, mode)
		}
	}()

	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		switch snap[Mode] {
		case "RGB-RAW":
			assert.Equal(t, "3", snap[NumValues])
			assert.Contains(t, snap, "value2")
		case "COL-REFLECT":
			assert.Equal(t, "1", snap[NumValues])
			assert.NotContains(t, snap, "value1")
		}
	}
	<-done
}

func TestList(t *testing.T) {
	infos := List()
	assert.Len(t, infos, 3+6+4+msensor.MaxValues+1)

	info, err := Lookup(Mode)
	require.NoError(t, err)
	assert.Equal(t, "RW", info.Access.String())

	info, err = Lookup("value7")
	require.NoError(t, err)
	assert.Equal(t, "R", info.Access.String())

	_, err = Lookup("value8")
	assert.ErrorIs(t, err, ErrNotFound)
}
