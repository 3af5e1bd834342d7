package storage

import (
	"testing"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingPayload(t *testing.T) {
	r := devices.Reading{
		Mode:     "RGB-RAW",
		Decimals: 0,
		Values:   []int32{12, -7, 1020},
		Raw:      []byte{12, 0, 0xF9, 0xFF, 0xFC, 0x03},
		TakenAt:  time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
	}

	data, err := EncodeReading(r)
	require.NoError(t, err)

	// integer keys keep payloads small: no field names on the wire
	assert.NotContains(t, string(data), "values")

	again, err := EncodeReading(r)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")

	got, err := DecodeReading(data)
	require.NoError(t, err)
	assert.Equal(t, r.Mode, got.Mode)
	assert.Equal(t, r.Values, got.Values)
	assert.Equal(t, r.Raw, got.Raw)
	assert.True(t, r.TakenAt.Equal(got.TakenAt))
	assert.Empty(t, got.Units)
}

func TestDecodeReadingRejectsGarbage(t *testing.T) {
	_, err := DecodeReading([]byte{0xFF, 0x00})
	assert.Error(t, err)
}
