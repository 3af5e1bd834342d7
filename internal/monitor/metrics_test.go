package monitor

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsFollowSensorEvents(t *testing.T) {
	m := NewMetrics()
	s := &devices.Sensor{Name: "front"}

	m.SensorAttached(s)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SensorsAttached))

	r := devices.Reading{Mode: "US-DIST-CM", Units: "cm", Decimals: 1, Values: []int32{1234}, TakenAt: time.Unix(100, 0)}
	m.SampleTaken(s, r)
	m.SampleTaken(s, r)
	m.SampleFailed(s, errors.New("timeout"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Samples.WithLabelValues("front", "US-DIST-CM")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SampleErrors.WithLabelValues("front")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.LastSample.WithLabelValues("front")))
	assert.InDelta(t, 123.4, testutil.ToFloat64(m.Values.WithLabelValues("front", "US-DIST-CM", "0", "cm")), 1e-9)

	// switching modes replaces the value series
	m.SampleTaken(s, devices.Reading{Mode: "US-LISTEN", Values: []int32{1}})
	assert.Equal(t, 1, testutil.CollectAndCount(m.Values))

	m.SensorDetached(s)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SensorsAttached))
	assert.Equal(t, 0, testutil.CollectAndCount(m.Values))
	assert.Equal(t, 0, testutil.CollectAndCount(m.Samples))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.SampleTaken(&devices.Sensor{Name: "belt"}, devices.Reading{Mode: "COL-REFLECT", Values: []int32{42}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `oms_samples_total{mode="COL-REFLECT",sensor="belt"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
