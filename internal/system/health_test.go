package system

import (
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func check(t *testing.T, server *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporterFollowsSamples(t *testing.T) {
	server := health.NewServer()
	reporter := NewHealthReporter(server)
	sensor := &devices.Sensor{Name: "front"}

	reporter.SensorAttached(sensor)
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, check(t, server, "sensor/front"))

	reporter.SampleTaken(sensor, devices.Reading{})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, server, "sensor/front"))

	reporter.SampleFailed(sensor, errors.New("timeout"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, server, "sensor/front"))

	reporter.SampleTaken(sensor, devices.Reading{})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, server, "sensor/front"))

	reporter.SensorDetached(sensor)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, server, "sensor/front"))
}

func TestHealthReporterUnknownSensor(t *testing.T) {
	server := health.NewServer()
	NewHealthReporter(server)

	_, err := server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName("missing")})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
