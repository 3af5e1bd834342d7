package system

import (
	"sync"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const sensorServicePrefix = "sensor/"

// HealthReporter publishes one gRPC health service per sensor. A sensor is
// SERVING after a successful sample and NOT_SERVING after a failed one.
type HealthReporter struct {
	server *health.Server

	mu   sync.Mutex
	last map[string]healthpb.HealthCheckResponse_ServingStatus
}

var _ devices.Listener = (*HealthReporter)(nil)

func NewHealthReporter(server *health.Server) *HealthReporter {
	return &HealthReporter{
		server: server,
		last:   make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
}

// ServiceName is the health service name of a sensor.
func ServiceName(sensorName string) string {
	return sensorServicePrefix + sensorName
}

func (h *HealthReporter) set(sensorName string, status healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.last[sensorName]; ok && last == status {
		return
	}
	h.last[sensorName] = status
	h.server.SetServingStatus(ServiceName(sensorName), status)
}

func (h *HealthReporter) SensorAttached(s *devices.Sensor) {
	h.set(s.Name, healthpb.HealthCheckResponse_UNKNOWN)
}

func (h *HealthReporter) SensorDetached(s *devices.Sensor) {
	h.set(s.Name, healthpb.HealthCheckResponse_NOT_SERVING)

	h.mu.Lock()
	delete(h.last, s.Name)
	h.mu.Unlock()
}

func (h *HealthReporter) SampleTaken(s *devices.Sensor, _ devices.Reading) {
	h.set(s.Name, healthpb.HealthCheckResponse_SERVING)
}

func (h *HealthReporter) SampleFailed(s *devices.Sensor, _ error) {
	h.set(s.Name, healthpb.HealthCheckResponse_NOT_SERVING)
}
