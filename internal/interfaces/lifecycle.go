package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/KevinKickass/OpenMachineSensors/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State          string `json:"state"`
	SensorCount    int    `json:"sensor_count"`
	HealthySensors int    `json:"healthy_sensors"`
	Persistence    bool   `json:"persistence"`
}

type LifecycleManager interface {
	Config() *config.Config
	// Storage is nil when the database is disabled.
	Storage() *storage.PostgresClient
	// Cache is nil when redis is disabled.
	Cache() *storage.RedisCache
	SensorManager() *devices.Manager
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
