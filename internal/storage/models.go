package storage

import (
	"time"

	"github.com/google/uuid"
)

// Sensor is a persisted sensor registration. Sensors attached through the
// API are stored so they are attached again after a restart.
type Sensor struct {
	ID             uuid.UUID `json:"id"`
	SensorName     string    `json:"sensor_name"`
	Profile        string    `json:"profile"`
	Driver         string    `json:"driver"`
	Address        string    `json:"address"`
	UnitID         uint8     `json:"unit_id"`
	PollIntervalMs int       `json:"poll_interval_ms"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Sample is a recorded reading. Payload holds the CBOR encoded reading.
type Sample struct {
	ID       int64     `json:"id"`
	SensorID uuid.UUID `json:"sensor_id"`
	Mode     string    `json:"mode"`
	Payload  []byte    `json:"-"`
	TakenAt  time.Time `json:"taken_at"`
}
