package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// SaveOrUpdateSensor upserts a sensor registration by name
func (p *PostgresClient) SaveOrUpdateSensor(ctx context.Context, s Sensor) (uuid.UUID, error) {
	var sensorID uuid.UUID
	err := p.pool.QueryRow(ctx, `
		INSERT INTO sensors (sensor_name, profile, driver, address, unit_id, poll_interval_ms, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sensor_name)
		DO UPDATE SET
			profile = EXCLUDED.profile,
			driver = EXCLUDED.driver,
			address = EXCLUDED.address,
			unit_id = EXCLUDED.unit_id,
			poll_interval_ms = EXCLUDED.poll_interval_ms,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING id
	`, s.SensorName,
		s.Profile,
		s.Driver,
		s.Address,
		int16(s.UnitID),
		s.PollIntervalMs,
		s.Enabled,
	).Scan(&sensorID)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert sensor: %w", err)
	}

	return sensorID, nil
}

// LoadAllSensors loads all enabled sensor registrations
func (p *PostgresClient) LoadAllSensors(ctx context.Context) ([]Sensor, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, sensor_name, profile, driver, address, unit_id,
			poll_interval_ms, enabled, created_at, updated_at
		FROM sensors
		WHERE enabled = true
		ORDER BY sensor_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := make([]Sensor, 0)

	for rows.Next() {
		var s Sensor
		var unitID int16

		err := rows.Scan(&s.ID, &s.SensorName, &s.Profile, &s.Driver, &s.Address, &unitID,
			&s.PollIntervalMs, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		s.UnitID = uint8(unitID)

		sensors = append(sensors, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}

	return sensors, nil
}

// DeleteSensor removes a sensor and its samples
func (p *PostgresClient) DeleteSensor(ctx context.Context, name string) error {
	result, err := p.pool.Exec(ctx, `
		DELETE FROM sensors
		WHERE sensor_name = $1
	`, name)

	if err != nil {
		return fmt.Errorf("failed to delete sensor: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: sensor %s", ErrNotFound, name)
	}

	return nil
}

// SaveSample records one reading of the named sensor
func (p *PostgresClient) SaveSample(ctx context.Context, sensorName string, r devices.Reading) error {
	payload, err := EncodeReading(r)
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}

	result, err := p.pool.Exec(ctx, `
		INSERT INTO sensor_samples (sensor_id, mode, payload, taken_at)
		SELECT id, $2, $3, $4 FROM sensors WHERE sensor_name = $1
	`, sensorName, r.Mode, payload, r.TakenAt)

	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: sensor %s", ErrNotFound, sensorName)
	}

	return nil
}

// LatestSamples returns up to limit readings of the named sensor, newest first
func (p *PostgresClient) LatestSamples(ctx context.Context, sensorName string, limit int) ([]devices.Reading, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT ss.payload
		FROM sensor_samples ss
		JOIN sensors s ON s.id = ss.sensor_id
		WHERE s.sensor_name = $1
		ORDER BY ss.taken_at DESC
		LIMIT $2
	`, sensorName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	readings := make([]devices.Reading, 0, limit)

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		r, err := DecodeReading(payload)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	return readings, nil
}
