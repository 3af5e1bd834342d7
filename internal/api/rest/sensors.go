package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/KevinKickass/OpenMachineSensors/internal/storage"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxSampleLimit = 1000

// lookupSensor resolves the :id parameter, a runtime UUID or a sensor name.
func (s *Server) lookupSensor(c *gin.Context) (*devices.Sensor, bool) {
	idStr := c.Param("id")
	manager := s.lm.SensorManager()

	var sensor *devices.Sensor
	var exists bool
	if sensorID, err := uuid.Parse(idStr); err == nil {
		sensor, exists = manager.GetSensor(sensorID)
	} else {
		sensor, exists = manager.GetSensorByName(idStr)
	}

	if !exists {
		s.writeError(c, "Sensor not found", fmt.Errorf("%w: %s", devices.ErrSensorNotFound, idStr))
		return nil, false
	}
	return sensor, true
}

// GET /api/v1/sensors
func (s *Server) listSensors(c *gin.Context) {
	sensors := s.lm.SensorManager().ListSensors()

	response := make([]types.SensorInfo, 0, len(sensors))
	for _, sensor := range sensors {
		response = append(response, sensor.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"sensors": response,
		"count":   len(response),
	})
}

// GET /api/v1/sensors/:id
func (s *Server) getSensor(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sensor":      sensor.Info(),
		"profile":     sensor.Profile.SensorProfile,
		"modes":       sensor.Profile.Modes,
		"attributes":  sensor.Attrs.Snapshot(),
		"last_sample": sensor.LastSample(),
	})
}

// GET /api/v1/sensors/:id/reading
func (s *Server) getReading(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	reading, err := sensor.Reading()
	if err != nil {
		s.writeError(c, "Failed to decode reading", err)
		return
	}
	c.JSON(http.StatusOK, reading)
}

// GET /api/v1/sensors/:id/samples?limit=
func (s *Server) getSamples(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSampleLimit {
			badRequest(c, "Invalid limit", fmt.Errorf("limit must be 1..%d", maxSampleLimit))
			return
		}
		limit = n
	}

	var samples []devices.Reading
	var err error
	switch {
	case s.lm.Storage() != nil:
		samples, err = s.lm.Storage().LatestSamples(c.Request.Context(), sensor.Name, limit)
	case s.lm.Cache() != nil:
		samples, err = s.lm.Cache().History(c.Request.Context(), sensor.Name, int64(limit))
	default:
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Sample history disabled", nil))
		return
	}
	if err != nil {
		s.writeError(c, "Failed to load samples", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sensor":  sensor.Name,
		"samples": samples,
		"count":   len(samples),
	})
}

type attachRequest struct {
	Name           string           `json:"name" binding:"required"`
	Profile        string           `json:"profile" binding:"required"`
	Driver         types.DriverKind `json:"driver"`
	Address        string           `json:"address"`
	UnitID         uint8            `json:"unit_id"`
	PollIntervalMs int              `json:"poll_interval_ms" binding:"gte=0"`
}

// POST /api/v1/sensors
func (s *Server) attachSensor(c *gin.Context) {
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	spec := devices.SensorSpec{
		Name:         req.Name,
		Profile:      req.Profile,
		Driver:       req.Driver,
		Address:      req.Address,
		UnitID:       req.UnitID,
		PollInterval: time.Duration(req.PollIntervalMs) * time.Millisecond,
	}

	sensor, err := s.lm.SensorManager().AttachAndPoll(spec, s.lm.Config().Modbus.DefaultPollInterval)
	if err != nil {
		s.writeError(c, "Failed to attach sensor", err)
		return
	}

	// Persist so the sensor is attached again after a restart
	if store := s.lm.Storage(); store != nil {
		_, err := store.SaveOrUpdateSensor(c.Request.Context(), storage.Sensor{
			SensorName:     sensor.Name,
			Profile:        sensor.ProfileName,
			Driver:         string(sensor.Driver),
			Address:        sensor.Address,
			UnitID:         req.UnitID,
			PollIntervalMs: req.PollIntervalMs,
			Enabled:        true,
		})
		if err != nil {
			s.logger.Warn("Failed to persist sensor",
				zap.String("sensor", sensor.Name),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"sensor":  sensor.Info(),
		"message": "Sensor attached",
	})
}

// DELETE /api/v1/sensors/:id
func (s *Server) detachSensor(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	if err := s.lm.SensorManager().Detach(sensor.ID); err != nil {
		s.writeError(c, "Failed to detach sensor", err)
		return
	}

	if store := s.lm.Storage(); store != nil {
		err := store.DeleteSensor(c.Request.Context(), sensor.Name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to delete persisted sensor",
				zap.String("sensor", sensor.Name),
				zap.Error(err))
		}
	}

	if cache := s.lm.Cache(); cache != nil {
		if err := cache.Forget(c.Request.Context(), sensor.Name); err != nil {
			s.logger.Warn("Failed to drop cached readings",
				zap.String("sensor", sensor.Name),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sensor detached",
	})
}
