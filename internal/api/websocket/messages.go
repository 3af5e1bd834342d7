package websocket

import (
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Sensor-related messages
	MessageTypeSensorValues   MessageType = "sensor_values"
	MessageTypeSensorAttached MessageType = "sensor_attached"
	MessageTypeSensorDetached MessageType = "sensor_detached"
	MessageTypeSensorError    MessageType = "sensor_error"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Client handshake
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeSubscribe   MessageType = "subscribe"
)

// Message represents a WebSocket message. Sensor is set for sensor messages
// and used to filter subscriptions.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Sensor    string      `json:"sensor,omitempty"`
	Data      interface{} `json:"data"`
}

// SensorValuesData is one decoded sample.
type SensorValuesData struct {
	SensorID string    `json:"sensor_id"`
	Mode     string    `json:"mode"`
	Units    string    `json:"units,omitempty"`
	Decimals uint      `json:"decimals"`
	Values   []int32   `json:"values"`
	TakenAt  time.Time `json:"taken_at"`
}

// SensorData describes an attached or detached sensor.
type SensorData struct {
	SensorID string `json:"sensor_id"`
	Profile  string `json:"profile"`
	TypeID   int    `json:"type_id"`
	Driver   string `json:"driver"`
}

type SensorErrorData struct {
	SensorID string `json:"sensor_id"`
	Error    string `json:"error"`
}

// clientMessage is what clients send: an auth token or a subscription.
type clientMessage struct {
	Type    MessageType `json:"type"`
	Token   string      `json:"token,omitempty"`
	Sensors []string    `json:"sensors,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewSensorValuesMessage(s *devices.Sensor, r devices.Reading) Message {
	msg := NewMessage(MessageTypeSensorValues, SensorValuesData{
		SensorID: s.ID.String(),
		Mode:     r.Mode,
		Units:    r.Units,
		Decimals: r.Decimals,
		Values:   r.Values,
		TakenAt:  r.TakenAt,
	})
	msg.Sensor = s.Name
	return msg
}

func NewSensorMessage(msgType MessageType, s *devices.Sensor) Message {
	msg := NewMessage(msgType, SensorData{
		SensorID: s.ID.String(),
		Profile:  s.ProfileName,
		TypeID:   s.Device.TypeID(),
		Driver:   string(s.Driver),
	})
	msg.Sensor = s.Name
	return msg
}

func NewSensorErrorMessage(s *devices.Sensor, err error) Message {
	msg := NewMessage(MessageTypeSensorError, SensorErrorData{
		SensorID: s.ID.String(),
		Error:    err.Error(),
	})
	msg.Sensor = s.Name
	return msg
}
