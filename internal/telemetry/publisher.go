// Package telemetry publishes sensor readings to an MQTT broker.
//
// Readings go to <prefix>/sensors/<name>/reading as JSON. The connection
// state is kept retained on <prefix>/status, with a last will so
// subscribers see "offline" when the service disappears.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

var ErrNotConnected = errors.New("mqtt client not connected")

// Payload is the JSON document published per reading. Scaled holds the
// values divided by 10^decimals.
type Payload struct {
	Sensor    string    `json:"sensor"`
	Mode      string    `json:"mode"`
	Units     string    `json:"units,omitempty"`
	Decimals  uint      `json:"decimals"`
	Values    []int32   `json:"values"`
	Scaled    []float64 `json:"scaled"`
	Timestamp int64     `json:"ts"`
}

func NewPayload(sensorName string, r devices.Reading) Payload {
	scale := math.Pow10(int(r.Decimals))
	scaled := make([]float64, len(r.Values))
	for i, v := range r.Values {
		scaled[i] = float64(v) / scale
	}

	return Payload{
		Sensor:    sensorName,
		Mode:      r.Mode,
		Units:     r.Units,
		Decimals:  r.Decimals,
		Values:    r.Values,
		Scaled:    scaled,
		Timestamp: r.TakenAt.UnixMilli(),
	}
}

type Publisher struct {
	client   mqtt.Client
	prefix   string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	p := &Publisher{
		prefix:   cfg.TopicPrefix,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(p.timeout)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWriteTimeout(p.timeout)
	opts.SetWill(p.StatusTopic(), statusOffline, 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
		c.Publish(p.StatusTopic(), 1, true, statusOnline)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	p.client = mqtt.NewClient(opts)
	return p
}

// newPublisherWithClient is used by tests to inject a client.
func newPublisherWithClient(client mqtt.Client, prefix string, qos byte, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     qos,
		timeout: time.Second,
		logger:  logger,
	}
}

func (p *Publisher) StatusTopic() string {
	return p.prefix + "/status"
}

func (p *Publisher) ReadingTopic(sensorName string) string {
	return fmt.Sprintf("%s/sensors/%s/reading", p.prefix, sensorName)
}

// Connect blocks until the broker accepted the connection or the timeout
// expired.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt connect timed out after %s", p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}
	return nil
}

// Publish sends one reading. It implements storage.SampleStore through
// storage.SampleStoreFunc so a Recorder can queue it.
func (p *Publisher) Publish(ctx context.Context, sensorName string, r devices.Reading) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(NewPayload(sensorName, r))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := p.client.Publish(p.ReadingTopic(sensorName), p.qos, p.retained, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish reading of %s: %w", sensorName, err)
	}
	return nil
}

// Close marks the service offline and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Publish(p.StatusTopic(), 1, true, statusOffline).WaitTimeout(p.timeout)
	}
	p.client.Disconnect(250)
}
