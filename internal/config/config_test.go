package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  http_port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 50051, cfg.Server.GRPCPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, time.Second, cfg.Modbus.DefaultTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Modbus.DefaultPollInterval)
	assert.Equal(t, []string{"./profiles"}, cfg.Profiles.SearchPaths)
	assert.Empty(t, cfg.Sensors)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, int64(100), cfg.Redis.History)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "oms", cfg.MQTT.TopicPrefix)
}

func TestLoadSensors(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
profiles:
  search_paths: [./profiles, /etc/oms/profiles]
sensors:
  - name: front
    profile: lego/ev3-ultrasonic
    driver: sim
    poll_interval: 250ms
  - name: line
    profile: vendor/color-bus
    driver: modbus
    address: 10.0.0.5:502
    unit_id: 3
`))
	require.NoError(t, err)

	require.Len(t, cfg.Sensors, 2)
	assert.Equal(t, "front", cfg.Sensors[0].Name)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval(cfg.Sensors[0]))
	assert.Equal(t, uint8(3), cfg.Sensors[1].UnitID)
	assert.Equal(t, "10.0.0.5:502", cfg.Sensors[1].Address)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval(cfg.Sensors[1]))
	assert.Len(t, cfg.Profiles.SearchPaths, 2)
}

func TestLoadRejectsDuplicateSensors(t *testing.T) {
	_, err := Load(writeConfig(t, `
sensors:
  - {name: a, profile: p}
  - {name: a, profile: q}
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "sensors:\n  - {name: a}\n"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OMS_SERVER_HTTP_PORT", "7070")
	t.Setenv("OMS_AUTH_ENABLED", "true")
	t.Setenv("OMS_MQTT_PASSWORD", "secret")

	cfg, err := Load(writeConfig(t, "server:\n  http_port: 9090\n"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "secret", cfg.MQTT.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OMS_TEST_SECRET"}
	assert.Equal(t, devJWTSecret, a.GetJWTSecret())
	assert.False(t, a.IsProductionReady())

	t.Setenv("OMS_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	assert.True(t, a.IsProductionReady())
}

func TestLoadRejectsBadQoS(t *testing.T) {
	_, err := Load(writeConfig(t, "mqtt:\n  qos: 3\n"))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "OMS_TEST_DOTENV"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o644))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadEnvFileKeepsExisting(t *testing.T) {
	t.Setenv("OMS_TEST_DOTENV_SET", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OMS_TEST_DOTENV_SET=from-file\n"), 0o644))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-env", os.Getenv("OMS_TEST_DOTENV_SET"))
}
