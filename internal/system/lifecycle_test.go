package system

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ultrasonicProfile = `
sensor_profile:
  id: ev3-ultrasonic
  vendor: LEGO
  model: EV3 Ultrasonic
  type_id: 30
connection:
  protocol: modbus_tcp
  poll_interval_ms: 10
modes:
  - name: US-DIST-CM
    decimals: 1
    data_sets: 1
    format: s16
    raw_max: 2550
    pct_max: 100
    si_max: 255
    units: cm
`

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lego"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lego", "ev3-ultrasonic.yaml"), []byte(ultrasonicProfile), 0o644))

	return &config.Config{
		Server: config.ServerConfig{GRPCPort: 0, HTTPPort: freePort(t)},
		Auth:   config.AuthConfig{AccessTokenTTL: time.Hour},
		Modbus: config.ModbusConfig{
			DefaultTimeout:      time.Second,
			DefaultPollInterval: 50 * time.Millisecond,
		},
		Profiles: config.ProfilesConfig{SearchPaths: []string{dir}},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Sensors: []config.SensorConfig{
			{Name: "front", Profile: "lego/ev3-ultrasonic", Driver: "sim"},
			{Name: "broken", Profile: "lego/ev3-missing", Driver: "sim"},
		},
	}
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	lm, err := NewLifecycleManager(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "INITIALIZING", lm.GetCurrentStatus().State)

	require.NoError(t, lm.Start(context.Background()))

	status := lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 1, status.SensorCount, "sensors with unknown profiles are skipped")
	assert.False(t, status.Persistence)
	assert.Nil(t, lm.Storage())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.HTTPPort))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	port := lm.GRPCAddr().(*net.TCPAddr).Port
	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", port),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		r, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName("front")})
		return err == nil && r.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	r, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, r.GetStatus())

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", cfg.Server.HTTPPort))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `oms_samples_total{mode="US-DIST-CM",sensor="front"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(ctx))

	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed after shutdown")
	}

	status = lm.GetCurrentStatus()
	assert.Equal(t, "STOPPED", status.State)
	assert.Equal(t, 0, status.SensorCount)

	// a second shutdown is a no-op
	require.NoError(t, lm.Shutdown(ctx))
}

func TestLifecycleStartFailsOnBusyPort(t *testing.T) {
	cfg := testConfig(t)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
	require.NoError(t, err)
	defer lis.Close()

	lm, err := NewLifecycleManager(cfg, zap.NewNop())
	require.NoError(t, err)

	err = lm.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, "ERROR", lm.GetCurrentStatus().State)

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, "STOPPED", lm.GetCurrentStatus().State)
}
