package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/api/rest"
	"github.com/KevinKickass/OpenMachineSensors/internal/api/websocket"
	"github.com/KevinKickass/OpenMachineSensors/internal/auth"
	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/KevinKickass/OpenMachineSensors/internal/interfaces"
	"github.com/KevinKickass/OpenMachineSensors/internal/monitor"
	"github.com/KevinKickass/OpenMachineSensors/internal/storage"
	"github.com/KevinKickass/OpenMachineSensors/internal/telemetry"
	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const recorderQueueSize = 1024

type LifecycleManager struct {
	config        *config.Config
	storage       *storage.PostgresClient
	cache         *storage.RedisCache
	publisher     *telemetry.Publisher
	metrics       *monitor.Metrics
	sensorManager *devices.Manager
	recorders     []*storage.Recorder
	logger        *zap.Logger

	jwtHandler    *auth.JWTHandler
	authenticator *auth.Authenticator
	wsHub         *websocket.Hub
	healthServer  *health.Server

	restServer *rest.Server
	grpcServer *grpc.Server
	grpcAddr   net.Addr

	// cancels the hub and the recorders
	cancel context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	sensorManager, err := devices.NewManager(cfg.Profiles.SearchPaths, cfg.Modbus.DefaultTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sensor manager: %w", err)
	}

	if cfg.Auth.Enabled && !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret is not production ready",
			zap.String("env", cfg.Auth.JWTSecretEnv))
	}

	jwtHandler := auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), cfg.Auth.AccessTokenTTL)

	var hubAuth *auth.JWTHandler
	if cfg.Auth.Enabled {
		hubAuth = jwtHandler
	}

	lm := &LifecycleManager{
		config:        cfg,
		sensorManager: sensorManager,
		logger:        logger,
		jwtHandler:    jwtHandler,
		authenticator: auth.NewAuthenticator(jwtHandler, cfg.Auth.Enabled),
		wsHub:         websocket.NewHub(logger, hubAuth),
		healthServer:  health.NewServer(),
		currentState:  StateInitializing,
		shutdownChan:  make(chan struct{}),
	}

	sensorManager.AddListener(lm.wsHub)
	sensorManager.AddListener(NewHealthReporter(lm.healthServer))

	if cfg.Metrics.Enabled {
		lm.metrics = monitor.NewMetrics()
		sensorManager.AddListener(lm.metrics)
	}

	return lm, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenMachineSensors")

	runCtx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	go lm.wsHub.Run(runCtx)

	if lm.config.Database.Enabled {
		if err := lm.startStorage(ctx, runCtx); err != nil {
			lm.setError(err)
			return err
		}
	}

	if lm.config.Redis.Enabled {
		if err := lm.startCache(ctx, runCtx); err != nil {
			lm.setError(err)
			return err
		}
	}

	if lm.config.MQTT.Enabled {
		if err := lm.startTelemetry(runCtx); err != nil {
			lm.setError(err)
			return err
		}
	}

	lm.attachConfiguredSensors()

	// Load sensors from database
	if lm.storage != nil {
		if err := lm.loadSensorsFromDB(ctx); err != nil {
			lm.logger.Warn("Failed to load sensors from database", zap.Error(err))
			// Continue anyway, not critical
		}
	}

	if err := lm.startGRPCServer(); err != nil {
		err = fmt.Errorf("failed to start gRPC: %w", err)
		lm.setError(err)
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		err = fmt.Errorf("failed to start REST API: %w", err)
		lm.setError(err)
		return err
	}

	lm.setState(StateRunning)
	lm.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("sensors", len(lm.sensorManager.ListSensors())),
		zap.Bool("persistence", lm.storage != nil))

	return nil
}

func (lm *LifecycleManager) startStorage(ctx, runCtx context.Context) error {
	store, err := storage.NewPostgresClient(ctx, lm.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return err
	}
	lm.storage = store

	if lm.config.Database.RecordSamples {
		lm.startRecorder(runCtx, "postgres", store)
	}

	return nil
}

func (lm *LifecycleManager) startCache(ctx, runCtx context.Context) error {
	cache, err := storage.NewRedisCache(ctx, lm.config.Redis)
	if err != nil {
		return err
	}
	lm.cache = cache
	lm.startRecorder(runCtx, "redis", cache)

	lm.logger.Info("Redis reading cache enabled", zap.String("addr", lm.config.Redis.Addr))
	return nil
}

func (lm *LifecycleManager) startTelemetry(runCtx context.Context) error {
	publisher := telemetry.NewPublisher(lm.config.MQTT, lm.logger)
	if err := publisher.Connect(); err != nil {
		return err
	}
	lm.publisher = publisher
	lm.startRecorder(runCtx, "mqtt", storage.SampleStoreFunc(publisher.Publish))

	lm.logger.Info("MQTT telemetry enabled", zap.String("broker", lm.config.MQTT.Broker))
	return nil
}

// startRecorder feeds store from a recorder of its own.
func (lm *LifecycleManager) startRecorder(runCtx context.Context, sink string, store storage.SampleStore) {
	recorder := storage.NewRecorder(store, recorderQueueSize, lm.logger.With(zap.String("sink", sink)))
	recorder.Start(runCtx)
	lm.sensorManager.AddListener(recorder)
	lm.recorders = append(lm.recorders, recorder)
}

func (lm *LifecycleManager) attachConfiguredSensors() {
	for _, sc := range lm.config.Sensors {
		spec := devices.SensorSpec{
			Name:         sc.Name,
			Profile:      sc.Profile,
			Driver:       types.DriverKind(sc.Driver),
			Address:      sc.Address,
			UnitID:       sc.UnitID,
			PollInterval: sc.PollInterval,
		}
		if _, err := lm.sensorManager.AttachAndPoll(spec, lm.config.Modbus.DefaultPollInterval); err != nil {
			lm.logger.Error("Failed to attach configured sensor",
				zap.String("sensor", sc.Name),
				zap.Error(err))
		}
	}
}

func (lm *LifecycleManager) loadSensorsFromDB(ctx context.Context) error {
	sensors, err := lm.storage.LoadAllSensors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sensors: %w", err)
	}

	lm.logger.Info("Loading sensors from database", zap.Int("count", len(sensors)))

	for _, s := range sensors {
		spec := devices.SensorSpec{
			Name:         s.SensorName,
			Profile:      s.Profile,
			Driver:       types.DriverKind(s.Driver),
			Address:      s.Address,
			UnitID:       s.UnitID,
			PollInterval: time.Duration(s.PollIntervalMs) * time.Millisecond,
		}

		_, err := lm.sensorManager.AttachAndPoll(spec, lm.config.Modbus.DefaultPollInterval)
		if errors.Is(err, devices.ErrSensorExists) {
			lm.logger.Debug("Sensor already attached from config",
				zap.String("sensor", s.SensorName))
			continue
		}
		if err != nil {
			lm.logger.Error("Failed to load sensor",
				zap.String("sensor", s.SensorName),
				zap.Error(err))
			continue
		}

		lm.logger.Info("Sensor loaded and poller started",
			zap.String("sensor", s.SensorName))
	}

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.healthServer.Shutdown()

		shutdownErr = lm.gracefulShutdown(ctx)

		if lm.cancel != nil {
			lm.cancel()
		}
		for _, r := range lm.recorders {
			r.Wait()
		}
		if lm.publisher != nil {
			lm.publisher.Close()
		}
		if lm.cache != nil {
			if err := lm.cache.Close(); err != nil {
				lm.logger.Warn("Failed to close redis", zap.Error(err))
			}
		}
		if lm.storage != nil {
			lm.storage.Close()
		}

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once shutdown completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Stop Sensor Manager (all pollers & connections)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.sensorManager.StopAll(ctx); err != nil {
			errChan <- fmt.Errorf("sensor manager stop failed: %w", err)
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errChan)
		var errs []error
		for err := range errChan {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr()

	lm.grpcServer = grpc.NewServer()

	// Register Health Service
	healthpb.RegisterHealthServer(lm.grpcServer, lm.healthServer)
	lm.logger.Info("Health gRPC service registered")

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authenticator)
	if lm.metrics != nil {
		lm.restServer.Mount(lm.config.Metrics.Path, lm.metrics.Handler())
	}
	return lm.restServer.Start()
}

// GRPCAddr returns the bound gRPC address once started.
func (lm *LifecycleManager) GRPCAddr() net.Addr {
	return lm.grpcAddr
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	from := lm.currentState
	if err := ValidateTransition(from, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.setState(StateError)
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	sensors := lm.sensorManager.ListSensors()
	healthy := 0
	for _, s := range sensors {
		if s.Healthy() {
			healthy++
		}
	}

	return interfaces.SystemStatus{
		State:          reported(state, len(sensors), healthy).String(),
		SensorCount:    len(sensors),
		HealthySensors: healthy,
		Persistence:    lm.storage != nil,
	}
}

func (lm *LifecycleManager) broadcastStatus() {
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// SensorManager returns the sensor manager
func (lm *LifecycleManager) SensorManager() *devices.Manager {
	return lm.sensorManager
}

// Storage returns the storage client, nil without database
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Cache returns the redis reading cache, nil without redis
func (lm *LifecycleManager) Cache() *storage.RedisCache {
	return lm.cache
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// JWTHandler returns the token handler, used to issue service tokens
func (lm *LifecycleManager) JWTHandler() *auth.JWTHandler {
	return lm.jwtHandler
}
