package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMachineSensors/internal/api/websocket"
	"github.com/KevinKickass/OpenMachineSensors/internal/auth"
	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/KevinKickass/OpenMachineSensors/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
	auth   *auth.Authenticator
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authenticator *auth.Authenticator) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
		auth:   authenticator,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Mount serves h for GET requests on path without authentication. It must be
// called before Start.
func (s *Server) Mount(path string, h http.Handler) {
	s.router.GET(path, gin.WrapH(h))
}

// Start binds the port and serves in the background. Bind errors are
// returned; serve errors after that are logged.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.auth.AuthMiddleware())
		{
			system.GET("/status", auth.RequirePermission(auth.PermOperator), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== SENSORS ====================
		sensors := v1.Group("/sensors")
		sensors.Use(s.auth.AuthMiddleware())
		{
			// Read operations: Operator+
			sensors.GET("", auth.RequirePermission(auth.PermOperator), s.listSensors)
			sensors.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getSensor)
			sensors.GET("/:id/reading", auth.RequirePermission(auth.PermOperator), s.getReading)
			sensors.GET("/:id/samples", auth.RequirePermission(auth.PermOperator), s.getSamples)
			sensors.GET("/:id/attributes", auth.RequirePermission(auth.PermOperator), s.listAttributes)
			sensors.GET("/:id/attributes/:name", auth.RequirePermission(auth.PermOperator), s.getAttribute)
			sensors.GET("/:id/bin_data", auth.RequirePermission(auth.PermOperator), s.readBinData)

			// Write operations: Technician+
			sensors.PUT("/:id/attributes/:name", auth.RequirePermission(auth.PermTechnician), s.setAttribute)
			sensors.PUT("/:id/bin_data", auth.RequirePermission(auth.PermTechnician), s.writeBinData)

			// Attach/detach: Admin only
			sensors.POST("", auth.RequirePermission(auth.PermAdmin), s.attachSensor)
			sensors.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.detachSensor)
		}

		// ==================== PROFILES (OPERATOR+) ====================
		profiles := v1.Group("/profiles")
		profiles.Use(s.auth.AuthMiddleware())
		profiles.Use(auth.RequirePermission(auth.PermOperator))
		{
			profiles.GET("", s.listProfiles)
			profiles.GET("/*name", s.getProfile)
		}

		// ==================== WEBSOCKET (Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.auth.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"state":           status.State,
		"sensors":         status.SensorCount,
		"healthy_sensors": status.HealthySensors,
		"timestamp":       time.Now().Unix(),
	})
}
