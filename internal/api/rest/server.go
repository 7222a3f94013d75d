package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/api/websocket"
	"github.com/KevinKickass/OpenPoolCore/internal/auth"
	"github.com/KevinKickass/OpenPoolCore/internal/config"
	"github.com/KevinKickass/OpenPoolCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
	gatherer    prometheus.Gatherer
	metrics     config.MetricsConfig
}

// NewServer builds the HTTP API. gatherer may be nil when metrics are
// disabled.
func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		gatherer:    gatherer,
		metrics:     cfg.Metrics,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	if s.metrics.Enabled && s.gatherer != nil {
		s.router.GET(s.metrics.Path, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ENDPOINTS (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== USERS (ADMIN ONLY) ====================
		users := v1.Group("/users")
		users.Use(s.authService.AuthMiddleware())
		users.Use(auth.RequirePermission(auth.PermAdmin))
		{
			users.GET("", s.listUsers)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		{
			system.GET("/status", auth.RequirePermission(auth.PermOperator), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== CONTROLLERS ====================
		controllers := v1.Group("/controllers")
		controllers.Use(s.authService.AuthMiddleware())
		{
			// Read operations: Operator+
			controllers.GET("", auth.RequirePermission(auth.PermOperator), s.listControllers)
			controllers.GET("/:name", auth.RequirePermission(auth.PermOperator), s.getController)
			controllers.GET("/:name/state", auth.RequirePermission(auth.PermOperator), s.getState)
			controllers.GET("/:name/relays", auth.RequirePermission(auth.PermOperator), s.getRelays)
			controllers.GET("/:name/dmx", auth.RequirePermission(auth.PermOperator), s.getDMX)
			controllers.GET("/:name/history", auth.RequirePermission(auth.PermOperator), s.getHistory)
			controllers.GET("/:name/commands", auth.RequirePermission(auth.PermOperator), s.getCommands)

			// Write operations: Technician+
			controllers.POST("/:name/relays/:id", auth.RequirePermission(auth.PermTechnician), s.switchRelay)
			controllers.POST("/:name/dosage", auth.RequirePermission(auth.PermTechnician), s.startDosage)
			controllers.PUT("/:name/dmx/:channel", auth.RequirePermission(auth.PermTechnician), s.setDMXChannel)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.wsStatus)
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
		"status":    "ok",
		"state":     status.State,
		"timestamp": time.Now().Unix(),
	})
}
