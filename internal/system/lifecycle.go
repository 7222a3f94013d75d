package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/api/rest"
	"github.com/KevinKickass/OpenPoolCore/internal/api/websocket"
	"github.com/KevinKickass/OpenPoolCore/internal/auth"
	"github.com/KevinKickass/OpenPoolCore/internal/config"
	"github.com/KevinKickass/OpenPoolCore/internal/devices"
	"github.com/KevinKickass/OpenPoolCore/internal/interfaces"
	"github.com/KevinKickass/OpenPoolCore/internal/monitor"
	"github.com/KevinKickass/OpenPoolCore/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	recorder    *storage.Recorder
	manager     *devices.Manager
	authService *auth.AuthService
	wsHub       *websocket.Hub
	registry    *prometheus.Registry
	health      *health.Server
	logger      *zap.Logger
	cancelHub   context.CancelFunc
	hubDone     chan struct{}
	restServer  *rest.Server
	grpcServer  *grpc.Server
	startedAt   time.Time

	stateMu      sync.RWMutex
	currentState SystemState
	lastErr      error

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager wires all components. db may be nil when history
// storage is disabled.
func NewLifecycleManager(db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	manager, err := devices.NewManager(cfg.Controllers.SearchPaths, devices.Defaults{
		Timeout:              cfg.Controllers.DefaultTimeout,
		PollInterval:         cfg.Controllers.DefaultPollInterval,
		ForbidDosageRelayOff: cfg.Relays.ForbidDosageRelayOff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create controller manager: %w", err)
	}

	if !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret not set or too short, using development secret",
			zap.String("env", cfg.Auth.JWTSecretEnv))
	}
	authService := auth.NewAuthService(auth.NewMemoryStore(cfg.Auth), cfg.Auth, logger)

	lm := &LifecycleManager{
		config:       cfg,
		storage:      db,
		manager:      manager,
		authService:  authService,
		wsHub:        websocket.NewHub(logger, authService),
		health:       health.NewServer(),
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
	lm.wsHub.SetStatusProvider(lm)

	// Listener registrieren, bevor Controller geladen werden
	manager.AddListener(lm.wsHub)
	manager.AddListener(healthListener{server: lm.health})

	if cfg.Metrics.Enabled {
		lm.registry = prometheus.NewRegistry()
		lm.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := monitor.NewMetrics(lm.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		manager.AddListener(metrics)
	}

	if db != nil {
		lm.recorder = storage.NewRecorder(db, cfg.Database.HistoryInterval, logger)
		manager.AddListener(lm.recorder)
	}

	return lm, nil
}

// Start loads the controllers and starts pollers and servers.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenPoolCore")
	lm.startedAt = time.Now()

	loaded, err := lm.manager.LoadFile(lm.config.Controllers.File)
	if err != nil {
		lm.setError(err)
		return err
	}
	lm.logger.Info("Controllers loaded", zap.Int("count", len(loaded)))

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancelHub = cancel
	lm.hubDone = make(chan struct{})
	go func() {
		defer close(lm.hubDone)
		lm.wsHub.Run(ctx)
	}()

	if err := lm.manager.StartAll(); err != nil {
		lm.setError(fmt.Errorf("failed to start pollers: %w", err))
		return err
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)
	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lm.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("history", lm.storage != nil),
		zap.Bool("metrics", lm.registry != nil))

	return nil
}

// Shutdown gracefully shuts down the system. Only the first call has an
// effect.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.health.Shutdown()
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Stop all pollers
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.manager.StopAll(ctx); err != nil {
			errChan <- fmt.Errorf("controller manager stop failed: %w", err)
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.restServer.Shutdown(ctx); err != nil {
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

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case stopErr := <-errChan:
		if err == nil {
			err = stopErr
		}
	default:
	}

	// Hub und History zuletzt, damit letzte Events noch ankommen
	if lm.cancelHub != nil {
		lm.cancelHub()
		<-lm.hubDone
	}
	if lm.recorder != nil {
		lm.recorder.Close()
	}

	return err
}

func (lm *LifecycleManager) startGRPCServer() error {
	if lm.config.Server.GRPCPort == 0 {
		lm.logger.Info("gRPC server disabled")
		return nil
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)
	reflection.Register(lm.grpcServer)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	var gatherer prometheus.Gatherer
	if lm.registry != nil {
		gatherer = lm.registry
	}
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService, gatherer)
	return lm.restServer.Start()
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastErr = err
	lm.stateMu.Unlock()

	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	lm.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, lastErr := lm.currentState, lm.lastErr
	lm.stateMu.RUnlock()

	total, reachable := lm.manager.Count()
	status := interfaces.SystemStatus{
		State:                state.String(),
		StartedAt:            lm.startedAt,
		ControllerCount:      total,
		ReachableControllers: reachable,
		HistoryEnabled:       lm.storage != nil,
		WebSocketClients:     lm.wsHub.GetClientCount(),
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status
}

// GetStatus feeds system_status messages of the websocket hub.
func (lm *LifecycleManager) GetStatus() any {
	return lm.GetCurrentStatus()
}

func (lm *LifecycleManager) broadcastStatus() {
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// ControllerManager returns the controller manager
func (lm *LifecycleManager) ControllerManager() *devices.Manager {
	return lm.manager
}

// History returns the history store, nil without database.
func (lm *LifecycleManager) History() storage.HistoryReader {
	if lm.storage == nil {
		return nil
	}
	return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// AuthService returns the auth service
func (lm *LifecycleManager) AuthService() *auth.AuthService {
	return lm.authService
}
