package server

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/fidulabs/chatlab/internal/api/http"
	"github.com/fidulabs/chatlab/internal/api/middleware"
	"github.com/fidulabs/chatlab/internal/api/ws"
	"github.com/fidulabs/chatlab/internal/bridge"
	"github.com/fidulabs/chatlab/internal/domain/session"
	"github.com/fidulabs/chatlab/internal/domain/workspace"
	"github.com/fidulabs/chatlab/internal/infrastructure/config"
	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/infrastructure/monitoring"
	"github.com/fidulabs/chatlab/internal/providers/identity"
	"github.com/fidulabs/chatlab/internal/providers/storage"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	coordinator *session.Coordinator
	workspaces  *workspace.Manager
	bridge      *bridge.Store
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
	done        chan struct{}
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize logger
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing session coordinator service",
		zap.String("port", cfg.Server.Port),
		zap.String("storage_mode", cfg.Storage.Mode),
		zap.String("registry", cfg.Registry.URL),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	// Observable auth state consumed by the HTTP and WebSocket layers
	bridgeStore := bridge.New()

	// Identity providers. Both are constructed so login and OAuth
	// routes work regardless of the active storage mode; the
	// coordinator binds to at most one.
	identityDir := filepath.Join(cfg.Storage.Path, "identity")
	localProvider := identity.NewLocalProvider(identityDir, logger)
	cloudProvider := identity.NewCloudProvider(identity.CloudConfig{
		ProxyURL: cfg.Identity.ProxyURL,
		Dir:      identityDir,
	}, logger)

	coordinator := session.New(bridgeStore, logger).
		WithMetrics(metrics).
		WithDebounceWindow(time.Duration(cfg.Identity.DebounceMS) * time.Millisecond)

	mode := types.StorageMode(cfg.Storage.Mode)
	switch mode {
	case types.ModeLocalVault:
		coordinator.RegisterProvider(localProvider)
	case types.ModeCloud:
		coordinator.RegisterProvider(cloudProvider)
	default:
		// Filesystem mode needs no identity at all
		coordinator.WithOptionalIdentity()
	}

	// Workspace registry with all three storage adapters registered
	manager := workspace.NewManager(coordinator, cfg.Registry.URL, cfg.Storage.Path, logger).
		WithMetrics(metrics)
	manager.RegisterAdapter(storage.NewFilesystemAdapter(filepath.Join(cfg.Storage.Path, "data")))
	manager.RegisterAdapter(storage.NewVaultAdapter(cfg.Storage.VaultURL))
	manager.RegisterAdapter(storage.NewCloudAdapter(cfg.Storage.DriveURL, cloudProvider.AccessToken))

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	// Create handlers
	handlers := apihttp.NewHandlers(coordinator, manager, localProvider, cloudProvider, logger)
	handlers.Register(router)

	wsHandler := ws.NewHandler(bridgeStore, logger).WithMetrics(metrics)
	router.GET("/stream", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:      router,
		coordinator: coordinator,
		workspaces:  manager,
		bridge:      bridgeStore,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
		done:        make(chan struct{}),
	}, nil
}

// Coordinator exposes the session coordinator, mainly for tests.
func (s *Server) Coordinator() *session.Coordinator {
	return s.coordinator
}

// Run performs startup initialization and serves HTTP until Close.
func (s *Server) Run() error {
	ctx := context.Background()

	// Establish initial auth state before accepting traffic. A failure
	// here is logged, not fatal: the coordinator lands in a clean
	// Unauthenticated state and the UI can retry.
	if err := s.coordinator.Initialize(ctx); err != nil {
		s.logger.Warn("Initial session restoration failed", zap.Error(err))
	}

	// Restore persisted storage mode and active workspace
	s.workspaces.RestorePreferences(ctx)

	go s.trackUptime()

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
			return err
		}
	}

	// Sync logger before exit
	s.logger.Sync()

	return nil
}

func (s *Server) trackUptime() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.metrics.UpdateUptime()
		case <-s.done:
			return
		}
	}
}
