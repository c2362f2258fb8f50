package main

import (
	"context"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"screenrelay/internal/core/services"
	httphandlers "screenrelay/internal/handlers/http"
	"screenrelay/internal/infrastructure/adb"
	"screenrelay/internal/infrastructure/middleware"
	"screenrelay/internal/infrastructure/monitoring"
	repositories "screenrelay/internal/infrastructure/repositories"
	"screenrelay/internal/infrastructure/signal"
	"screenrelay/pkg/clock"
	"screenrelay/pkg/config"
	"screenrelay/pkg/logger"
	"screenrelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/screenrelay/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "screenrelay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	clk := clock.NewReal()

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, clk, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	mappingRepo := repoFactory.CreateMappingRepository()
	deviceLock := repoFactory.CreateDeviceLock()

	// Initialize monitoring
	collector := monitoring.NewPrometheusCollector()
	if memLock := repoFactory.MemoryLock(); memLock != nil {
		memLock.OnReclaim(collector.LockReclaimed)
	}

	// Background stale-lock sweep
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	repoFactory.StartSweep(sweepCtx)

	// Initialize the adb adapter stack
	adbClient := adb.NewClient(cfg.ADB.Path, log)
	directory := adb.NewDirectory(adbClient, cfg.Registry.ListTimeout, log)
	backend := adb.NewCaptureBackend(
		adbClient,
		cfg.Capture.ScreenshotTimeout,
		cfg.Capture.RecordTimeout,
		cfg.Capture.MinScreenshotBytes,
		log,
	)
	injector := adb.NewInputInjector(adbClient, cfg.Input.InjectTimeout, log)

	// Initialize core services
	registry := services.NewRegistryService(directory, mappingRepo, clk, cfg.Registry.ProbeTimeout, log)
	inputQueue := services.NewInputQueue(cfg.Input.QueueBound, collector, clk)

	hub := signal.NewHub(signal.HubConfig{
		PingInterval:      cfg.Viewer.PingInterval,
		PongTimeout:       cfg.Viewer.PongTimeout,
		WriteTimeout:      cfg.Viewer.WriteTimeout,
		MaxMessageBytes:   cfg.Viewer.MaxMessageBytes,
		MessagesPerSecond: cfg.Viewer.MessagesPerSecond,
		MessageBurst:      cfg.Viewer.MessageBurst,
		SendBuffer:        cfg.Viewer.SendBuffer,
	}, log)

	sessionService := services.NewSessionService(
		registry, backend, hub, deviceLock, injector, inputQueue,
		collector, clk, services.SchedulerConfig{
			FrameInterval:         cfg.Capture.FrameInterval,
			RecordChunk:           cfg.Capture.RecordChunk,
			BusyRetryDelay:        cfg.Capture.BusyRetryDelay,
			BackoffInitial:        cfg.Capture.BackoffInitial,
			BackoffMax:            cfg.Capture.BackoffMax,
			ScreenshotErrorBudget: cfg.Capture.ScreenshotErrorBudget,
			VideoErrorBudget:      cfg.Capture.VideoErrorBudget,
			InjectTimeout:         cfg.Input.InjectTimeout,
		}, log,
	)
	hub.AttachSessions(sessionService)

	// Prime the device directory; a failure here is not fatal, the adb
	// server may simply not be up yet.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.Registry.ListTimeout)
	if err := registry.Refresh(warmCtx); err != nil {
		log.Warnw("initial device directory refresh failed", "error", err)
	}
	warmCancel()

	// Dependency health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("adb", func(ctx context.Context) error {
		_, err := directory.ListDevices(ctx)
		return err
	}, cfg.Registry.ListTimeout)
	healthChecker.AddCheck("repositories", repoFactory.HealthCheck, 2*time.Second)

	// Initialize HTTP handlers
	statusHandler := httphandlers.NewStatusHandler(sessionService, registry, directory)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.AuthMiddleware(cfg))

	statusHandler.SetupRoutes(router)

	// Viewer websocket endpoint
	router.GET("/ws", gin.WrapF(hub.HandleWebSocket))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"viewers":   hub.ConnectionCount(),
		})
	})

	// Readiness endpoint with real dependency checks
	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting screenrelay server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	osignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down screenrelay server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// Stop capture loops and release device locks
	sessionService.StopAll()
	sweepCancel()

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("screenrelay server stopped")
}
