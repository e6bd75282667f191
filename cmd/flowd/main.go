package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrioja/flowd/internal/config"
	"github.com/mrioja/flowd/internal/dispatch"
	"github.com/mrioja/flowd/internal/orchestrator"
	"github.com/mrioja/flowd/internal/planner"
	"github.com/mrioja/flowd/internal/stats"
	"github.com/mrioja/flowd/pkg/adapters/events/redis"
	"github.com/mrioja/flowd/pkg/adapters/llm"
	"github.com/mrioja/flowd/pkg/adapters/metrics/prometheus"
	redisstorage "github.com/mrioja/flowd/pkg/adapters/storage/redis"
	"github.com/mrioja/flowd/pkg/api/grpc"
	"github.com/mrioja/flowd/pkg/api/http"
	"github.com/mrioja/flowd/pkg/api/websocket"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting flowd",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize adapters
	eventBus, err := redis.NewStreamsEventBus(
		redisClient,
		"flowd-workers",
		fmt.Sprintf("flowd-%d", os.Getpid()),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to create event bus", zap.Error(err))
	}

	stateStore := redisstorage.NewStateStore(
		redisClient,
		24*time.Hour, // 24 hour TTL for states
		logger,
	)
	statsBackend := redisstorage.NewStatsStore(redisClient, logger)

	llmClient, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	statsStore := stats.NewStore(statsBackend, cfg.Timeouts.StatsFlushInterval, logger)
	if err := statsStore.Start(ctx); err != nil {
		logger.Warn("failed to load category stats, starting empty", zap.Error(err))
	}

	dispatcher := dispatch.NewLLMDispatcher(llmClient, cfg.LLM.DispatcherSlots, metricsCollector, logger)
	executor := orchestrator.NewExecutor(dispatcher, metricsCollector, logger)
	aggregator := orchestrator.NewAggregator(llmClient, metricsCollector, logger)
	generator := planner.NewGenerator(llmClient, metricsCollector, logger)

	manager := orchestrator.NewManager(
		generator,
		executor,
		aggregator,
		eventBus,
		stateStore,
		statsStore,
		metricsCollector,
		logger,
		orchestrator.Options{
			MaxParallel: cfg.Executor.MaxParallel,
			StepTimeout: cfg.Executor.StepTimeout,
			StopOnError: cfg.Executor.StopOnError,
		},
		cfg.Timeouts.TaskExecutionTimeout,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: manager,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:         cfg.GRPCPort,
		Orchestrator: manager,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("flowd started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("dispatcher_slots", cfg.LLM.DispatcherSlots))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Shutdown components
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestration manager shutdown error", zap.Error(err))
	}

	if err := statsStore.Shutdown(shutdownCtx); err != nil {
		logger.Error("stats store shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("flowd shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
