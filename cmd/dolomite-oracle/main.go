package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/config"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/metrics"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/server/api"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/version"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("dolomite-oracle version %s\n", version.Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting dolomite-oracle", "version", version.Version)

	// Initialize metrics
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err.Error())
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- runServer(ctx, cfg, logger)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Server failed", "error", err.Error())
			cancel()
		}
	}

	logger.Info("Shutting down gracefully...")
	time.Sleep(time.Second)
	logger.Info("Shutdown complete")
}

func runServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	// Build adapters, aggregator and the optional report store from config
	engine, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build oracle engine: %w", err)
	}

	server := api.NewServer(cfg.API.HTTP.Addr, engine.aggregator, engine.reports, time.Minute, logger)

	// Start WebSocket server if enabled
	var wsServer *api.WebSocketServer
	if cfg.API.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.API.WebSocket.Addr, logger)
		server.SetWebSocketServer(wsServer)

		go func() {
			if err := wsServer.Start(ctx); err != nil {
				logger.Error("WebSocket server error", "error", err.Error())
			}
		}()
		go server.StartBroadcast(ctx, cfg.API.WebSocket.BroadcastInterval.ToDuration())
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Stop(shutdownCtx)
		if wsServer != nil {
			wsServer.Stop()
		}
		engine.stop()
	}()

	return server.Start()
}
