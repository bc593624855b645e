package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lowks/discovery/internal/config"
	"github.com/lowks/discovery/internal/directory"
	"github.com/lowks/discovery/internal/health"
	"github.com/lowks/discovery/internal/link"
	"github.com/lowks/discovery/internal/metrics"
	"github.com/lowks/discovery/internal/server"
	"github.com/lowks/discovery/internal/supervisor"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting discovery service",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("port", cfg.Server.Port),
		zap.Duration("retry_interval", cfg.Cluster.RetryInterval),
		zap.Int("placement_points", cfg.Cluster.PlacementPoints))

	m := metrics.NewMetrics()

	dir := directory.New(cfg.Cluster.PlacementPoints, logger)

	var (
		transport link.Link
		gossip    *link.Gossip
	)
	if cfg.Gossip.Enabled {
		gossip, err = link.NewGossip(&link.GossipConfig{
			BindAddr:       cfg.Gossip.BindAddr,
			BindPort:       cfg.Gossip.BindPort,
			Seeds:          cfg.Gossip.Seeds,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, cfg.Server.NodeID, logger)
		if err != nil {
			logger.Fatal("failed to start gossip transport", zap.Error(err))
		}
		transport = gossip
		logger.Info("gossip transport started",
			zap.String("bind_addr", cfg.Gossip.BindAddr),
			zap.Int("bind_port", cfg.Gossip.BindPort),
			zap.Strings("seeds", cfg.Gossip.Seeds))
	} else {
		transport = link.NewLoopback()
		logger.Info("gossip disabled, using loopback transport")
	}

	sup := supervisor.New(dir, transport, cfg.Cluster.RetryInterval, logger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("starting metrics server", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	checker := health.NewChecker(dir, gossip, logger)
	srv := server.New(cfg, sup, dir, checker, logger, m)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("received signal", zap.String("signal", sig.String()))
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}

	cancel()
	sup.Close()

	if gossip != nil {
		if err := gossip.Shutdown(); err != nil {
			logger.Warn("gossip shutdown failed", zap.Error(err))
		}
	}

	logger.Info("discovery service stopped")
}

// newLogger builds the zap logger from the logging config.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
