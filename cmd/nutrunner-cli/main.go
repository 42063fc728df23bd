package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	nutrunner "github.com/hj91/node-nutrunner-open-library"
	"github.com/hj91/node-nutrunner-open-library/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	client, err := nutrunner.New(nutrunner.Config{
		Host:                   cfg.Host,
		Port:                   cfg.Port,
		AutoReconnect:          cfg.AutoReconnect,
		ValidateFrames:         cfg.ValidateFrames,
		SpindleCount:           cfg.SpindleCount,
		AllowDuplicateCommands: cfg.AllowDuplicateCommands,
		AuditLogPath:           cfg.AuditLogPath,
		EnableDashboard:        cfg.DashboardAddr != "",
		Logger:                 logger,
	})
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	client.Connect()

	go startMetricsServer(cfg.MetricsAddr, logger)
	if cfg.DashboardAddr != "" {
		go startDashboardServer(client, cfg.DashboardAddr, logger)
	}

	waitForShutdown(client, logger)
}

func startMetricsServer(addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}

func startDashboardServer(client *nutrunner.Client, addr string, logger *slog.Logger) {
	hub := client.Dashboard()
	if hub == nil {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.GetState())
	})
	logger.Info("dashboard server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("dashboard server failed", "error", err)
	}
}

func waitForShutdown(client *nutrunner.Client, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received, disconnecting")
	client.Disconnect()
	logger.Info("nutrunner client stopped")
}
