package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/OmarEhab007/busd/internal/api"
	"github.com/OmarEhab007/busd/internal/audit"
	"github.com/OmarEhab007/busd/internal/bridge"
	"github.com/OmarEhab007/busd/internal/bus"
	"github.com/OmarEhab007/busd/internal/codec"
	"github.com/OmarEhab007/busd/internal/config"
	"github.com/OmarEhab007/busd/internal/domain"
	"github.com/OmarEhab007/busd/internal/metrics"
	"github.com/OmarEhab007/busd/internal/ratelimit"
	"github.com/OmarEhab007/busd/internal/streaming"
)

func main() {
	_ = godotenv.Load()             // cwd
	_ = godotenv.Load("../.env")    // cmd/busd -> repo root
	_ = godotenv.Load("../../.env") // nested invocation

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)
	slog.Info("starting busd", "listen_addr", cfg.ListenAddr, "tcp_listen_addr", cfg.TCPListenAddr, "env", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	databus := bus.New(nil)

	c := codec.New()
	c.Register(domain.Heartbeat{})
	c.Register(domain.Notice{})

	limiter, err := ratelimit.New(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}
	defer limiter.Close()

	var auditLog *audit.Log
	if cfg.PostgresURL != "" {
		auditLog, err = audit.NewLog(ctx, cfg.PostgresURL)
		if err != nil {
			slog.Warn("subscription audit log unavailable", "error", err)
		} else {
			defer auditLog.Close()
		}
	}

	var exporter *metrics.Exporter
	if cfg.ClickHouseURL != "" {
		exporter, err = metrics.NewExporter(ctx, cfg.ClickHouseURL, databus, 30*time.Second, nil)
		if err != nil {
			slog.Warn("stats exporter unavailable", "error", err)
		} else {
			defer exporter.Close()
			go exporter.Run(ctx)
		}
	}

	broker, err := bridge.NewBroker(cfg.TCPListenAddr, cfg.MaxFrameBytes, databus, c, limiter, nil)
	if err != nil {
		slog.Error("failed to bind TCP bridge", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	if auditLog != nil {
		broker.SetAuditLog(auditLog)
	}

	go func() {
		if err := broker.Serve(); err != nil {
			slog.Error("TCP bridge accept loop stopped", "error", err)
		}
	}()

	heartbeatTimeout := time.Duration(cfg.HeartbeatTimeoutSeconds) * time.Second
	hub := streaming.NewHubWithCloseCallback(broker.WebSocketHandler(), broker.WebSocketCloseCallback(), heartbeatTimeout, nil)

	router := api.NewRouter(api.RouterConfig{
		AllowedOrigins: []string{"*"},
		WebDir:         cfg.WebDir,
		IndexFile:      cfg.IndexFile,
		WebSocketPath:  "/ws",
		WebSocketHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := hub.Upgrade(w, r); err != nil {
				slog.Error("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			}
		}),
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("busd stopped")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
