package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/netlens/internal/api"
	"github.com/dgnsrekt/netlens/internal/cdp"
	"github.com/dgnsrekt/netlens/internal/config"
	"github.com/dgnsrekt/netlens/internal/netutil"
	"github.com/dgnsrekt/netlens/internal/notify"
	"github.com/dgnsrekt/netlens/internal/session"
	"github.com/dgnsrekt/netlens/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("observer config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"retained_epochs", cfg.RetainedEpochs,
		"ws_max_frame_bytes", cfg.WSMaxFrameBytes,
		"mirror_enabled", cfg.MirrorEnabled,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var mirror *storage.Mirror
	if cfg.MirrorEnabled {
		mirror = storage.NewMirror(cfg.MirrorDir, cfg.MirrorBufferSize, cfg.MirrorMaxSizeMB)
		defer func() { _ = mirror.Close() }()
	}

	notifier := notify.New(cfg.NotifyEndpoint)

	registry := cdp.NewPageRegistry()
	sess := session.New(cfg.RetainedEpochs, cfg.WSMaxFrameBytes, registry, mirror)

	client := cdp.NewClient(cfg, sess, registry)
	client.OnConnectionLost = func(err error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		notifier.Notify(ctx, "netlens: browser lifecycle connection lost: "+err.Error())
	}
	if err := client.Connect(context.Background()); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(sess)}

	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		notifier.Notify(ctx, "netlens: observer started, watching "+cfg.CDPURL())
		cancel()
	}

	go func() {
		slog.Info("observer listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("observer server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("observer shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
