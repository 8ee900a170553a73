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

	"github.com/dgnsrekt/design_assistant/internal/api"
	"github.com/dgnsrekt/design_assistant/internal/checkservice"
	"github.com/dgnsrekt/design_assistant/internal/config"
	"github.com/dgnsrekt/design_assistant/internal/logging"
)

func main() {
	cfg, err := config.LoadCheckServer()
	if err != nil {
		slog.Error("failed to load check server config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("checkserver config loaded",
		"bind_addr", cfg.BindAddr,
		"model", cfg.Model,
		"base_url", cfg.BaseURL,
		"prompts_file", cfg.PromptsFile,
		"redis", cfg.RedisURL != "",
		"cache_ttl_sec", cfg.CacheTTLSeconds,
		"resize", [2]int{cfg.ResizeWidth, cfg.ResizeHeight},
		"jpeg_quality", cfg.JPEGQuality,
		"log_level", cfg.LogLevel,
	)

	model, err := checkservice.NewVisionModel(cfg.APIKey, cfg.BaseURL, cfg.Model)
	if err != nil {
		slog.Error("failed to configure vision model", "error", err)
		os.Exit(1)
	}

	prompts, err := checkservice.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		slog.Error("failed to load prompts", "path", cfg.PromptsFile, "error", err)
		os.Exit(1)
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	var cache checkservice.Cache = checkservice.NewMemoryCache(ttl)
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := checkservice.NewRedisCache(pingCtx, cfg.RedisURL, ttl)
		cancel()
		if err != nil {
			slog.Error("failed to connect image cache", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rc.Close(); err != nil {
				slog.Debug("redis close failed", "error", err)
			}
		}()
		cache = rc
	}

	svc := checkservice.NewService(model, prompts, cache, checkservice.ImageOptions{
		MaxBytes: cfg.MaxImageBytes,
		Width:    cfg.ResizeWidth,
		Height:   cfg.ResizeHeight,
		Quality:  cfg.JPEGQuality,
	})

	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: http.TimeoutHandler(api.NewCheckServer(svc), time.Duration(cfg.RequestTimeoutSec)*time.Second, `{"error":"request timed out"}`),
	}

	go func() {
		slog.Info("checkserver listening", "addr", cfg.BindAddr, "docs", "http://"+cfg.BindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("checkserver failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("checkserver shutdown failed", "error", err)
	}
}
