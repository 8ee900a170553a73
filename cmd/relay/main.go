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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/design_assistant/internal/analysis"
	"github.com/dgnsrekt/design_assistant/internal/browser"
	"github.com/dgnsrekt/design_assistant/internal/config"
	"github.com/dgnsrekt/design_assistant/internal/logging"
	"github.com/dgnsrekt/design_assistant/internal/netutil"
	"github.com/dgnsrekt/design_assistant/internal/relay"
	"github.com/dgnsrekt/design_assistant/internal/tabcapture"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("failed to load relay config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("relay config loaded",
		"bind_addr", cfg.BindAddr,
		"path", cfg.Path,
		"capture_backend", cfg.Capture.Backend,
		"cdp_url", cfg.Capture.CDPURL(),
		"capture_timeout_sec", cfg.Capture.TimeoutSec,
		"tab_url_filter", cfg.Capture.TabURLFilter,
		"analysis_endpoint", cfg.AnalysisEndpoint,
		"log_level", cfg.LogLevel,
	)

	var launcher *browser.Launcher
	if cfg.Capture.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.Capture.CDPAddress,
			CDPPort:    cfg.Capture.CDPPort,
			StartURL:   cfg.Capture.BrowserStartURL,
			ProfileDir: cfg.Capture.BrowserProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
	}

	capturer := tabcapture.New(cfg.Capture.Backend, cfg.Capture.CDPURL(), tabcapture.Options{
		URLFilter: cfg.Capture.TabURLFilter,
		Format:    cfg.Capture.Format,
		Quality:   cfg.Capture.Quality,
		Timeout:   cfg.Capture.Timeout(),
	})
	client := analysis.NewClient(cfg.AnalysisEndpoint, time.Duration(cfg.AnalysisTimeoutSec)*time.Second)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := io.WriteString(w, `{"status":"ok"}`); err != nil {
			slog.Debug("health response write failed", "error", err)
		}
	})
	router.Get(cfg.Path, relay.WSHandler(relay.New(capturer, client)))

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()
	srv := &http.Server{Handler: router}

	go func() {
		slog.Info("relay listening", "addr", addr, "ws", "ws://"+addr+cfg.Path)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("relay server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("relay shutdown failed", "error", err)
	}
	if launcher != nil {
		launcher.Stop()
	}
}
