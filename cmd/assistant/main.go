package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/design_assistant/internal/analysis"
	"github.com/dgnsrekt/design_assistant/internal/api"
	"github.com/dgnsrekt/design_assistant/internal/browser"
	"github.com/dgnsrekt/design_assistant/internal/config"
	"github.com/dgnsrekt/design_assistant/internal/controller"
	"github.com/dgnsrekt/design_assistant/internal/logging"
	"github.com/dgnsrekt/design_assistant/internal/netutil"
	"github.com/dgnsrekt/design_assistant/internal/notify"
	"github.com/dgnsrekt/design_assistant/internal/prefs"
	"github.com/dgnsrekt/design_assistant/internal/progress"
	"github.com/dgnsrekt/design_assistant/internal/relay"
	"github.com/dgnsrekt/design_assistant/internal/tabcapture"
)

func main() {
	cfg, err := config.LoadAssistant()
	if err != nil {
		slog.Error("failed to load assistant config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("assistant config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"relay", relayLabel(cfg),
		"capture_backend", cfg.Capture.Backend,
		"cdp_url", cfg.Capture.CDPURL(),
		"capture_timeout_sec", cfg.Capture.TimeoutSec,
		"analysis_endpoint", cfg.AnalysisEndpoint,
		"prefs_file", cfg.PrefsPath,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var port controller.Port
	if cfg.EmbeddedRelay() {
		if cfg.Capture.LaunchBrowser {
			launcher := browser.NewLauncher(browser.Config{
				CDPAddress: cfg.Capture.CDPAddress,
				CDPPort:    cfg.Capture.CDPPort,
				StartURL:   cfg.Capture.BrowserStartURL,
				ProfileDir: cfg.Capture.BrowserProfileDir,
			})
			if err := launcher.Launch(ctx); err != nil {
				slog.Error("failed to launch browser", "error", err)
				os.Exit(1)
			}
			defer launcher.Stop()
		}

		capturer := tabcapture.New(cfg.Capture.Backend, cfg.Capture.CDPURL(), tabcapture.Options{
			URLFilter: cfg.Capture.TabURLFilter,
			Format:    cfg.Capture.Format,
			Quality:   cfg.Capture.Quality,
			Timeout:   cfg.Capture.Timeout(),
		})
		client := analysis.NewClient(cfg.AnalysisEndpoint, time.Duration(cfg.AnalysisTimeoutSec)*time.Second)
		port = relay.NewLocalPort(relay.New(capturer, client))
	} else {
		port = relay.NewWSPort(cfg.RelayURL, requestTimeout(cfg))
	}

	store, err := prefs.NewStore(cfg.PrefsPath)
	if err != nil {
		slog.Error("failed to create preferences store", "path", cfg.PrefsPath, "error", err)
		os.Exit(1)
	}
	if _, err := store.Load(); err != nil {
		slog.Warn("preferences unreadable, defaults in use until next save", "path", store.Path(), "error", err)
	}

	deps := api.Deps{
		Critic:       controller.New(port, controller.WithRequestTimeout(requestTimeout(cfg))),
		Prefs:        store,
		Broker:       progress.NewBroker(),
		SSEKeepAlive: time.Duration(cfg.SSEKeepAlive) * time.Second,
	}
	if n := notify.New(&http.Client{Timeout: 10 * time.Second}, cfg.NtfyURL); n != nil {
		deps.Notifier = n
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()

	srv := &http.Server{Handler: api.NewServer(deps)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("assistant listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("assistant server failed", "error", err)
		os.Exit(1)
	}
}

// requestTimeout is capture plus analysis plus a margin for the relay hop.
func requestTimeout(cfg *config.AssistantConfig) time.Duration {
	return cfg.Capture.Timeout() + time.Duration(cfg.AnalysisTimeoutSec)*time.Second + 5*time.Second
}

func relayLabel(cfg *config.AssistantConfig) string {
	if cfg.EmbeddedRelay() {
		return "embedded"
	}
	return cfg.RelayURL
}
