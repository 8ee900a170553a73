package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CaptureConfig describes how the relay reaches the browser and captures a tab.
type CaptureConfig struct {
	CDPAddress   string
	CDPPort      int
	Backend      string
	TabURLFilter string
	Format       string
	Quality      int
	TimeoutSec   int

	LaunchBrowser     bool
	BrowserProfileDir string
	BrowserStartURL   string
}

// CDPURL returns the CDP HTTP endpoint used by both capture backends.
func (c CaptureConfig) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// Timeout bounds one whole capture, from tab discovery to screenshot.
func (c CaptureConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// loadDotEnv reads an optional .env file; a missing file is not an error.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

func loadCapture(prefix string) CaptureConfig {
	cfg := CaptureConfig{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		Backend:           strings.ToLower(getEnvOrDefault(prefix+"_CAPTURE_BACKEND", "raw")),
		TabURLFilter:      getEnvOrDefault(prefix+"_TAB_URL_FILTER", ""),
		Format:            strings.ToLower(getEnvOrDefault(prefix+"_CAPTURE_FORMAT", "png")),
		Quality:           getEnvIntOrDefault(prefix+"_CAPTURE_QUALITY", 90),
		TimeoutSec:        getEnvIntOrDefault(prefix+"_CAPTURE_TIMEOUT_SEC", 15),
		LaunchBrowser:     getEnvBoolOrDefault(prefix+"_LAUNCH_BROWSER", false),
		BrowserProfileDir: getEnvOrDefault(prefix+"_BROWSER_PROFILE_DIR", "./browser_profile"),
		BrowserStartURL:   getEnvOrDefault(prefix+"_BROWSER_START_URL", "about:blank"),
	}
	if cfg.Backend != "raw" && cfg.Backend != "chromedp" {
		slog.Warn("unknown capture backend, using raw", "backend", cfg.Backend)
		cfg.Backend = "raw"
	}
	if cfg.Format != "png" && cfg.Format != "jpeg" {
		cfg.Format = "png"
	}
	cfg.Quality = clamp(cfg.Quality, 1, 100)
	cfg.TimeoutSec = clamp(cfg.TimeoutSec, 1, 300)
	return cfg
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
