package config

import "strings"

// RelayConfig configures the standalone capture relay.
type RelayConfig struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool
	Path             string

	Capture CaptureConfig

	AnalysisEndpoint   string
	AnalysisTimeoutSec int

	LogLevel string
	LogFile  string
}

func LoadRelay() (*RelayConfig, error) {
	loadDotEnv()

	cfg := &RelayConfig{
		BindAddr:           getEnvOrDefault("RELAY_BIND_ADDR", "127.0.0.1:8189"),
		PortCandidates:     getEnvListOrDefault("RELAY_PORT_CANDIDATES", nil),
		PortAutoFallback:   getEnvBoolOrDefault("RELAY_PORT_AUTO_FALLBACK", false),
		Path:               getEnvOrDefault("RELAY_PATH", "/relay"),
		Capture:            loadCapture("RELAY"),
		AnalysisEndpoint:   getEnvOrDefault("ANALYSIS_ENDPOINT", "http://localhost:5001/api/check"),
		AnalysisTimeoutSec: getEnvIntOrDefault("ANALYSIS_TIMEOUT_SEC", 300),
		LogLevel:           strings.ToLower(getEnvOrDefault("RELAY_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("RELAY_LOG_FILE", "logs/relay.log"),
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.AnalysisTimeoutSec < 1 {
		cfg.AnalysisTimeoutSec = 1
	}
	return cfg, nil
}
