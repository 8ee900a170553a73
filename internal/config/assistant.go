package config

import (
	"strings"
)

// AssistantConfig configures the control panel binary that hosts the
// request controller.
type AssistantConfig struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// RelayURL selects a remote relay (ws://host/relay). Empty runs the
	// relay in-process.
	RelayURL string
	Capture  CaptureConfig

	AnalysisEndpoint   string
	AnalysisTimeoutSec int

	PrefsPath    string
	NtfyURL      string
	SSEKeepAlive int

	LogLevel string
	LogFile  string
}

// LoadAssistant reads assistant configuration from environment variables and
// an optional .env file.
func LoadAssistant() (*AssistantConfig, error) {
	loadDotEnv()

	cfg := &AssistantConfig{
		BindAddr:           getEnvOrDefault("ASSISTANT_BIND_ADDR", "127.0.0.1:8188"),
		PortCandidates:     getEnvListOrDefault("ASSISTANT_PORT_CANDIDATES", []string{"127.0.0.1:8190", "127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:   getEnvBoolOrDefault("ASSISTANT_PORT_AUTO_FALLBACK", true),
		RelayURL:           strings.TrimSpace(getEnvOrDefault("ASSISTANT_RELAY_URL", "")),
		Capture:            loadCapture("ASSISTANT"),
		AnalysisEndpoint:   getEnvOrDefault("ANALYSIS_ENDPOINT", "http://localhost:5001/api/check"),
		AnalysisTimeoutSec: getEnvIntOrDefault("ANALYSIS_TIMEOUT_SEC", 300),
		PrefsPath:          getEnvOrDefault("ASSISTANT_PREFS_FILE", "./data/preferences.json"),
		NtfyURL:            getEnvOrDefault("ASSISTANT_NTFY_URL", ""),
		SSEKeepAlive:       getEnvIntOrDefault("ASSISTANT_SSE_KEEPALIVE_SEC", 15),
		LogLevel:           strings.ToLower(getEnvOrDefault("ASSISTANT_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("ASSISTANT_LOG_FILE", "logs/assistant.log"),
	}
	if cfg.AnalysisTimeoutSec < 1 {
		cfg.AnalysisTimeoutSec = 1
	}
	if cfg.SSEKeepAlive < 0 {
		cfg.SSEKeepAlive = 0
	}
	return cfg, nil
}

// EmbeddedRelay reports whether the relay runs inside the assistant process.
func (c *AssistantConfig) EmbeddedRelay() bool {
	return c.RelayURL == ""
}
