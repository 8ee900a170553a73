package config

import "strings"

// CheckServerConfig configures the analysis service.
type CheckServerConfig struct {
	BindAddr string

	APIKey      string
	BaseURL     string
	Model       string
	ProbeModels []string

	PromptsFile string

	RedisURL        string
	CacheTTLSeconds int
	MaxImageBytes   int
	ResizeWidth     int
	ResizeHeight    int
	JPEGQuality     int

	RequestTimeoutSec int

	LogLevel string
	LogFile  string
}

func LoadCheckServer() (*CheckServerConfig, error) {
	loadDotEnv()

	cfg := &CheckServerConfig{
		BindAddr:    getEnvOrDefault("CHECK_BIND_ADDR", "127.0.0.1:5001"),
		APIKey:      getEnvOrDefault("GEMINI_API_KEY", ""),
		BaseURL:     getEnvOrDefault("CHECK_MODEL_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		Model:       getEnvOrDefault("CHECK_MODEL", "gemini-1.5-pro"),
		ProbeModels: getEnvListOrDefault("CHECK_PROBE_MODELS", []string{"gemini-1.5-pro-vision", "gemini-pro-vision", "gemini-1.5-pro", "gemini-1.5-flash", "gemini-pro"}),
		PromptsFile: getEnvOrDefault("CHECK_PROMPTS_FILE", ""),
		RedisURL:    getEnvOrDefault("CHECK_REDIS_URL", ""),

		CacheTTLSeconds:   getEnvIntOrDefault("CHECK_CACHE_TTL_SEC", 300),
		MaxImageBytes:     getEnvIntOrDefault("CHECK_MAX_IMAGE_BYTES", 20*1024*1024),
		ResizeWidth:       getEnvIntOrDefault("CHECK_RESIZE_WIDTH", 800),
		ResizeHeight:      getEnvIntOrDefault("CHECK_RESIZE_HEIGHT", 600),
		JPEGQuality:       getEnvIntOrDefault("CHECK_JPEG_QUALITY", 85),
		RequestTimeoutSec: getEnvIntOrDefault("CHECK_REQUEST_TIMEOUT_SEC", 300),

		LogLevel: strings.ToLower(getEnvOrDefault("CHECK_LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("CHECK_LOG_FILE", "logs/checkserver.log"),
	}
	if cfg.CacheTTLSeconds < 0 {
		cfg.CacheTTLSeconds = 0
	}
	if cfg.MaxImageBytes < 1024 {
		cfg.MaxImageBytes = 1024
	}
	cfg.ResizeWidth = clamp(cfg.ResizeWidth, 16, 4096)
	cfg.ResizeHeight = clamp(cfg.ResizeHeight, 16, 4096)
	cfg.JPEGQuality = clamp(cfg.JPEGQuality, 1, 100)
	if cfg.RequestTimeoutSec < 1 {
		cfg.RequestTimeoutSec = 1
	}
	return cfg, nil
}
