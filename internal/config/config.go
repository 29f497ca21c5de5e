package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the observer.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Tab matching
	TabURLFilter string

	// Collection behavior
	RetainedEpochs  int
	WSMaxFrameBytes int

	// Optional JSONL mirror of collected items
	MirrorEnabled    bool
	MirrorDir        string
	MirrorBufferSize int
	MirrorMaxSizeMB  int

	// Notifications and logging
	NotifyEndpoint string
	LogLevel       string
	LogFile        string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:         getEnvOrDefault("NETLENS_BIND_ADDR", "127.0.0.1:8460"),
		PortCandidates:   splitList(getEnvOrDefault("NETLENS_PORT_CANDIDATES", "127.0.0.1:8461,127.0.0.1:8462")),
		PortAutoFallback: getEnvBoolOrDefault("NETLENS_PORT_AUTO_FALLBACK", true),
		TabURLFilter:     getEnvOrDefault("NETLENS_TAB_URL_FILTER", ""),
		RetainedEpochs:   getEnvIntOrDefault("NETLENS_RETAINED_EPOCHS", 3),
		WSMaxFrameBytes:  getEnvIntOrDefault("NETLENS_WS_MAX_FRAME_BYTES", 1024*1024),
		MirrorEnabled:    getEnvBoolOrDefault("NETLENS_MIRROR_ENABLED", false),
		MirrorDir:        getEnvOrDefault("NETLENS_MIRROR_DIR", "./observed_data"),
		MirrorBufferSize: getEnvIntOrDefault("NETLENS_MIRROR_BUFFER_SIZE", 5000),
		MirrorMaxSizeMB:  getEnvIntOrDefault("NETLENS_MIRROR_MAX_FILE_SIZE_MB", 200),
		NotifyEndpoint:   getEnvOrDefault("NETLENS_NOTIFY_ENDPOINT", ""),
		LogLevel:         strings.ToLower(getEnvOrDefault("NETLENS_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("NETLENS_LOG_FILE", "logs/observer.log"),
	}

	if cfg.RetainedEpochs < 1 {
		cfg.RetainedEpochs = 1
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the remote allocator and the
// lifecycle connection.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
