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

// Feed sources.
const (
	FeedDOM    = "dom"
	FeedMemory = "memory"
	FeedFile   = "file"
	FeedNone   = "none"
)

// Config holds all configuration for chatsnap.
type Config struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	TabURLFilter string
	EvalTimeout  time.Duration

	// Browser launch, used when nothing listens on the CDP port
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string
	WindowSize    string

	// HTTP control API
	BindAddr string
	LogLevel string
	LogFile  string

	// Capture pipeline
	TargetProfile   string
	MediaTimeout    time.Duration
	SettleMaxFrames int
	SettleTolerance float64
	PixelRatio      float64
	Background      string
	RasterTimeout   time.Duration
	AutoCapture     bool

	// Message feed driving auto capture
	FeedSource string
	FeedFile   string

	// Outputs
	ExportDir         string
	JournalDir        string
	JournalMaxSizeMB  int
	JournalBufferSize int

	// ntfy topic URL; empty disables notifications
	NotifyURL string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		TabURLFilter:      getEnvOrDefault("CHATSNAP_TAB_URL_FILTER", "localhost:5173"),
		EvalTimeout:       getEnvMillisOrDefault("CHATSNAP_EVAL_TIMEOUT_MS", 5*time.Second),
		LaunchBrowser:     getEnvBoolOrDefault("CHATSNAP_LAUNCH_BROWSER", false),
		StartURL:          getEnvOrDefault("CHATSNAP_START_URL", "http://localhost:5173/"),
		ProfileDir:        getEnvOrDefault("CHATSNAP_PROFILE_DIR", "./browser_profile"),
		WindowSize:        getEnvOrDefault("CHATSNAP_WINDOW_SIZE", "1280,1000"),
		BindAddr:          getEnvOrDefault("CHATSNAP_BIND_ADDR", "127.0.0.1:8199"),
		LogLevel:          strings.ToLower(getEnvOrDefault("CHATSNAP_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("CHATSNAP_LOG_FILE", "logs/chatsnap.log"),
		TargetProfile:     getEnvOrDefault("CHATSNAP_TARGET_PROFILE", "./config/target.yaml"),
		MediaTimeout:      getEnvMillisOrDefault("CHATSNAP_MEDIA_TIMEOUT_MS", 3*time.Second),
		SettleMaxFrames:   getEnvIntOrDefault("CHATSNAP_SETTLE_MAX_FRAMES", 30),
		SettleTolerance:   getEnvFloatOrDefault("CHATSNAP_SETTLE_TOLERANCE_PX", 1),
		PixelRatio:        getEnvFloatOrDefault("CHATSNAP_PIXEL_RATIO", 2),
		Background:        getEnvOrDefault("CHATSNAP_BACKGROUND", "#ffffff"),
		RasterTimeout:     getEnvMillisOrDefault("CHATSNAP_RASTER_TIMEOUT_MS", 30*time.Second),
		AutoCapture:       getEnvBoolOrDefault("CHATSNAP_AUTO_CAPTURE", false),
		FeedSource:        strings.ToLower(getEnvOrDefault("CHATSNAP_FEED", FeedDOM)),
		FeedFile:          getEnvOrDefault("CHATSNAP_FEED_FILE", "./chat.jsonl"),
		ExportDir:         getEnvOrDefault("CHATSNAP_EXPORT_DIR", "./exports"),
		JournalDir:        getEnvOrDefault("CHATSNAP_JOURNAL_DIR", "./journal"),
		JournalMaxSizeMB:  getEnvIntOrDefault("CHATSNAP_JOURNAL_MAX_SIZE_MB", 50),
		JournalBufferSize: getEnvIntOrDefault("CHATSNAP_JOURNAL_BUFFER_SIZE", 256),
		NotifyURL:         getEnvOrDefault("CHATSNAP_NOTIFY_URL", ""),
	}
	if cfg.EvalTimeout < time.Second {
		cfg.EvalTimeout = time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.FeedSource {
	case FeedDOM, FeedMemory, FeedFile, FeedNone:
	default:
		return fmt.Errorf("config: unknown feed source %q", c.FeedSource)
	}
	if c.PixelRatio <= 0 {
		return fmt.Errorf("config: pixel ratio must be > 0, got %v", c.PixelRatio)
	}
	if c.SettleMaxFrames <= 0 {
		return fmt.Errorf("config: settle max frames must be > 0, got %d", c.SettleMaxFrames)
	}
	if c.SettleTolerance < 0 {
		return fmt.Errorf("config: settle tolerance must be >= 0, got %v", c.SettleTolerance)
	}
	if c.FeedSource == FeedFile && c.FeedFile == "" {
		return fmt.Errorf("config: CHATSNAP_FEED_FILE is required for the file feed")
	}
	return nil
}

// CDPURL returns the full CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
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

func getEnvMillisOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
