package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Input    InputConfig    `mapstructure:"input"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Detector DetectorConfig `mapstructure:"detector"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// InputConfig selects and configures the trade feed
type InputConfig struct {
	Source            string        `mapstructure:"source"` // "pipe" or "websocket"
	PipePath          string        `mapstructure:"pipe_path"`
	WebsocketURL      string        `mapstructure:"websocket_url"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// PipelineConfig holds worker pool sizing
type PipelineConfig struct {
	DecodeWorkers     int           `mapstructure:"decode_workers"`
	AnalysisWorkers   int           `mapstructure:"analysis_workers"` // 0 = remaining parallelism
	MinParallelism    int           `mapstructure:"min_parallelism"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	EmitSummary       bool          `mapstructure:"emit_summary"`
}

// DetectorConfig holds anomaly detection parameters
type DetectorConfig struct {
	Alpha          float64 `mapstructure:"alpha"`
	WarmupLimit    int     `mapstructure:"warmup_limit"`
	PriceThreshold float64 `mapstructure:"price_threshold"`
	SizeRatio      float64 `mapstructure:"size_ratio"`
	MinSize        int     `mapstructure:"min_size"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	BufferSize     int           `mapstructure:"buffer_size"`
}

// MetricsConfig holds Prometheus exporter configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// Load reads configuration from file and environment variables.
// An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	// Enable environment variable override, e.g. POLYSENTINEL_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("POLYSENTINEL")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Input defaults
	v.SetDefault("input.source", "pipe")
	v.SetDefault("input.pipe_path", "/tmp/pipe_1")
	v.SetDefault("input.websocket_url", "wss://ws-live-data.polymarket.com")
	v.SetDefault("input.ping_interval", "5s")
	v.SetDefault("input.reconnect_interval", "2s")
	v.SetDefault("input.max_retries", 5)

	// Pipeline defaults
	v.SetDefault("pipeline.decode_workers", 2)
	v.SetDefault("pipeline.analysis_workers", 0)
	v.SetDefault("pipeline.min_parallelism", 4)
	v.SetDefault("pipeline.heartbeat_interval", "1s")
	v.SetDefault("pipeline.emit_summary", true)

	// Detector defaults
	v.SetDefault("detector.alpha", 0.01)
	v.SetDefault("detector.warmup_limit", 500)
	v.SetDefault("detector.price_threshold", 0.5)
	v.SetDefault("detector.size_ratio", 5.0)
	v.SetDefault("detector.min_size", 100)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.buffer_size", 64)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Input config
	switch c.Input.Source {
	case "pipe":
		if c.Input.PipePath == "" {
			return fmt.Errorf("input.pipe_path is required when input.source is pipe")
		}
	case "websocket":
		if c.Input.WebsocketURL == "" {
			return fmt.Errorf("input.websocket_url is required when input.source is websocket")
		}
		if c.Input.PingInterval <= 0 {
			return fmt.Errorf("input.ping_interval must be positive")
		}
		if c.Input.ReconnectInterval <= 0 {
			return fmt.Errorf("input.reconnect_interval must be positive")
		}
		if c.Input.MaxRetries < 0 {
			return fmt.Errorf("input.max_retries must not be negative")
		}
	default:
		return fmt.Errorf("input.source must be one of: pipe, websocket")
	}

	// Validate Pipeline config
	if c.Pipeline.DecodeWorkers < 1 {
		return fmt.Errorf("pipeline.decode_workers must be at least 1")
	}
	if c.Pipeline.AnalysisWorkers < 0 {
		return fmt.Errorf("pipeline.analysis_workers must not be negative")
	}
	if c.Pipeline.MinParallelism < c.Pipeline.DecodeWorkers+1 {
		return fmt.Errorf("pipeline.min_parallelism must be at least decode_workers + 1")
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return fmt.Errorf("pipeline.heartbeat_interval must be positive")
	}

	// Validate Detector config
	if c.Detector.Alpha <= 0 || c.Detector.Alpha > 1 {
		return fmt.Errorf("detector.alpha must be in (0, 1]")
	}
	if c.Detector.WarmupLimit < 1 {
		return fmt.Errorf("detector.warmup_limit must be at least 1")
	}
	if c.Detector.PriceThreshold <= 0 {
		return fmt.Errorf("detector.price_threshold must be positive")
	}
	if c.Detector.SizeRatio <= 0 {
		return fmt.Errorf("detector.size_ratio must be positive")
	}
	if c.Detector.MinSize < 0 {
		return fmt.Errorf("detector.min_size must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.BufferSize < 1 {
			return fmt.Errorf("telegram.buffer_size must be at least 1")
		}
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
