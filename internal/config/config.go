// Package config provides unified configuration loading for the reader engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the reader engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Render        RenderConfig        `yaml:"render"`
	Zoom          ZoomConfig          `yaml:"zoom"`
	Viewer        ViewerConfig        `yaml:"viewer"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds settings for the book store.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds raster cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// RenderConfig holds rasterization settings.
type RenderConfig struct {
	MinRasterWidth   float64 `yaml:"min_raster_width"`
	MinOversample    float64 `yaml:"min_oversample"`
	MaxOversample    float64 `yaml:"max_oversample"`
	DevicePixelRatio float64 `yaml:"device_pixel_ratio"`
	CacheRasters     bool    `yaml:"cache_rasters"`
}

// ZoomConfig holds gesture settings.
type ZoomConfig struct {
	WheelSensitivity float64       `yaml:"wheel_sensitivity"`
	WheelSettle      time.Duration `yaml:"wheel_settle"`
	PinchSettle      time.Duration `yaml:"pinch_settle"`
	ButtonStep       float64       `yaml:"button_step"`
}

// ViewerConfig holds session settings.
type ViewerConfig struct {
	BookID         string        `yaml:"book_id"`
	SaveDebounce   time.Duration `yaml:"save_debounce"`
	Theme          string        `yaml:"theme"`
	ViewportWidth  float64       `yaml:"viewport_width"`
	ViewportHeight float64       `yaml:"viewport_height"`
}

// ExportConfig holds export settings.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
	Suffix    string `yaml:"suffix"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             8095,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   200 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "reader-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 64,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "reader:",
			},
		},
		Render: RenderConfig{
			MinRasterWidth:   1800,
			MinOversample:    2,
			MaxOversample:    4,
			DevicePixelRatio: 1,
			CacheRasters:     true,
		},
		Zoom: ZoomConfig{
			WheelSensitivity: 0.003,
			WheelSettle:      100 * time.Millisecond,
			PinchSettle:      80 * time.Millisecond,
			ButtonStep:       0.25,
		},
		Viewer: ViewerConfig{
			BookID:         "current-book",
			SaveDebounce:   500 * time.Millisecond,
			Theme:          "white",
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
		Export: ExportConfig{
			OutputDir: ".",
			Suffix:    "-highlighted",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "reader-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Render.MinOversample <= 0 || c.Render.MaxOversample < c.Render.MinOversample {
		return fmt.Errorf("oversample bounds must satisfy 0 < min <= max, got %.2f..%.2f",
			c.Render.MinOversample, c.Render.MaxOversample)
	}

	if c.Render.DevicePixelRatio <= 0 {
		return fmt.Errorf("device_pixel_ratio must be positive")
	}

	if c.Zoom.ButtonStep <= 0 {
		return fmt.Errorf("button_step must be positive")
	}

	if c.Viewer.SaveDebounce < 0 || c.Zoom.WheelSettle < 0 || c.Zoom.PinchSettle < 0 {
		return fmt.Errorf("debounce intervals cannot be negative")
	}

	if strings.TrimSpace(c.Viewer.BookID) == "" {
		return fmt.Errorf("viewer.book_id cannot be empty")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("READER_BOOK_ID"); v != "" {
		cfg.Viewer.BookID = v
	}

	if v := os.Getenv("READER_THEME"); v != "" {
		cfg.Viewer.Theme = v
	}

	if v := os.Getenv("READER_DEVICE_PIXEL_RATIO"); v != "" {
		if dpr, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Render.DevicePixelRatio = dpr
		}
	}

	if v := os.Getenv("READER_EXPORT_DIR"); v != "" {
		cfg.Export.OutputDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
