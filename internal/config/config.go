package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Licensing LicensingConfig `yaml:"licensing" envconfig:"LICENSING"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Covers    CoversConfig    `yaml:"covers" envconfig:"COVERS"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LicensingConfig configures the entitlement verifier.
type LicensingConfig struct {
	AuthorityURL string        `yaml:"authority_url" envconfig:"AUTHORITY_URL" validate:"required,url"`
	LicenseFile  string        `yaml:"license_file" envconfig:"LICENSE_FILE" validate:"required"`
	PurchaseURL  string        `yaml:"purchase_url" envconfig:"PURCHASE_URL" validate:"required,url"`
	CallTimeout  time.Duration `yaml:"call_timeout" envconfig:"CALL_TIMEOUT"`
	MaxRetries   uint          `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"min=1"`
	RetryDelay   time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
}

// StorageConfig configures the bookmark database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH" validate:"required"`
}

// CoversConfig configures the Open Library cover client.
type CoversConfig struct {
	SearchURL   string        `yaml:"search_url" envconfig:"SEARCH_URL"`
	ImageURL    string        `yaml:"image_url" envconfig:"IMAGE_URL"`
	CacheDir    string        `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	RequestRate float64       `yaml:"request_rate" envconfig:"REQUEST_RATE"`
	Burst       int           `yaml:"burst" envconfig:"BURST"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ExportConfig configures workbook export.
type ExportConfig struct {
	Dir string `yaml:"dir" envconfig:"DIR"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// WebSocketConfig contains WebSocket configuration.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Default returns the built-in configuration. Defaults live here rather
// than in struct tags so a YAML overlay is never clobbered by re-applied
// tag defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Licensing: LicensingConfig{
			AuthorityURL: "https://license.shelfmark.app",
			LicenseFile:  "license.json",
			PurchaseURL:  "https://shelfmark.app/buy",
			CallTimeout:  5 * time.Second,
			MaxRetries:   3,
			RetryDelay:   300 * time.Millisecond,
		},
		Storage: StorageConfig{
			DatabasePath: "data/shelfmark.db",
		},
		Covers: CoversConfig{
			SearchURL:   "https://openlibrary.org",
			ImageURL:    "https://covers.openlibrary.org",
			CacheDir:    "data/covers",
			RequestRate: 2,
			Burst:       4,
			Timeout:     10 * time.Second,
		},
		Export: ExportConfig{
			Dir: "data/exports",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/shelfmark.log",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}

// Load builds the configuration: built-in defaults, then the optional YAML
// file, then SHELFMARK_* environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := overlayFile(path, cfg); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("SHELFMARK", cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
