package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Timeout bounds for the server inactivity watchdog, in seconds
const (
	MinTimeoutSeconds     = 1
	MaxTimeoutSeconds     = 120
	DefaultTimeoutSeconds = 30
)

// Config represents the complete daemon configuration
type Config struct {
	Console  ConsoleConfig  `yaml:"console"`
	Stream   StreamConfig   `yaml:"stream"`
	Transfer TransferConfig `yaml:"transfer"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ConsoleConfig controls the command console attachment
type ConsoleConfig struct {
	// Listen is a TCP address for the console; empty means stdio
	Listen string `yaml:"listen" envconfig:"CONSOLE_LISTEN"`
}

// StreamConfig controls the dual-buffer streamer and sinks
type StreamConfig struct {
	// BufferSize is the capacity of each ping-pong buffer in bytes
	BufferSize int `yaml:"buffer_size" envconfig:"BUFFER_SIZE"`

	// SyncThreshold is the accumulated byte count after which a file
	// destination is fsynced; a final sync always happens at transfer end
	SyncThreshold int64 `yaml:"sync_threshold" envconfig:"SYNC_THRESHOLD"`
}

// TransferConfig controls request execution
type TransferConfig struct {
	// TimeoutSeconds bounds server inactivity per request
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`

	// UploadTimeoutSeconds bounds inactivity while collecting upload
	// data from the console; deliberately longer than the transfer bound
	UploadTimeoutSeconds int `yaml:"upload_timeout_seconds" envconfig:"UPLOAD_TIMEOUT_SECONDS"`

	MaxRedirects int    `yaml:"max_redirects" envconfig:"MAX_REDIRECTS"`
	MaxHeaders   int    `yaml:"max_headers" envconfig:"MAX_HEADERS"`
	UserAgent    string `yaml:"user_agent" envconfig:"USER_AGENT"`

	// MaxSerialUpload caps the byte count a serial upload may declare
	MaxSerialUpload int64 `yaml:"max_serial_upload" envconfig:"MAX_SERIAL_UPLOAD"`
}

// StorageConfig controls file-destination pre-conditions
type StorageConfig struct {
	// Root is the directory downloads and uploads must live under;
	// empty disables the containment check
	Root string `yaml:"root" envconfig:"STORAGE_ROOT"`
}

// LogConfig controls structured logging output
type LogConfig struct {
	File  string `yaml:"file" envconfig:"LOG_FILE"`
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			BufferSize:    2048,
			SyncThreshold: 256 * 1024,
		},
		Transfer: TransferConfig{
			TimeoutSeconds:       DefaultTimeoutSeconds,
			UploadTimeoutSeconds: 60,
			MaxRedirects:         5,
			MaxHeaders:           16,
			UserAgent:            "atfetch/1.0",
			MaxSerialUpload:      512 * 1024,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, applies ATFETCH_* environment
// overrides, and validates the result. An empty path loads defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("atfetch", cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration from raw YAML bytes over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks bounds and normalizes out-of-range values
func (c *Config) Validate() error {
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("stream.buffer_size must be positive, got %d", c.Stream.BufferSize)
	}
	if c.Stream.SyncThreshold <= 0 {
		return fmt.Errorf("stream.sync_threshold must be positive, got %d", c.Stream.SyncThreshold)
	}
	if c.Transfer.TimeoutSeconds < MinTimeoutSeconds || c.Transfer.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("transfer.timeout_seconds must be in [%d,%d], got %d",
			MinTimeoutSeconds, MaxTimeoutSeconds, c.Transfer.TimeoutSeconds)
	}
	if c.Transfer.MaxRedirects < 0 {
		return fmt.Errorf("transfer.max_redirects must not be negative, got %d", c.Transfer.MaxRedirects)
	}
	if c.Transfer.MaxHeaders <= 0 {
		return fmt.Errorf("transfer.max_headers must be positive, got %d", c.Transfer.MaxHeaders)
	}
	return nil
}

// Timeout returns the configured inactivity bound as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Transfer.TimeoutSeconds) * time.Second
}

// UploadTimeout returns the serial upload inactivity bound
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Transfer.UploadTimeoutSeconds) * time.Second
}

// ClampTimeout bounds an arbitrary per-request timeout to the valid range
func ClampTimeout(seconds int) (int, bool) {
	if seconds < MinTimeoutSeconds || seconds > MaxTimeoutSeconds {
		return DefaultTimeoutSeconds, false
	}
	return seconds, true
}
