// Package config holds runtime settings and the verbose debug switch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Verbose enables debug output when true
var Verbose bool

// Debugf logs debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		zap.S().Debugf(format, args...)
	}
}

// Settings is the root configuration.
type Settings struct {
	Device   DeviceConfig  `mapstructure:"device"`
	Timeouts TimeoutConfig `mapstructure:"timeouts"`
	Test     TestConfig    `mapstructure:"test"`
	Listen   ListenConfig  `mapstructure:"listen"`
	Log      LogConfig     `mapstructure:"log"`
}

// DeviceConfig selects the peripheral and its characteristic pair.
// Empty UUIDs fall back to the built-in throughput service.
type DeviceConfig struct {
	Name        string        `mapstructure:"name"`
	Address     string        `mapstructure:"address"`
	Service     string        `mapstructure:"service"`
	WriteChar   string        `mapstructure:"write_char"`
	ReadChar    string        `mapstructure:"read_char"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
}

// TimeoutConfig bounds every radio operation.
type TimeoutConfig struct {
	Connect time.Duration `mapstructure:"connect"`
	Write   time.Duration `mapstructure:"write"`
	Read    time.Duration `mapstructure:"read"`
}

// TestConfig holds throughput test defaults.
type TestConfig struct {
	PacketSize  int           `mapstructure:"packet_size"`
	PacketCount int           `mapstructure:"packet_count"`
	Concurrency int           `mapstructure:"concurrency"`
	Interval    time.Duration `mapstructure:"interval"`
}

// ListenConfig controls the read polling loop.
type ListenConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns Settings populated with the built-in defaults.
func Default() *Settings {
	return &Settings{
		Device: DeviceConfig{
			ScanTimeout: 10 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Connect: 15 * time.Second,
			Write:   5 * time.Second,
			Read:    5 * time.Second,
		},
		Test: TestConfig{
			PacketSize:  244,
			PacketCount: 1000,
			Concurrency: 100,
		},
		Listen: ListenConfig{
			Interval: 3 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
	}
}

// Load reads settings from path, or from blebench.yaml in the usual places when
// path is empty. A missing file is not an error. Environment variables use the
// BLEBENCH prefix with `.` replaced by `_`, e.g. BLEBENCH_TEST_PACKET_SIZE=20.
func Load(path string) (*Settings, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BLEBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("device.name", cfg.Device.Name)
	v.SetDefault("device.address", cfg.Device.Address)
	v.SetDefault("device.service", cfg.Device.Service)
	v.SetDefault("device.write_char", cfg.Device.WriteChar)
	v.SetDefault("device.read_char", cfg.Device.ReadChar)
	v.SetDefault("device.scan_timeout", cfg.Device.ScanTimeout)
	v.SetDefault("timeouts.connect", cfg.Timeouts.Connect)
	v.SetDefault("timeouts.write", cfg.Timeouts.Write)
	v.SetDefault("timeouts.read", cfg.Timeouts.Read)
	v.SetDefault("test.packet_size", cfg.Test.PacketSize)
	v.SetDefault("test.packet_count", cfg.Test.PacketCount)
	v.SetDefault("test.concurrency", cfg.Test.Concurrency)
	v.SetDefault("test.interval", cfg.Test.Interval)
	v.SetDefault("listen.interval", cfg.Listen.Interval)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv("BLEBENCH_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("blebench")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".blebench"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Settings) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", s.Log.Level)
	}
	if s.Log.Format == "" {
		s.Log.Format = "console"
	}
	if len(s.Log.Outputs) == 0 {
		s.Log.Outputs = []string{"stderr"}
	}
	if s.Test.PacketSize <= 0 {
		return fmt.Errorf("invalid test.packet_size: %d", s.Test.PacketSize)
	}
	if s.Test.PacketCount < 0 {
		return fmt.Errorf("invalid test.packet_count: %d", s.Test.PacketCount)
	}
	if s.Test.Concurrency < 0 {
		return fmt.Errorf("invalid test.concurrency: %d", s.Test.Concurrency)
	}
	if s.Timeouts.Write <= 0 || s.Timeouts.Read <= 0 {
		return fmt.Errorf("timeouts.write and timeouts.read must be positive")
	}
	return nil
}
