// Package config loads runtime configuration for the weft CLI and
// embedding programs: an optional YAML file overridden by WEFT_*
// environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/device/cpu"
	"github.com/weft-ml/weft/internal/device/webgpu"
)

// Config holds the runtime settings. YAML keys and WEFT_* environment
// variables map onto the same fields; the environment wins.
type Config struct {
	// PackagePath is the compiled package directory to operate on.
	PackagePath string `yaml:"package" envconfig:"PACKAGE"`
	// Device selects the backend: "cpu" or "webgpu".
	Device string `yaml:"device" envconfig:"DEVICE"`
	// LogLevel is a zap level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Load reads the YAML file (skipped when path is empty), then applies
// WEFT_* environment overrides. Precedence: environment, file, defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Device:   "cpu",
		LogLevel: "info",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("weft", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return cfg, nil
}

// Logger builds a zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}

// OpenDevice constructs the configured device.
func (c *Config) OpenDevice() (*device.Device, error) {
	switch c.Device {
	case "", "cpu":
		return device.NewDevice(cpu.New()), nil
	case "webgpu":
		backend, err := webgpu.New()
		if err != nil {
			return nil, err
		}
		return device.NewDevice(backend), nil
	default:
		return nil, fmt.Errorf("unknown device %q (want cpu or webgpu)", c.Device)
	}
}
