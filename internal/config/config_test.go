package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != "cpu" {
		t.Errorf("Device = %q, want cpu", cfg.Device)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	content := "package: /models/mnist\ndevice: webgpu\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PackagePath != "/models/mnist" {
		t.Errorf("PackagePath = %q", cfg.PackagePath)
	}
	if cfg.Device != "webgpu" {
		t.Errorf("Device = %q", cfg.Device)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	if err := os.WriteFile(path, []byte("device: cpu\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WEFT_DEVICE", "webgpu")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device != "webgpu" {
		t.Errorf("Device = %q, want env override webgpu", cfg.Device)
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestBadLogLevel(t *testing.T) {
	cfg := &Config{LogLevel: "loud"}
	if _, err := cfg.Logger(); err == nil {
		t.Error("expected error for bad log level")
	}
}

func TestOpenDeviceCPU(t *testing.T) {
	cfg := &Config{Device: "cpu"}
	dev, err := cfg.OpenDevice()
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	if dev.Name() != "cpu" {
		t.Errorf("device name = %q", dev.Name())
	}
}

func TestOpenDeviceUnknown(t *testing.T) {
	cfg := &Config{Device: "tpu"}
	if _, err := cfg.OpenDevice(); err == nil {
		t.Error("expected error for unknown device")
	}
}
