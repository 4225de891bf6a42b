package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Test.PacketSize != 244 {
		t.Errorf("expected packet size 244, got %d", cfg.Test.PacketSize)
	}
	if cfg.Test.PacketCount != 1000 {
		t.Errorf("expected packet count 1000, got %d", cfg.Test.PacketCount)
	}
	if cfg.Test.Concurrency != 100 {
		t.Errorf("expected concurrency 100, got %d", cfg.Test.Concurrency)
	}
	if cfg.Timeouts.Write != 5*time.Second {
		t.Errorf("expected 5s write timeout, got %v", cfg.Timeouts.Write)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blebench.yaml")
	data := `
device:
  name: nrf-bench
test:
  packet_size: 20
  interval: 10ms
timeouts:
  read: 2s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.Name != "nrf-bench" {
		t.Errorf("expected device name nrf-bench, got %q", cfg.Device.Name)
	}
	if cfg.Test.PacketSize != 20 {
		t.Errorf("expected packet size 20, got %d", cfg.Test.PacketSize)
	}
	if cfg.Test.Interval != 10*time.Millisecond {
		t.Errorf("expected 10ms interval, got %v", cfg.Test.Interval)
	}
	if cfg.Timeouts.Read != 2*time.Second {
		t.Errorf("expected 2s read timeout, got %v", cfg.Timeouts.Read)
	}
	if cfg.Timeouts.Write != 5*time.Second {
		t.Errorf("expected default write timeout, got %v", cfg.Timeouts.Write)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BLEBENCH_TEST_PACKET_COUNT", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Test.PacketCount != 42 {
		t.Errorf("expected packet count 42, got %d", cfg.Test.PacketCount)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected invalid log level to fail")
	}
}
