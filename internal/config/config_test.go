package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Device != "NRF54L15_M33" {
		t.Errorf("device = %q, want NRF54L15_M33", cfg.Device)
	}
	if cfg.SpeedKHz != 4000 {
		t.Errorf("speed = %d, want 4000", cfg.SpeedKHz)
	}
	if cfg.Buffer != "Terminal" {
		t.Errorf("buffer = %q, want Terminal", cfg.Buffer)
	}
	if cfg.PollIntervalMs != 20 {
		t.Errorf("poll interval = %d, want 20", cfg.PollIntervalMs)
	}
	if cfg.Link != "" {
		t.Errorf("link = %q, want unset", cfg.Link)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := loadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `device: STM32F407VG
speed_khz: 12000
buffer: Logger
link: /tmp/rtt0
detect_timeout_ms: 10000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.Device != "STM32F407VG" {
		t.Errorf("device = %q, want STM32F407VG", cfg.Device)
	}
	if cfg.SpeedKHz != 12000 {
		t.Errorf("speed = %d, want 12000", cfg.SpeedKHz)
	}
	if cfg.Buffer != "Logger" {
		t.Errorf("buffer = %q, want Logger", cfg.Buffer)
	}
	if cfg.Link != "/tmp/rtt0" {
		t.Errorf("link = %q, want /tmp/rtt0", cfg.Link)
	}
	if cfg.DetectTimeoutMs != 10000 {
		t.Errorf("detect timeout = %d, want 10000", cfg.DetectTimeoutMs)
	}
}

func TestLoadFromBackfillsZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device: EFR32BG22\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.Device != "EFR32BG22" {
		t.Errorf("device = %q, want EFR32BG22", cfg.Device)
	}
	def := DefaultConfig()
	if cfg.SpeedKHz != def.SpeedKHz {
		t.Errorf("speed = %d, want default %d", cfg.SpeedKHz, def.SpeedKHz)
	}
	if cfg.Buffer != def.Buffer {
		t.Errorf("buffer = %q, want default %q", cfg.Buffer, def.Buffer)
	}
	if cfg.SettleDelayMs != def.SettleDelayMs {
		t.Errorf("settle delay = %d, want default %d", cfg.SettleDelayMs, def.SettleDelayMs)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.yaml")
	if err := os.WriteFile(path, []byte("buffer: Shell\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Buffer != "Shell" {
		t.Errorf("buffer = %q, want Shell", cfg.Buffer)
	}
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("device: [unterminated"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := loadFrom(path); err == nil {
		t.Fatal("loadFrom() accepted malformed yaml")
	}
}
