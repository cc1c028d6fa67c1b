// Package config loads bridge defaults from the user config file.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds bridge defaults. CLI flags override every field.
type Config struct {
	Device   string `yaml:"device"`    // target device name, e.g. "NRF54L15_M33"
	SpeedKHz int    `yaml:"speed_khz"` // SWD clock in kHz
	Buffer   string `yaml:"buffer"`    // RTT buffer name to bridge
	Link     string `yaml:"link,omitempty"` // symlink path for the PTY

	// Timing knobs. Zero means built-in default.
	PollIntervalMs  int `yaml:"poll_interval_ms"`  // pump idle backoff / readiness wait
	DetectTimeoutMs int `yaml:"detect_timeout_ms"` // RTT control-block detection bound
	SettleDelayMs   int `yaml:"settle_delay_ms"`   // post-start settle before detection polling
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Device:          "NRF54L15_M33",
		SpeedKHz:        4000,
		Buffer:          "Terminal",
		PollIntervalMs:  20,
		DetectTimeoutMs: 5000,
		SettleDelayMs:   500,
	}
}

// Load reads the config file at path, or the default location when path
// is empty, falling back to defaults when the file does not exist.
// Missing fields are backfilled with defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = getConfigPath()
	}
	return loadFrom(path)
}

func loadFrom(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file, use defaults
			return DefaultConfig(), nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero-valued fields.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Device == "" {
		c.Device = def.Device
	}
	if c.SpeedKHz == 0 {
		c.SpeedKHz = def.SpeedKHz
	}
	if c.Buffer == "" {
		c.Buffer = def.Buffer
	}
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = def.PollIntervalMs
	}
	if c.DetectTimeoutMs == 0 {
		c.DetectTimeoutMs = def.DetectTimeoutMs
	}
	if c.SettleDelayMs == 0 {
		c.SettleDelayMs = def.SettleDelayMs
	}
}

// getConfigPath returns ~/.config/rttpty/config.yaml.
func getConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rttpty", "config.yaml")
}
