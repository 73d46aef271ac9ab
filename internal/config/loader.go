package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known session provider names.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"gemini-live", "openai-realtime", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields that have sensible defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Audio.CaptureRate == 0 {
		cfg.Audio.CaptureRate = 16000
	}
	if cfg.Audio.PlaybackRate == 0 {
		cfg.Audio.PlaybackRate = 24000
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = 4096
	}
	if cfg.Monitor.Refresh == 0 {
		cfg.Monitor.Refresh = 50 * time.Millisecond
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Session
	if cfg.Session.Provider == "" {
		errs = append(errs, errors.New("session.provider is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Session.Provider) {
		slog.Warn("unknown session provider name — may be a typo",
			"name", cfg.Session.Provider,
			"known", ValidProviderNames,
		)
	}
	if cfg.Session.APIKey == "" && cfg.Session.Provider != "mock" && cfg.Session.Provider != "" {
		errs = append(errs, fmt.Errorf("session.api_key is required for provider %q", cfg.Session.Provider))
	}

	// Audio
	if cfg.Audio.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_rate %d must be positive", cfg.Audio.CaptureRate))
	}
	if cfg.Audio.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must be positive", cfg.Audio.PlaybackRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// Monitor
	if cfg.Monitor.Refresh < 0 {
		errs = append(errs, fmt.Errorf("monitor.refresh %v must be positive", cfg.Monitor.Refresh))
	}

	return errors.Join(errs...)
}
