// Package config provides the configuration schema, loader, and change
// watcher for the Aria voice agent.
package config

import "time"

// LogLevel controls log verbosity for the agent.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Aria.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus scrape endpoint listens
	// on (e.g., ":9091"). Leave empty to disable the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// SessionConfig selects and configures the remote voice session provider.
type SessionConfig struct {
	// Provider selects the session implementation (e.g., "gemini-live",
	// "openai-realtime").
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice selects the synthesized voice, if the provider supports it.
	Voice string `yaml:"voice"`

	// Instructions is the system prompt for the conversation.
	Instructions string `yaml:"instructions"`
}

// AudioConfig holds sample rates and framing for the pipeline.
type AudioConfig struct {
	// CaptureRate is the microphone sample rate in Hz. Defaults to 16000.
	CaptureRate int `yaml:"capture_rate"`

	// PlaybackRate is the output sample rate in Hz. Defaults to 24000.
	PlaybackRate int `yaml:"playback_rate"`

	// FrameSize is the number of samples per outbound chunk. Defaults
	// to 4096.
	FrameSize int `yaml:"frame_size"`
}

// MonitorConfig tunes the amplitude monitor driving the visualizer.
type MonitorConfig struct {
	// Refresh is the spectrum recompute interval. Defaults to 50ms.
	Refresh time.Duration `yaml:"refresh"`
}
