// Package config loads the gaze-capture YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gaze-capture configuration
type Config struct {
	Device      DeviceConfig    `yaml:"device"`
	Streams     []string        `yaml:"streams"`      // gaze_point, gaze_origin, eye_position, head_pose
	SkipInvalid bool            `yaml:"skip_invalid"` // drop samples with no valid flag before fan-out
	Loop        LoopConfig      `yaml:"loop"`
	Reconnect   ReconnectConfig `yaml:"reconnect"`
	Log         LogConfig       `yaml:"log"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	Recorder    RecorderConfig  `yaml:"recorder"`
	Bus         BusConfig       `yaml:"bus"`
}

// DeviceConfig selects the eye tracker
type DeviceConfig struct {
	Address    string `yaml:"address"`      // empty: first enumerated device
	FieldOfUse string `yaml:"field_of_use"` // interactive, analytical
}

// LoopConfig contains polling loop settings
type LoopConfig struct {
	WaitTimeout time.Duration `yaml:"wait_timeout"` // bound of each wait (default: 1s)
	Iterations  uint64        `yaml:"iterations"`   // wait cycles before stopping (default: 1000)
}

// ReconnectConfig contains exponential backoff settings
type ReconnectConfig struct {
	MaxRetries    int           `yaml:"max_retries"`     // retries after the first attempt (default: 0)
	RetryDelay    time.Duration `yaml:"retry_delay"`     // default: 1s
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"` // default: 30s
}

// LogConfig contains logging settings
type LogConfig struct {
	Level    string `yaml:"level"`     // debug, info, warn, error
	SDKLevel string `yaml:"sdk_level"` // error, warn, info, debug, trace
	Format   string `yaml:"format"`    // text, json
}

// MQTTConfig contains MQTT broker settings. An empty broker disables publishing.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	ClientID       string        `yaml:"client_id"`
	StatusInterval time.Duration `yaml:"status_interval"` // retained latest-sample period (default: 1s)
}

// RecorderConfig contains local recording settings. An empty path disables recording.
type RecorderConfig struct {
	Path string `yaml:"path"`
}

// BusConfig contains sample fan-out settings
type BusConfig struct {
	Buffer int `yaml:"buffer"` // per-sink channel capacity (default: 256)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	// Validate on the zero config only fills defaults.
	_ = Validate(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
