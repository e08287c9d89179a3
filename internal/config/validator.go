package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// DefaultStreams are subscribed when the configuration names none.
var DefaultStreams = []string{
	native.StreamGazePoint.String(),
	native.StreamGazeOrigin.String(),
	native.StreamHeadPose.String(),
}

// Validate checks the configuration and fills defaults in place
func Validate(cfg *Config) error {
	// Device
	if strings.IndexByte(cfg.Device.Address, 0) >= 0 {
		return fmt.Errorf("device.address must not contain NUL bytes")
	}
	switch cfg.Device.FieldOfUse {
	case "":
		cfg.Device.FieldOfUse = "interactive"
	case "interactive", "analytical":
	default:
		return fmt.Errorf("device.field_of_use must be interactive or analytical, got %q", cfg.Device.FieldOfUse)
	}

	// Streams
	if len(cfg.Streams) == 0 {
		cfg.Streams = append([]string(nil), DefaultStreams...)
	}
	if err := ValidateStreams(cfg.Streams); err != nil {
		return fmt.Errorf("streams: %w", err)
	}

	// Loop
	if cfg.Loop.WaitTimeout < 0 {
		return fmt.Errorf("loop.wait_timeout must be >= 0")
	}
	if cfg.Loop.WaitTimeout == 0 {
		cfg.Loop.WaitTimeout = time.Second
	}
	if cfg.Loop.Iterations == 0 {
		cfg.Loop.Iterations = 1000
	}

	// Reconnect
	if cfg.Reconnect.MaxRetries < 0 {
		return fmt.Errorf("reconnect.max_retries must be >= 0")
	}
	if cfg.Reconnect.RetryDelay <= 0 {
		cfg.Reconnect.RetryDelay = time.Second
	}
	if cfg.Reconnect.MaxRetryDelay <= 0 {
		cfg.Reconnect.MaxRetryDelay = 30 * time.Second
	}
	if cfg.Reconnect.MaxRetryDelay < cfg.Reconnect.RetryDelay {
		return fmt.Errorf("reconnect.max_retry_delay must be >= retry_delay")
	}

	// Log
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	if cfg.Log.SDKLevel == "" {
		cfg.Log.SDKLevel = native.LogWarn.String()
	}
	if !validSDKLevel(cfg.Log.SDKLevel) {
		return fmt.Errorf("log.sdk_level %q is not a known SDK log level", cfg.Log.SDKLevel)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	// MQTT
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "gaze"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "gaze-capture"
	}
	if cfg.MQTT.StatusInterval < 0 {
		return fmt.Errorf("mqtt.status_interval must be >= 0")
	}
	if cfg.MQTT.StatusInterval == 0 {
		cfg.MQTT.StatusInterval = time.Second
	}

	// Bus
	if cfg.Bus.Buffer < 0 {
		return fmt.Errorf("bus.buffer must be >= 0")
	}
	if cfg.Bus.Buffer == 0 {
		cfg.Bus.Buffer = 256
	}

	return nil
}

// ValidateStreams checks that every name is a known stream and appears once
func ValidateStreams(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !validStream(name) {
			return fmt.Errorf("unknown stream %q", name)
		}
		if seen[name] {
			return fmt.Errorf("stream %q listed twice", name)
		}
		seen[name] = true
	}
	return nil
}

func validStream(name string) bool {
	for _, k := range native.AllStreams {
		if k.String() == name {
			return true
		}
	}
	return false
}

func validSDKLevel(name string) bool {
	for l := native.LogError; l <= native.LogTrace; l++ {
		if l.String() == name {
			return true
		}
	}
	return false
}
