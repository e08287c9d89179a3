package gazecapture

import "github.com/e7canasta/orion-gaze-capture/internal/native"

// Public API - re-export native types as a stable contract

// SDK is the native stream engine operation set
type SDK = native.SDK

// StreamKind identifies one real-time data stream
type StreamKind = native.StreamKind

const (
	// GazePoint is the on-display gaze position stream
	GazePoint = native.StreamGazePoint
	// GazeOrigin is the per-eye gaze origin stream
	GazeOrigin = native.StreamGazeOrigin
	// EyePosition is the normalized per-eye position stream
	EyePosition = native.StreamEyePosition
	// HeadPose is the head position and rotation stream
	HeadPose = native.StreamHeadPose
)

// FieldOfUse declares the intended usage class of a device connection
type FieldOfUse = native.FieldOfUse

const (
	FieldOfUseInteractive = native.FieldOfUseInteractive
	FieldOfUseAnalytical  = native.FieldOfUseAnalytical
)

// LogLevel is the severity of an SDK log line
type LogLevel = native.LogLevel

// LogFunc receives SDK log lines, possibly from an SDK-owned thread
type LogFunc = native.LogFunc

// Sample is one immutable stream record
type Sample = native.Sample

// Sample payloads, passed through unchanged
type (
	GazePointSample   = native.GazePoint
	GazeOriginSample  = native.GazeOrigin
	EyePositionSample = native.EyePosition
	HeadPoseSample    = native.HeadPose
)

// Consumer receives the samples of one subscription.
//
// Consume is called synchronously on the polling goroutine during
// ProcessCallbacks and must not block.
type Consumer interface {
	Consume(Sample)
}

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc func(Sample)

// Consume calls f(s).
func (f ConsumerFunc) Consume(s Sample) { f(s) }

// PollOutcome classifies the result of one wait cycle
type PollOutcome int

const (
	// OutcomeDataReady means callbacks are pending and may be processed
	OutcomeDataReady PollOutcome = iota
	// OutcomeTimedOut means the wait elapsed without data (expected, not an error)
	OutcomeTimedOut
	// OutcomeConnectionLost means the device link is down and needs a reconnect
	OutcomeConnectionLost
	// OutcomeFatal means an unexpected error; the accompanying error carries the code
	OutcomeFatal
)

// String returns a human-readable representation of the outcome
func (o PollOutcome) String() string {
	switch o {
	case OutcomeDataReady:
		return "data_ready"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeConnectionLost:
		return "connection_lost"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseStreamKind parses a stream name as produced by StreamKind.String.
func ParseStreamKind(name string) (StreamKind, bool) {
	for _, k := range native.AllStreams {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// ParseFieldOfUse parses "interactive" or "analytical".
func ParseFieldOfUse(name string) (FieldOfUse, bool) {
	switch name {
	case "interactive":
		return FieldOfUseInteractive, true
	case "analytical":
		return FieldOfUseAnalytical, true
	default:
		return 0, false
	}
}
