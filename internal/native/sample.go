package native

import "time"

// StreamKind identifies one real-time data stream of the device.
type StreamKind int

const (
	StreamGazePoint StreamKind = iota
	StreamGazeOrigin
	StreamEyePosition
	StreamHeadPose
)

// AllStreams lists every stream kind in declaration order.
var AllStreams = []StreamKind{StreamGazePoint, StreamGazeOrigin, StreamEyePosition, StreamHeadPose}

// String returns the stream name used in logs, config files and topics.
func (k StreamKind) String() string {
	switch k {
	case StreamGazePoint:
		return "gaze_point"
	case StreamGazeOrigin:
		return "gaze_origin"
	case StreamEyePosition:
		return "eye_position"
	case StreamHeadPose:
		return "head_pose"
	default:
		return "unknown"
	}
}

// FieldOfUse declares the intended usage class of a device connection.
type FieldOfUse int

const (
	FieldOfUseInteractive FieldOfUse = 1
	FieldOfUseAnalytical  FieldOfUse = 2
)

func (f FieldOfUse) String() string {
	switch f {
	case FieldOfUseInteractive:
		return "interactive"
	case FieldOfUseAnalytical:
		return "analytical"
	default:
		return "unknown"
	}
}

// LogLevel is the severity of an SDK log line. Lower is more severe.
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogInfo
	LogDebug
	LogTrace
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	case LogTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// Sample is one immutable record delivered by a stream subscription.
type Sample interface {
	// Kind reports which stream produced the sample.
	Kind() StreamKind
	// Timestamp is the device clock timestamp in microseconds.
	Timestamp() time.Duration
}

// GazePoint is the normalized on-display gaze position.
type GazePoint struct {
	TimestampUS int64
	Valid       bool
	PositionXY  [2]float32
}

func (GazePoint) Kind() StreamKind           { return StreamGazePoint }
func (g GazePoint) Timestamp() time.Duration { return time.Duration(g.TimestampUS) * time.Microsecond }

// GazeOrigin is the position of each eye in device space, in millimeters.
type GazeOrigin struct {
	TimestampUS int64
	LeftValid   bool
	LeftXYZ     [3]float32
	RightValid  bool
	RightXYZ    [3]float32
}

func (GazeOrigin) Kind() StreamKind           { return StreamGazeOrigin }
func (g GazeOrigin) Timestamp() time.Duration { return time.Duration(g.TimestampUS) * time.Microsecond }

// EyePosition is the normalized position of each eye in the track box.
type EyePosition struct {
	TimestampUS int64
	LeftValid   bool
	LeftXYZ     [3]float32
	RightValid  bool
	RightXYZ    [3]float32
}

func (EyePosition) Kind() StreamKind { return StreamEyePosition }
func (e EyePosition) Timestamp() time.Duration {
	return time.Duration(e.TimestampUS) * time.Microsecond
}

// HeadPose is the head position (mm) and rotation (radians) in device space.
type HeadPose struct {
	TimestampUS      int64
	PositionValid    bool
	PositionXYZ      [3]float32
	RotationValidXYZ [3]bool
	RotationXYZ      [3]float32
}

func (HeadPose) Kind() StreamKind           { return StreamHeadPose }
func (h HeadPose) Timestamp() time.Duration { return time.Duration(h.TimestampUS) * time.Microsecond }
