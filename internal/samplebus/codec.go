package samplebus

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// Record is the wire and storage form of an Envelope. Exactly one of the
// sample fields is set, matching Stream.
type Record struct {
	Seq         uint64    `msgpack:"seq"`
	TraceID     string    `msgpack:"trace_id"`
	SessionID   string    `msgpack:"session_id"`
	Device      string    `msgpack:"device"`
	ReceivedAt  time.Time `msgpack:"received_at"`
	Stream      string    `msgpack:"stream"`
	TimestampUS int64     `msgpack:"ts_us"`

	GazePoint   *native.GazePoint   `msgpack:"gaze_point,omitempty"`
	GazeOrigin  *native.GazeOrigin  `msgpack:"gaze_origin,omitempty"`
	EyePosition *native.EyePosition `msgpack:"eye_position,omitempty"`
	HeadPose    *native.HeadPose    `msgpack:"head_pose,omitempty"`
}

// ToRecord converts env into its wire form.
func ToRecord(env Envelope) Record {
	r := Record{
		Seq:        env.Seq,
		TraceID:    env.TraceID,
		SessionID:  env.SessionID,
		Device:     env.Device,
		ReceivedAt: env.ReceivedAt,
	}
	if env.Sample == nil {
		return r
	}
	r.Stream = env.Sample.Kind().String()
	r.TimestampUS = env.Sample.Timestamp().Microseconds()

	switch s := env.Sample.(type) {
	case native.GazePoint:
		r.GazePoint = &s
	case native.GazeOrigin:
		r.GazeOrigin = &s
	case native.EyePosition:
		r.EyePosition = &s
	case native.HeadPose:
		r.HeadPose = &s
	}
	return r
}

// Sample returns the sample carried by r, or nil if none is set.
func (r Record) Sample() native.Sample {
	switch {
	case r.GazePoint != nil:
		return *r.GazePoint
	case r.GazeOrigin != nil:
		return *r.GazeOrigin
	case r.EyePosition != nil:
		return *r.EyePosition
	case r.HeadPose != nil:
		return *r.HeadPose
	default:
		return nil
	}
}

// Envelope converts r back into an Envelope.
func (r Record) Envelope() Envelope {
	return Envelope{
		Seq:        r.Seq,
		TraceID:    r.TraceID,
		SessionID:  r.SessionID,
		Device:     r.Device,
		ReceivedAt: r.ReceivedAt,
		Sample:     r.Sample(),
	}
}

// Encode marshals env with msgpack.
func Encode(env Envelope) ([]byte, error) {
	data, err := msgpack.Marshal(ToRecord(env))
	if err != nil {
		return nil, fmt.Errorf("samplebus: encode seq %d: %w", env.Seq, err)
	}
	return data, nil
}

// Decode unmarshals a msgpack payload produced by Encode.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("samplebus: decode: %w", err)
	}
	return r, nil
}
