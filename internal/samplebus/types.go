package samplebus

import (
	"errors"
	"time"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

var (
	ErrBusClosed          = errors.New("samplebus: bus is closed")
	ErrSubscriberExists   = errors.New("samplebus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("samplebus: subscriber not found")
	ErrNilChannel         = errors.New("samplebus: nil channel provided")
)

// DropPolicy defines how the bus handles envelopes when a subscriber cannot keep up
type DropPolicy int

const (
	// DropNew discards the incoming envelope when the subscriber channel is full
	DropNew DropPolicy = iota
	// DropOld keeps only the most recent envelope
	DropOld
)

// Envelope wraps one dispatched sample with capture metadata
type Envelope struct {
	Seq        uint64        `msgpack:"seq"`
	TraceID    string        `msgpack:"trace_id"`
	SessionID  string        `msgpack:"session_id"`
	Device     string        `msgpack:"device"`
	ReceivedAt time.Time     `msgpack:"received_at"`
	Sample     native.Sample `msgpack:"-"`
}

// Receiver provides blocking and non-blocking access to the latest envelope
type Receiver interface {
	Receive() (Envelope, bool)
	TryReceive() (Envelope, bool)
	Close()
}

// SubscriberStats tracks envelope distribution metrics
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// BusStats aggregates statistics over all subscribers
type BusStats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}
