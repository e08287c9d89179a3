// Package emitter publishes captured samples to an MQTT broker.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-gaze-capture/internal/samplebus"
)

var errNotConnected = errors.New("emitter: mqtt not connected")

// Config contains MQTT settings
type Config struct {
	Broker         string // host:port or URL (tcp://, ssl://, ws://)
	TopicPrefix    string // topics are <prefix>/<session>/<stream>
	QoS            byte
	ClientID       string
	StatusInterval time.Duration // minimum gap between retained latest publishes (default: 1s)
}

// MQTTEmitter publishes sample envelopes as msgpack payloads
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// NewMQTTEmitter creates an emitter backed by a paho client
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	e := newEmitter(cfg)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)
	return e
}

// NewWithClient creates an emitter over an existing client
func NewWithClient(cfg Config, client mqtt.Client) *MQTTEmitter {
	e := newEmitter(cfg)
	e.client = client
	return e
}

func newEmitter(cfg Config) *MQTTEmitter {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "gaze"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gaze-capture"
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = time.Second
	}
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the connection to the broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Topic returns the topic an envelope is published on
func (e *MQTTEmitter) Topic(env samplebus.Envelope) string {
	stream := "unknown"
	if env.Sample != nil {
		stream = env.Sample.Kind().String()
	}
	return fmt.Sprintf("%s/%s/%s", e.cfg.TopicPrefix, env.SessionID, stream)
}

// LatestTopic returns the retained topic carrying the newest envelope of a session
func (e *MQTTEmitter) LatestTopic(env samplebus.Envelope) string {
	return fmt.Sprintf("%s/%s/latest", e.cfg.TopicPrefix, env.SessionID)
}

// Publish sends one envelope
func (e *MQTTEmitter) Publish(env samplebus.Envelope) error {
	return e.publish(e.Topic(env), env, false)
}

func (e *MQTTEmitter) publish(topic string, env samplebus.Envelope, retained bool) error {
	if !e.isConnected() {
		e.countError()
		return errNotConnected
	}

	payload, err := samplebus.Encode(env)
	if err != nil {
		e.countError()
		return err
	}

	token := e.client.Publish(topic, e.cfg.QoS, retained, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: sample published",
		"topic", topic,
		"qos", e.cfg.QoS,
		"retained", retained,
		"size", len(payload),
	)
	return nil
}

// Run publishes envelopes from ch until it is closed or ctx is done.
// Publish errors are counted and logged; they never stop the loop.
func (e *MQTTEmitter) Run(ctx context.Context, ch <-chan samplebus.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if err := e.Publish(env); err != nil {
				slog.Debug("emitter: publish dropped", "seq", env.Seq, "error", err)
			}
		}
	}
}

// RunLatest keeps LatestTopic current: it publishes the newest envelope from r
// as a retained message, at most once per StatusInterval, until r is closed
// or ctx is done. Envelopes arriving in between are overwritten in r.
func (e *MQTTEmitter) RunLatest(ctx context.Context, r samplebus.Receiver) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		env, ok := r.Receive()
		if !ok {
			return
		}
		if err := e.publish(e.LatestTopic(env), env, true); err != nil {
			slog.Debug("emitter: latest publish dropped", "seq", env.Seq, "error", err)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.cfg.StatusInterval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
