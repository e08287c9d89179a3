package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
	"github.com/e7canasta/orion-gaze-capture/internal/samplebus"
)

// fakeToken is a completed token carrying err.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes instead of talking to a broker.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	sent       []published
}

func (c *fakeClient) IsConnected() bool      { return c.connected }
func (c *fakeClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr == nil {
		c.connected = true
	}
	return newToken(c.connectErr)
}
func (c *fakeClient) Disconnect(uint) { c.connected = false }
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return newToken(c.publishErr)
	}
	c.sent = append(c.sent, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newToken(nil)
}
func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.sent...)
}
func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(nil)
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(nil)
}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return newToken(nil) }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func envelope(seq uint64) samplebus.Envelope {
	return samplebus.Envelope{
		Seq:       seq,
		SessionID: "s1",
		Device:    "mock://dev1",
		Sample:    native.GazePoint{TimestampUS: int64(seq) * 16667, Valid: true},
	}
}

func TestPublish(t *testing.T) {
	client := &fakeClient{}
	e := NewWithClient(Config{QoS: 1}, client)

	if err := e.Publish(envelope(1)); !errors.Is(err, errNotConnected) {
		t.Fatalf("Expected not-connected error before Connect, got %v", err)
	}

	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := e.Publish(envelope(2)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(client.sent))
	}
	msg := client.sent[0]
	if msg.topic != "gaze/s1/gaze_point" || msg.qos != 1 {
		t.Errorf("Unexpected publish: topic=%s qos=%d", msg.topic, msg.qos)
	}
	r, err := samplebus.Decode(msg.payload)
	if err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if r.Seq != 2 || r.GazePoint == nil {
		t.Errorf("Unexpected record: %+v", r)
	}

	stats := e.Stats()
	if !stats.Connected || stats.Published["gaze/s1/gaze_point"] != 1 || stats.Errors != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestConnect_Failure(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("refused")}
	e := NewWithClient(Config{}, client)

	if err := e.Connect(context.Background()); err == nil {
		t.Fatal("Expected connect error")
	}
	if e.Stats().Connected {
		t.Error("Emitter must not report connected after a failed connect")
	}
}

func TestRun_DrainsChannel(t *testing.T) {
	client := &fakeClient{}
	e := NewWithClient(Config{TopicPrefix: "lab"}, client)
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ch := make(chan samplebus.Envelope, 3)
	for i := uint64(1); i <= 3; i++ {
		ch <- envelope(i)
	}
	close(ch)

	e.Run(context.Background(), ch)

	if got := e.Stats().Published["lab/s1/gaze_point"]; got != 3 {
		t.Errorf("Expected 3 published, got %d", got)
	}

	e.Disconnect()
	if client.connected {
		t.Error("Expected client disconnected")
	}
}

func TestRunLatest(t *testing.T) {
	t.Run("publishes newest as retained", func(t *testing.T) {
		client := &fakeClient{}
		e := NewWithClient(Config{StatusInterval: time.Hour}, client)
		if err := e.Connect(context.Background()); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}

		bus := samplebus.New()
		defer bus.Close()
		r, err := bus.SubscribeLatest("mqtt-latest")
		if err != nil {
			t.Fatalf("SubscribeLatest failed: %v", err)
		}
		bus.Publish(envelope(1))
		bus.Publish(envelope(2))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			e.RunLatest(ctx, r)
		}()

		deadline := time.Now().Add(2 * time.Second)
		for len(client.messages()) == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		cancel()
		<-done

		sent := client.messages()
		if len(sent) != 1 {
			t.Fatalf("Expected 1 retained publish, got %d", len(sent))
		}
		if sent[0].topic != "gaze/s1/latest" || !sent[0].retained {
			t.Errorf("Unexpected publish: topic=%s retained=%v", sent[0].topic, sent[0].retained)
		}
		rec, err := samplebus.Decode(sent[0].payload)
		if err != nil {
			t.Fatalf("payload does not decode: %v", err)
		}
		if rec.Seq != 2 {
			t.Errorf("Expected the newest envelope, got seq %d", rec.Seq)
		}
		if got := e.Stats().Published["gaze/s1/latest"]; got != 1 {
			t.Errorf("Expected 1 counted on the latest topic, got %d", got)
		}
		t.Logf("✅ latest topic carries seq %d", rec.Seq)
	})

	t.Run("returns when the bus closes", func(t *testing.T) {
		e := NewWithClient(Config{}, &fakeClient{})
		bus := samplebus.New()
		r, err := bus.SubscribeLatest("mqtt-latest")
		if err != nil {
			t.Fatalf("SubscribeLatest failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			e.RunLatest(context.Background(), r)
		}()
		bus.Close()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("RunLatest did not return after bus close")
		}
	})
}

func TestBrokerURL(t *testing.T) {
	testCases := map[string]string{
		"localhost:1883":      "tcp://localhost:1883",
		"ssl://broker:8883":   "ssl://broker:8883",
		"ws://broker:80/mqtt": "ws://broker:80/mqtt",
	}
	for in, want := range testCases {
		if got := brokerURL(in); got != want {
			t.Errorf("brokerURL(%q) = %q, want %q", in, got, want)
		}
	}
}
