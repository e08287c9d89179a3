package gazecapture

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/e7canasta/orion-gaze-capture/internal/mocksdk"
)

// syncBuffer is a bytes.Buffer safe for the SDK log goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(level slog.Level) (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})), buf
}

// newTestAPI creates a context over sdk that is closed when the test ends.
func newTestAPI(t *testing.T, sdk *mocksdk.SDK, opts ...APIOption) *APIContext {
	t.Helper()
	opts = append([]APIOption{WithLogger(quietLogger())}, opts...)
	api, err := NewAPIContext(sdk, opts...)
	if err != nil {
		t.Fatalf("NewAPIContext failed: %v", err)
	}
	t.Cleanup(func() { api.Close() })
	return api
}

// newTestDevice opens the default mock device.
func newTestDevice(t *testing.T, sdk *mocksdk.SDK) *DeviceSession {
	t.Helper()
	api := newTestAPI(t, sdk)
	dev, err := api.OpenDevice(mocksdk.DefaultDeviceURL, FieldOfUseInteractive)
	if err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	return dev
}

// assertNoLeaks checks that every acquired resource was released exactly
// once and in ownership order.
func assertNoLeaks(t *testing.T, sdk *mocksdk.SDK) {
	t.Helper()
	if live := sdk.Live(); live != 0 {
		t.Errorf("Expected 0 live resources, got %d", live)
	}
	if misuse := sdk.Misuse(); misuse != 0 {
		t.Errorf("Expected 0 misuse, got %d", misuse)
	}
	for _, c := range []mocksdk.Class{mocksdk.ClassAPI, mocksdk.ClassDevice, mocksdk.ClassSubscription} {
		if a, r := sdk.Acquired(c), sdk.Released(c); a != r {
			t.Errorf("%s: acquired %d, released %d", c, a, r)
		}
	}
}

// recordingConsumer collects delivered samples.
type recordingConsumer struct {
	samples []Sample
}

func (c *recordingConsumer) Consume(s Sample) {
	c.samples = append(c.samples, s)
}

func (c *recordingConsumer) count(kind StreamKind) int {
	n := 0
	for _, s := range c.samples {
		if s.Kind() == kind {
			n++
		}
	}
	return n
}
