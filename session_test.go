package gazecapture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/orion-gaze-capture/internal/mocksdk"
	"github.com/e7canasta/orion-gaze-capture/internal/native"
	"github.com/e7canasta/orion-gaze-capture/internal/samplebus"
)

// collectSink gathers every envelope it receives.
type collectSink struct {
	mu        sync.Mutex
	envelopes []Envelope
}

func (c *collectSink) Run(ctx context.Context, ch <-chan Envelope) {
	for env := range ch {
		c.mu.Lock()
		c.envelopes = append(c.envelopes, env)
		c.mu.Unlock()
	}
}

func (c *collectSink) all() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envelopes...)
}

func testRunnerConfig(iterations uint64, streams ...StreamKind) RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.Streams = streams
	cfg.Loop.WaitTimeout = time.Millisecond
	cfg.Loop.MaxIterations = iterations
	return cfg
}

func TestRunner_EndToEnd(t *testing.T) {
	sdk := mocksdk.New(mocksdk.WithDevices(mocksdk.DefaultDeviceURL))
	sdk.ScriptWait(native.StatusOK, native.StatusTimedOut, native.StatusConnectionFailed)

	sink := &collectSink{}
	var states []LoopState
	runner := NewRunner(sdk, testRunnerConfig(3, GazePoint, HeadPose),
		WithRunnerLogger(quietLogger()),
		WithSink("collect", sink),
		WithTransitionHook(func(tr Transition) { states = append(states, tr.To) }),
	)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.FinalState != StateStopped {
		t.Errorf("FinalState = %v", report.FinalState)
	}
	if report.Device != mocksdk.DefaultDeviceURL || report.NoDevices() {
		t.Errorf("Unexpected device: %q", report.Device)
	}
	if report.Loop.Iterations != 3 || report.Loop.Reconnects != 1 || report.Loop.TimedOut != 1 {
		t.Errorf("Unexpected loop stats: %+v", report.Loop)
	}
	if report.Dispatched[GazePoint] != 1 || report.Dispatched[HeadPose] != 1 {
		t.Errorf("Unexpected dispatch counts: %v", report.Dispatched)
	}
	if len(report.Streams) != 2 || report.Streams[0] != GazePoint || report.Streams[1] != HeadPose {
		t.Errorf("Streams = %v", report.Streams)
	}

	wantStates := []LoopState{StateDispatching, StateWaiting, StateReconnecting, StateWaiting, StateStopped}
	if len(states) != len(wantStates) {
		t.Fatalf("States = %v, want %v", states, wantStates)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("States = %v, want %v", states, wantStates)
		}
	}

	// Sinks are drained before Run returns.
	envs := sink.all()
	if len(envs) != 2 {
		t.Fatalf("Expected 2 envelopes, got %d", len(envs))
	}
	for i, env := range envs {
		if env.Seq != uint64(i+1) {
			t.Errorf("envelope %d: seq %d", i, env.Seq)
		}
		if env.SessionID != report.SessionID || env.Device != mocksdk.DefaultDeviceURL {
			t.Errorf("envelope %d: unexpected metadata %+v", i, env)
		}
		if env.TraceID == "" {
			t.Errorf("envelope %d: missing trace id", i)
		}
	}
	if report.Bus.TotalPublished != 2 || report.Bus.TotalDropped != 0 {
		t.Errorf("Unexpected bus stats: %+v", report.Bus)
	}
	if _, ok := report.Bus.Subscribers[reportSubscriber]; ok {
		t.Error("Report holder must not appear in sink stats")
	}
	if report.Latest == nil || report.Latest.Seq != 2 || report.Latest.Sample.Kind() != HeadPose {
		t.Errorf("Latest = %+v, want seq 2 head pose", report.Latest)
	}
	if report.Loop.ReconnectAttempts != 1 || report.Loop.ReconnectFailures != 0 {
		t.Errorf("Unexpected reconnect counters: %d/%d", report.Loop.ReconnectAttempts, report.Loop.ReconnectFailures)
	}

	assertNoLeaks(t, sdk)
	t.Logf("✅ Session %s: %d iterations, %d reconnects", report.SessionID, report.Loop.Iterations, report.Loop.Reconnects)
}

func TestRunner_NoDevices(t *testing.T) {
	sdk := mocksdk.New(mocksdk.WithDevices())
	runner := NewRunner(sdk, testRunnerConfig(10, GazePoint), WithRunnerLogger(quietLogger()))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("No devices is not an error, got %v", err)
	}
	if !report.NoDevices() || report.Device != "" {
		t.Errorf("Expected empty report, got %+v", report)
	}
	if sdk.CallCount(mocksdk.OpCreateDevice) != 0 {
		t.Error("No device should be opened")
	}
	assertNoLeaks(t, sdk)
}

func TestRunner_ExplicitAddress(t *testing.T) {
	sdk := mocksdk.New(mocksdk.WithDevices("mock://a", "mock://b"))
	cfg := testRunnerConfig(1, GazePoint)
	cfg.Address = "mock://b"
	runner := NewRunner(sdk, cfg, WithRunnerLogger(quietLogger()))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Device != "mock://b" {
		t.Errorf("Device = %q", report.Device)
	}
	assertNoLeaks(t, sdk)
}

func TestRunner_FailurePoints(t *testing.T) {
	testCases := []struct {
		name   string
		inject func(*mocksdk.SDK)
		target error
		state  LoopState
	}{
		{
			name:   "create context",
			inject: func(s *mocksdk.SDK) { s.FailNext(mocksdk.OpCreateContext, native.StatusInternal) },
			target: ErrInternal,
		},
		{
			name:   "list devices",
			inject: func(s *mocksdk.SDK) { s.FailNext(mocksdk.OpListDevices, native.StatusNotAvailable) },
			target: ErrNotFound,
		},
		{
			name:   "create device",
			inject: func(s *mocksdk.SDK) { s.FailNext(mocksdk.OpCreateDevice, native.StatusConnectionFailed) },
			target: ErrConnectionFailed,
		},
		{
			name:   "first subscribe",
			inject: func(s *mocksdk.SDK) { s.FailSubscribe(native.StreamGazePoint, native.StatusNotSupported) },
			target: ErrUnsupported,
		},
		{
			name:   "second subscribe",
			inject: func(s *mocksdk.SDK) { s.FailSubscribe(native.StreamHeadPose, native.StatusNotSupported) },
			target: ErrUnsupported,
		},
		{
			name: "reconnect",
			inject: func(s *mocksdk.SDK) {
				s.ScriptWait(native.StatusConnectionFailed)
				s.FailNext(mocksdk.OpReconnect, native.StatusConnectionFailed)
			},
			target: ErrConnectionFailed,
			state:  StateFailed,
		},
		{
			name:   "fatal wait",
			inject: func(s *mocksdk.SDK) { s.ScriptWait(native.StatusOK, native.StatusInternal) },
			target: ErrInternal,
			state:  StateFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sdk := mocksdk.New()
			tc.inject(sdk)

			sink := &collectSink{}
			runner := NewRunner(sdk, testRunnerConfig(5, GazePoint, HeadPose),
				WithRunnerLogger(quietLogger()),
				WithSink("collect", sink),
			)
			report, err := runner.Run(context.Background())
			if !errors.Is(err, tc.target) {
				t.Fatalf("Expected %v, got %v", tc.target, err)
			}
			if report == nil {
				t.Fatal("A report is returned even on failure")
			}
			if report.FinalState != tc.state {
				t.Errorf("FinalState = %v, want %v", report.FinalState, tc.state)
			}
			assertNoLeaks(t, sdk)
		})
	}
	t.Logf("✅ No leak and no double release at any failure point")
}

func TestRunner_StopBeforeRun(t *testing.T) {
	sdk := mocksdk.New()
	runner := NewRunner(sdk, testRunnerConfig(0, GazePoint), WithRunnerLogger(quietLogger()))
	runner.Stop()

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.FinalState != StateStopped || report.Loop.Iterations != 0 {
		t.Errorf("Expected immediate stop, got %v after %d iterations", report.FinalState, report.Loop.Iterations)
	}
	if report.Latest != nil {
		t.Errorf("Expected no latest envelope, got %+v", report.Latest)
	}
	assertNoLeaks(t, sdk)
}

func TestRunner_StopWhileRunning(t *testing.T) {
	sdk := mocksdk.New(mocksdk.WithRate(500))
	runner := NewRunner(sdk, testRunnerConfig(0, GazePoint, GazeOrigin), WithRunnerLogger(quietLogger()))

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := runner.Run(context.Background())
		done <- result{report, err}
	}()

	time.Sleep(30 * time.Millisecond)
	runner.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Run failed: %v", res.err)
		}
		if res.report.Dispatched[GazePoint] == 0 {
			t.Error("Expected samples from the simulated device")
		}
		rate := res.report.Rates[GazePoint]
		t.Logf("✅ %d gaze samples at %.1f Hz", res.report.Dispatched[GazePoint], rate.RateMean)
	case <-time.After(5 * time.Second):
		t.Fatal("Runner did not stop")
	}
	assertNoLeaks(t, sdk)
}

// pushOnSubscribe queues an invalid and a valid gaze point as soon as the
// gaze point stream is subscribed.
type pushOnSubscribe struct {
	*mocksdk.SDK
}

func (p pushOnSubscribe) Subscribe(dev native.DeviceHandle, stream native.StreamKind, fn native.SampleFunc) native.Status {
	st := p.SDK.Subscribe(dev, stream, fn)
	if st == native.StatusOK && stream == native.StreamGazePoint {
		p.Push(native.GazePoint{TimestampUS: 1})
		p.Push(native.GazePoint{TimestampUS: 2, Valid: true})
	}
	return st
}

func TestRunner_SkipInvalid(t *testing.T) {
	sdk := mocksdk.New(mocksdk.WithAutoSamples(false))
	sdk.ScriptWait(native.StatusOK)

	cfg := testRunnerConfig(1, GazePoint)
	cfg.SkipInvalid = true
	sink := &collectSink{}
	runner := NewRunner(pushOnSubscribe{sdk}, cfg, WithRunnerLogger(quietLogger()), WithSink("collect", sink))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Dispatched[GazePoint] != 1 {
		t.Errorf("Expected 1 dispatched sample, got %d", report.Dispatched[GazePoint])
	}
	envs := sink.all()
	if len(envs) != 1 || envs[0].Sample.Timestamp() != 2*time.Microsecond {
		t.Errorf("Expected only the valid sample, got %+v", envs)
	}
	assertNoLeaks(t, sdk)
}

// latestSink records what a latest-value follower sees and signals the
// first delivery.
type latestSink struct {
	mu   sync.Mutex
	seen []uint64
	got  chan struct{}
	once sync.Once
}

func (l *latestSink) RunLatest(ctx context.Context, r Receiver) {
	for {
		env, ok := r.Receive()
		if !ok {
			return
		}
		l.mu.Lock()
		l.seen = append(l.seen, env.Seq)
		l.mu.Unlock()
		l.once.Do(func() { close(l.got) })
	}
}

func TestRunner_LatestSink(t *testing.T) {
	sdk := mocksdk.New()
	sdk.ScriptWait(native.StatusOK, native.StatusTimedOut)

	follower := &latestSink{got: make(chan struct{})}
	runner := NewRunner(sdk, testRunnerConfig(2, GazePoint),
		WithRunnerLogger(quietLogger()),
		WithLatestSink("latest", follower),
		WithTransitionHook(func(tr Transition) {
			if tr.To != StateStopped {
				return
			}
			// Hold the session open until the follower has seen the sample.
			select {
			case <-follower.got:
			case <-time.After(2 * time.Second):
			}
		}),
	)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	follower.mu.Lock()
	seen := append([]uint64(nil), follower.seen...)
	follower.mu.Unlock()
	if len(seen) != 1 || seen[0] != 1 {
		t.Errorf("Follower saw %v, want [1]", seen)
	}
	if report.Latest == nil || report.Latest.Seq != 1 {
		t.Errorf("Latest = %+v", report.Latest)
	}
	if stats, ok := report.Bus.Subscribers["latest"]; !ok || stats.Sent != 1 || stats.Dropped != 0 {
		t.Errorf("Unexpected latest sink stats: %+v", report.Bus.Subscribers)
	}
	assertNoLeaks(t, sdk)
	t.Logf("✅ latest sink followed seq %v", seen)
}

func TestRunner_SinkNameCollision(t *testing.T) {
	sdk := mocksdk.New()
	runner := NewRunner(sdk, testRunnerConfig(1, GazePoint),
		WithRunnerLogger(quietLogger()),
		WithSink("dup", &collectSink{}),
		WithLatestSink("dup", &latestSink{got: make(chan struct{})}),
	)

	_, err := runner.Run(context.Background())
	if !errors.Is(err, samplebus.ErrSubscriberExists) {
		t.Fatalf("Expected ErrSubscriberExists, got %v", err)
	}
	if sdk.CallCount(mocksdk.OpSubscribe) != 0 {
		t.Error("No stream may be subscribed when sinks fail to start")
	}
	assertNoLeaks(t, sdk)
}

func TestNewRunner_Defaults(t *testing.T) {
	runner := NewRunner(mocksdk.New(), RunnerConfig{})
	if runner.cfg.FieldOfUse != FieldOfUseInteractive {
		t.Errorf("FieldOfUse = %v", runner.cfg.FieldOfUse)
	}
	if len(runner.cfg.Streams) != len(DefaultStreams) {
		t.Errorf("Streams = %v", runner.cfg.Streams)
	}
	if runner.cfg.BusBuffer != 256 {
		t.Errorf("BusBuffer = %d", runner.cfg.BusBuffer)
	}
}
