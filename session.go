package gazecapture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-gaze-capture/internal/ratestats"
	"github.com/e7canasta/orion-gaze-capture/internal/samplebus"
)

// Envelope wraps one dispatched sample with capture metadata
type Envelope = samplebus.Envelope

// BusStats reports how envelopes were distributed to sinks
type BusStats = samplebus.BusStats

// RateStats summarizes the arrival rate of one stream
type RateStats = ratestats.Stats

// Sink consumes envelopes on its own goroutine until ch is closed.
type Sink interface {
	Run(ctx context.Context, ch <-chan Envelope)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, ch <-chan Envelope)

// Run calls f(ctx, ch).
func (f SinkFunc) Run(ctx context.Context, ch <-chan Envelope) { f(ctx, ch) }

// Receiver hands out the newest envelope of a latest-value subscription
type Receiver = samplebus.Receiver

// LatestSink follows only the newest envelope. Unread envelopes are
// overwritten, so a slow LatestSink sees fewer samples, never stale ones.
// Receive reports false once the session ends.
type LatestSink interface {
	RunLatest(ctx context.Context, r Receiver)
}

// reportSubscriber is the latest-value subscription the runner reads
// Report.Latest from. Sink names must not collide with it.
const reportSubscriber = "report"

// DefaultStreams are the streams captured when none are configured. Eye
// position is opt-in.
var DefaultStreams = []StreamKind{GazePoint, GazeOrigin, HeadPose}

// RunnerConfig configures a capture session.
type RunnerConfig struct {
	// Address of the device; empty selects the first enumerated device
	Address string
	// FieldOfUse of the connection (default: interactive)
	FieldOfUse FieldOfUse
	// Streams to subscribe, in order (default: DefaultStreams)
	Streams []StreamKind
	// Loop configures the polling loop
	Loop LoopConfig
	// BusBuffer is the channel capacity of each sink (default: 256)
	BusBuffer int
	// SkipInvalid drops samples without any valid flag before fan-out
	SkipInvalid bool
}

// DefaultRunnerConfig returns the capture demo configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		FieldOfUse: FieldOfUseInteractive,
		Streams:    append([]StreamKind(nil), DefaultStreams...),
		Loop:       DefaultLoopConfig(),
		BusBuffer:  256,
	}
}

// Report summarizes a finished capture session.
type Report struct {
	SessionID  string
	Devices    []string // enumerated devices
	Device     string   // device captured from; empty when none was found
	Streams    []StreamKind
	FinalState LoopState
	Loop       LoopStats
	Dispatched map[StreamKind]uint64
	Rates      map[StreamKind]RateStats
	Bus        BusStats
	Latest     *Envelope // last envelope published; nil when none was
	Duration   time.Duration
}

// NoDevices reports whether the session ended because nothing was enumerated.
func (r *Report) NoDevices() bool {
	return len(r.Devices) == 0
}

type namedSink struct {
	name string
	sink Sink
}

type namedLatestSink struct {
	name string
	sink LatestSink
}

// Runner executes one end-to-end capture session: create the API context,
// enumerate devices, open one, subscribe the configured streams, poll until
// the loop stops or fails, then tear everything down in reverse order.
type Runner struct {
	sdk     SDK
	cfg     RunnerConfig
	logger  *slog.Logger
	apiOpts []APIOption
	sinks   []namedSink
	latest  []namedLatestSink

	onTransition func(Transition)

	mu      sync.Mutex
	loop    *PollLoop
	stopped bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the logger of the runner and everything it creates.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithAPIOptions passes options to NewAPIContext.
func WithAPIOptions(opts ...APIOption) RunnerOption {
	return func(r *Runner) {
		r.apiOpts = append(r.apiOpts, opts...)
	}
}

// WithSink registers a sink. Every sink gets its own buffered channel; a
// slow sink drops envelopes instead of blocking the polling goroutine.
func WithSink(name string, s Sink) RunnerOption {
	return func(r *Runner) {
		r.sinks = append(r.sinks, namedSink{name: name, sink: s})
	}
}

// WithLatestSink registers a sink that only follows the newest envelope.
func WithLatestSink(name string, s LatestSink) RunnerOption {
	return func(r *Runner) {
		r.latest = append(r.latest, namedLatestSink{name: name, sink: s})
	}
}

// WithTransitionHook observes every poll loop state change.
func WithTransitionHook(fn func(Transition)) RunnerOption {
	return func(r *Runner) {
		r.onTransition = fn
	}
}

// NewRunner creates a runner over sdk.
func NewRunner(sdk SDK, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.FieldOfUse == 0 {
		cfg.FieldOfUse = FieldOfUseInteractive
	}
	if len(cfg.Streams) == 0 {
		cfg.Streams = append([]StreamKind(nil), DefaultStreams...)
	}
	if cfg.BusBuffer <= 0 {
		cfg.BusBuffer = 256
	}
	r := &Runner{
		sdk:    sdk,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stop asks a running session to stop at its next wait cycle. Calling Stop
// before Run makes Run stop before the first wait.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.loop != nil {
		r.loop.Stop()
	}
}

// Run executes the session. An empty device list is not an error: Run
// returns a report with no device and a nil error.
//
// A loop failure is returned unchanged alongside the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		SessionID:  uuid.NewString(),
		Dispatched: make(map[StreamKind]uint64),
		Rates:      make(map[StreamKind]RateStats),
	}
	logger := r.logger.With("session_id", report.SessionID)

	apiOpts := append([]APIOption{WithLogger(logger)}, r.apiOpts...)
	api, err := NewAPIContext(r.sdk, apiOpts...)
	if err != nil {
		return report, err
	}
	defer api.Close()

	devices, err := api.ListDevices()
	if err != nil {
		return report, err
	}
	report.Devices = devices
	if len(devices) == 0 {
		logger.Warn("gaze-capture: no devices found")
		return report, nil
	}

	address := r.cfg.Address
	if address == "" {
		address = devices[0]
	}

	dev, err := api.OpenDevice(address, r.cfg.FieldOfUse)
	if err != nil {
		return report, err
	}
	defer dev.Close()
	report.Device = address

	bus := samplebus.New()
	last, err := bus.SubscribeLatest(reportSubscriber)
	if err != nil {
		bus.Close()
		return report, err
	}
	tracker := ratestats.NewTracker(ratestats.DefaultWindow)
	stopSinks, err := r.startSinks(ctx, bus)
	if err != nil {
		bus.Close()
		return report, err
	}

	var seq uint64
	consumer := ConsumerFunc(func(s Sample) {
		seq++
		tracker.Observe(s.Kind().String(), s.Timestamp())
		bus.Publish(Envelope{
			Seq:        seq,
			TraceID:    uuid.NewString(),
			SessionID:  report.SessionID,
			Device:     address,
			ReceivedAt: time.Now(),
			Sample:     s,
		})
	})

	var subOpts []SubscribeOption
	if r.cfg.SkipInvalid {
		subOpts = append(subOpts, SkipInvalid())
	}
	for _, kind := range r.cfg.Streams {
		if _, err := dev.Subscribe(kind, consumer, subOpts...); err != nil {
			stopSinks()
			return report, err
		}
	}
	report.Streams = dev.Subscriptions().Kinds()

	loop := NewPollLoop(dev, r.cfg.Loop)
	if r.onTransition != nil {
		loop.OnTransition(r.onTransition)
	}
	r.mu.Lock()
	r.loop = loop
	if r.stopped {
		loop.Stop()
	}
	r.mu.Unlock()

	logger.Info("gaze-capture: capture started",
		"device", address,
		"streams", streamNames(report.Streams),
		"iterations", r.cfg.Loop.MaxIterations,
	)

	runErr := loop.Run(ctx)

	report.FinalState = loop.State()
	report.Loop = loop.Stats()
	for _, kind := range report.Streams {
		report.Dispatched[kind] = dev.Subscriptions().Dispatched(kind)
		report.Rates[kind] = tracker.Stats(kind.String())
	}
	if env, ok := last.TryReceive(); ok {
		report.Latest = &env
	}
	// Overwrites in the report holder are not sink drops.
	_ = bus.Unsubscribe(reportSubscriber)
	report.Bus = bus.Stats()
	stopSinks()
	report.Duration = time.Since(start)

	logger.Info("gaze-capture: capture finished",
		"state", report.FinalState.String(),
		"iterations", report.Loop.Iterations,
		"reconnects", report.Loop.Reconnects,
		"duration", report.Duration,
	)
	return report, runErr
}

// startSinks subscribes one channel per sink and one latest-value receiver
// per latest sink, and starts their goroutines. The returned function closes
// the bus, closes every channel and waits for the sinks to drain.
func (r *Runner) startSinks(ctx context.Context, bus *samplebus.Bus) (func(), error) {
	var wg sync.WaitGroup
	channels := make([]chan Envelope, 0, len(r.sinks))
	latestCtx, cancelLatest := context.WithCancel(ctx)

	stop := func() {
		bus.Close()
		cancelLatest()
		for _, ch := range channels {
			close(ch)
		}
		wg.Wait()
	}

	for _, s := range r.sinks {
		ch := make(chan Envelope, r.cfg.BusBuffer)
		if err := bus.Subscribe(s.name, ch); err != nil {
			stop()
			return nil, fmt.Errorf("gaze-capture: sink %s: %w", s.name, err)
		}
		channels = append(channels, ch)

		wg.Add(1)
		go func(sink Sink, ch <-chan Envelope) {
			defer wg.Done()
			sink.Run(ctx, ch)
		}(s.sink, ch)
	}

	for _, s := range r.latest {
		rcv, err := bus.SubscribeLatest(s.name)
		if err != nil {
			stop()
			return nil, fmt.Errorf("gaze-capture: latest sink %s: %w", s.name, err)
		}

		wg.Add(1)
		go func(sink LatestSink, rcv Receiver) {
			defer wg.Done()
			sink.RunLatest(latestCtx, rcv)
		}(s.sink, rcv)
	}

	var once sync.Once
	return func() { once.Do(stop) }, nil
}

func streamNames(kinds []StreamKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
