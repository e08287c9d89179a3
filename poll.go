package gazecapture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/e7canasta/orion-gaze-capture/internal/reconnect"
)

// ReconnectConfig controls reconnect retries with exponential backoff.
// The zero MaxRetries makes a single reconnect attempt per lost connection.
type ReconnectConfig = reconnect.Config

// DefaultReconnectConfig returns a single-attempt reconnect configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return reconnect.DefaultConfig()
}

// ErrLoopRunning is returned when Run is called on a loop that is already running.
var ErrLoopRunning = errors.New("gaze-capture: poll loop already running")

// ErrLoopStopped is returned when Run is called on a loop that already stopped.
var ErrLoopStopped = errors.New("gaze-capture: poll loop already stopped")

// LoopState is a state of the polling state machine.
type LoopState int32

const (
	// StateWaiting blocks on WaitForCallbacks
	StateWaiting LoopState = iota
	// StateDispatching runs ProcessCallbacks
	StateDispatching
	// StateReconnecting restores a lost connection
	StateReconnecting
	// StateStopped is terminal: budget exhausted, stop requested or context cancelled
	StateStopped
	// StateFailed is terminal: an unrecoverable error occurred
	StateFailed
)

// String returns a human-readable representation of the state
func (s LoopState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateDispatching:
		return "dispatching"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoopConfig configures a PollLoop.
type LoopConfig struct {
	// WaitTimeout bounds each WaitForCallbacks call (default: 1 second)
	WaitTimeout time.Duration
	// MaxIterations is the number of wait cycles before stopping; 0 means unbounded
	MaxIterations uint64
	// Reconnect controls retries when the connection is lost
	Reconnect ReconnectConfig
}

// DefaultLoopConfig returns the configuration of the capture demo: 1000
// wait cycles of at most one second, single reconnect attempt.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		WaitTimeout:   time.Second,
		MaxIterations: 1000,
		Reconnect:     DefaultReconnectConfig(),
	}
}

// LoopStats is a snapshot of loop counters.
type LoopStats struct {
	Iterations     uint64 // Wait cycles started
	DataReady      uint64 // Waits that reported pending data
	TimedOut       uint64 // Waits that timed out
	ConnectionLost uint64 // Lost connections detected at wait or dispatch
	Reconnects     uint64 // Successful reconnects
	Dispatches     uint64 // Successful ProcessCallbacks calls

	ReconnectAttempts uint32 // Reconnect calls, including retries
	ReconnectFailures uint32 // Reconnect calls that failed
}

// Transition describes one state change of the loop.
type Transition struct {
	From      LoopState
	To        LoopState
	Iteration uint64
	Err       error
}

// PollLoop drives a DeviceSession through the wait/dispatch/reconnect cycle.
//
//	Waiting --data ready--> Dispatching --ok--> Waiting
//	Waiting --timed out--> Waiting
//	Waiting --connection lost--> Reconnecting --ok--> Waiting
//	Dispatching --connection lost--> Reconnecting
//	Reconnecting --failed--> Failed
//	Dispatching --other error--> Failed
//	Waiting --budget, Stop or ctx done--> Stopped
//
// The stop signal, the context and the iteration budget are checked once
// each time the loop enters Waiting. Run executes on the calling goroutine,
// which also receives every consumer callback.
type PollLoop struct {
	session *DeviceSession
	cfg     LoopConfig
	logger  *slog.Logger

	onTransition func(Transition)

	state   atomic.Int32
	stop    atomic.Bool
	running atomic.Bool

	iterations atomic.Uint64
	dataReady  atomic.Uint64
	timedOut   atomic.Uint64
	connLost   atomic.Uint64
	reconnects atomic.Uint64
	dispatches atomic.Uint64

	recon   reconnect.State
	failure error // set once, when the loop enters Failed
}

// NewPollLoop creates a loop over d.
func NewPollLoop(d *DeviceSession, cfg LoopConfig) *PollLoop {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = time.Second
	}
	l := &PollLoop{
		session: d,
		cfg:     cfg,
		logger:  d.logger,
	}
	l.state.Store(int32(StateWaiting))
	return l
}

// OnTransition installs a hook called synchronously on the polling goroutine
// for every state change. It must be set before Run.
func (l *PollLoop) OnTransition(fn func(Transition)) {
	l.onTransition = fn
}

// Stop requests the loop to stop the next time it enters Waiting.
// It is safe to call from any goroutine, before or during Run.
func (l *PollLoop) Stop() {
	l.stop.Store(true)
}

// State returns the current state.
func (l *PollLoop) State() LoopState {
	return LoopState(l.state.Load())
}

// Stats returns a snapshot of the loop counters.
func (l *PollLoop) Stats() LoopStats {
	return LoopStats{
		Iterations:     l.iterations.Load(),
		DataReady:      l.dataReady.Load(),
		TimedOut:       l.timedOut.Load(),
		ConnectionLost: l.connLost.Load(),
		Reconnects:     l.reconnects.Load(),
		Dispatches:     l.dispatches.Load(),

		ReconnectAttempts: l.recon.Attempts.Load(),
		ReconnectFailures: l.recon.Failures.Load(),
	}
}

// Run executes the state machine until it reaches Stopped or Failed.
//
// Stopped returns nil. Failed returns the error that caused it, unchanged:
// the *Error of the failed wait, dispatch or last reconnect attempt.
//
// A loop runs once. Calling Run again on a failed loop returns the same
// error; on a stopped loop it returns ErrLoopStopped. Neither touches the
// device.
func (l *PollLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	switch l.State() {
	case StateFailed:
		return l.failure
	case StateStopped:
		return ErrLoopStopped
	}

	l.logger.Debug("gaze-capture: poll loop started",
		"wait_timeout", l.cfg.WaitTimeout,
		"max_iterations", l.cfg.MaxIterations,
	)

	for {
		switch l.State() {
		case StateWaiting:
			if reason, done := l.shouldStop(ctx); done {
				l.transition(StateStopped, nil)
				l.logger.Info("gaze-capture: poll loop stopped",
					"reason", reason,
					"iterations", l.iterations.Load(),
				)
				return nil
			}

			l.iterations.Inc()
			outcome, err := l.session.WaitForCallbacks(l.cfg.WaitTimeout)
			switch outcome {
			case OutcomeDataReady:
				l.dataReady.Inc()
				l.transition(StateDispatching, nil)
			case OutcomeTimedOut:
				l.timedOut.Inc()
			case OutcomeConnectionLost:
				l.connLost.Inc()
				l.logger.Warn("gaze-capture: connection lost", "at", "wait", "error", err)
				l.transition(StateReconnecting, err)
			default:
				l.fail(err)
			}

		case StateDispatching:
			err := l.session.ProcessCallbacks()
			switch {
			case err == nil:
				l.dispatches.Inc()
				l.transition(StateWaiting, nil)
			case errors.Is(err, ErrConnectionFailed):
				l.connLost.Inc()
				l.logger.Warn("gaze-capture: connection lost", "at", "dispatch", "error", err)
				l.transition(StateReconnecting, err)
			default:
				l.fail(err)
			}

		case StateReconnecting:
			err := reconnect.Run(ctx, l.logger, func(context.Context) error {
				return l.session.Reconnect()
			}, l.cfg.Reconnect, &l.recon)
			switch {
			case err == nil:
				l.reconnects.Inc()
				l.transition(StateWaiting, nil)
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				// Waiting observes the cancelled context and stops.
				l.transition(StateWaiting, nil)
			default:
				l.fail(err)
			}

		case StateFailed:
			l.logger.Error("gaze-capture: poll loop failed",
				"error", l.failure,
				"iterations", l.iterations.Load(),
			)
			return l.failure

		default:
			return nil
		}
	}
}

func (l *PollLoop) shouldStop(ctx context.Context) (string, bool) {
	if l.stop.Load() {
		return "stop requested", true
	}
	if ctx.Err() != nil {
		return "context done", true
	}
	if l.cfg.MaxIterations > 0 && l.iterations.Load() >= l.cfg.MaxIterations {
		return "iteration budget exhausted", true
	}
	return "", false
}

func (l *PollLoop) fail(err error) {
	l.failure = err
	l.transition(StateFailed, err)
}

func (l *PollLoop) transition(to LoopState, err error) {
	from := LoopState(l.state.Swap(int32(to)))
	if l.onTransition != nil {
		l.onTransition(Transition{
			From:      from,
			To:        to,
			Iteration: l.iterations.Load(),
			Err:       err,
		})
	}
}
