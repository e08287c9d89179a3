// Package reconnect retries a connection attempt with exponential backoff.
package reconnect

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

// Config contains configuration for exponential backoff reconnection
type Config struct {
	MaxRetries    int           // Retries after the first failed attempt (default: 0, a single attempt)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultConfig returns the default configuration: one attempt, no retries.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    0,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// State tracks reconnection attempts across calls to Run
type State struct {
	CurrentRetries int
	Attempts       atomic.Uint32 // Total connect attempts, including successful ones
	Failures       atomic.Uint32 // Total failed connect attempts
}

// ConnectFunc attempts to restore a connection
type ConnectFunc func(ctx context.Context) error

// Run calls connectFn until it succeeds, the retry budget is spent or ctx is
// cancelled.
//
// Backoff schedule with RetryDelay=1s, MaxRetryDelay=30s:
//   - Retry 1: 1s
//   - Retry 2: 2s
//   - Retry 3: 4s
//   - Retry 6 and later: 30s (capped)
//
// When the budget is spent the error of the last attempt is returned as-is,
// so callers can still classify it. Cancellation returns ctx.Err().
//
// Progress is logged to logger, or to slog.Default when it is nil.
func Run(ctx context.Context, logger *slog.Logger, connectFn ConnectFunc, cfg Config, state *State) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info("reconnect: context cancelled, stopping reconnection")
			return ctx.Err()
		default:
		}

		state.Attempts.Inc()
		err := connectFn(ctx)
		if err == nil {
			state.CurrentRetries = 0
			return nil
		}
		state.Failures.Inc()

		if state.CurrentRetries >= cfg.MaxRetries {
			if cfg.MaxRetries > 0 {
				logger.Error("reconnect: max retries exceeded",
					"max_retries", cfg.MaxRetries,
					"error", err,
				)
			}
			state.CurrentRetries = 0
			return err
		}
		state.CurrentRetries++

		delay := Backoff(state.CurrentRetries, cfg)

		logger.Warn("reconnect: retrying connection",
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("reconnect: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// Backoff returns the delay before retry number attempt (1-based).
//
// Formula: delay = RetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		attempt = 31
	}
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))

	if cfg.MaxRetryDelay > 0 && (delay > cfg.MaxRetryDelay || delay < 0) {
		delay = cfg.MaxRetryDelay
	}

	return delay
}
