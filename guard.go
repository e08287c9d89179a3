package gazecapture

import (
	"log/slog"
)

// noCopy flags accidental copies of guards to `go vet -copylocks`.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Guard owns exactly one native handle of kind H together with its release
// function.
//
// A guard is created by Acquire immediately after the native creation call
// succeeds and is meant to be released with defer, so that the release runs on
// every exit path including early error returns:
//
//	g, err := Acquire("device", create, destroy)
//	if err != nil {
//	    return err // nothing was created, nothing to release
//	}
//	defer g.Release()
//
// Release runs the release function at most once. Failures are logged and
// never returned: teardown must not fail the caller. Guards must not be copied;
// use Move to transfer ownership.
type Guard[H comparable] struct {
	_ noCopy

	kind    string
	handle  H
	release func(H) error
	live    bool
	logger  *slog.Logger
}

// Acquire calls create and, on success, wraps the returned handle with its
// paired release function. On failure the error is returned as-is and release
// is never invoked.
func Acquire[H comparable](kind string, create func() (H, error), release func(H) error) (*Guard[H], error) {
	h, err := create()
	if err != nil {
		return nil, err
	}
	return &Guard[H]{
		kind:    kind,
		handle:  h,
		release: release,
		live:    true,
	}, nil
}

// Borrow returns the owned handle without transferring ownership.
// It returns ErrHandleReleased once the guard has been released or moved.
func (g *Guard[H]) Borrow() (H, error) {
	var zero H
	if g == nil || !g.live {
		return zero, ErrHandleReleased
	}
	return g.handle, nil
}

// Alive reports whether the guard still owns its handle.
func (g *Guard[H]) Alive() bool {
	return g != nil && g.live
}

// Kind returns the resource kind the guard was acquired for.
func (g *Guard[H]) Kind() string {
	if g == nil {
		return ""
	}
	return g.kind
}

// Release invokes the release function exactly once. Subsequent calls, calls
// on a moved-from guard and calls on a nil guard are no-ops.
func (g *Guard[H]) Release() {
	if g == nil || !g.live {
		return
	}
	h := g.handle
	var zero H
	g.handle = zero
	g.live = false

	if g.release == nil {
		return
	}
	if err := g.release(h); err != nil {
		g.log().Warn("gaze-capture: release failed",
			"kind", g.kind,
			"error", err,
		)
	}
}

// Move transfers ownership to a new guard. The receiver becomes inert: its
// Borrow fails and its Release does nothing.
func (g *Guard[H]) Move() *Guard[H] {
	if g == nil || !g.live {
		return &Guard[H]{}
	}
	moved := &Guard[H]{
		kind:    g.kind,
		handle:  g.handle,
		release: g.release,
		live:    true,
		logger:  g.logger,
	}
	var zero H
	g.handle = zero
	g.live = false
	return moved
}

func (g *Guard[H]) withLogger(l *slog.Logger) *Guard[H] {
	g.logger = l
	return g
}

func (g *Guard[H]) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
