package gazecapture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// APIContext owns the top-level native library context.
//
// It is created once per process, before any device is opened, and closed
// last. Close cascades: every DeviceSession opened from the context and still
// live is closed first (newest first), then the native context is released.
type APIContext struct {
	sdk    native.SDK
	guard  *Guard[native.APIHandle]
	id     string
	logger *slog.Logger

	// mu guards child registration only; native calls are not serialized here.
	mu       sync.Mutex
	sessions []*DeviceSession
	closed   bool
}

type apiOptions struct {
	logFn     LogFunc
	logger    *slog.Logger
	sinkLevel LogLevel
	noSink    bool
}

// APIOption configures NewAPIContext.
type APIOption func(*apiOptions)

// WithLogSink installs a custom SDK log callback instead of the default slog sink.
func WithLogSink(fn LogFunc) APIOption {
	return func(o *apiOptions) {
		o.logFn = fn
	}
}

// WithLogger sets the logger used by the context and the sessions derived from it.
func WithLogger(l *slog.Logger) APIOption {
	return func(o *apiOptions) {
		o.logger = l
	}
}

// WithSDKLogLevel sets the minimum severity forwarded by the default sink.
// The default is LogWarn.
func WithSDKLogLevel(min LogLevel) APIOption {
	return func(o *apiOptions) {
		o.sinkLevel = min
	}
}

// WithoutLogSink creates the context with no SDK log callback at all.
func WithoutLogSink() APIOption {
	return func(o *apiOptions) {
		o.noSink = true
	}
}

// NewAPIContext creates the native API context.
//
// Unless disabled, a log sink is installed. Each context gets its own sink
// closure tagged with the context id, so no two contexts share sink state.
// The SDK may invoke the sink before NewAPIContext returns and from its own
// threads.
func NewAPIContext(sdk native.SDK, opts ...APIOption) (*APIContext, error) {
	if sdk == nil {
		return nil, fmt.Errorf("gaze-capture: nil SDK")
	}

	o := apiOptions{
		logger:    slog.Default(),
		sinkLevel: native.LogWarn,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	logger := o.logger.With("api_id", id)

	var sink LogFunc
	if !o.noSink {
		sink = o.logFn
		if sink == nil {
			sink = NewSlogSink(logger, o.sinkLevel)
		}
	}

	guard, err := Acquire("api",
		func() (native.APIHandle, error) {
			h, st := sdk.CreateContext(sink)
			if err := statusError("create_context", st); err != nil {
				return 0, err
			}
			if h == 0 {
				return 0, &Error{Op: "create_context", Kind: KindInternal, Code: native.StatusInternal}
			}
			return h, nil
		},
		func(h native.APIHandle) error {
			return statusError("destroy_context", sdk.DestroyContext(h))
		},
	)
	if err != nil {
		logger.Error("gaze-capture: failed to create api context", "error", err)
		return nil, err
	}

	logger.Info("gaze-capture: api context created", "custom_log", sink != nil)

	return &APIContext{
		sdk:    sdk,
		guard:  guard.withLogger(logger),
		id:     id,
		logger: logger,
	}, nil
}

// ID returns the unique identifier of this context, used in log records.
func (a *APIContext) ID() string {
	return a.id
}

// ListDevices enumerates reachable device addresses.
// No devices is a normal outcome: an empty slice and a nil error.
func (a *APIContext) ListDevices() ([]string, error) {
	h, err := a.handle()
	if err != nil {
		return nil, err
	}
	urls, st := a.sdk.ListDevices(h)
	if err := statusError("list_devices", st); err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	a.logger.Debug("gaze-capture: devices enumerated", "count", len(urls), "devices", urls)
	return urls, nil
}

// OpenDevice opens a session to the device at address. See OpenDevice.
func (a *APIContext) OpenDevice(address string, mode FieldOfUse) (*DeviceSession, error) {
	return OpenDevice(a, address, mode)
}

// Sessions returns the number of live device sessions derived from a.
func (a *APIContext) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Close releases every live session and then the native context.
// It is idempotent and always returns nil; release failures are logged.
func (a *APIContext) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	sessions := append([]*DeviceSession(nil), a.sessions...)
	a.mu.Unlock()

	for i := len(sessions) - 1; i >= 0; i-- {
		sessions[i].Close()
	}

	a.guard.Release()
	a.logger.Info("gaze-capture: api context released")
	return nil
}

func (a *APIContext) handle() (native.APIHandle, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return a.guard.Borrow()
}

// attach registers a session as a child. It fails once Close has started so
// that no session can outlive the context.
func (a *APIContext) attach(d *DeviceSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.sessions = append(a.sessions, d)
	return nil
}

func (a *APIContext) detach(d *DeviceSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.sessions {
		if s == d {
			a.sessions = append(a.sessions[:i], a.sessions[i+1:]...)
			return
		}
	}
}
