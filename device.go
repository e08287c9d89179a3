package gazecapture

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// DeviceSession is an open connection to one eye tracker.
//
// A session is derived from an APIContext and must be closed before it. All
// wait, dispatch and reconnect calls are expected to come from one polling
// goroutine; callers that share a session across goroutines must synchronize
// externally.
type DeviceSession struct {
	api     *APIContext
	sdk     native.SDK
	guard   *Guard[native.DeviceHandle]
	address string
	mode    FieldOfUse
	logger  *slog.Logger
	subs    *SubscriptionSet

	mu     sync.Mutex
	closed bool
}

// OpenDevice opens a connection to the device at address.
//
// An empty address, an address containing a NUL byte or an unknown field of
// use is rejected with KindInvalidArgument before any native call is made.
func OpenDevice(api *APIContext, address string, mode FieldOfUse) (*DeviceSession, error) {
	if api == nil {
		return nil, ErrClosed
	}
	if address == "" || strings.IndexByte(address, 0) >= 0 {
		return nil, &Error{Op: "create_device", Kind: KindInvalidArgument, Code: native.StatusInvalidParameter}
	}
	if mode != FieldOfUseInteractive && mode != FieldOfUseAnalytical {
		return nil, &Error{Op: "create_device", Kind: KindInvalidArgument, Code: native.StatusInvalidParameter}
	}

	apiHandle, err := api.handle()
	if err != nil {
		return nil, err
	}

	logger := api.logger.With("device", address)
	sdk := api.sdk

	guard, err := Acquire("device",
		func() (native.DeviceHandle, error) {
			h, st := sdk.CreateDevice(apiHandle, address, mode)
			if err := statusError("create_device", st); err != nil {
				return 0, err
			}
			if h == 0 {
				return 0, &Error{Op: "create_device", Kind: KindInternal, Code: native.StatusInternal}
			}
			return h, nil
		},
		func(h native.DeviceHandle) error {
			return statusError("destroy_device", sdk.DestroyDevice(h))
		},
	)
	if err != nil {
		logger.Error("gaze-capture: failed to open device", "error", err)
		return nil, err
	}
	guard.withLogger(logger)

	d := &DeviceSession{
		api:     api,
		sdk:     sdk,
		guard:   guard,
		address: address,
		mode:    mode,
		logger:  logger,
	}
	d.subs = newSubscriptionSet(d)

	if err := api.attach(d); err != nil {
		guard.Release()
		return nil, err
	}

	logger.Info("gaze-capture: device opened", "field_of_use", mode.String())
	return d, nil
}

// Address returns the device URL the session was opened with.
func (d *DeviceSession) Address() string {
	return d.address
}

// FieldOfUse returns the field of use the session was opened with.
func (d *DeviceSession) FieldOfUse() FieldOfUse {
	return d.mode
}

// Subscriptions returns the set of active subscriptions of d.
func (d *DeviceSession) Subscriptions() *SubscriptionSet {
	return d.subs
}

// Subscribe registers c for samples of kind. Duplicate subscriptions are
// passed to the SDK, which decides whether to accept them.
func (d *DeviceSession) Subscribe(kind StreamKind, c Consumer, opts ...SubscribeOption) (*Subscription, error) {
	if c == nil {
		return nil, ErrNilConsumer
	}
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return d.subs.subscribe(kind, c, o)
}

// WaitForCallbacks blocks for at most timeout until data is pending.
//
// The outcome classifies the result. OutcomeDataReady and OutcomeTimedOut
// come with a nil error. OutcomeConnectionLost and OutcomeFatal carry the
// *Error describing the native status.
func (d *DeviceSession) WaitForCallbacks(timeout time.Duration) (PollOutcome, error) {
	dev, err := d.handle()
	if err != nil {
		return OutcomeFatal, err
	}

	st := d.sdk.WaitForCallbacks(dev, timeout)
	err = statusError("wait_for_callbacks", st)
	if err == nil {
		return OutcomeDataReady, nil
	}
	switch kindOf(st) {
	case KindTimedOut:
		return OutcomeTimedOut, nil
	case KindConnectionFailed:
		return OutcomeConnectionLost, err
	default:
		return OutcomeFatal, err
	}
}

// ProcessCallbacks delivers every pending sample to its consumer on the
// calling goroutine. It is a no-op when nothing is pending.
func (d *DeviceSession) ProcessCallbacks() error {
	dev, err := d.handle()
	if err != nil {
		return err
	}
	return statusError("process_callbacks", d.sdk.ProcessCallbacks(dev))
}

// Reconnect restores a lost connection. Subscriptions are preserved.
// Reconnecting a healthy session is allowed and has no effect.
func (d *DeviceSession) Reconnect() error {
	dev, err := d.handle()
	if err != nil {
		return err
	}
	if err := statusError("reconnect", d.sdk.Reconnect(dev)); err != nil {
		d.logger.Warn("gaze-capture: reconnect failed", "error", err)
		return err
	}
	d.logger.Info("gaze-capture: reconnected", "subscriptions", d.subs.Len())
	return nil
}

// Close releases every subscription (newest first) and then the device
// connection. It is idempotent and always returns nil.
func (d *DeviceSession) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.subs.Close()
	d.guard.Release()
	d.api.detach(d)

	d.logger.Info("gaze-capture: device closed")
	return nil
}

func (d *DeviceSession) handle() (native.DeviceHandle, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return d.guard.Borrow()
}
