package gazecapture

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// SubscriptionSet holds the active stream subscriptions of one DeviceSession.
//
// For every subscription the set keeps a binding from stream kind to
// consumer. The binding is installed before the native subscribe call and
// removed before the native unsubscribe call, so a callback never finds a
// missing or stale consumer.
type SubscriptionSet struct {
	session *DeviceSession

	mu       sync.Mutex
	subs     []*Subscription
	bindings map[StreamKind]*Subscription

	// fixed key set, written only through the atomics
	dispatched map[StreamKind]*atomic.Uint64
	skipped    map[StreamKind]*atomic.Uint64
}

// Subscription is one active stream subscription.
type Subscription struct {
	set         *SubscriptionSet
	kind        StreamKind
	consumer    Consumer
	skipInvalid bool
	guard       *Guard[StreamKind]
}

type subscribeOptions struct {
	skipInvalid bool
}

// SubscribeOption configures DeviceSession.Subscribe.
type SubscribeOption func(*subscribeOptions)

// SkipInvalid drops samples whose validity flags are all false before they
// reach the consumer. Skipped samples are still counted by Skipped.
func SkipInvalid() SubscribeOption {
	return func(o *subscribeOptions) {
		o.skipInvalid = true
	}
}

func newSubscriptionSet(d *DeviceSession) *SubscriptionSet {
	s := &SubscriptionSet{
		session:    d,
		bindings:   make(map[StreamKind]*Subscription),
		dispatched: make(map[StreamKind]*atomic.Uint64, len(native.AllStreams)),
		skipped:    make(map[StreamKind]*atomic.Uint64, len(native.AllStreams)),
	}
	for _, k := range native.AllStreams {
		s.dispatched[k] = atomic.NewUint64(0)
		s.skipped[k] = atomic.NewUint64(0)
	}
	return s
}

func (s *SubscriptionSet) subscribe(kind StreamKind, c Consumer, o subscribeOptions) (*Subscription, error) {
	dev, err := s.session.handle()
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		set:         s,
		kind:        kind,
		consumer:    c,
		skipInvalid: o.skipInvalid,
	}

	// A duplicate keeps the existing binding until the SDK accepts it.
	s.mu.Lock()
	_, dup := s.bindings[kind]
	if !dup {
		s.bindings[kind] = sub
	}
	s.mu.Unlock()

	sdk := s.session.sdk
	guard, err := Acquire("subscription",
		func() (StreamKind, error) {
			return kind, statusError("subscribe", sdk.Subscribe(dev, kind, s.callback(kind)))
		},
		func(k StreamKind) error {
			s.unbind(sub)
			return statusError("unsubscribe", sdk.Unsubscribe(dev, k))
		},
	)
	if err != nil {
		if !dup {
			s.unbind(sub)
		}
		s.session.logger.Warn("gaze-capture: subscribe failed",
			"stream", kind.String(),
			"error", err,
		)
		return nil, err
	}
	sub.guard = guard.withLogger(s.session.logger)

	s.mu.Lock()
	if dup {
		s.bindings[kind] = sub
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.session.logger.Debug("gaze-capture: subscribed", "stream", kind.String())
	return sub, nil
}

// callback returns the native callback for kind. It runs on the goroutine
// that called ProcessCallbacks.
func (s *SubscriptionSet) callback(kind StreamKind) native.SampleFunc {
	return func(sample native.Sample) {
		s.mu.Lock()
		sub := s.bindings[kind]
		s.mu.Unlock()
		if sub == nil {
			return
		}
		if sub.skipInvalid && !Valid(sample) {
			if n, ok := s.skipped[kind]; ok {
				n.Inc()
			}
			return
		}
		if n, ok := s.dispatched[kind]; ok {
			n.Inc()
		}
		sub.consumer.Consume(sample)
	}
}

func (s *SubscriptionSet) unbind(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bindings[sub.kind] == sub {
		delete(s.bindings, sub.kind)
	}
}

func (s *SubscriptionSet) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.subs {
		if x == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (s *SubscriptionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Kinds returns the subscribed stream kinds in subscription order.
func (s *SubscriptionSet) Kinds() []StreamKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]StreamKind, 0, len(s.subs))
	for _, sub := range s.subs {
		kinds = append(kinds, sub.kind)
	}
	return kinds
}

// Dispatched returns how many samples of kind were delivered to a consumer.
func (s *SubscriptionSet) Dispatched(kind StreamKind) uint64 {
	if n, ok := s.dispatched[kind]; ok {
		return n.Load()
	}
	return 0
}

// Skipped returns how many samples of kind were dropped by SkipInvalid.
func (s *SubscriptionSet) Skipped(kind StreamKind) uint64 {
	if n, ok := s.skipped[kind]; ok {
		return n.Load()
	}
	return 0
}

// Close releases every subscription, newest first.
func (s *SubscriptionSet) Close() {
	s.mu.Lock()
	subs := append([]*Subscription(nil), s.subs...)
	s.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Close()
	}
}

// Kind returns the subscribed stream.
func (sub *Subscription) Kind() StreamKind {
	return sub.kind
}

// Active reports whether the subscription has not been released yet.
func (sub *Subscription) Active() bool {
	return sub.guard.Alive()
}

// Close unsubscribes the stream. It is idempotent and always returns nil;
// unsubscribe failures are logged.
func (sub *Subscription) Close() error {
	if !sub.guard.Alive() {
		return nil
	}
	sub.guard.Release()
	sub.set.remove(sub)
	return nil
}

// Valid reports whether any validity flag of the sample is set.
func Valid(sample Sample) bool {
	switch v := sample.(type) {
	case native.GazePoint:
		return v.Valid
	case native.GazeOrigin:
		return v.LeftValid || v.RightValid
	case native.EyePosition:
		return v.LeftValid || v.RightValid
	case native.HeadPose:
		return v.PositionValid || v.RotationValidXYZ[0] || v.RotationValidXYZ[1] || v.RotationValidXYZ[2]
	default:
		return true
	}
}
