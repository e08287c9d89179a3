// Package mocksdk provides an in-process simulation of the eye-tracker stream
// engine.
//
// The simulated SDK keeps the same handle discipline as the vendor library
// (handles are issued on create, invalid after destroy) and additionally
// counts every acquire and release so tests can prove that nothing leaks and
// nothing is released twice. Wait outcomes, dispatch outcomes and per-call
// failures can be scripted; pending callbacks are kept in a FIFO per device.
package mocksdk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// DefaultDeviceURL is the address enumerated when no devices are configured.
const DefaultDeviceURL = "mock://dev1"

// Op names a native operation for failure injection and call tracing.
type Op string

const (
	OpCreateContext    Op = "create_context"
	OpDestroyContext   Op = "destroy_context"
	OpListDevices      Op = "list_devices"
	OpCreateDevice     Op = "create_device"
	OpDestroyDevice    Op = "destroy_device"
	OpSubscribe        Op = "subscribe"
	OpUnsubscribe      Op = "unsubscribe"
	OpWaitForCallbacks Op = "wait_for_callbacks"
	OpProcessCallbacks Op = "process_callbacks"
	OpReconnect        Op = "reconnect"
)

// Class is a resource class counted by the simulator.
type Class string

const (
	ClassAPI          Class = "api"
	ClassDevice       Class = "device"
	ClassSubscription Class = "subscription"
)

type contextState struct {
	logFn native.LogFunc
}

type deviceState struct {
	api       native.APIHandle
	url       string
	mode      native.FieldOfUse
	connected bool
	subs      map[native.StreamKind]native.SampleFunc
	pending   *queue.Queue
	nextDue   time.Time
}

// SDK is a simulated native.SDK. The zero value is not usable; call New.
type SDK struct {
	mu sync.Mutex

	urls       []string
	nextHandle uintptr
	contexts   map[native.APIHandle]*contextState
	devices    map[native.DeviceHandle]*deviceState

	waitScript    []native.Status
	processScript []native.Status
	faults        map[Op][]native.Status
	subFaults     map[native.StreamKind][]native.Status

	autoSamples bool
	rate        float64
	clock       func() time.Time
	sleep       func(time.Duration)
	seq         int64

	acquired   map[Class]int
	released   map[Class]int
	misuse     int
	calls      []Op
	dispatched map[native.StreamKind]int
}

// Option configures an SDK.
type Option func(*SDK)

// WithDevices sets the URLs returned by ListDevices. Passing none makes the
// simulator report an empty device list.
func WithDevices(urls ...string) Option {
	return func(s *SDK) {
		s.urls = append([]string(nil), urls...)
	}
}

// WithAutoSamples controls whether a DataReady wait with nothing pending
// queues one synthetic sample per subscribed stream. Enabled by default.
func WithAutoSamples(enabled bool) Option {
	return func(s *SDK) {
		s.autoSamples = enabled
	}
}

// WithRate makes unscripted waits behave like a live device producing
// samples at hz per stream. Without it unscripted waits time out immediately.
func WithRate(hz float64) Option {
	return func(s *SDK) {
		s.rate = hz
	}
}

// WithClock replaces the time source and sleep function used in rate mode.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(s *SDK) {
		s.clock = now
		s.sleep = sleep
	}
}

// New creates a simulator with one device at DefaultDeviceURL.
func New(opts ...Option) *SDK {
	s := &SDK{
		urls:        []string{DefaultDeviceURL},
		nextHandle:  0x1000,
		contexts:    make(map[native.APIHandle]*contextState),
		devices:     make(map[native.DeviceHandle]*deviceState),
		faults:      make(map[Op][]native.Status),
		subFaults:   make(map[native.StreamKind][]native.Status),
		autoSamples: true,
		clock:       time.Now,
		sleep:       time.Sleep,
		acquired:    make(map[Class]int),
		released:    make(map[Class]int),
		dispatched:  make(map[native.StreamKind]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScriptWait appends outcomes returned by successive WaitForCallbacks calls.
func (s *SDK) ScriptWait(statuses ...native.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitScript = append(s.waitScript, statuses...)
}

// ScriptProcess appends outcomes returned by successive ProcessCallbacks calls.
func (s *SDK) ScriptProcess(statuses ...native.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processScript = append(s.processScript, statuses...)
}

// FailNext makes the next call of op return st. Repeated calls queue up.
func (s *SDK) FailNext(op Op, st native.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], st)
}

// FailSubscribe makes the next subscribe call for kind return st.
func (s *SDK) FailSubscribe(kind native.StreamKind, st native.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subFaults[kind] = append(s.subFaults[kind], st)
}

// Push queues a sample for delivery on every open device.
func (s *SDK) Push(sample native.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		d.pending.Add(sample)
	}
}

// Disconnect marks every open device as disconnected.
func (s *SDK) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		d.connected = false
	}
}

// Acquired returns the number of successful creations of class c.
func (s *SDK) Acquired(c Class) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired[c]
}

// Released returns the number of release calls on live resources of class c.
func (s *SDK) Released(c Class) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[c]
}

// Live returns the number of acquired resources not yet released.
func (s *SDK) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := 0
	for c, n := range s.acquired {
		live += n - s.released[c]
	}
	return live
}

// Misuse counts calls on stale handles and releases out of ownership order.
func (s *SDK) Misuse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misuse
}

// Calls returns the sequence of operations invoked so far.
func (s *SDK) Calls() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.calls...)
}

// CallCount returns how many times op was invoked.
func (s *SDK) CallCount(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Dispatched returns how many samples of kind were delivered to callbacks.
func (s *SDK) Dispatched(kind native.StreamKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched[kind]
}

// Subscribed reports the number of active subscriptions across open devices.
func (s *SDK) Subscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.devices {
		n += len(d.subs)
	}
	return n
}

// record notes a call and pops an injected fault. Caller holds s.mu.
func (s *SDK) record(op Op) (native.Status, bool) {
	s.calls = append(s.calls, op)
	q := s.faults[op]
	if len(q) == 0 {
		return native.StatusOK, false
	}
	s.faults[op] = q[1:]
	return q[0], true
}

func (s *SDK) issue() uintptr {
	s.nextHandle++
	return s.nextHandle
}

// CreateContext implements native.SDK.
//
// When logFn is set the simulator emits one line from a foreign goroutine
// before returning, the way the vendor library logs during initialization.
func (s *SDK) CreateContext(logFn native.LogFunc) (native.APIHandle, native.Status) {
	s.mu.Lock()
	if st, failed := s.record(OpCreateContext); failed {
		s.mu.Unlock()
		return 0, st
	}
	h := native.APIHandle(s.issue())
	s.contexts[h] = &contextState{logFn: logFn}
	s.acquired[ClassAPI]++
	s.mu.Unlock()

	if logFn != nil {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			logFn(native.LogInfo, fmt.Sprintf("mock stream engine initialized (api=%#x)", uintptr(h)))
		}()
		wg.Wait()
	}
	return h, native.StatusOK
}

// DestroyContext implements native.SDK.
func (s *SDK) DestroyContext(api native.APIHandle) native.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, failed := s.record(OpDestroyContext)
	if _, ok := s.contexts[api]; !ok {
		s.misuse++
		return native.StatusInvalidParameter
	}
	for _, d := range s.devices {
		if d.api == api {
			s.misuse++
		}
	}
	delete(s.contexts, api)
	s.released[ClassAPI]++
	if failed {
		return st
	}
	return native.StatusOK
}

// ListDevices implements native.SDK.
func (s *SDK) ListDevices(api native.APIHandle) ([]string, native.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, failed := s.record(OpListDevices); failed {
		return nil, st
	}
	if _, ok := s.contexts[api]; !ok {
		s.misuse++
		return nil, native.StatusInvalidParameter
	}
	return append([]string(nil), s.urls...), native.StatusOK
}

// CreateDevice implements native.SDK.
func (s *SDK) CreateDevice(api native.APIHandle, url string, mode native.FieldOfUse) (native.DeviceHandle, native.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, failed := s.record(OpCreateDevice); failed {
		return 0, st
	}
	if _, ok := s.contexts[api]; !ok {
		s.misuse++
		return 0, native.StatusInvalidParameter
	}
	known := false
	for _, u := range s.urls {
		if u == url {
			known = true
			break
		}
	}
	if !known {
		return 0, native.StatusConnectionFailed
	}
	h := native.DeviceHandle(s.issue())
	s.devices[h] = &deviceState{
		api:       api,
		url:       url,
		mode:      mode,
		connected: true,
		subs:      make(map[native.StreamKind]native.SampleFunc),
		pending:   queue.New(),
	}
	s.acquired[ClassDevice]++
	return h, native.StatusOK
}

// DestroyDevice implements native.SDK.
func (s *SDK) DestroyDevice(dev native.DeviceHandle) native.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, failed := s.record(OpDestroyDevice)
	d, ok := s.devices[dev]
	if !ok {
		s.misuse++
		return native.StatusInvalidParameter
	}
	// Subscriptions still attached are an ownership-order violation; the
	// vendor library drops them silently, so do the same after counting.
	if len(d.subs) > 0 {
		s.misuse++
		s.released[ClassSubscription] += len(d.subs)
	}
	delete(s.devices, dev)
	s.released[ClassDevice]++
	if failed {
		return st
	}
	return native.StatusOK
}

// Subscribe implements native.SDK.
func (s *SDK) Subscribe(dev native.DeviceHandle, stream native.StreamKind, fn native.SampleFunc) native.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, failed := s.record(OpSubscribe); failed {
		return st
	}
	if q := s.subFaults[stream]; len(q) > 0 {
		s.subFaults[stream] = q[1:]
		return q[0]
	}
	d, ok := s.devices[dev]
	if !ok {
		s.misuse++
		return native.StatusInvalidParameter
	}
	if fn == nil {
		return native.StatusInvalidParameter
	}
	if _, dup := d.subs[stream]; dup {
		return native.StatusAlreadySubscribed
	}
	d.subs[stream] = fn
	s.acquired[ClassSubscription]++
	return native.StatusOK
}

// Unsubscribe implements native.SDK.
func (s *SDK) Unsubscribe(dev native.DeviceHandle, stream native.StreamKind) native.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, failed := s.record(OpUnsubscribe)
	d, ok := s.devices[dev]
	if !ok {
		s.misuse++
		return native.StatusInvalidParameter
	}
	if _, ok := d.subs[stream]; !ok {
		return native.StatusNotSubscribed
	}
	delete(d.subs, stream)
	s.released[ClassSubscription]++
	if failed {
		return st
	}
	return native.StatusOK
}

// WaitForCallbacks implements native.SDK.
func (s *SDK) WaitForCallbacks(dev native.DeviceHandle, timeout time.Duration) native.Status {
	s.mu.Lock()
	s.calls = append(s.calls, OpWaitForCallbacks)
	d, ok := s.devices[dev]
	if !ok {
		s.misuse++
		s.mu.Unlock()
		return native.StatusInvalidParameter
	}

	if len(s.waitScript) > 0 {
		st := s.waitScript[0]
		s.waitScript = s.waitScript[1:]
		switch st {
		case native.StatusOK:
			if d.pending.Length() == 0 && s.autoSamples {
				s.generate(d)
			}
		case native.StatusConnectionFailed, native.StatusConnectionFailedDriver:
			d.connected = false
		}
		s.mu.Unlock()
		return st
	}

	if !d.connected {
		s.mu.Unlock()
		return native.StatusConnectionFailed
	}
	if d.pending.Length() > 0 {
		s.mu.Unlock()
		return native.StatusOK
	}
	if s.rate <= 0 {
		s.mu.Unlock()
		return native.StatusTimedOut
	}

	now := s.clock()
	if d.nextDue.IsZero() {
		d.nextDue = now
	}
	delay := d.nextDue.Sub(now)
	if delay > timeout {
		s.mu.Unlock()
		s.sleep(timeout)
		return native.StatusTimedOut
	}
	d.nextDue = d.nextDue.Add(time.Duration(float64(time.Second) / s.rate))
	s.generate(d)
	s.mu.Unlock()

	if delay > 0 {
		s.sleep(delay)
	}
	return native.StatusOK
}

// ProcessCallbacks implements native.SDK.
//
// Pending samples are drained under the lock and delivered without it, so
// callbacks may safely call back into the simulator. A scripted connection
// loss discards everything pending on the device.
func (s *SDK) ProcessCallbacks(dev native.DeviceHandle) native.Status {
	s.mu.Lock()
	s.calls = append(s.calls, OpProcessCallbacks)
	d, ok := s.devices[dev]
	if !ok {
		s.misuse++
		s.mu.Unlock()
		return native.StatusInvalidParameter
	}
	if len(s.processScript) > 0 {
		st := s.processScript[0]
		s.processScript = s.processScript[1:]
		if st != native.StatusOK {
			if st == native.StatusConnectionFailed || st == native.StatusConnectionFailedDriver {
				// Callbacks pending on a dropped link are lost with it.
				d.connected = false
				for d.pending.Length() > 0 {
					d.pending.Remove()
				}
			}
			s.mu.Unlock()
			return st
		}
	}

	type delivery struct {
		fn     native.SampleFunc
		sample native.Sample
	}
	batch := make([]delivery, 0, d.pending.Length())
	for d.pending.Length() > 0 {
		sample := d.pending.Remove().(native.Sample)
		fn, subscribed := d.subs[sample.Kind()]
		if !subscribed {
			continue
		}
		s.dispatched[sample.Kind()]++
		batch = append(batch, delivery{fn: fn, sample: sample})
	}
	s.mu.Unlock()

	for _, item := range batch {
		item.fn(item.sample)
	}
	return native.StatusOK
}

// Reconnect implements native.SDK. Reconnecting a connected device is a no-op.
func (s *SDK) Reconnect(dev native.DeviceHandle) native.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, failed := s.record(OpReconnect)
	d, ok := s.devices[dev]
	if !ok {
		s.misuse++
		return native.StatusInvalidParameter
	}
	if failed {
		return st
	}
	d.connected = true
	return native.StatusOK
}

// generate queues one synthetic sample per subscribed stream, in stream
// declaration order. Caller holds s.mu.
func (s *SDK) generate(d *deviceState) {
	s.seq++
	ts := s.seq * 16667
	phase := float64(s.seq) / 30
	x := float32(0.5 + 0.25*math.Sin(phase))
	y := float32(0.5 + 0.25*math.Cos(phase))

	for _, kind := range native.AllStreams {
		if _, ok := d.subs[kind]; !ok {
			continue
		}
		switch kind {
		case native.StreamGazePoint:
			d.pending.Add(native.GazePoint{TimestampUS: ts, Valid: true, PositionXY: [2]float32{x, y}})
		case native.StreamGazeOrigin:
			d.pending.Add(native.GazeOrigin{
				TimestampUS: ts,
				LeftValid:   true,
				LeftXYZ:     [3]float32{-31, 2, 600},
				RightValid:  true,
				RightXYZ:    [3]float32{31, 2, 600},
			})
		case native.StreamEyePosition:
			d.pending.Add(native.EyePosition{
				TimestampUS: ts,
				LeftValid:   true,
				LeftXYZ:     [3]float32{0.45, 0.5, 0.5},
				RightValid:  true,
				RightXYZ:    [3]float32{0.55, 0.5, 0.5},
			})
		case native.StreamHeadPose:
			d.pending.Add(native.HeadPose{
				TimestampUS:      ts,
				PositionValid:    true,
				PositionXYZ:      [3]float32{0, 0, 600},
				RotationValidXYZ: [3]bool{true, true, true},
				RotationXYZ:      [3]float32{0.01 * x, 0.01 * y, 0},
			})
		}
	}
}
