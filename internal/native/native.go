// Package native defines the operation set of the eye-tracker stream engine
// as consumed by gaze-capture.
//
// The SDK interface is a thin, status-returning mirror of the vendor C API:
// every call returns a raw Status and nothing here interprets it. Translation
// into typed errors happens exactly once, in the parent package.
//
// Two implementations exist:
//   - internal/native/tobii: cgo binding to the vendor library (build tag "tobii")
//   - internal/mocksdk: simulated device for tests and the default CLI build
package native

import "time"

// APIHandle identifies a native API context. Zero is never a valid handle.
type APIHandle uintptr

// DeviceHandle identifies a native device connection. Zero is never a valid handle.
type DeviceHandle uintptr

// LogFunc receives log lines emitted by the SDK.
//
// It may be invoked from an SDK-owned thread, concurrently with the polling
// goroutine, and even before CreateContext returns.
type LogFunc func(level LogLevel, text string)

// SampleFunc receives one sample during ProcessCallbacks, on the goroutine
// that called ProcessCallbacks.
type SampleFunc func(Sample)

// SDK is the native operation set.
//
// Handles passed to an SDK must have been issued by the same SDK and not yet
// destroyed; violating this is undefined behaviour in the vendor library.
type SDK interface {
	// CreateContext creates the top-level API context. logFn may be nil.
	CreateContext(logFn LogFunc) (APIHandle, Status)
	// DestroyContext releases an API context.
	DestroyContext(api APIHandle) Status

	// ListDevices enumerates reachable device URLs.
	ListDevices(api APIHandle) ([]string, Status)

	// CreateDevice opens a connection to the device at url.
	CreateDevice(api APIHandle, url string, mode FieldOfUse) (DeviceHandle, Status)
	// DestroyDevice closes a device connection.
	DestroyDevice(dev DeviceHandle) Status

	// Subscribe registers fn for the given stream on dev.
	Subscribe(dev DeviceHandle, stream StreamKind, fn SampleFunc) Status
	// Unsubscribe removes the subscription for the given stream on dev.
	Unsubscribe(dev DeviceHandle, stream StreamKind) Status

	// WaitForCallbacks blocks until data is pending, the timeout elapses or
	// the connection is found to be lost.
	WaitForCallbacks(dev DeviceHandle, timeout time.Duration) Status
	// ProcessCallbacks invokes every pending subscription callback.
	ProcessCallbacks(dev DeviceHandle) Status
	// Reconnect restores a lost connection, keeping subscriptions.
	Reconnect(dev DeviceHandle) Status
}
