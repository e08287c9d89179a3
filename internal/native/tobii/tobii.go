//go:build tobii

// Package tobii binds native.SDK to the Tobii Stream Engine C library.
//
// Build with -tags tobii and the stream engine headers and library on the
// cgo search paths. Go callbacks cross the C boundary as runtime/cgo handles
// carried in the user_data pointer; the handles are deleted when the owning
// subscription or context is released.
package tobii

/*
#cgo LDFLAGS: -ltobii_stream_engine
#include <stdint.h>
#include <stdlib.h>
#include <tobii/tobii.h>
#include <tobii/tobii_streams.h>

extern void goLogCallback(void* log_context, tobii_log_level_t level, char* text);
extern void goURLReceiver(char* url, void* user_data);
extern void goGazePointCallback(tobii_gaze_point_t* gaze_point, void* user_data);
extern void goGazeOriginCallback(tobii_gaze_origin_t* gaze_origin, void* user_data);
extern void goEyePositionCallback(tobii_eye_position_normalized_t* eye_position, void* user_data);
extern void goHeadPoseCallback(tobii_head_pose_t* head_pose, void* user_data);

static tobii_error_t gc_api_create(tobii_api_t** api, uintptr_t log_handle) {
	if (log_handle == 0) {
		return tobii_api_create(api, NULL, NULL);
	}
	tobii_custom_log_t custom_log;
	custom_log.log_context = (void*)log_handle;
	custom_log.log_func = (tobii_log_func_t)goLogCallback;
	return tobii_api_create(api, NULL, &custom_log);
}

static tobii_error_t gc_enumerate(tobii_api_t* api, uintptr_t h) {
	return tobii_enumerate_local_device_urls(api, (tobii_device_url_receiver_t)goURLReceiver, (void*)h);
}

static tobii_error_t gc_subscribe(tobii_device_t* dev, int stream, uintptr_t h) {
	switch (stream) {
	case 0: return tobii_gaze_point_subscribe(dev, (tobii_gaze_point_callback_t)goGazePointCallback, (void*)h);
	case 1: return tobii_gaze_origin_subscribe(dev, (tobii_gaze_origin_callback_t)goGazeOriginCallback, (void*)h);
	case 2: return tobii_eye_position_normalized_subscribe(dev, (tobii_eye_position_normalized_callback_t)goEyePositionCallback, (void*)h);
	case 3: return tobii_head_pose_subscribe(dev, (tobii_head_pose_callback_t)goHeadPoseCallback, (void*)h);
	}
	return TOBII_ERROR_INVALID_PARAMETER;
}

static tobii_error_t gc_unsubscribe(tobii_device_t* dev, int stream) {
	switch (stream) {
	case 0: return tobii_gaze_point_unsubscribe(dev);
	case 1: return tobii_gaze_origin_unsubscribe(dev);
	case 2: return tobii_eye_position_normalized_unsubscribe(dev);
	case 3: return tobii_head_pose_unsubscribe(dev);
	}
	return TOBII_ERROR_INVALID_PARAMETER;
}

static tobii_error_t gc_wait_one(tobii_device_t* dev) {
	return tobii_wait_for_callbacks(1, &dev);
}
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

type apiEntry struct {
	ptr *C.tobii_api_t
	log cgo.Handle // zero when no log callback is installed
}

type deviceEntry struct {
	ptr  *C.tobii_device_t
	subs streamHandles
}

// SDK is the cgo implementation of native.SDK.
type SDK struct {
	mu      sync.Mutex
	next    uintptr
	apis    map[native.APIHandle]*apiEntry
	devices map[native.DeviceHandle]*deviceEntry
}

var _ native.SDK = (*SDK)(nil)

// New returns a binding with no open contexts.
func New() *SDK {
	return &SDK{
		apis:    make(map[native.APIHandle]*apiEntry),
		devices: make(map[native.DeviceHandle]*deviceEntry),
	}
}

func (s *SDK) issue() uintptr {
	s.next++
	return s.next
}

func status(e C.tobii_error_t) native.Status {
	return native.Status(int(e))
}

// CreateContext implements native.SDK.
func (s *SDK) CreateContext(logFn native.LogFunc) (native.APIHandle, native.Status) {
	var logHandle cgo.Handle
	if logFn != nil {
		logHandle = cgo.NewHandle(logFn)
	}

	var api *C.tobii_api_t
	st := status(C.gc_api_create(&api, C.uintptr_t(logHandle)))
	if st != native.StatusOK {
		if logHandle != 0 {
			logHandle.Delete()
		}
		return 0, st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := native.APIHandle(s.issue())
	s.apis[h] = &apiEntry{ptr: api, log: logHandle}
	return h, native.StatusOK
}

// DestroyContext implements native.SDK.
func (s *SDK) DestroyContext(api native.APIHandle) native.Status {
	s.mu.Lock()
	e, ok := s.apis[api]
	delete(s.apis, api)
	s.mu.Unlock()
	if !ok {
		return native.StatusInvalidParameter
	}

	st := status(C.tobii_api_destroy(e.ptr))
	if e.log != 0 {
		e.log.Delete()
	}
	return st
}

// ListDevices implements native.SDK.
func (s *SDK) ListDevices(api native.APIHandle) ([]string, native.Status) {
	e, ok := s.api(api)
	if !ok {
		return nil, native.StatusInvalidParameter
	}

	urls := make([]string, 0, 1)
	h := cgo.NewHandle(&urls)
	defer h.Delete()

	st := status(C.gc_enumerate(e.ptr, C.uintptr_t(h)))
	if st != native.StatusOK {
		return nil, st
	}
	return urls, native.StatusOK
}

// CreateDevice implements native.SDK.
func (s *SDK) CreateDevice(api native.APIHandle, url string, mode native.FieldOfUse) (native.DeviceHandle, native.Status) {
	e, ok := s.api(api)
	if !ok {
		return 0, native.StatusInvalidParameter
	}

	curl := C.CString(url)
	defer C.free(unsafe.Pointer(curl))

	var dev *C.tobii_device_t
	st := status(C.tobii_device_create(e.ptr, curl, C.tobii_field_of_use_t(mode), &dev))
	if st != native.StatusOK {
		return 0, st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := native.DeviceHandle(s.issue())
	s.devices[h] = &deviceEntry{ptr: dev, subs: make(streamHandles)}
	return h, native.StatusOK
}

// DestroyDevice implements native.SDK.
func (s *SDK) DestroyDevice(dev native.DeviceHandle) native.Status {
	s.mu.Lock()
	e, ok := s.devices[dev]
	delete(s.devices, dev)
	s.mu.Unlock()
	if !ok {
		return native.StatusInvalidParameter
	}

	st := status(C.tobii_device_destroy(e.ptr))
	e.subs.dropAll()
	return st
}

// Subscribe implements native.SDK.
func (s *SDK) Subscribe(dev native.DeviceHandle, stream native.StreamKind, fn native.SampleFunc) native.Status {
	e, ok := s.device(dev)
	if !ok || fn == nil {
		return native.StatusInvalidParameter
	}

	h := cgo.NewHandle(fn)
	st := status(C.gc_subscribe(e.ptr, C.int(stream), C.uintptr_t(h)))
	if st != native.StatusOK {
		h.Delete()
		return st
	}

	s.mu.Lock()
	e.subs.put(stream, h)
	s.mu.Unlock()
	return native.StatusOK
}

// Unsubscribe implements native.SDK.
func (s *SDK) Unsubscribe(dev native.DeviceHandle, stream native.StreamKind) native.Status {
	e, ok := s.device(dev)
	if !ok {
		return native.StatusInvalidParameter
	}

	st := status(C.gc_unsubscribe(e.ptr, C.int(stream)))

	s.mu.Lock()
	e.subs.drop(stream)
	s.mu.Unlock()
	return st
}

// WaitForCallbacks implements native.SDK.
//
// The stream engine bounds the wait internally; timeout is not forwarded.
func (s *SDK) WaitForCallbacks(dev native.DeviceHandle, _ time.Duration) native.Status {
	e, ok := s.device(dev)
	if !ok {
		return native.StatusInvalidParameter
	}
	return status(C.gc_wait_one(e.ptr))
}

// ProcessCallbacks implements native.SDK.
func (s *SDK) ProcessCallbacks(dev native.DeviceHandle) native.Status {
	e, ok := s.device(dev)
	if !ok {
		return native.StatusInvalidParameter
	}
	return status(C.tobii_device_process_callbacks(e.ptr))
}

// Reconnect implements native.SDK.
func (s *SDK) Reconnect(dev native.DeviceHandle) native.Status {
	e, ok := s.device(dev)
	if !ok {
		return native.StatusInvalidParameter
	}
	return status(C.tobii_device_reconnect(e.ptr))
}

func (s *SDK) api(h native.APIHandle) (*apiEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.apis[h]
	return e, ok
}

func (s *SDK) device(h native.DeviceHandle) (*deviceEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.devices[h]
	return e, ok
}
