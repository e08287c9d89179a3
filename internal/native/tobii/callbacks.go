//go:build tobii

package tobii

/*
#include <tobii/tobii.h>
#include <tobii/tobii_streams.h>
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

const validityValid = C.TOBII_VALIDITY_VALID

func handleOf(p unsafe.Pointer) cgo.Handle {
	return cgo.Handle(uintptr(p))
}

func sampleFunc(user unsafe.Pointer) native.SampleFunc {
	fn, _ := handleOf(user).Value().(native.SampleFunc)
	return fn
}

func vec2(v [2]C.float) [2]float32 {
	return [2]float32{float32(v[0]), float32(v[1])}
}

func vec3(v [3]C.float) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

//export goLogCallback
func goLogCallback(logContext unsafe.Pointer, level C.tobii_log_level_t, text *C.char) {
	fn, _ := handleOf(logContext).Value().(native.LogFunc)
	if fn == nil {
		return
	}
	fn(native.LogLevel(level), C.GoString(text))
}

//export goURLReceiver
func goURLReceiver(url *C.char, user unsafe.Pointer) {
	urls, _ := handleOf(user).Value().(*[]string)
	if urls == nil {
		return
	}
	*urls = append(*urls, C.GoString(url))
}

//export goGazePointCallback
func goGazePointCallback(p *C.tobii_gaze_point_t, user unsafe.Pointer) {
	if fn := sampleFunc(user); fn != nil {
		fn(native.GazePoint{
			TimestampUS: int64(p.timestamp_us),
			Valid:       p.validity == validityValid,
			PositionXY:  vec2(p.position_xy),
		})
	}
}

//export goGazeOriginCallback
func goGazeOriginCallback(p *C.tobii_gaze_origin_t, user unsafe.Pointer) {
	if fn := sampleFunc(user); fn != nil {
		fn(native.GazeOrigin{
			TimestampUS: int64(p.timestamp_us),
			LeftValid:   p.left_validity == validityValid,
			LeftXYZ:     vec3(p.left_xyz),
			RightValid:  p.right_validity == validityValid,
			RightXYZ:    vec3(p.right_xyz),
		})
	}
}

//export goEyePositionCallback
func goEyePositionCallback(p *C.tobii_eye_position_normalized_t, user unsafe.Pointer) {
	if fn := sampleFunc(user); fn != nil {
		fn(native.EyePosition{
			TimestampUS: int64(p.timestamp_us),
			LeftValid:   p.left_validity == validityValid,
			LeftXYZ:     vec3(p.left_xyz),
			RightValid:  p.right_validity == validityValid,
			RightXYZ:    vec3(p.right_xyz),
		})
	}
}

//export goHeadPoseCallback
func goHeadPoseCallback(p *C.tobii_head_pose_t, user unsafe.Pointer) {
	if fn := sampleFunc(user); fn != nil {
		fn(native.HeadPose{
			TimestampUS:   int64(p.timestamp_us),
			PositionValid: p.position_validity == validityValid,
			PositionXYZ:   vec3(p.position_xyz),
			RotationValidXYZ: [3]bool{
				p.rotation_validity_xyz[0] == validityValid,
				p.rotation_validity_xyz[1] == validityValid,
				p.rotation_validity_xyz[2] == validityValid,
			},
			RotationXYZ: vec3(p.rotation_xyz),
		})
	}
}
