package tobii

import (
	"runtime/cgo"

	"github.com/e7canasta/orion-gaze-capture/internal/native"
)

// streamHandles owns the callback handles registered with one device, one per
// stream. Every handle leaving the set is deleted.
type streamHandles map[native.StreamKind]cgo.Handle

// put registers h for stream, deleting the handle it replaces.
func (hs streamHandles) put(stream native.StreamKind, h cgo.Handle) {
	if old, ok := hs[stream]; ok && old != h {
		old.Delete()
	}
	hs[stream] = h
}

// drop deletes the handle of stream, if any.
func (hs streamHandles) drop(stream native.StreamKind) {
	if h, ok := hs[stream]; ok {
		delete(hs, stream)
		h.Delete()
	}
}

func (hs streamHandles) dropAll() {
	for stream := range hs {
		hs.drop(stream)
	}
}
