package camcap

import (
	"sync/atomic"
	"time"
)

// Frame is one delivered image: plane buffers, their interpretation, a
// per-session sequence number and a capture timestamp.
//
// Ownership is exclusive: exactly one stage (pipeline or consumer) holds
// a Frame at a time. The consumer must call Release when done; the
// backing buffer then returns to the session pool. Plane data must not
// be touched after Release.
type Frame struct {
	// Descriptor describes the plane buffers.
	Descriptor FrameDescriptor
	// Planes holds one buffer per plane of Descriptor.Format.
	Planes [3][]byte
	// Seq is the per-session monotonic sequence number, starting at 0
	// at Start. Contiguous except for explicit drops.
	Seq uint64
	// Timestamp is when the backend captured the frame.
	Timestamp time.Time
	// TraceID is a unique identifier for distributed tracing.
	TraceID string

	release  func()
	released atomic.Bool
}

// Release returns the frame's backing buffer to the session pool.
// Idempotent; only the first call has effect. Frames that borrow
// backend-owned memory release to a no-op.
func (f *Frame) Release() {
	if f == nil || f.release == nil {
		return
	}
	if f.released.CompareAndSwap(false, true) {
		f.release()
	}
}

// Size returns the total byte length across planes.
func (f *Frame) Size() int {
	n := 0
	for _, p := range f.Planes {
		n += len(p)
	}
	return n
}
