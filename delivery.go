package camcap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/camcap/internal/pixel"
)

// BackpressurePolicy governs producer behavior when the consumer cannot
// keep pace with frame arrival.
type BackpressurePolicy int

const (
	// DropOldest bounds the queue at QueueDepth frames; inserting past
	// capacity evicts the oldest undelivered frame. The default:
	// camera pipelines favor freshness over completeness.
	DropOldest BackpressurePolicy = iota
	// Block makes the producer wait for queue room, bounded by
	// BlockTimeout; on timeout the session faults with
	// ErrConsumerStalled.
	Block
)

// String returns "drop-oldest" or "block".
func (p BackpressurePolicy) String() string {
	if p == Block {
		return "block"
	}
	return "drop-oldest"
}

// frameQueue is the bounded pull-mode queue between the capture
// goroutine and Grab callers. Single producer, any number of
// consumers.
type frameQueue struct {
	ch   chan *Frame
	done chan struct{}
}

func newFrameQueue(depth int) *frameQueue {
	return &frameQueue{
		ch:   make(chan *Frame, depth),
		done: make(chan struct{}),
	}
}

// pushDropOldest enqueues f, evicting the oldest queued frames until
// room exists. Returns the number of evictions. Producer-side only.
func (q *frameQueue) pushDropOldest(f *Frame) uint64 {
	var evicted uint64
	for {
		select {
		case q.ch <- f:
			return evicted
		default:
		}
		// Full: evict one and retry. A concurrent Grab may win the
		// race for the oldest frame; that also frees room.
		select {
		case old := <-q.ch:
			old.Release()
			evicted++
		default:
		}
	}
}

// pushBlock enqueues f, waiting up to timeout for room. Returns
// ErrConsumerStalled on timeout. Producer-side only.
func (q *frameQueue) pushBlock(f *Frame, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- f:
		return nil
	case <-q.done:
		return ErrInvalidState
	case <-timer.C:
		return ErrConsumerStalled
	}
}

// grab dequeues the next frame, waiting up to timeout. Returns nil on
// timeout ("no frame", not an error). After shutdown the queue drains
// remaining frames, then keeps returning nil.
func (q *frameQueue) grab(timeout time.Duration) *Frame {
	// Fast path: a frame is already queued.
	select {
	case f := <-q.ch:
		return f
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-q.ch:
		return f
	case <-q.done:
		// Producer gone; drain whatever is left without waiting.
		select {
		case f := <-q.ch:
			return f
		default:
			return nil
		}
	case <-timer.C:
		return nil
	}
}

// shutdown unblocks producers and waiters. Queued frames stay grabbable.
func (q *frameQueue) shutdown() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// drain releases every queued frame. Called on session close.
func (q *frameQueue) drain() {
	for {
		select {
		case f := <-q.ch:
			f.Release()
		default:
			return
		}
	}
}

// handleRaw is the per-frame hot path, invoked by the backend on its
// capture goroutine. Conversion failures drop the frame and count; only
// device faults escalate. Never takes s.mu: Stop holds it while joining
// this goroutine.
func (s *Session) handleRaw(raw RawFrame) {
	if s.State() != StateCapturing {
		s.cfg.Metrics.RecordDropped("stopping")
		return
	}

	frame, ok := s.buildFrame(raw)
	if !ok {
		return
	}

	frame.Seq = s.seq.Add(1) - 1
	s.lastFrameNS.Store(time.Now().UnixNano())

	if s.callback != nil {
		// Push mode: deliver on the capture goroutine. The callback
		// owns the frame from here.
		s.callback(frame)
		s.delivered.Add(1)
		s.cfg.Metrics.RecordDelivered(frame.Size())
		return
	}

	s.enqueue(frame)
}

// buildFrame turns a raw backend frame into a deliverable Frame,
// converting or copying into pooled storage as needed. Malformed raw
// frames drop here; a single bad frame never aborts the stream.
func (s *Session) buildFrame(raw RawFrame) (*Frame, bool) {
	src := raw.Descriptor
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if err := validateRaw(raw); err != nil {
		s.droppedFrames.Add(1)
		s.cfg.Metrics.RecordDropped("malformed")
		slog.Debug("camcap: dropping malformed frame",
			"error", err,
			"format", src.Format.String(),
		)
		return nil, false
	}

	sameFormat := s.outFormat == src.Format

	frame := &Frame{Timestamp: ts, TraceID: uuid.NewString()}

	switch {
	case sameFormat && s.outOrient == src.Orientation && raw.Owned:
		// Zero-copy: the backend handed over ownership.
		frame.Descriptor = src
		frame.Planes = raw.Planes

	case sameFormat:
		// Same format, borrowed planes or a flipped row order:
		// compact-copy into the pool. The vertical flip folds into the
		// row copy, so orientation changes never need a kernel.
		buf := s.pool.Acquire(src.Format.FrameSize(src.Width, src.Height))
		frame.Descriptor, frame.Planes = copyCompact(raw, buf, s.outOrient)
		frame.release = func() { s.pool.Release(buf) }

	default:
		buf := s.pool.Acquire(s.outFormat.FrameSize(src.Width, src.Height))
		n, err := pixel.Convert(pixel.Request{
			Src:            src,
			SrcPlanes:      raw.Planes,
			DstFormat:      s.outFormat,
			Dst:            buf,
			DstOrientation: s.outOrient,
		})
		s.cfg.Metrics.RecordConversion(src.Format.String(), s.outFormat.String(), err)
		if err != nil {
			s.pool.Release(buf)
			s.droppedFrames.Add(1)
			s.cfg.Metrics.RecordDropped("conversion")
			slog.Debug("camcap: dropping frame, conversion failed",
				"error", err,
				"src", src.Format.String(),
				"dst", s.outFormat.String(),
			)
			return nil, false
		}
		frame.Descriptor = FrameDescriptor{
			Width:       src.Width,
			Height:      src.Height,
			Format:      s.outFormat,
			Stride:      [3]int{s.outFormat.MinStride(0, src.Width)},
			Range:       src.Range,
			Matrix:      src.Matrix,
			Orientation: s.outOrient,
		}
		frame.Planes = [3][]byte{buf[:n]}
		frame.release = func() { s.pool.Release(buf) }
	}

	return frame, true
}

// enqueue applies the backpressure policy on the pull-mode queue.
func (s *Session) enqueue(frame *Frame) {
	switch s.cfg.Backpressure {
	case Block:
		err := s.queue.pushBlock(frame, s.cfg.BlockTimeout)
		if err == nil {
			return
		}
		frame.Release()
		if errors.Is(err, ErrConsumerStalled) {
			s.cfg.Metrics.RecordDropped("stalled")
			s.fault(ErrConsumerStalled)
			return
		}
		s.cfg.Metrics.RecordDropped("stopping")

	default: // DropOldest
		if evicted := s.queue.pushDropOldest(frame); evicted > 0 {
			s.droppedQueue.Add(evicted)
			for i := uint64(0); i < evicted; i++ {
				s.cfg.Metrics.RecordDropped("queue_full")
			}
			slog.Debug("camcap: evicted oldest frames, queue full",
				"evicted", evicted,
				"seq", frame.Seq,
				"trace_id", frame.TraceID,
			)
		}
	}
}

// faultReasonLabel maps a fault cause to a bounded metrics label.
func faultReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrConsumerStalled):
		return "consumer_stalled"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_lost"
	default:
		return "backend"
	}
}

// validateRaw checks a raw backend frame before its planes are touched:
// a well-formed descriptor and every plane at least stride x rows long.
func validateRaw(raw RawFrame) error {
	desc := raw.Descriptor
	if err := desc.Validate(); err != nil {
		return err
	}
	for p := 0; p < desc.Format.PlaneCount(); p++ {
		need := desc.PlaneStride(p) * desc.Format.PlaneHeight(p, desc.Height)
		if len(raw.Planes[p]) < need {
			return fmt.Errorf("plane %d: %d bytes, need %d: %w",
				p, len(raw.Planes[p]), need, ErrBufferTooSmall)
		}
	}
	return nil
}

// copyCompact copies raw planes into one pooled buffer, compacting
// padded strides to the minimum stride per plane. A destination
// orientation differing from the source reverses the row order of every
// plane during the copy.
func copyCompact(raw RawFrame, buf []byte, want Orientation) (FrameDescriptor, [3][]byte) {
	desc := raw.Descriptor
	f := desc.Format
	flip := desc.Orientation != want
	var planes [3][]byte

	off := 0
	for p := 0; p < f.PlaneCount(); p++ {
		minStride := f.MinStride(p, desc.Width)
		rows := f.PlaneHeight(p, desc.Height)
		srcStride := desc.PlaneStride(p)

		dst := buf[off : off+minStride*rows]
		for y := 0; y < rows; y++ {
			dy := y
			if flip {
				dy = rows - 1 - y
			}
			copy(dst[dy*minStride:(dy+1)*minStride], raw.Planes[p][y*srcStride:])
		}
		planes[p] = dst
		off += minStride * rows
		desc.Stride[p] = minStride
	}
	desc.Orientation = want
	return desc, planes
}
