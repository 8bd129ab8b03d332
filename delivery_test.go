package camcap

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startPullSession(t *testing.T, cfg SessionConfig) (*Session, *fakeBackend) {
	t.Helper()
	s, fb := newTestSession(t, cfg)
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := s.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fb
}

func TestDropOldestEvictsExactly(t *testing.T) {
	const depth = 4
	const extra = 3
	s, fb := startPullSession(t, SessionConfig{QueueDepth: depth})

	for i := 0; i < depth+extra; i++ {
		fb.emit(nv12Raw(640, 480))
	}

	// Exactly extra frames evicted, the depth most recent remain, in
	// order, with their original sequence numbers.
	if got := s.Stats().FramesDropped; got != extra {
		t.Fatalf("dropped = %d, want %d", got, extra)
	}
	for i := 0; i < depth; i++ {
		f, err := s.Grab(100 * time.Millisecond)
		if err != nil || f == nil {
			t.Fatalf("grab %d: frame=%v err=%v", i, f, err)
		}
		if want := uint64(extra + i); f.Seq != want {
			t.Fatalf("frame %d seq = %d, want %d", i, f.Seq, want)
		}
		f.Release()
	}

	// Queue is now empty.
	f, err := s.Grab(10 * time.Millisecond)
	if err != nil || f != nil {
		t.Fatalf("grab on empty queue: frame=%v err=%v", f, err)
	}
}

func TestBlockPolicyFaultsOnStall(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{
		QueueDepth:   1,
		Backpressure: Block,
		BlockTimeout: 20 * time.Millisecond,
	})

	var faults atomic.Uint64
	var cause atomic.Value
	s.OnError(func(err error) {
		faults.Add(1)
		cause.Store(err)
	})

	fb.emit(nv12Raw(640, 480)) // fills the queue
	fb.emit(nv12Raw(640, 480)) // blocks, times out, faults

	if got := s.State(); got != StateFaulted {
		t.Fatalf("state = %v, want Faulted", got)
	}
	if got := faults.Load(); got != 1 {
		t.Fatalf("fault callback fired %d times, want 1", got)
	}
	if err, _ := cause.Load().(error); !errors.Is(err, ErrConsumerStalled) {
		t.Fatalf("fault cause = %v, want ErrConsumerStalled", err)
	}
	if _, err := s.Grab(10 * time.Millisecond); !errors.Is(err, ErrConsumerStalled) {
		t.Fatalf("grab after stall = %v, want wrapped ErrConsumerStalled", err)
	}
}

func TestBlockPolicyDeliversWhenConsumerKeepsUp(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{
		QueueDepth:   2,
		Backpressure: Block,
		BlockTimeout: 100 * time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		fb.emit(nv12Raw(640, 480))
		f, err := s.Grab(100 * time.Millisecond)
		if err != nil || f == nil {
			t.Fatalf("grab %d: frame=%v err=%v", i, f, err)
		}
		f.Release()
	}
	if got := s.State(); got != StateCapturing {
		t.Fatalf("state = %v, want Capturing", got)
	}
	if got := s.Stats().FramesDropped; got != 0 {
		t.Fatalf("dropped = %d, want 0", got)
	}
}

func TestGrabTimeoutIsNotAnError(t *testing.T) {
	s, _ := startPullSession(t, SessionConfig{})

	begin := time.Now()
	f, err := s.Grab(50 * time.Millisecond)
	elapsed := time.Since(begin)

	if err != nil {
		t.Fatalf("grab returned error: %v", err)
	}
	if f != nil {
		t.Fatalf("grab returned a frame from an idle session")
	}
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("grab took %v, want ~50ms", elapsed)
	}
}

func TestGrabAfterStopDrainsQueue(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{})

	fb.emit(nv12Raw(640, 480))
	fb.emit(nv12Raw(640, 480))
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Frames queued before Stop remain grabbable.
	for i := 0; i < 2; i++ {
		f, err := s.Grab(10 * time.Millisecond)
		if err != nil || f == nil {
			t.Fatalf("grab %d after stop: frame=%v err=%v", i, f, err)
		}
		f.Release()
	}

	// Exhausted queue on a stopped session returns immediately.
	begin := time.Now()
	f, err := s.Grab(time.Second)
	if err != nil || f != nil {
		t.Fatalf("grab on stopped empty queue: frame=%v err=%v", f, err)
	}
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Fatalf("grab on stopped session waited %v", elapsed)
	}
}

func TestPushModeDeliversOnCaptureGoroutine(t *testing.T) {
	s, fb := newTestSession(t, SessionConfig{OutputFormat: FormatRGBA32})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	var seqs []uint64
	err := s.Start(func(f *Frame) {
		if f.Descriptor.Format != FormatRGBA32 {
			t.Errorf("delivered format = %v, want RGBA32", f.Descriptor.Format)
		}
		if f.TraceID == "" {
			t.Error("delivered frame has no trace ID")
		}
		seqs = append(seqs, f.Seq)
		f.Release()
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		fb.emit(nv12Raw(640, 480))
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// emit is synchronous here, so the callback log is complete.
	if len(seqs) != 3 {
		t.Fatalf("callback fired %d times, want 3", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i) {
			t.Fatalf("seq[%d] = %d, want %d", i, seq, i)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNativeOwnedFrameIsZeroCopy(t *testing.T) {
	// No output format requested: native NV12 owned frames pass through
	// without copying.
	s, fb := startPullSession(t, SessionConfig{})

	raw := nv12Raw(640, 480)
	fb.emit(raw)

	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab: frame=%v err=%v", f, err)
	}
	defer f.Release()

	if &f.Planes[0][0] != &raw.Planes[0][0] {
		t.Fatal("owned native frame was copied")
	}
	if f.Descriptor.Format != FormatNV12 {
		t.Fatalf("delivered format = %v, want native NV12", f.Descriptor.Format)
	}
}

func TestBorrowedFrameIsCompacted(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{})

	// Borrowed frame with a padded luma stride: the delivery path must
	// copy it into owned storage and compact the padding away.
	const w, h, pad = 64, 48, 16
	raw := nv12Raw(w, h)
	raw.Owned = false
	padded := make([]byte, (w+pad)*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			padded[y*(w+pad)+x] = byte(x ^ y)
		}
	}
	raw.Planes[0] = padded
	raw.Descriptor.Stride[0] = w + pad

	fb.emit(raw)

	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab: frame=%v err=%v", f, err)
	}
	defer f.Release()

	if f.Descriptor.PlaneStride(0) != w {
		t.Fatalf("delivered stride = %d, want compacted %d", f.Descriptor.PlaneStride(0), w)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if got := f.Planes[0][y*w+x]; got != byte(x^y) {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, byte(x^y))
			}
		}
	}
}

func TestUndeliverableFrameDropsAndContinues(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{OutputFormat: FormatRGBA32})

	// A raw frame with truncated planes cannot be converted; it drops
	// and capture keeps going.
	bad := nv12Raw(640, 480)
	bad.Planes[0] = bad.Planes[0][:10]
	fb.emit(bad)

	if got := s.Stats().ConversionErrors; got != 1 {
		t.Fatalf("conversion errors = %d, want 1", got)
	}
	if got := s.State(); got != StateCapturing {
		t.Fatalf("state after conversion failure = %v, want Capturing", got)
	}

	fb.emit(nv12Raw(640, 480))
	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab after bad frame: frame=%v err=%v", f, err)
	}
	f.Release()
}

func TestMalformedBorrowedFrameDropsAndContinues(t *testing.T) {
	// Same-format path, no conversion kernel involved: a borrowed frame
	// with a truncated plane must drop cleanly, never panic the capture
	// goroutine.
	s, fb := startPullSession(t, SessionConfig{})

	bad := nv12Raw(640, 480)
	bad.Owned = false
	bad.Planes[0] = bad.Planes[0][:10]
	fb.emit(bad)

	if got := s.Stats().ConversionErrors; got != 1 {
		t.Fatalf("undeliverable drops = %d, want 1", got)
	}
	if got := s.State(); got != StateCapturing {
		t.Fatalf("state after malformed frame = %v, want Capturing", got)
	}

	fb.emit(nv12Raw(640, 480))
	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab after bad frame: frame=%v err=%v", f, err)
	}
	f.Release()
}

func TestMalformedOwnedFrameDrops(t *testing.T) {
	// The zero-copy path validates too: short owned planes never reach
	// the consumer.
	s, fb := startPullSession(t, SessionConfig{})

	bad := nv12Raw(640, 480)
	bad.Planes[1] = bad.Planes[1][:4]
	fb.emit(bad)

	if got := s.Stats().ConversionErrors; got != 1 {
		t.Fatalf("undeliverable drops = %d, want 1", got)
	}
	f, err := s.Grab(10 * time.Millisecond)
	if err != nil || f != nil {
		t.Fatalf("grab after malformed owned frame: frame=%v err=%v", f, err)
	}
}

func TestNativeOrientationFlipDelivery(t *testing.T) {
	// Orientation-only change on native YUV output: no kernel exists for
	// the identity pair, so the flip folds into the copy path.
	s, fb := startPullSession(t, SessionConfig{
		OutputOrientation: BottomToTop,
	})

	const w, h = 4, 4
	raw := nv12Raw(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			raw.Planes[0][y*w+x] = byte(16 + y*10)
		}
	}
	for i := range raw.Planes[1] {
		raw.Planes[1][i] = byte(100 + (i/w)*10) // chroma rows 100, 110
	}
	fb.emit(raw)

	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab: frame=%v err=%v", f, err)
	}
	defer f.Release()

	if f.Descriptor.Format != FormatNV12 {
		t.Fatalf("delivered format = %v, want native NV12", f.Descriptor.Format)
	}
	if f.Descriptor.Orientation != BottomToTop {
		t.Fatalf("orientation = %v, want BottomToTop", f.Descriptor.Orientation)
	}
	for y := 0; y < h; y++ {
		want := byte(16 + (h-1-y)*10)
		if got := f.Planes[0][y*w]; got != want {
			t.Fatalf("luma row %d = %d, want %d", y, got, want)
		}
	}
	// Chroma rows flip with the chroma plane height.
	if f.Planes[1][0] != 110 || f.Planes[1][w] != 100 {
		t.Fatalf("chroma rows = [%d %d], want [110 100]", f.Planes[1][0], f.Planes[1][w])
	}
	if got := s.Stats().ConversionErrors; got != 0 {
		t.Fatalf("undeliverable drops = %d, want 0", got)
	}
}

func TestFrameReleaseIsIdempotent(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{OutputFormat: FormatGray8})

	fb.emit(nv12Raw(64, 48))
	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab: frame=%v err=%v", f, err)
	}

	f.Release()
	f.Release() // second release must be a no-op

	// The pooled buffer went back exactly once: the next frame of the
	// same size reuses it.
	fb.emit(nv12Raw(64, 48))
	g, err := s.Grab(100 * time.Millisecond)
	if err != nil || g == nil {
		t.Fatalf("second grab: frame=%v err=%v", g, err)
	}
	defer g.Release()

	if hits := s.Stats().PoolHits; hits != 1 {
		t.Fatalf("pool hits = %d, want 1", hits)
	}
}

func TestVerticalFlipDelivery(t *testing.T) {
	s, fb := startPullSession(t, SessionConfig{
		OutputFormat:      FormatGray8,
		OutputOrientation: BottomToTop,
	})

	// 2x2 luma with distinct rows: after the flip the bottom source row
	// comes first.
	raw := nv12Raw(2, 2)
	raw.Planes[0][0], raw.Planes[0][1] = 16, 16
	raw.Planes[0][2], raw.Planes[0][3] = 235, 235
	fb.emit(raw)

	f, err := s.Grab(100 * time.Millisecond)
	if err != nil || f == nil {
		t.Fatalf("grab: frame=%v err=%v", f, err)
	}
	defer f.Release()

	if f.Descriptor.Orientation != BottomToTop {
		t.Fatalf("orientation = %v, want BottomToTop", f.Descriptor.Orientation)
	}
	// Video-range 235 expands to 255, 16 to 0.
	if f.Planes[0][0] != 255 || f.Planes[0][2] != 0 {
		t.Fatalf("flipped rows = [%d %d], want [255 0]", f.Planes[0][0], f.Planes[0][2])
	}
}
