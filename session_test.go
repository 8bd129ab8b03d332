package camcap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend is a scriptable in-process backend. Tests either emit
// frames manually (acting as the capture goroutine) or enable the pump,
// which spawns a real producer goroutine that StopStreaming joins.
type fakeBackend struct {
	mu       sync.Mutex
	caps     []DeviceCapability
	openErr  error
	startErr error

	onRaw   RawFrameFunc
	onFault FaultFunc

	streaming bool
	stop      chan struct{}
	wg        sync.WaitGroup

	// pumpInterval > 0 makes StartStreaming spawn a producer goroutine
	// emitting pumpFrame at that interval.
	pumpInterval time.Duration
	pumpFrame    func(tick uint64) RawFrame

	// stopFault, when set, reports a device fault while StopStreaming
	// quiesces, before it returns.
	stopFault error
}

func (f *fakeBackend) Enumerate() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake0", Name: "Fake Camera", Capabilities: f.caps}}, nil
}

func (f *fakeBackend) Open(deviceID string) error {
	return f.openErr
}

func (f *fakeBackend) Negotiate(requested DeviceCapability) (DeviceCapability, error) {
	return Negotiate(requested, f.caps)
}

func (f *fakeBackend) StartStreaming(onRaw RawFrameFunc, onFault FaultFunc) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRaw = onRaw
	f.onFault = onFault
	f.streaming = true
	f.stop = make(chan struct{})

	if f.pumpInterval > 0 {
		stop := f.stop
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			var tick uint64
			ticker := time.NewTicker(f.pumpInterval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					onRaw(f.pumpFrame(tick))
					tick++
				}
			}
		}()
	}
	return nil
}

func (f *fakeBackend) StopStreaming() error {
	f.mu.Lock()
	if !f.streaming {
		f.mu.Unlock()
		return nil
	}
	f.streaming = false
	stop := f.stop
	onFault := f.onFault
	f.mu.Unlock()

	close(stop)
	f.wg.Wait()
	if f.stopFault != nil && onFault != nil {
		onFault(f.stopFault)
	}
	return nil
}

func (f *fakeBackend) Close() error {
	return f.StopStreaming()
}

// emit delivers one raw frame the way a capture goroutine would.
func (f *fakeBackend) emit(raw RawFrame) {
	f.mu.Lock()
	onRaw := f.onRaw
	streaming := f.streaming
	f.mu.Unlock()
	if streaming && onRaw != nil {
		onRaw(raw)
	}
}

// failDevice simulates a device fault during streaming.
func (f *fakeBackend) failDevice(err error) {
	f.mu.Lock()
	onFault := f.onFault
	f.mu.Unlock()
	if onFault != nil {
		onFault(err)
	}
}

func nv12Caps() []DeviceCapability {
	return []DeviceCapability{
		{Width: 640, Height: 480, Format: FormatNV12, FPS: 15},
		{Width: 1280, Height: 720, Format: FormatNV12, FPS: 30},
	}
}

// nv12Raw builds an owned NV12 raw frame with deterministic content.
func nv12Raw(w, h int) RawFrame {
	desc := FrameDescriptor{
		Width: w, Height: h, Format: FormatNV12,
		Range: RangeVideo, Matrix: MatrixBT601,
	}
	y := make([]byte, FormatNV12.MinStride(0, w)*h)
	uv := make([]byte, FormatNV12.MinStride(1, w)*FormatNV12.PlaneHeight(1, h))
	for i := range y {
		y[i] = byte(i)
	}
	for i := range uv {
		uv[i] = 128
	}
	return RawFrame{
		Descriptor: desc,
		Planes:     [3][]byte{y, uv, nil},
		Timestamp:  time.Now(),
		Owned:      true,
	}
}

func newTestSession(t *testing.T, cfg SessionConfig) (*Session, *fakeBackend) {
	t.Helper()
	fb, ok := cfg.Backend.(*fakeBackend)
	if !ok {
		fb = &fakeBackend{caps: nv12Caps()}
		cfg.Backend = fb
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s, fb
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := NewSession(SessionConfig{}); err == nil {
		t.Fatal("expected error without backend")
	}
	if _, err := NewSession(SessionConfig{Backend: &fakeBackend{}, QueueDepth: -1}); err == nil {
		t.Fatal("expected error for negative queue depth")
	}
	if _, err := NewSession(SessionConfig{Backend: &fakeBackend{}, OutputFormat: PixelFormat(99)}); err == nil {
		t.Fatal("expected error for invalid output format")
	}
}

func TestLifecycleStates(t *testing.T) {
	s, _ := newTestSession(t, SessionConfig{})

	if got := s.State(); got != StateUninitialized {
		t.Fatalf("initial state = %v", got)
	}

	// Configure before Open is invalid.
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("configure before open: %v", err)
	}

	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if got := s.State(); got != StateOpened {
		t.Fatalf("state after open = %v", got)
	}

	// Start before Configure is invalid.
	if err := s.Start(nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("start before configure: %v", err)
	}

	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, Format: FormatNV12, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if got := s.State(); got != StateConfigured {
		t.Fatalf("state after configure = %v", got)
	}

	if err := s.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := s.State(); got != StateCapturing {
		t.Fatalf("state after start = %v", got)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := s.State(); got != StateStopped {
		t.Fatalf("state after stop = %v", got)
	}

	// Restart from Stopped.
	if err := s.Start(nil); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state after close = %v", got)
	}

	// Close is idempotent; other operations report ErrClosed.
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if err := s.Open("fake0"); !errors.Is(err, ErrClosed) {
		t.Fatalf("open after close: %v", err)
	}
}

func TestOpenErrorsPassThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not_found", ErrDeviceNotFound},
		{"busy", ErrDeviceBusy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestSession(t, SessionConfig{
				Backend: &fakeBackend{caps: nv12Caps(), openErr: fmt.Errorf("fake: %w", tc.err)},
			})
			if err := s.Open("fake0"); !errors.Is(err, tc.err) {
				t.Fatalf("open error = %v, want %v", err, tc.err)
			}
			if got := s.State(); got != StateUninitialized {
				t.Fatalf("state after failed open = %v", got)
			}
		})
	}
}

func TestReconfigureAfterUnsupportedConfiguration(t *testing.T) {
	s, _ := newTestSession(t, SessionConfig{})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if _, err := s.Configure(DeviceCapability{Width: -1, Height: -1}); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Fatalf("configure error = %v, want ErrUnsupportedConfiguration", err)
	}
	if got := s.State(); got != StateOpened {
		t.Fatalf("state after failed configure = %v, want Opened", got)
	}

	// Negotiation failure is recoverable by retry.
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("retry configure failed: %v", err)
	}
}

func TestStartFailedLeavesConfigured(t *testing.T) {
	fb := &fakeBackend{caps: nv12Caps(), startErr: fmt.Errorf("fake: %w", ErrStartFailed)}
	s, _ := newTestSession(t, SessionConfig{Backend: fb})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	if err := s.Start(nil); !errors.Is(err, ErrStartFailed) {
		t.Fatalf("start error = %v, want ErrStartFailed", err)
	}
	if got := s.State(); got != StateConfigured {
		t.Fatalf("state after failed start = %v, want Configured", got)
	}

	// Recoverable: fix the backend and start again.
	fb.startErr = nil
	if err := s.Start(nil); err != nil {
		t.Fatalf("start after fix failed: %v", err)
	}
}

func TestStopQuiescesBeforeReturning(t *testing.T) {
	fb := &fakeBackend{
		caps:         nv12Caps(),
		pumpInterval: time.Millisecond,
		pumpFrame:    func(uint64) RawFrame { return nv12Raw(64, 48) },
	}
	s, _ := newTestSession(t, SessionConfig{Backend: fb})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	var calls atomic.Uint64
	var inCallback atomic.Bool
	err := s.Start(func(f *Frame) {
		inCallback.Store(true)
		calls.Add(1)
		time.Sleep(200 * time.Microsecond) // widen the race window
		inCallback.Store(false)
		f.Release()
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Let frames flow, then stop and verify the guarantee: no callback
	// is in flight when Stop returns, and none fires afterwards.
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if inCallback.Load() {
		t.Fatal("Stop returned while a callback was in progress")
	}

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Fatalf("callback fired after Stop: %d -> %d", after, got)
	}
}

func TestFaultDuringCapture(t *testing.T) {
	s, fb := newTestSession(t, SessionConfig{})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	var reported atomic.Uint64
	var cause error
	var mu sync.Mutex
	s.OnError(func(err error) {
		reported.Add(1)
		mu.Lock()
		cause = err
		mu.Unlock()
	})

	if err := s.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deviceErr := errors.New("device unplugged")
	fb.failDevice(deviceErr)
	fb.failDevice(deviceErr) // second fault must not re-report

	if got := s.State(); got != StateFaulted {
		t.Fatalf("state after fault = %v, want Faulted", got)
	}
	if got := reported.Load(); got != 1 {
		t.Fatalf("error callback fired %d times, want 1", got)
	}
	mu.Lock()
	if !errors.Is(cause, deviceErr) {
		t.Fatalf("reported cause = %v, want %v", cause, deviceErr)
	}
	mu.Unlock()

	// Frames after the fault are ignored.
	fb.emit(nv12Raw(640, 480))
	if _, err := s.Grab(10 * time.Millisecond); !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("grab after fault: %v, want ErrSessionFaulted", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("stop after fault: %v, want ErrSessionFaulted", err)
	}

	// Close clears the fault.
	if err := s.Close(); err != nil {
		t.Fatalf("close after fault failed: %v", err)
	}
}

func TestFaultDuringStopWins(t *testing.T) {
	// A fault landing while Stop quiesces the backend must leave the
	// session Faulted, not Stopped.
	deviceErr := errors.New("device lost during teardown")
	fb := &fakeBackend{caps: nv12Caps(), stopFault: deviceErr}
	s, _ := newTestSession(t, SessionConfig{Backend: fb})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	var reported atomic.Uint64
	s.OnError(func(error) { reported.Add(1) })

	if err := s.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := s.Stop(); !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("stop = %v, want ErrSessionFaulted", err)
	}
	if got := s.State(); got != StateFaulted {
		t.Fatalf("state after stop = %v, want Faulted", got)
	}
	if got := reported.Load(); got != 1 {
		t.Fatalf("error callback fired %d times, want 1", got)
	}
	if _, err := s.Grab(10 * time.Millisecond); !errors.Is(err, ErrSessionFaulted) {
		t.Fatalf("grab after faulted stop = %v, want ErrSessionFaulted", err)
	}
}

func TestNegotiationPrefersResolutionOverRate(t *testing.T) {
	s, _ := newTestSession(t, SessionConfig{})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Backend advertises 640x480@15 and 1280x720@30. Requesting
	// 640x480@30 must resolve to the resolution match at the lower
	// rate.
	negotiated, err := s.Configure(DeviceCapability{
		Width: 640, Height: 480, Format: FormatNV12, FPS: 30,
	})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	want := DeviceCapability{Width: 640, Height: 480, Format: FormatNV12, FPS: 15}
	if negotiated != want {
		t.Fatalf("negotiated %v, want %v", negotiated, want)
	}
}

func TestStatsSnapshot(t *testing.T) {
	s, fb := newTestSession(t, SessionConfig{OutputFormat: FormatRGBA32})
	if err := s.Open("fake0"); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Configure(DeviceCapability{Width: 640, Height: 480, FPS: 15}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := s.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		fb.emit(nv12Raw(640, 480))
	}
	for i := 0; i < 3; i++ {
		f, err := s.Grab(100 * time.Millisecond)
		if err != nil || f == nil {
			t.Fatalf("grab %d failed: frame=%v err=%v", i, f, err)
		}
		f.Release()
	}

	stats := s.Stats()
	if stats.FramesDelivered != 3 {
		t.Fatalf("delivered = %d, want 3", stats.FramesDelivered)
	}
	if stats.State != StateCapturing {
		t.Fatalf("state = %v", stats.State)
	}
	if stats.OutputFormat != FormatRGBA32 {
		t.Fatalf("output format = %v", stats.OutputFormat)
	}
	if stats.Resolution != "640x480" {
		t.Fatalf("resolution = %q", stats.Resolution)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
