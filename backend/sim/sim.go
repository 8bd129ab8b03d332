// Package sim is a synthetic capture backend: it satisfies the
// camcap.Backend contract without hardware, generating test-pattern
// frames on a dedicated goroutine at the negotiated rate.
//
// Used by the probe tool's no-hardware mode and by integration-style
// tests that need a real producer goroutine (timing, fault paths).
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/camcap"
)

// DefaultDeviceID is the ID of the single simulated device.
const DefaultDeviceID = "sim0"

// Config tunes the simulated device. Zero values select the defaults.
type Config struct {
	// Capabilities the device advertises. Default: 640x480 NV12 at 15
	// and 30 fps, 1280x720 NV12 at 30 fps, 640x480 YUYV at 30 fps.
	Capabilities []camcap.DeviceCapability
	// Busy makes Open fail with ErrDeviceBusy, for negotiation tests.
	Busy bool
}

func defaultCapabilities() []camcap.DeviceCapability {
	return []camcap.DeviceCapability{
		{Width: 640, Height: 480, Format: camcap.FormatNV12, FPS: 15},
		{Width: 640, Height: 480, Format: camcap.FormatNV12, FPS: 30},
		{Width: 1280, Height: 720, Format: camcap.FormatNV12, FPS: 30},
		{Width: 640, Height: 480, Format: camcap.FormatYUYV, FPS: 30},
	}
}

// Backend is the simulated capture adapter. Safe for concurrent use.
type Backend struct {
	mu   sync.Mutex
	cfg  Config
	caps []camcap.DeviceCapability

	opened     bool
	closed     bool
	negotiated camcap.DeviceCapability

	stop chan struct{}
	wg   sync.WaitGroup

	onFault camcap.FaultFunc
}

// New creates a simulated backend.
func New(cfg Config) *Backend {
	caps := cfg.Capabilities
	if len(caps) == 0 {
		caps = defaultCapabilities()
	}
	return &Backend{cfg: cfg, caps: caps}
}

// Enumerate lists the single simulated device.
func (b *Backend) Enumerate() ([]camcap.DeviceInfo, error) {
	return []camcap.DeviceInfo{
		{ID: DefaultDeviceID, Name: "Simulated Camera", Capabilities: b.caps},
	}, nil
}

// Open claims the simulated device. Any ID other than DefaultDeviceID
// fails with ErrDeviceNotFound; Busy configs fail with ErrDeviceBusy.
func (b *Backend) Open(deviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if deviceID != DefaultDeviceID {
		return fmt.Errorf("sim: %q: %w", deviceID, camcap.ErrDeviceNotFound)
	}
	if b.cfg.Busy {
		return fmt.Errorf("sim: %q: %w", deviceID, camcap.ErrDeviceBusy)
	}
	b.opened = true
	b.closed = false
	return nil
}

// Negotiate applies the shared policy over the advertised capabilities.
func (b *Backend) Negotiate(requested camcap.DeviceCapability) (camcap.DeviceCapability, error) {
	negotiated, err := camcap.Negotiate(requested, b.caps)
	if err != nil {
		return camcap.DeviceCapability{}, err
	}
	b.mu.Lock()
	b.negotiated = negotiated
	b.mu.Unlock()
	return negotiated, nil
}

// StartStreaming launches the pattern generator goroutine.
func (b *Backend) StartStreaming(onRaw camcap.RawFrameFunc, onFault camcap.FaultFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened {
		return fmt.Errorf("sim: not open: %w", camcap.ErrStartFailed)
	}
	if b.stop != nil {
		return fmt.Errorf("sim: already streaming: %w", camcap.ErrStartFailed)
	}
	if b.negotiated.Width == 0 {
		return fmt.Errorf("sim: not configured: %w", camcap.ErrStartFailed)
	}

	b.onFault = onFault
	b.stop = make(chan struct{})
	b.wg.Add(1)
	go b.run(b.negotiated, onRaw, b.stop)

	slog.Debug("sim: streaming started", "mode", b.negotiated.String())
	return nil
}

// run generates frames at the negotiated rate until stopped.
func (b *Backend) run(mode camcap.DeviceCapability, onRaw camcap.RawFrameFunc, stop chan struct{}) {
	defer b.wg.Done()

	interval := time.Second / 30
	if mode.FPS > 0 {
		interval = time.Duration(float64(time.Second) / mode.FPS)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			onRaw(b.patternFrame(mode, tick))
			tick++
		}
	}
}

// patternFrame renders a moving diagonal gradient in the native format.
// Buffers are freshly allocated, so ownership transfers to the pipeline.
func (b *Backend) patternFrame(mode camcap.DeviceCapability, tick uint64) camcap.RawFrame {
	desc := camcap.FrameDescriptor{
		Width:  mode.Width,
		Height: mode.Height,
		Format: mode.Format,
		Range:  camcap.RangeVideo,
		Matrix: camcap.MatrixBT601,
	}

	var planes [3][]byte
	for p := 0; p < mode.Format.PlaneCount(); p++ {
		planes[p] = make([]byte, mode.Format.MinStride(p, mode.Width)*mode.Format.PlaneHeight(p, mode.Height))
	}

	// Luma (or packed) plane: diagonal gradient scrolling with tick.
	stride := desc.PlaneStride(0)
	for y := 0; y < mode.Format.PlaneHeight(0, mode.Height); y++ {
		row := planes[0][y*stride:]
		for x := 0; x < stride; x++ {
			row[x] = byte(x + y + int(tick))
		}
	}
	// Chroma planes sit at neutral gray.
	for p := 1; p < mode.Format.PlaneCount(); p++ {
		for i := range planes[p] {
			planes[p][i] = 128
		}
	}

	return camcap.RawFrame{
		Descriptor: desc,
		Planes:     planes,
		Timestamp:  time.Now(),
		Owned:      true,
	}
}

// InjectFault simulates a device failure: frame production halts and
// the fault callback fires once. For testing the faulted path.
func (b *Backend) InjectFault(err error) {
	b.mu.Lock()
	stop := b.stop
	onFault := b.onFault
	b.stop = nil
	b.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	b.wg.Wait()
	if onFault != nil {
		onFault(err)
	}
}

// StopStreaming halts the generator and joins its goroutine. Idempotent.
func (b *Backend) StopStreaming() error {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	b.wg.Wait()
	slog.Debug("sim: streaming stopped")
	return nil
}

// Close releases the simulated device. Idempotent, valid in any state.
func (b *Backend) Close() error {
	if err := b.StopStreaming(); err != nil {
		return err
	}
	b.mu.Lock()
	b.opened = false
	b.closed = true
	b.mu.Unlock()
	return nil
}
