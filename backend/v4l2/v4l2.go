// Package v4l2 is the Linux capture backend: a GStreamer
// v4l2src -> capsfilter -> appsink pipeline behind the camcap.Backend
// contract. Frames arrive in the device's native format; all pixel
// conversion stays in the session core.
package v4l2

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/camcap"
)

// defaultModes is the capability ladder advertised per device. V4L2
// mode enumeration needs device-specific ioctls; the ladder covers the
// modes UVC-class cameras commonly accept, and the driver's real
// acceptance is verified when the pipeline starts.
var defaultModes = []camcap.DeviceCapability{
	{Width: 640, Height: 480, Format: camcap.FormatYUYV, FPS: 30},
	{Width: 640, Height: 480, Format: camcap.FormatNV12, FPS: 30},
	{Width: 1280, Height: 720, Format: camcap.FormatYUYV, FPS: 30},
	{Width: 1280, Height: 720, Format: camcap.FormatNV12, FPS: 30},
	{Width: 1920, Height: 1080, Format: camcap.FormatNV12, FPS: 30},
}

// Backend captures from a Video4Linux device through GStreamer.
type Backend struct {
	mu sync.Mutex

	device     string
	negotiated camcap.DeviceCapability
	elements   *pipelineElements

	stop chan struct{}
	wg   sync.WaitGroup

	// Gate for appsink callbacks: once false, no onRaw runs.
	streaming atomic.Bool
}

// New creates a v4l2 backend. Fails fast when GStreamer is unusable.
func New() (*Backend, error) {
	gst.Init(nil)
	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("v4l2: GStreamer v4l2src not available: %w", err)
	}
	elem.SetState(gst.StateNull)
	return &Backend{}, nil
}

// Enumerate lists /dev/video* devices with the advertised mode ladder.
func (b *Backend) Enumerate() ([]camcap.DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("v4l2: enumerate: %w", err)
	}
	sort.Strings(paths)

	infos := make([]camcap.DeviceInfo, 0, len(paths))
	for _, p := range paths {
		infos = append(infos, camcap.DeviceInfo{
			ID:           p,
			Name:         fmt.Sprintf("V4L2 device %s", filepath.Base(p)),
			Capabilities: defaultModes,
		})
	}
	return infos, nil
}

// Open claims the device node. Missing nodes map to ErrDeviceNotFound,
// EBUSY to ErrDeviceBusy. A partially failed open leaves nothing held.
func (b *Backend) Open(deviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(deviceID, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("v4l2: %q: %w", deviceID, camcap.ErrDeviceNotFound)
		case errors.Is(err, syscall.EBUSY):
			return fmt.Errorf("v4l2: %q: %w", deviceID, camcap.ErrDeviceBusy)
		default:
			return fmt.Errorf("v4l2: open %q: %w", deviceID, err)
		}
	}
	// The probe handle is not kept; v4l2src opens the device itself.
	f.Close()

	b.device = deviceID
	slog.Info("v4l2: device opened", "device", deviceID)
	return nil
}

// Negotiate applies the shared policy over the advertised modes.
func (b *Backend) Negotiate(requested camcap.DeviceCapability) (camcap.DeviceCapability, error) {
	negotiated, err := camcap.Negotiate(requested, defaultModes)
	if err != nil {
		return camcap.DeviceCapability{}, err
	}
	b.mu.Lock()
	b.negotiated = negotiated
	b.mu.Unlock()
	return negotiated, nil
}

// StartStreaming builds the pipeline, wires the appsink callback and
// brings the pipeline to PLAYING. Fails synchronously with
// ErrStartFailed when streaming cannot begin.
func (b *Backend) StartStreaming(onRaw camcap.RawFrameFunc, onFault camcap.FaultFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == "" {
		return fmt.Errorf("v4l2: not open: %w", camcap.ErrStartFailed)
	}
	if b.elements != nil {
		return fmt.Errorf("v4l2: already streaming: %w", camcap.ErrStartFailed)
	}
	if b.negotiated.Width == 0 {
		return fmt.Errorf("v4l2: not configured: %w", camcap.ErrStartFailed)
	}

	elements, err := createPipeline(pipelineConfig{Device: b.device, Mode: b.negotiated})
	if err != nil {
		return fmt.Errorf("v4l2: %w: %w", camcap.ErrStartFailed, err)
	}

	mode := b.negotiated
	b.streaming.Store(true)
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return b.onNewSample(sink, mode, onRaw)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		b.streaming.Store(false)
		destroyPipeline(elements)
		return fmt.Errorf("v4l2: %w: failed to start pipeline: %w", camcap.ErrStartFailed, err)
	}

	b.elements = elements
	b.stop = make(chan struct{})
	b.wg.Add(1)
	go b.monitorBus(elements, onFault, b.stop)

	slog.Info("v4l2: streaming started",
		"device", b.device,
		"mode", mode.String(),
	)
	return nil
}

// onNewSample pulls one sample from the appsink, copies it out of the
// mapped driver buffer and hands it to the pipeline as an owned frame.
// Single corrupted samples are skipped, never fatal.
func (b *Backend) onNewSample(sink *app.Sink, mode camcap.DeviceCapability, onRaw camcap.RawFrameFunc) gst.FlowReturn {
	if !b.streaming.Load() {
		return gst.FlowEOS
	}

	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("v4l2: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("v4l2: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("v4l2: empty buffer received")
		return gst.FlowOK
	}

	desc := camcap.FrameDescriptor{
		Width:  mode.Width,
		Height: mode.Height,
		Format: mode.Format,
		Range:  camcap.RangeVideo,
		Matrix: camcap.MatrixBT601,
	}
	need := mode.Format.FrameSize(mode.Width, mode.Height)
	if len(data) < need {
		buffer.Unmap()
		slog.Warn("v4l2: short buffer, skipping frame",
			"got", len(data), "need", need)
		return gst.FlowOK
	}

	// Copy out of the mapped buffer; GStreamer reuses it after unmap.
	// The copy is owned, so the pipeline delivers it without another
	// copy.
	owned := make([]byte, need)
	copy(owned, data)
	buffer.Unmap()

	onRaw(camcap.RawFrame{
		Descriptor: desc,
		Planes:     splitPlanes(desc, owned),
		Timestamp:  time.Now(),
		Owned:      true,
	})
	return gst.FlowOK
}

// monitorBus watches the pipeline bus until stopped. Errors and EOS
// during streaming report once through onFault.
func (b *Backend) monitorBus(elements *pipelineElements, onFault camcap.FaultFunc, stop chan struct{}) {
	defer b.wg.Done()

	bus := elements.Pipeline.GetPipelineBus()
	for {
		select {
		case <-stop:
			return
		default:
		}

		// Short poll for responsive shutdown.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Error("v4l2: unexpected end of stream", "device", b.device)
			if b.streaming.CompareAndSwap(true, false) && onFault != nil {
				onFault(fmt.Errorf("v4l2: device stream ended: %w", camcap.ErrDeviceNotFound))
			}
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("v4l2: pipeline error",
				"device", b.device,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			if b.streaming.CompareAndSwap(true, false) && onFault != nil {
				onFault(fmt.Errorf("v4l2: pipeline error: %s", gerr.Error()))
			}
			return
		}
	}
}

// StopStreaming gates the appsink callback, tears the pipeline down and
// joins the bus monitor. No onRaw or onFault runs after it returns.
// Idempotent.
func (b *Backend) StopStreaming() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.elements == nil {
		return nil
	}

	b.streaming.Store(false)

	// NULL state joins the streaming threads, so no appsink callback
	// is in flight afterwards.
	err := destroyPipeline(b.elements)

	close(b.stop)
	b.wg.Wait()

	b.elements = nil
	b.stop = nil
	slog.Info("v4l2: streaming stopped", "device", b.device)
	if err != nil {
		return fmt.Errorf("v4l2: stop: %w", err)
	}
	return nil
}

// Close releases the device. Idempotent, valid in any state.
func (b *Backend) Close() error {
	if err := b.StopStreaming(); err != nil {
		return err
	}
	b.mu.Lock()
	b.device = ""
	b.negotiated = camcap.DeviceCapability{}
	b.mu.Unlock()
	return nil
}
