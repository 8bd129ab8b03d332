package v4l2

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/camcap"
)

// pipelineConfig carries what the capture pipeline needs from the
// negotiated mode.
type pipelineConfig struct {
	Device string
	Mode   camcap.DeviceCapability
}

// pipelineElements holds references to the GStreamer elements needed
// for teardown.
type pipelineElements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
	Source   *gst.Element
}

// gstFormatNames maps pixel formats to GStreamer video/x-raw format
// strings.
var gstFormatNames = map[camcap.PixelFormat]string{
	camcap.FormatI420:   "I420",
	camcap.FormatNV12:   "NV12",
	camcap.FormatYUYV:   "YUY2",
	camcap.FormatUYVY:   "UYVY",
	camcap.FormatRGB24:  "RGB",
	camcap.FormatBGR24:  "BGR",
	camcap.FormatRGBA32: "RGBA",
	camcap.FormatBGRA32: "BGRA",
	camcap.FormatGray8:  "GRAY8",
}

// createPipeline builds the capture pipeline:
//
//	v4l2src -> capsfilter -> appsink
//
// The capsfilter pins the negotiated mode so the driver delivers the
// native format directly; format conversion stays in the session core.
// The pipeline is configured but NOT started (state remains NULL).
func createPipeline(cfg pipelineConfig) (*pipelineElements, error) {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	source, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	source.SetProperty("device", cfg.Device)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr, err := buildModeCaps(cfg.Mode)
	if err != nil {
		return nil, err
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 2) // Bound driver-side queueing
	appsink.SetProperty("drop", true)     // Drop old frames

	pipeline.AddMany(source, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(source, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &pipelineElements{
		Pipeline: pipeline,
		AppSink:  appsink,
		Source:   source,
	}, nil
}

// destroyPipeline sets the pipeline to NULL and releases its resources.
// Safe to call on an already destroyed pipeline.
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildModeCaps builds the caps string pinning one capture mode.
//
// Handles fractional framerates the same way framerate caps are built
// elsewhere: fps >= 1 becomes N/1, fps < 1 becomes 1/D.
func buildModeCaps(mode camcap.DeviceCapability) (string, error) {
	name, ok := gstFormatNames[mode.Format]
	if !ok {
		return "", fmt.Errorf("no GStreamer mapping for format %v", mode.Format)
	}

	numerator, denominator := 1, 1
	if mode.FPS >= 1.0 {
		numerator = int(mode.FPS)
	} else if mode.FPS > 0 {
		denominator = int(1.0 / mode.FPS)
	}

	return fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/%d",
		name, mode.Width, mode.Height, numerator, denominator,
	), nil
}

// splitPlanes slices one contiguous tightly packed buffer into the
// per-plane views of the format.
func splitPlanes(desc camcap.FrameDescriptor, data []byte) [3][]byte {
	var planes [3][]byte
	off := 0
	for p := 0; p < desc.Format.PlaneCount(); p++ {
		size := desc.Format.MinStride(p, desc.Width) * desc.Format.PlaneHeight(p, desc.Height)
		planes[p] = data[off : off+size]
		off += size
	}
	return planes
}
