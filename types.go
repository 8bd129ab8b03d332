package camcap

import (
	"fmt"

	"github.com/e7canasta/camcap/internal/pixel"
)

// Pixel-layout and color types are re-exported from internal/pixel so
// the conversion engine and the public API share one vocabulary.
// See internal/pixel/format.go for full documentation.
type (
	// PixelFormat identifies an uncompressed pixel layout.
	PixelFormat = pixel.PixelFormat
	// ColorRange states limited (video) vs full sample range.
	ColorRange = pixel.ColorRange
	// ColorMatrix selects the YUV<->RGB coefficient set.
	ColorMatrix = pixel.ColorMatrix
	// Orientation states the vertical row order of a buffer.
	Orientation = pixel.Orientation
	// FrameDescriptor describes how a frame buffer is interpreted.
	FrameDescriptor = pixel.FrameDescriptor
	// ConversionRequest is one stateless conversion call.
	ConversionRequest = pixel.Request
	// Capability is the detected SIMD tier of the host.
	Capability = pixel.Capability
)

const (
	FormatUnknown = pixel.FormatUnknown
	FormatI420    = pixel.FormatI420
	FormatNV12    = pixel.FormatNV12
	FormatYUYV    = pixel.FormatYUYV
	FormatUYVY    = pixel.FormatUYVY
	FormatRGB24   = pixel.FormatRGB24
	FormatBGR24   = pixel.FormatBGR24
	FormatRGBA32  = pixel.FormatRGBA32
	FormatBGRA32  = pixel.FormatBGRA32
	FormatGray8   = pixel.FormatGray8

	RangeVideo = pixel.RangeVideo
	RangeFull  = pixel.RangeFull

	MatrixBT601 = pixel.MatrixBT601
	MatrixBT709 = pixel.MatrixBT709

	TopToBottom = pixel.TopToBottom
	BottomToTop = pixel.BottomToTop

	CapScalar  = pixel.CapScalar
	CapSIMD128 = pixel.CapSIMD128
	CapSIMD256 = pixel.CapSIMD256
)

// DeviceCapability is one selectable capture mode a backend reports:
// resolution, pixel format and frame rate.
type DeviceCapability struct {
	// Width in pixels.
	Width int
	// Height in pixels.
	Height int
	// Format is the native pixel layout of this mode.
	Format PixelFormat
	// FPS is the frame rate of this mode.
	FPS float64
}

// String returns e.g. "640x480 NV12 @30.0fps".
func (c DeviceCapability) String() string {
	return fmt.Sprintf("%dx%d %v @%.1ffps", c.Width, c.Height, c.Format, c.FPS)
}

// DeviceInfo describes one enumerable capture device.
type DeviceInfo struct {
	// ID is the backend-specific device identifier (e.g. "/dev/video0").
	ID string
	// Name is a human-readable device name.
	Name string
	// Capabilities lists the selectable capture modes.
	Capabilities []DeviceCapability
}
