package pixel

import "fmt"

// PixelFormat identifies an uncompressed pixel layout.
//
// Plane layouts follow the conventional layouts of the OS capture APIs so
// zero-copy from backend buffers is valid:
//   - I420: three planes, Y full-res, U and V each half-res in both axes
//   - NV12: two planes, Y full-res, UV interleaved half-res (semi-planar)
//   - YUYV: one packed 4:2:2 plane, byte order Y0 U0 Y1 V0
//   - UYVY: one packed 4:2:2 plane, byte order U0 Y0 V0 Y1
//   - RGB24/BGR24: one packed plane, 3 bytes per pixel
//   - RGBA32/BGRA32: one packed plane, 4 bytes per pixel
//   - Gray8: one plane, 1 byte per pixel
type PixelFormat int

const (
	// FormatUnknown is the zero value; never valid in a descriptor.
	FormatUnknown PixelFormat = iota
	// FormatI420 is planar 4:2:0 YUV (three planes).
	FormatI420
	// FormatNV12 is semi-planar 4:2:0 YUV (Y plane + interleaved UV plane).
	FormatNV12
	// FormatYUYV is packed 4:2:2 YUV, byte order Y0 U0 Y1 V0.
	FormatYUYV
	// FormatUYVY is packed 4:2:2 YUV, byte order U0 Y0 V0 Y1.
	FormatUYVY
	// FormatRGB24 is packed 24-bit RGB.
	FormatRGB24
	// FormatBGR24 is packed 24-bit BGR.
	FormatBGR24
	// FormatRGBA32 is packed 32-bit RGBA.
	FormatRGBA32
	// FormatBGRA32 is packed 32-bit BGRA.
	FormatBGRA32
	// FormatGray8 is single-plane 8-bit grayscale.
	FormatGray8
)

// String returns the conventional short name of the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatI420:
		return "I420"
	case FormatNV12:
		return "NV12"
	case FormatYUYV:
		return "YUYV"
	case FormatUYVY:
		return "UYVY"
	case FormatRGB24:
		return "RGB24"
	case FormatBGR24:
		return "BGR24"
	case FormatRGBA32:
		return "RGBA32"
	case FormatBGRA32:
		return "BGRA32"
	case FormatGray8:
		return "Gray8"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Valid reports whether f is one of the supported formats.
func (f PixelFormat) Valid() bool {
	return f > FormatUnknown && f <= FormatGray8
}

// IsYUV reports whether the format carries chroma-subsampled YUV samples.
func (f PixelFormat) IsYUV() bool {
	switch f {
	case FormatI420, FormatNV12, FormatYUYV, FormatUYVY:
		return true
	}
	return false
}

// IsPacked reports whether all samples live in a single plane.
func (f PixelFormat) IsPacked() bool {
	return f.Valid() && f != FormatI420 && f != FormatNV12
}

// PlaneCount returns the number of planes the format stores.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case FormatI420:
		return 3
	case FormatNV12:
		return 2
	case FormatYUYV, FormatUYVY, FormatRGB24, FormatBGR24, FormatRGBA32, FormatBGRA32, FormatGray8:
		return 1
	default:
		return 0
	}
}

// MinStride returns the minimum byte stride for the given plane at the
// given frame width. Chroma subsampling rounds odd widths up.
func (f PixelFormat) MinStride(plane, width int) int {
	if width <= 0 {
		return 0
	}
	switch f {
	case FormatI420:
		if plane == 0 {
			return width
		}
		return (width + 1) / 2
	case FormatNV12:
		if plane == 0 {
			return width
		}
		// Interleaved U and V: one byte pair per two luma columns.
		return ((width + 1) / 2) * 2
	case FormatYUYV, FormatUYVY:
		return ((width + 1) / 2) * 4
	case FormatRGB24, FormatBGR24:
		return width * 3
	case FormatRGBA32, FormatBGRA32:
		return width * 4
	case FormatGray8:
		return width
	default:
		return 0
	}
}

// PlaneHeight returns the number of rows the given plane stores for a
// frame of the given height.
func (f PixelFormat) PlaneHeight(plane, height int) int {
	if height <= 0 {
		return 0
	}
	switch f {
	case FormatI420, FormatNV12:
		if plane == 0 {
			return height
		}
		return (height + 1) / 2
	default:
		if plane == 0 {
			return height
		}
		return 0
	}
}

// FrameSize returns the total byte size of a tightly packed frame.
func (f PixelFormat) FrameSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	total := 0
	for p := 0; p < f.PlaneCount(); p++ {
		total += f.MinStride(p, width) * f.PlaneHeight(p, height)
	}
	return total
}

// ColorRange states which sub-range of the byte range the samples occupy.
type ColorRange int

const (
	// RangeVideo is broadcast limited range: luma 16-235, chroma 16-240.
	RangeVideo ColorRange = iota
	// RangeFull uses the full 0-255 byte range.
	RangeFull
)

// String returns "video" or "full".
func (r ColorRange) String() string {
	if r == RangeFull {
		return "full"
	}
	return "video"
}

// ColorMatrix selects the YUV<->RGB coefficient set.
type ColorMatrix int

const (
	// MatrixBT601 is the SD coefficient set.
	MatrixBT601 ColorMatrix = iota
	// MatrixBT709 is the HD coefficient set.
	MatrixBT709
)

// String returns "bt601" or "bt709".
func (m ColorMatrix) String() string {
	if m == MatrixBT709 {
		return "bt709"
	}
	return "bt601"
}

// Orientation states the vertical row order of a buffer.
//
// Capture APIs disagree on row order; converting between a TopToBottom
// source and a BottomToTop destination folds a vertical flip into the
// conversion pass. Horizontal mirroring is not modeled.
type Orientation int

const (
	// TopToBottom stores row 0 first (the common convention).
	TopToBottom Orientation = iota
	// BottomToTop stores the last visual row first.
	BottomToTop
)

// String returns "top-down" or "bottom-up".
func (o Orientation) String() string {
	if o == BottomToTop {
		return "bottom-up"
	}
	return "top-down"
}
