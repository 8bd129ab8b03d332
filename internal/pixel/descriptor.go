package pixel

import (
	"errors"
	"fmt"
)

// Conversion errors. Re-exported by the root package so callers can use
// errors.Is against the public taxonomy.
var (
	// ErrUnsupportedConversion is returned when no kernel exists for the
	// requested (source format, destination format) pair, or when a
	// descriptor is malformed.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	// ErrBufferTooSmall is returned when a source or destination plane
	// is smaller than stride x plane-height.
	ErrBufferTooSmall = errors.New("buffer too small")
)

// FrameDescriptor describes how a frame buffer is interpreted: geometry,
// layout, color encoding and row order. It describes interpretation, not
// storage; the plane buffers travel separately.
type FrameDescriptor struct {
	// Width in pixels.
	Width int
	// Height in pixels.
	Height int
	// Format is the pixel layout.
	Format PixelFormat
	// Stride is the byte stride per plane. A zero entry means the
	// minimum stride for the plane at Width. Strides may exceed the
	// minimum (padded capture buffers).
	Stride [3]int
	// Range is the sample range (video/full). Only meaningful for YUV.
	Range ColorRange
	// Matrix is the YUV coefficient set. Only meaningful for YUV.
	Matrix ColorMatrix
	// Orientation is the vertical row order of the buffer.
	Orientation Orientation
}

// PlaneStride returns the effective stride for the plane, substituting
// the minimum stride where the descriptor left it zero.
func (d FrameDescriptor) PlaneStride(plane int) int {
	if d.Stride[plane] != 0 {
		return d.Stride[plane]
	}
	return d.Format.MinStride(plane, d.Width)
}

// Validate checks geometry, format and strides. Zero width or height is
// valid (a degenerate frame); negative dimensions are not.
func (d FrameDescriptor) Validate() error {
	if !d.Format.Valid() {
		return fmt.Errorf("%w: invalid format %v", ErrUnsupportedConversion, d.Format)
	}
	if d.Width < 0 || d.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrUnsupportedConversion, d.Width, d.Height)
	}
	for p := 0; p < d.Format.PlaneCount(); p++ {
		if min := d.Format.MinStride(p, d.Width); d.Stride[p] != 0 && d.Stride[p] < min {
			return fmt.Errorf("%w: plane %d stride %d below minimum %d",
				ErrUnsupportedConversion, p, d.Stride[p], min)
		}
	}
	return nil
}

// Request is one stateless conversion call: a described source, a
// destination format and the destination storage. No identity beyond
// the call.
type Request struct {
	// Src describes the source buffer.
	Src FrameDescriptor
	// SrcPlanes holds one buffer per source plane.
	SrcPlanes [3][]byte
	// DstFormat is the requested output layout. All supported outputs
	// are single-plane (RGB family or Gray8).
	DstFormat PixelFormat
	// Dst is the destination buffer.
	Dst []byte
	// DstStride is the destination row stride; zero means minimum.
	DstStride int
	// DstOrientation is the requested output row order. When it differs
	// from Src.Orientation the kernel writes rows in reverse, folding
	// the flip into the same pass.
	DstOrientation Orientation
}

// dstStride returns the effective destination stride.
func (r Request) dstStride() int {
	if r.DstStride != 0 {
		return r.DstStride
	}
	return r.DstFormat.MinStride(0, r.Src.Width)
}
