package pixel

import "fmt"

// Convert runs one stateless conversion and returns the number of
// destination bytes written.
//
// Contract:
//   - No kernel for the pair, or a malformed descriptor: ErrUnsupportedConversion.
//   - Source or destination plane smaller than stride x rows: ErrBufferTooSmall.
//   - Zero width or height: returns 0 without touching destination memory.
//   - Fully reentrant; any number of goroutines may convert concurrently
//     on independent buffers.
func Convert(req Request) (int, error) {
	return convertWith(req, HostCapability())
}

// ConvertWith is Convert pinned to an explicit capability tier. Every
// kernel family is portable Go, so any tier runs on any host; tests use
// this to compare families byte-for-byte.
func ConvertWith(req Request, tier Capability) (int, error) {
	return convertWith(req, tier)
}

func convertWith(req Request, tier Capability) (int, error) {
	if err := req.Src.Validate(); err != nil {
		return 0, err
	}
	if !req.DstFormat.Valid() {
		return 0, fmt.Errorf("%w: invalid destination format %v", ErrUnsupportedConversion, req.DstFormat)
	}

	kernel, ok := selectKernel(req.Src.Format, req.DstFormat, tier)
	if !ok {
		return 0, fmt.Errorf("%w: %v -> %v", ErrUnsupportedConversion, req.Src.Format, req.DstFormat)
	}

	// Degenerate geometry: defined as a successful no-op.
	if req.Src.Width == 0 || req.Src.Height == 0 {
		return 0, nil
	}

	j := job{
		width:     req.Src.Width,
		height:    req.Src.Height,
		dst:       req.Dst,
		dstStride: req.dstStride(),
		coeff:     coeffFor(req.Src.Matrix, req.Src.Range),
		flip:      req.Src.Orientation != req.DstOrientation,
	}

	if j.dstStride < req.DstFormat.MinStride(0, j.width) {
		return 0, fmt.Errorf("%w: destination stride %d below minimum %d",
			ErrUnsupportedConversion, j.dstStride, req.DstFormat.MinStride(0, j.width))
	}

	for p := 0; p < req.Src.Format.PlaneCount(); p++ {
		stride := req.Src.PlaneStride(p)
		need := stride * req.Src.Format.PlaneHeight(p, j.height)
		if len(req.SrcPlanes[p]) < need {
			return 0, fmt.Errorf("%w: source plane %d has %d bytes, need %d",
				ErrBufferTooSmall, p, len(req.SrcPlanes[p]), need)
		}
		j.src[p] = req.SrcPlanes[p]
		j.srcStride[p] = stride
	}

	written := j.dstStride * j.height
	if len(req.Dst) < written {
		return 0, fmt.Errorf("%w: destination has %d bytes, need %d",
			ErrBufferTooSmall, len(req.Dst), written)
	}

	kernel(&j)
	return written, nil
}
