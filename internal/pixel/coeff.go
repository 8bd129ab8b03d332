package pixel

// yuvCoeff is one fixed-point (8-bit shift) YUV->RGB coefficient set.
//
// With c = yMul*Y - yOff, u' = U-128, v' = V-128:
//
//	R = (c + rv*v' + 128) >> 8
//	G = (c - gu*u' - gv*v' + 128) >> 8
//	B = (c + bu*u' + 128) >> 8
//
// clamped to [0,255]. Integer math only, so every kernel variant lands
// on the same bytes.
type yuvCoeff struct {
	yMul int32
	yOff int32
	rv   int32
	gu   int32
	gv   int32
	bu   int32
}

var (
	coeffBT601Video = yuvCoeff{yMul: 298, yOff: 298 * 16, rv: 409, gu: 100, gv: 208, bu: 516}
	coeffBT601Full  = yuvCoeff{yMul: 256, yOff: 0, rv: 359, gu: 88, gv: 183, bu: 454}
	coeffBT709Video = yuvCoeff{yMul: 298, yOff: 298 * 16, rv: 459, gu: 55, gv: 136, bu: 541}
	coeffBT709Full  = yuvCoeff{yMul: 256, yOff: 0, rv: 403, gu: 48, gv: 120, bu: 475}
)

// coeffFor returns the coefficient set for a matrix/range combination.
func coeffFor(m ColorMatrix, r ColorRange) *yuvCoeff {
	if m == MatrixBT709 {
		if r == RangeFull {
			return &coeffBT709Full
		}
		return &coeffBT709Video
	}
	if r == RangeFull {
		return &coeffBT601Full
	}
	return &coeffBT601Video
}

// clamp8 clamps a fixed-point result to the byte range.
func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// yuvToRGB computes one pixel. Shared by the scalar kernels; the wide
// kernels inline the same arithmetic.
func yuvToRGB(c *yuvCoeff, y, u, v byte) (byte, byte, byte) {
	cy := c.yMul*int32(y) - c.yOff
	u1 := int32(u) - 128
	v1 := int32(v) - 128
	r := clamp8((cy + c.rv*v1 + 128) >> 8)
	g := clamp8((cy - c.gu*u1 - c.gv*v1 + 128) >> 8)
	b := clamp8((cy + c.bu*u1 + 128) >> 8)
	return r, g, b
}

// lumaOf computes the 8-bit grayscale value of one YUV sample, applying
// range expansion for video-range sources.
func lumaOf(c *yuvCoeff, y byte) byte {
	return clamp8((c.yMul*int32(y) - c.yOff + 128) >> 8)
}

// Integer BT.601 luma weights for RGB->Gray8 (77+150+29 = 256).
const (
	grayR = 77
	grayG = 150
	grayB = 29
)

// rgbToGray computes the BT.601 luma of one RGB pixel.
func rgbToGray(r, g, b byte) byte {
	return byte((grayR*int32(r) + grayG*int32(g) + grayB*int32(b) + 128) >> 8)
}
