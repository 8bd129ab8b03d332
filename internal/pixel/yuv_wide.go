package pixel

// Wide YUV->RGB kernels: two pixels per iteration, sharing one chroma
// sample per pair the way the vector units group them. Selected when the
// host reports a SIMD extension set. The arithmetic matches the scalar
// family exactly; only the loop shape differs.

// widePair writes two horizontally adjacent pixels sharing one chroma
// sample. Chroma terms are computed once per pair.
func widePair(c *yuvCoeff, l rgbLayout, out []byte, o int, y0, y1, u, v byte) {
	u1 := int32(u) - 128
	v1 := int32(v) - 128
	rT := c.rv * v1
	gT := -c.gu*u1 - c.gv*v1
	bT := c.bu * u1

	cy := c.yMul*int32(y0) - c.yOff
	l.putRGB(out, o, clamp8((cy+rT+128)>>8), clamp8((cy+gT+128)>>8), clamp8((cy+bT+128)>>8))
	cy = c.yMul*int32(y1) - c.yOff
	o += l.bpp
	l.putRGB(out, o, clamp8((cy+rT+128)>>8), clamp8((cy+gT+128)>>8), clamp8((cy+bT+128)>>8))
}

func i420Wide(l rgbLayout) kernelFunc {
	return func(j *job) {
		w2 := j.width &^ 1
		for y := 0; y < j.height; y++ {
			yRow := j.src[0][y*j.srcStride[0]:]
			uRow := j.src[1][(y/2)*j.srcStride[1]:]
			vRow := j.src[2][(y/2)*j.srcStride[2]:]
			out := j.dstRow(y)
			for x := 0; x < w2; x += 2 {
				cx := x >> 1
				widePair(j.coeff, l, out, x*l.bpp, yRow[x], yRow[x+1], uRow[cx], vRow[cx])
			}
			if j.width&1 != 0 {
				x := j.width - 1
				r, g, b := yuvToRGB(j.coeff, yRow[x], uRow[x/2], vRow[x/2])
				l.putRGB(out, x*l.bpp, r, g, b)
			}
		}
	}
}

func nv12Wide(l rgbLayout) kernelFunc {
	return func(j *job) {
		w2 := j.width &^ 1
		for y := 0; y < j.height; y++ {
			yRow := j.src[0][y*j.srcStride[0]:]
			uvRow := j.src[1][(y/2)*j.srcStride[1]:]
			out := j.dstRow(y)
			for x := 0; x < w2; x += 2 {
				widePair(j.coeff, l, out, x*l.bpp, yRow[x], yRow[x+1], uvRow[x], uvRow[x+1])
			}
			if j.width&1 != 0 {
				x := j.width - 1
				c := (x / 2) * 2
				r, g, b := yuvToRGB(j.coeff, yRow[x], uvRow[c], uvRow[c+1])
				l.putRGB(out, x*l.bpp, r, g, b)
			}
		}
	}
}

func packed422Wide(yOff, uOff, vOff int, l rgbLayout) kernelFunc {
	return func(j *job) {
		w2 := j.width &^ 1
		for y := 0; y < j.height; y++ {
			row := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			for x := 0; x < w2; x += 2 {
				base := (x / 2) * 4
				widePair(j.coeff, l, out, x*l.bpp,
					row[base+yOff], row[base+yOff+2], row[base+uOff], row[base+vOff])
			}
			if j.width&1 != 0 {
				x := j.width - 1
				base := (x / 2) * 4
				r, g, b := yuvToRGB(j.coeff, row[base+yOff], row[base+uOff], row[base+vOff])
				l.putRGB(out, x*l.bpp, r, g, b)
			}
		}
	}
}
