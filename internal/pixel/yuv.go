package pixel

// Scalar YUV->RGB kernels: one pixel per iteration, portable across all
// hosts. The wide variants in yuv_wide.go run the same fixed-point
// arithmetic, so both families land on identical bytes.

// i420Scalar converts planar 4:2:0 to a packed RGB layout. Chroma is
// upsampled by nearest-neighbor replication (x/2, y/2).
func i420Scalar(l rgbLayout) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			yRow := j.src[0][y*j.srcStride[0]:]
			uRow := j.src[1][(y/2)*j.srcStride[1]:]
			vRow := j.src[2][(y/2)*j.srcStride[2]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				r, g, b := yuvToRGB(j.coeff, yRow[x], uRow[x/2], vRow[x/2])
				l.putRGB(out, x*l.bpp, r, g, b)
			}
		}
	}
}

// nv12Scalar converts semi-planar 4:2:0 (interleaved UV plane) to a
// packed RGB layout.
func nv12Scalar(l rgbLayout) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			yRow := j.src[0][y*j.srcStride[0]:]
			uvRow := j.src[1][(y/2)*j.srcStride[1]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				c := (x / 2) * 2
				r, g, b := yuvToRGB(j.coeff, yRow[x], uvRow[c], uvRow[c+1])
				l.putRGB(out, x*l.bpp, r, g, b)
			}
		}
	}
}

// packed422Scalar converts packed 4:2:2 to a packed RGB layout.
// yOff/uOff/vOff locate the first luma, chroma-U and chroma-V byte
// inside each 4-byte group: YUYV is (0,1,3), UYVY is (1,0,2).
func packed422Scalar(yOff, uOff, vOff int, l rgbLayout) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			row := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				base := (x / 2) * 4
				yb := row[base+yOff+2*(x&1)]
				r, g, b := yuvToRGB(j.coeff, yb, row[base+uOff], row[base+vOff])
				l.putRGB(out, x*l.bpp, r, g, b)
			}
		}
	}
}

// planarLumaScalar extracts the Y plane to Gray8 with range expansion.
// The Y plane layout is identical for I420 and NV12.
func planarLumaScalar(j *job) {
	for y := 0; y < j.height; y++ {
		yRow := j.src[0][y*j.srcStride[0]:]
		out := j.dstRow(y)
		for x := 0; x < j.width; x++ {
			out[x] = lumaOf(j.coeff, yRow[x])
		}
	}
}

// packedLumaScalar extracts luma from packed 4:2:2 to Gray8.
func packedLumaScalar(yOff int) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			row := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				out[x] = lumaOf(j.coeff, row[(x/2)*4+yOff+2*(x&1)])
			}
		}
	}
}
