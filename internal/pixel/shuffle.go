package pixel

// Channel-shuffle kernels for the packed RGB family, plus grayscale
// extraction and replication. Identity pairs (RGB24->RGB24 etc.) go
// through the same shuffle path; the registry treats copy as a shuffle
// with matching layouts.

// shuffleScalar reorders channels one pixel per iteration.
func shuffleScalar(src, dst rgbLayout) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			in := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				si := x * src.bpp
				dst.putRGB(out, x*dst.bpp, in[si+src.r], in[si+src.g], in[si+src.b])
			}
		}
	}
}

// shuffleWide reorders channels four pixels per iteration.
func shuffleWide(src, dst rgbLayout) kernelFunc {
	return func(j *job) {
		w4 := j.width &^ 3
		for y := 0; y < j.height; y++ {
			in := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			si, di := 0, 0
			for x := 0; x < w4; x += 4 {
				dst.putRGB(out, di, in[si+src.r], in[si+src.g], in[si+src.b])
				dst.putRGB(out, di+dst.bpp, in[si+src.bpp+src.r], in[si+src.bpp+src.g], in[si+src.bpp+src.b])
				dst.putRGB(out, di+2*dst.bpp, in[si+2*src.bpp+src.r], in[si+2*src.bpp+src.g], in[si+2*src.bpp+src.b])
				dst.putRGB(out, di+3*dst.bpp, in[si+3*src.bpp+src.r], in[si+3*src.bpp+src.g], in[si+3*src.bpp+src.b])
				si += 4 * src.bpp
				di += 4 * dst.bpp
			}
			for x := w4; x < j.width; x++ {
				si := x * src.bpp
				dst.putRGB(out, x*dst.bpp, in[si+src.r], in[si+src.g], in[si+src.b])
			}
		}
	}
}

// rgbGrayScalar collapses a packed RGB layout to Gray8 luma.
func rgbGrayScalar(src rgbLayout) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			in := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				si := x * src.bpp
				out[x] = rgbToGray(in[si+src.r], in[si+src.g], in[si+src.b])
			}
		}
	}
}

// grayRGBScalar replicates Gray8 into each channel of a packed RGB layout.
func grayRGBScalar(dst rgbLayout) kernelFunc {
	return func(j *job) {
		for y := 0; y < j.height; y++ {
			in := j.src[0][y*j.srcStride[0]:]
			out := j.dstRow(y)
			for x := 0; x < j.width; x++ {
				v := in[x]
				dst.putRGB(out, x*dst.bpp, v, v, v)
			}
		}
	}
}

// grayCopyScalar copies Gray8 rows, honoring independent strides and flip.
func grayCopyScalar(j *job) {
	for y := 0; y < j.height; y++ {
		in := j.src[0][y*j.srcStride[0]:]
		copy(j.dstRow(y)[:j.width], in[:j.width])
	}
}
