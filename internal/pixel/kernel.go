package pixel

// job is one resolved conversion: validated planes, effective strides,
// geometry and color coefficients. Kernels mutate nothing but the
// destination buffer.
type job struct {
	width     int
	height    int
	src       [3][]byte
	srcStride [3]int
	dst       []byte
	dstStride int
	// coeff is nil for conversions that never touch chroma math
	// (RGB shuffles, gray replication).
	coeff *yuvCoeff
	// flip makes kernels write destination rows bottom-up, folding a
	// vertical flip into the conversion pass.
	flip bool
}

// dstRow returns the destination row for source row y, honoring flip.
func (j *job) dstRow(y int) []byte {
	if j.flip {
		y = j.height - 1 - y
	}
	return j.dst[y*j.dstStride:]
}

// kernelFunc is one conversion kernel. The job is fully validated before
// a kernel runs; kernels perform no bounds decisions of their own.
type kernelFunc func(j *job)

// rgbLayout describes a packed RGB-family destination: bytes per pixel
// and the byte offset of each channel. alpha is -1 for 24-bit layouts.
type rgbLayout struct {
	bpp   int
	r     int
	g     int
	b     int
	alpha int
}

var rgbLayouts = map[PixelFormat]rgbLayout{
	FormatRGB24:  {bpp: 3, r: 0, g: 1, b: 2, alpha: -1},
	FormatBGR24:  {bpp: 3, r: 2, g: 1, b: 0, alpha: -1},
	FormatRGBA32: {bpp: 4, r: 0, g: 1, b: 2, alpha: 3},
	FormatBGRA32: {bpp: 4, r: 2, g: 1, b: 0, alpha: 3},
}

// rgbFamily is the set of packed RGB destinations, in registry order.
var rgbFamily = []PixelFormat{FormatRGB24, FormatBGR24, FormatRGBA32, FormatBGRA32}

// putRGB writes one pixel at byte offset o.
func (l rgbLayout) putRGB(row []byte, o int, r, g, b byte) {
	row[o+l.r] = r
	row[o+l.g] = g
	row[o+l.b] = b
	if l.alpha >= 0 {
		row[o+l.alpha] = 255
	}
}
