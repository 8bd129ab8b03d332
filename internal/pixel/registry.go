package pixel

import (
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Capability is the detected SIMD tier of the host, probed once per
// process and treated as read-only configuration afterwards.
type Capability int

const (
	// CapScalar means no usable SIMD extension was detected.
	CapScalar Capability = iota
	// CapSIMD128 covers 128-bit extension sets (SSE4.1, NEON/ASIMD).
	CapSIMD128
	// CapSIMD256 covers 256-bit extension sets (AVX2).
	CapSIMD256
)

// String returns the tier name.
func (c Capability) String() string {
	switch c {
	case CapSIMD256:
		return "simd256"
	case CapSIMD128:
		return "simd128"
	default:
		return "scalar"
	}
}

type pair struct {
	src PixelFormat
	dst PixelFormat
}

// entry holds the kernel variants for one format pair. scalar is
// mandatory for every registered pair; wide is optional and only used
// when the host capability allows it.
type entry struct {
	scalar kernelFunc
	wide   kernelFunc
}

var (
	regOnce  sync.Once
	regTable map[pair]entry
	regCap   Capability
)

// detectCapability probes the host CPU in priority order, widest first.
func detectCapability() Capability {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX2):
		return CapSIMD256
	case cpuid.CPU.Supports(cpuid.SSE4), cpuid.CPU.Supports(cpuid.ASIMD):
		return CapSIMD128
	default:
		return CapScalar
	}
}

func initRegistry() {
	regCap = detectCapability()
	regTable = buildTable()
}

// buildTable constructs the immutable kernel table. Every supported pair
// carries a scalar kernel; YUV->RGB and RGB shuffles additionally carry
// a wide kernel.
func buildTable() map[pair]entry {
	t := make(map[pair]entry)

	for _, d := range rgbFamily {
		l := rgbLayouts[d]
		t[pair{FormatI420, d}] = entry{scalar: i420Scalar(l), wide: i420Wide(l)}
		t[pair{FormatNV12, d}] = entry{scalar: nv12Scalar(l), wide: nv12Wide(l)}
		t[pair{FormatYUYV, d}] = entry{scalar: packed422Scalar(0, 1, 3, l), wide: packed422Wide(0, 1, 3, l)}
		t[pair{FormatUYVY, d}] = entry{scalar: packed422Scalar(1, 0, 2, l), wide: packed422Wide(1, 0, 2, l)}
	}

	for _, s := range rgbFamily {
		ls := rgbLayouts[s]
		for _, d := range rgbFamily {
			t[pair{s, d}] = entry{scalar: shuffleScalar(ls, rgbLayouts[d]), wide: shuffleWide(ls, rgbLayouts[d])}
		}
		t[pair{s, FormatGray8}] = entry{scalar: rgbGrayScalar(ls)}
	}

	for _, d := range rgbFamily {
		t[pair{FormatGray8, d}] = entry{scalar: grayRGBScalar(rgbLayouts[d])}
	}
	t[pair{FormatGray8, FormatGray8}] = entry{scalar: grayCopyScalar}

	// Luma extraction. The Y plane layout is shared by I420 and NV12.
	t[pair{FormatI420, FormatGray8}] = entry{scalar: planarLumaScalar}
	t[pair{FormatNV12, FormatGray8}] = entry{scalar: planarLumaScalar}
	t[pair{FormatYUYV, FormatGray8}] = entry{scalar: packedLumaScalar(0)}
	t[pair{FormatUYVY, FormatGray8}] = entry{scalar: packedLumaScalar(1)}

	return t
}

// selectKernel resolves the kernel for a format pair under the given
// capability. Deterministic: wide when present and the tier allows it,
// scalar otherwise.
func selectKernel(src, dst PixelFormat, tier Capability) (kernelFunc, bool) {
	regOnce.Do(initRegistry)
	e, ok := regTable[pair{src, dst}]
	if !ok {
		return nil, false
	}
	if tier > CapScalar && e.wide != nil {
		return e.wide, true
	}
	return e.scalar, true
}

// HostCapability returns the SIMD tier detected on this host.
func HostCapability() Capability {
	regOnce.Do(initRegistry)
	return regCap
}

// Supported reports whether a conversion kernel exists for the pair.
// Safe for unsynchronized concurrent use; the table is immutable after
// first build.
func Supported(src, dst PixelFormat) bool {
	regOnce.Do(initRegistry)
	_, ok := regTable[pair{src, dst}]
	return ok
}

// SupportedPairs returns every registered (src, dst) pair. Intended for
// tests and tooling that enumerate the conversion surface.
func SupportedPairs() [][2]PixelFormat {
	regOnce.Do(initRegistry)
	pairs := make([][2]PixelFormat, 0, len(regTable))
	for p := range regTable {
		pairs = append(pairs, [2]PixelFormat{p.src, p.dst})
	}
	return pairs
}
