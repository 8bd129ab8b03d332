package camcap

import "github.com/e7canasta/camcap/internal/pixel"

// Convert runs one pixel-format conversion and returns the number of
// destination bytes written. Usable standalone, without any session.
//
// Stateless and fully reentrant. Zero width or height returns 0 without
// touching destination memory. Errors: ErrUnsupportedConversion,
// ErrBufferTooSmall.
func Convert(req ConversionRequest) (int, error) {
	return pixel.Convert(req)
}

// ConversionSupported reports whether a kernel exists for the pair.
func ConversionSupported(src, dst PixelFormat) bool {
	return pixel.Supported(src, dst)
}

// HostCapability returns the SIMD tier detected on this host. Probed
// once per process, read-only afterwards.
func HostCapability() Capability {
	return pixel.HostCapability()
}
