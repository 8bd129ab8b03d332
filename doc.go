// Package camcap is a cross-platform camera-capture library: it opens a
// video source through a pluggable backend adapter, negotiates a capture
// configuration, and delivers a bounded, backpressure-aware stream of
// frames, converting pixel formats in the hot path.
//
// Design:
//   - One Session per device: Open -> Configure -> Start -> Stop -> Close
//   - Push mode (callback on the capture goroutine) or pull mode (Grab)
//   - Bounded delivery queue: DropOldest (default) or Block with timeout
//   - Conversion kernels selected once from host CPU capabilities;
//     scalar and wide variants produce byte-identical output
//   - Frame buffers recycle through a per-session pool; a Frame is
//     exclusively owned by one stage at a time and returns to the pool
//     on Release
//
// Convert is also usable standalone, without any session.
package camcap
