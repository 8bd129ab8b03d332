// Package pixel implements the pixel-format conversion engine: a
// registry of conversion kernels selected once per process from the
// host CPU capabilities, and a stateless Convert entry point.
//
// Design:
//   - Kernel table built once (sync.Once), immutable afterwards;
//     lookups need no locking
//   - Capability probed widest-first (AVX2, then SSE4/NEON, then scalar)
//   - Every registered pair carries a portable scalar kernel; wide
//     kernels are an optional fast path with byte-identical output
//   - Integer fixed-point color math only, clamped to [0,255]
//   - Chroma upsampling is nearest-neighbor replication
//   - Vertical flips fold into the conversion pass (no staging buffer)
package pixel
