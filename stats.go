package camcap

import (
	"fmt"
	"time"

	"github.com/e7canasta/camcap/internal/pixel"
)

// SessionStats is a point-in-time snapshot of session activity.
type SessionStats struct {
	// State is the lifecycle state at snapshot time.
	State State
	// Device is the opened device ID.
	Device string
	// Negotiated is the active capture mode.
	Negotiated DeviceCapability
	// OutputFormat is the delivered pixel format.
	OutputFormat PixelFormat
	// Resolution is the frame resolution (e.g. "640x480").
	Resolution string
	// FramesDelivered is the total number of frames handed to the consumer.
	FramesDelivered uint64
	// FramesDropped is the total dropped by the backpressure policy.
	FramesDropped uint64
	// ConversionErrors is the total frames dropped as undeliverable:
	// failed conversions and malformed backend frames.
	ConversionErrors uint64
	// DropRate is the percentage of frames dropped (0-100).
	DropRate float64
	// FPSReal is the measured delivery rate.
	FPSReal float64
	// LatencyMS is the time since the last frame in milliseconds.
	LatencyMS int64
	// PoolHits and PoolMisses count pool acquires served from the free
	// list vs. freshly allocated.
	PoolHits   uint64
	PoolMisses uint64
	// HostCapability is the SIMD tier the kernel registry selected.
	HostCapability Capability
}

// Stats returns current session statistics. Thread-safe; counters are
// read atomically.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	negotiated := s.negotiated
	device := s.deviceID
	startedAt := s.startedAt
	outFormat := s.outFormat
	p := s.pool
	s.mu.Unlock()

	delivered := s.delivered.Load()
	droppedQueue := s.droppedQueue.Load()
	droppedConvert := s.droppedFrames.Load()

	var fpsReal float64
	if !startedAt.IsZero() {
		if uptime := time.Since(startedAt).Seconds(); uptime > 0 {
			fpsReal = float64(delivered) / uptime
		}
	}

	var dropRate float64
	if total := delivered + droppedQueue + droppedConvert; total > 0 {
		dropRate = float64(droppedQueue+droppedConvert) / float64(total) * 100.0
	}

	var latencyMS int64
	if last := s.lastFrameNS.Load(); last > 0 {
		latencyMS = (time.Now().UnixNano() - last) / int64(time.Millisecond)
	}

	st := SessionStats{
		State:            s.State(),
		Device:           device,
		Negotiated:       negotiated,
		OutputFormat:     outFormat,
		Resolution:       fmt.Sprintf("%dx%d", negotiated.Width, negotiated.Height),
		FramesDelivered:  delivered,
		FramesDropped:    droppedQueue,
		ConversionErrors: droppedConvert,
		DropRate:         dropRate,
		FPSReal:          fpsReal,
		LatencyMS:        latencyMS,
		HostCapability:   pixel.HostCapability(),
	}
	if p != nil {
		ps := p.Stats()
		st.PoolHits = ps.Hits
		st.PoolMisses = ps.Misses
	}
	return st
}
