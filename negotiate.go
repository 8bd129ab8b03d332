package camcap

import (
	"fmt"

	"github.com/e7canasta/camcap/internal/pixel"
)

// Negotiate selects the capability best matching a request, using the
// policy shared by all backends:
//
//  1. An exact match (resolution, format, rate) wins outright.
//  2. Otherwise candidates are ranked by resolution distance first,
//     then by format affinity, then by frame rate (at or below the
//     requested rate preferred, closest wins; higher rates rank after
//     all lower ones).
//  3. Format affinity prefers the exact format, then formats the
//     conversion engine can transform into the requested one, and
//     rejects formats it cannot.
//
// Resolution match outranks frame-rate match: a device advertising
// 640x480@15 and 1280x720@30 resolves a 640x480@30 request to the
// 640x480@15 mode.
//
// Returns ErrUnsupportedConfiguration when no candidate is within
// policy. Negotiation is stateless; callers may retry with a different
// request.
func Negotiate(requested DeviceCapability, available []DeviceCapability) (DeviceCapability, error) {
	if requested.Width <= 0 || requested.Height <= 0 {
		return DeviceCapability{}, fmt.Errorf(
			"camcap: %w: invalid requested resolution %dx%d",
			ErrUnsupportedConfiguration, requested.Width, requested.Height,
		)
	}

	best := -1
	var bestScore negotiationScore
	for i, cand := range available {
		score, ok := scoreCandidate(requested, cand)
		if !ok {
			continue
		}
		if best < 0 || score.less(bestScore) {
			best = i
			bestScore = score
		}
	}

	if best < 0 {
		return DeviceCapability{}, fmt.Errorf(
			"camcap: %w: no candidate within policy for %v (%d advertised)",
			ErrUnsupportedConfiguration, requested, len(available),
		)
	}
	return available[best], nil
}

// negotiationScore orders candidates; smaller is better, compared
// field by field.
type negotiationScore struct {
	resolution int // |dw| + |dh|
	format     int // 0 exact, 1 convertible
	rate       int // distance below request, or above with penalty
}

func (s negotiationScore) less(o negotiationScore) bool {
	if s.resolution != o.resolution {
		return s.resolution < o.resolution
	}
	if s.format != o.format {
		return s.format < o.format
	}
	return s.rate < o.rate
}

func scoreCandidate(req, cand DeviceCapability) (negotiationScore, bool) {
	var s negotiationScore

	s.resolution = abs(cand.Width-req.Width) + abs(cand.Height-req.Height)

	switch {
	case !req.Format.Valid(), cand.Format == req.Format:
		s.format = 0
	case pixel.Supported(cand.Format, req.Format):
		s.format = 1
	default:
		// The engine cannot produce the requested format from this
		// mode; outside policy.
		return s, false
	}

	// Rates at or below the request rank before any rate above it.
	const abovePenalty = 1 << 20
	if req.FPS <= 0 || cand.FPS == req.FPS {
		s.rate = 0
	} else if cand.FPS < req.FPS {
		s.rate = int((req.FPS - cand.FPS) * 1000)
	} else {
		s.rate = abovePenalty + int((cand.FPS-req.FPS)*1000)
	}

	return s, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
