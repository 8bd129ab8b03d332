package camcap

import (
	"errors"

	"github.com/e7canasta/camcap/internal/pixel"
)

// Error taxonomy. Configuration, open and start errors are synchronous
// return values; runtime faults during capture surface exactly once via
// the session error callback. Match with errors.Is.
var (
	// ErrDeviceNotFound means the backend could not locate the device.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceBusy means the device exists but is claimed elsewhere.
	ErrDeviceBusy = errors.New("device busy")
	// ErrUnsupportedConfiguration means negotiation found no candidate
	// within policy. Re-Configure with a different request is valid.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	// ErrStartFailed means the backend could not begin streaming; the
	// session remains Configured.
	ErrStartFailed = errors.New("start failed")
	// ErrSessionFaulted is returned by operations on a faulted session
	// until Close.
	ErrSessionFaulted = errors.New("session faulted")
	// ErrConsumerStalled is the fault reported when the Block
	// backpressure policy times out on the producer side.
	ErrConsumerStalled = errors.New("consumer stalled")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrInvalidState is returned when an operation is called outside
	// its legal session states.
	ErrInvalidState = errors.New("invalid session state")

	// ErrUnsupportedConversion means no kernel exists for the requested
	// format pair, or a descriptor is malformed.
	ErrUnsupportedConversion = pixel.ErrUnsupportedConversion
	// ErrBufferTooSmall means a plane buffer is smaller than
	// stride x rows.
	ErrBufferTooSmall = pixel.ErrBufferTooSmall
)
