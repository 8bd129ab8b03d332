package camcap

import "time"

// RawFrame is one frame as produced by a backend on its capture
// goroutine.
//
// Ownership: when Owned is true the planes belong to the pipeline and
// may be delivered without copying (zero-copy path). When false the
// planes are borrowed for the duration of the callback only (e.g. a
// mapped driver buffer) and the pipeline copies them out.
type RawFrame struct {
	// Descriptor describes the planes, including the backend's real
	// strides (padded capture buffers are valid).
	Descriptor FrameDescriptor
	// Planes holds one buffer per plane.
	Planes [3][]byte
	// Timestamp is the capture time; zero means "now".
	Timestamp time.Time
	// Owned reports whether the planes may outlive the callback.
	Owned bool
}

// RawFrameFunc receives raw frames on the backend's capture goroutine.
type RawFrameFunc func(RawFrame)

// FaultFunc receives a fatal backend error (device disconnect, driver
// failure) during streaming.
type FaultFunc func(error)

// Backend is the contract each platform capture implementation must
// satisfy. The session core depends only on this interface and never
// branches on platform identity.
//
// Implementations must guarantee:
//   - Open is fail-fast: ErrDeviceNotFound / ErrDeviceBusy when the
//     device cannot be claimed; partially failed opens remain closable
//   - Negotiate returns a capability the device can actually deliver,
//     or ErrUnsupportedConfiguration
//   - StartStreaming spawns (or activates) exactly one capture
//     goroutine and returns ErrStartFailed synchronously if streaming
//     cannot begin
//   - onRaw is invoked from the capture goroutine only, never
//     concurrently with itself
//   - StopStreaming blocks until the capture goroutine has exited and
//     no further onRaw or onFault invocation will occur; idempotent
//   - onFault is invoked at most once per streaming run, after which
//     no more frames arrive
//   - Close releases the device; idempotent, callable from any state
type Backend interface {
	// Enumerate lists the devices this backend can open, including
	// their selectable capture modes.
	Enumerate() ([]DeviceInfo, error)

	// Open claims the device with the given ID.
	Open(deviceID string) error

	// Negotiate selects the capture mode best matching the request.
	// Most implementations delegate policy to camcap.Negotiate over
	// their advertised capabilities.
	Negotiate(requested DeviceCapability) (DeviceCapability, error)

	// StartStreaming begins frame production on a dedicated capture
	// goroutine.
	StartStreaming(onRaw RawFrameFunc, onFault FaultFunc) error

	// StopStreaming halts frame production and quiesces the capture
	// goroutine before returning.
	StopStreaming() error

	// Close releases the device and all backend resources.
	Close() error
}
