package camcap

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/camcap/internal/metrics"
	"github.com/e7canasta/camcap/internal/pixel"
	"github.com/e7canasta/camcap/internal/pool"
)

// State is the capture session lifecycle state.
type State int32

const (
	// StateUninitialized is the state before Open.
	StateUninitialized State = iota
	// StateOpened means the device is claimed but not configured.
	StateOpened
	// StateConfigured means a capture mode has been negotiated.
	StateConfigured
	// StateCapturing means frames are flowing.
	StateCapturing
	// StateStopping is the transient state while Stop quiesces the
	// capture goroutine.
	StateStopping
	// StateStopped means capture halted; Start is valid again.
	StateStopped
	// StateClosed is terminal; the device and pool are released.
	StateClosed
	// StateFaulted is terminal until Close: a runtime fault (device
	// disconnect, consumer stall) stopped the stream.
	StateFaulted
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// FrameCallback receives delivered frames in push mode. It runs on the
// backend's capture goroutine: keep it fast or hand the frame off to
// another goroutine. The callback owns the frame and must Release it.
type FrameCallback func(*Frame)

// ErrorCallback receives the one-shot fault notification when a session
// transitions to StateFaulted.
type ErrorCallback func(error)

// SessionConfig configures a capture session. Backend is required;
// zero values elsewhere select the defaults.
type SessionConfig struct {
	// Backend is the platform capture adapter (required).
	Backend Backend
	// OutputFormat is the format frames are converted to before
	// delivery. FormatUnknown delivers the native capture format.
	OutputFormat PixelFormat
	// OutputOrientation is the requested row order of delivered frames.
	OutputOrientation Orientation
	// QueueDepth bounds the pull-mode queue. Default 10.
	QueueDepth int
	// Backpressure selects the producer policy when the queue is full.
	// Default DropOldest.
	Backpressure BackpressurePolicy
	// BlockTimeout bounds the producer wait under the Block policy.
	// Default 1s; the bound is mandatory so a stalled consumer cannot
	// poison the capture goroutine forever.
	BlockTimeout time.Duration
	// MaxFrameSize is the pool high-water mark in bytes; larger
	// buffers are never cached. Zero means unlimited.
	MaxFrameSize int
	// MaxCachedFrames bounds the pool free list per size bucket.
	MaxCachedFrames int
	// Metrics receives Prometheus instrumentation; nil disables it.
	Metrics *metrics.Metrics
}

const (
	defaultQueueDepth   = 10
	defaultBlockTimeout = time.Second
)

// Session owns one backend adapter, one frame pool and the delivery
// pipeline for one device. Lifecycle: Open -> Configure -> Start ->
// Stop -> Close. All methods are safe for concurrent use.
type Session struct {
	mu  sync.Mutex
	cfg SessionConfig

	backend Backend
	pool    *pool.Pool
	queue   *frameQueue

	state atomic.Int32

	// Fixed at Start, read by the capture goroutine.
	callback  FrameCallback
	errCb     ErrorCallback
	outFormat PixelFormat
	outOrient Orientation
	faultOnce *sync.Once

	deviceID   string
	negotiated DeviceCapability

	// Statistics (atomic for thread-safety)
	seq           atomic.Uint64
	delivered     atomic.Uint64
	droppedQueue  atomic.Uint64
	droppedFrames atomic.Uint64 // conversion failures
	startedAt     time.Time
	lastFrameNS   atomic.Int64
	faultReason   atomic.Value // error
}

// NewSession creates a session with fail-fast validation. No device is
// touched until Open.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("camcap: backend is required")
	}
	if cfg.QueueDepth < 0 {
		return nil, fmt.Errorf("camcap: invalid queue depth %d", cfg.QueueDepth)
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.BlockTimeout < 0 {
		return nil, fmt.Errorf("camcap: invalid block timeout %v", cfg.BlockTimeout)
	}
	if cfg.OutputFormat != FormatUnknown && !cfg.OutputFormat.Valid() {
		return nil, fmt.Errorf("camcap: invalid output format %v", cfg.OutputFormat)
	}

	s := &Session{
		cfg:     cfg,
		backend: cfg.Backend,
	}
	s.state.Store(int32(StateUninitialized))

	slog.Info("camcap: session created",
		"output_format", cfg.OutputFormat.String(),
		"queue_depth", cfg.QueueDepth,
		"backpressure", cfg.Backpressure.String(),
		"host_capability", pixel.HostCapability().String(),
	)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// OnError registers the one-shot fault callback. Must be called before
// Start; faults are reported exactly once per streaming run, on a
// dedicated path distinct from the frame callback.
func (s *Session) OnError(cb ErrorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCb = cb
}

// Open claims the device. Valid from StateUninitialized only.
// Backend errors pass through: ErrDeviceNotFound, ErrDeviceBusy.
func (s *Session) Open(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	if st := s.State(); st != StateUninitialized {
		return fmt.Errorf("camcap: %w: open in state %v", ErrInvalidState, st)
	}

	if err := s.backend.Open(deviceID); err != nil {
		return fmt.Errorf("camcap: open %q: %w", deviceID, err)
	}

	s.deviceID = deviceID
	s.state.Store(int32(StateOpened))
	slog.Info("camcap: device opened", "device", deviceID)
	return nil
}

// Configure negotiates a capture mode against the backend. Valid from
// StateOpened, StateConfigured and StateStopped; re-configuring after
// ErrUnsupportedConfiguration with a different request is always
// allowed. Returns the negotiated capability.
func (s *Session) Configure(requested DeviceCapability) (DeviceCapability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAlive(); err != nil {
		return DeviceCapability{}, err
	}
	switch st := s.State(); st {
	case StateOpened, StateConfigured, StateStopped:
	default:
		return DeviceCapability{}, fmt.Errorf("camcap: %w: configure in state %v", ErrInvalidState, st)
	}

	negotiated, err := s.backend.Negotiate(requested)
	if err != nil {
		// State unchanged; the caller may retry with another request.
		return DeviceCapability{}, err
	}

	// The delivery path must be able to produce the requested output
	// from the negotiated mode.
	if out := s.cfg.OutputFormat; out != FormatUnknown && out != negotiated.Format {
		if !pixel.Supported(negotiated.Format, out) {
			return DeviceCapability{}, fmt.Errorf(
				"camcap: %w: no conversion %v -> %v",
				ErrUnsupportedConfiguration, negotiated.Format, out,
			)
		}
	}

	s.negotiated = negotiated
	s.pool = pool.New(pool.Config{
		MaxFrameSize:       s.cfg.MaxFrameSize,
		MaxCachedPerBucket: s.cfg.MaxCachedFrames,
	})
	s.state.Store(int32(StateConfigured))

	slog.Info("camcap: configured",
		"device", s.deviceID,
		"requested", requested.String(),
		"negotiated", negotiated.String(),
	)
	return negotiated, nil
}

// Start begins capture. A non-nil callback selects push mode: the
// callback runs per frame on the capture goroutine. A nil callback
// selects pull mode: frames queue for Grab. Valid from StateConfigured
// and StateStopped. On ErrStartFailed the state stays Configured.
func (s *Session) Start(cb FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	switch st := s.State(); st {
	case StateConfigured, StateStopped:
	default:
		return fmt.Errorf("camcap: %w: start in state %v", ErrInvalidState, st)
	}

	s.callback = cb
	s.outFormat = s.cfg.OutputFormat
	if s.outFormat == FormatUnknown {
		s.outFormat = s.negotiated.Format
	}
	s.outOrient = s.cfg.OutputOrientation
	s.queue = nil
	if cb == nil {
		s.queue = newFrameQueue(s.cfg.QueueDepth)
	}

	s.seq.Store(0)
	s.delivered.Store(0)
	s.droppedQueue.Store(0)
	s.droppedFrames.Store(0)
	s.lastFrameNS.Store(0)
	s.faultOnce = new(sync.Once)
	s.startedAt = time.Now()

	// Capturing before StartStreaming: the backend may deliver the
	// first raw frame before StartStreaming returns.
	s.state.Store(int32(StateCapturing))
	if err := s.backend.StartStreaming(s.handleRaw, s.fault); err != nil {
		s.state.Store(int32(StateConfigured))
		s.queue = nil
		return fmt.Errorf("camcap: start %q: %w", s.deviceID, err)
	}

	s.cfg.Metrics.RecordSessionStart()
	mode := "pull"
	if cb != nil {
		mode = "push"
	}
	slog.Info("camcap: capturing",
		"device", s.deviceID,
		"mode", mode,
		"negotiated", s.negotiated.String(),
		"output_format", s.outFormat.String(),
	)
	return nil
}

// Stop halts capture. Blocks until the capture goroutine has fully
// quiesced and no further consumer invocation will occur; this is the
// core synchronization guarantee. Idempotent when not capturing.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAlive(); err != nil {
		return err
	}
	if st := s.State(); st != StateCapturing {
		slog.Debug("camcap: stop with nothing capturing", "state", st.String())
		return nil
	}

	s.state.Store(int32(StateStopping))
	slog.Info("camcap: stopping", "device", s.deviceID)

	// Joins the capture goroutine; no onRaw runs after this returns.
	err := s.backend.StopStreaming()

	if s.queue != nil {
		// Unblock Grab waiters; queued frames remain grabbable.
		s.queue.shutdown()
	}

	// A fault can land while the backend quiesces; it wins over the
	// Stopped transition so later calls keep reporting it.
	if !s.state.CompareAndSwap(int32(StateStopping), int32(StateStopped)) {
		if stopErr := s.checkAlive(); stopErr != nil {
			return stopErr
		}
		return err
	}
	s.cfg.Metrics.RecordSessionStop()

	slog.Info("camcap: stopped",
		"device", s.deviceID,
		"frames_delivered", s.delivered.Load(),
		"frames_dropped", s.droppedQueue.Load()+s.droppedFrames.Load(),
		"uptime", time.Since(s.startedAt),
	)
	if err != nil {
		return fmt.Errorf("camcap: stop %q: %w", s.deviceID, err)
	}
	return nil
}

// Close releases the backend and the frame pool. Valid from any state;
// idempotent. A capturing session is stopped first.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil
	}

	if st := s.State(); st == StateCapturing || st == StateStopping {
		if err := s.backend.StopStreaming(); err != nil {
			slog.Warn("camcap: stop during close failed", "error", err)
		}
		s.cfg.Metrics.RecordSessionStop()
	}

	if s.queue != nil {
		s.queue.shutdown()
		s.queue.drain()
		s.queue = nil
	}
	if s.pool != nil {
		s.pool.Drain()
	}

	err := s.backend.Close()
	s.state.Store(int32(StateClosed))
	slog.Info("camcap: session closed", "device", s.deviceID)
	if err != nil {
		return fmt.Errorf("camcap: close %q: %w", s.deviceID, err)
	}
	return nil
}

// Grab retrieves the next frame in pull mode, waiting up to timeout.
// A timeout returns (nil, nil): "no frame" is not an error. The caller
// owns the returned frame and must Release it.
func (s *Session) Grab(timeout time.Duration) (*Frame, error) {
	switch st := s.State(); st {
	case StateClosed:
		return nil, ErrClosed
	case StateFaulted:
		return nil, s.faultedErr()
	case StateCapturing, StateStopping, StateStopped:
	default:
		return nil, fmt.Errorf("camcap: %w: grab in state %v", ErrInvalidState, st)
	}

	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, fmt.Errorf("camcap: %w: grab requires pull mode", ErrInvalidState)
	}

	f := q.grab(timeout)
	if f != nil {
		s.delivered.Add(1)
		s.cfg.Metrics.RecordDelivered(f.Size())
	}
	return f, nil
}

// checkAlive maps the terminal states to their sentinel errors.
func (s *Session) checkAlive() error {
	switch s.State() {
	case StateClosed:
		return ErrClosed
	case StateFaulted:
		return s.faultedErr()
	}
	return nil
}

func (s *Session) faultedErr() error {
	if cause, ok := s.faultReason.Load().(error); ok {
		return fmt.Errorf("%w: %w", ErrSessionFaulted, cause)
	}
	return ErrSessionFaulted
}

// fault transitions an active session to StateFaulted, stops feeding
// frames and reports the condition exactly once via the error callback.
// Runs on the capture goroutine (backend faults) or the producer path
// (consumer stall); never takes s.mu.
func (s *Session) fault(cause error) {
	for {
		st := s.State()
		if st != StateCapturing && st != StateStopping {
			return
		}
		if s.state.CompareAndSwap(int32(st), int32(StateFaulted)) {
			break
		}
	}

	s.faultReason.Store(cause)
	s.cfg.Metrics.RecordFault(faultReasonLabel(cause))
	s.cfg.Metrics.RecordSessionStop()

	slog.Error("camcap: session faulted",
		"device", s.deviceID,
		"error", cause,
		"frames_delivered", s.delivered.Load(),
	)

	if cb := s.errCb; cb != nil {
		s.faultOnce.Do(func() { cb(cause) })
	}
}
