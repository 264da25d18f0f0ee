package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultLockTimeout bounds the wait for the open/close lock in Open.
	DefaultLockTimeout = 2500 * time.Millisecond
	// DefaultCloseTimeout bounds the wait for the lock in Close. Exceeding it
	// means the device is stuck.
	DefaultCloseTimeout = 10 * time.Second
)

// SessionConfig describes the session Open should establish.
type SessionConfig struct {
	// CameraID selects a camera. Empty picks the first camera not facing the user.
	CameraID string
	// DesiredSize and MinimumSize drive SelectSize.
	DesiredSize Size
	MinimumSize int
	// Display is the display rotation at setup time.
	Display DisplayRotation
	// Landscape is the device configuration orientation, used for the preview aspect.
	Landscape bool
	// Preview is the live preview target. Optional.
	Preview Target
	// Listener receives frames on the reader goroutine.
	Listener FrameListener
	// OnError is called when opening or configuring fails, or the device is
	// lost. A rejected Open on an already open session does not call it. It
	// must not call Close synchronously.
	OnError func(error)
	// Permissions is consulted before anything else. Nil means granted.
	Permissions Permissions

	LockTimeout  time.Duration
	CloseTimeout time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.MinimumSize <= 0 {
		c.MinimumSize = DefaultMinimumSize
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	return c
}

// Session owns one camera device, its capture session and its frame reader.
//
// Open and Close are serialized by a binary lock. Every state change goes
// through dispatch, including asynchronous device events.
type Session struct {
	id     string
	driver Driver
	log    *zap.SugaredLogger
	lock   *semaphore.Weighted

	mu           sync.Mutex
	state        State
	device       Device
	reader       *Reader
	stream       Stream
	size         Size
	orientation  Orientation
	onError      func(error)
	closeTimeout time.Duration
}

// NewSession creates a closed session on top of driver.
func NewSession(driver Driver, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:           id,
		driver:       driver,
		log:          logger.Named("capture").Sugar().With("session", id),
		lock:         semaphore.NewWeighted(1),
		closeTimeout: DefaultCloseTimeout,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Size returns the capture size negotiated by the last successful Open. A
// failed Open leaves it unchanged.
func (s *Session) Size() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Orientation returns the rotation state of the last successful Open.
func (s *Session) Orientation() Orientation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orientation
}

// ReaderStats returns the frame reader counters, or zeros when closed.
func (s *Session) ReaderStats() ReaderStats {
	s.mu.Lock()
	r := s.reader
	s.mu.Unlock()
	if r == nil {
		return ReaderStats{}
	}
	return r.Stats()
}

// Open negotiates a size, opens the device and starts streaming into the
// preview target and the frame reader.
//
// Arguments:
//   - ctx: Cancels waiting on the driver.
//   - cfg: The session configuration.
//
// Returns:
//   - error: ErrPermissionDenied, ErrTimeout, ErrDevice or ErrSessionConfigFailed.
//     On error every acquired resource has been released.
func (s *Session) Open(ctx context.Context, cfg SessionConfig) error {
	cfg = cfg.withDefaults()

	if cfg.Permissions != nil && !cfg.Permissions.CameraGranted() {
		s.log.Warn("camera permission not granted")
		return ErrPermissionDenied
	}

	lockCtx, cancel := context.WithTimeout(ctx, cfg.LockTimeout)
	defer cancel()
	if err := s.lock.Acquire(lockCtx, 1); err != nil {
		return errors.Wrapf(ErrTimeout, "open: lock not acquired within %s", cfg.LockTimeout)
	}
	defer s.lock.Release(1)

	// A rejected Open must leave a live session's callback and timeout alone.
	if _, err := s.dispatch(event{kind: evOpenRequested}); err != nil {
		return errors.Wrapf(ErrDevice, "open: %v", err)
	}
	s.mu.Lock()
	s.onError = cfg.OnError
	s.closeTimeout = cfg.CloseTimeout
	s.mu.Unlock()

	cam, err := s.pickCamera(ctx, cfg.CameraID)
	if err != nil {
		_, _ = s.dispatch(event{kind: evDeviceFailed, err: err})
		return err
	}

	size, bigEnough, tooSmall := selectSize(cam.SupportedSizes, cfg.DesiredSize, cfg.MinimumSize)
	s.log.Debugw("capture sizes", "valid", bigEnough, "rejected", tooSmall)
	if size.IsZero() {
		err := errors.Wrapf(ErrDevice, "camera %s reports no sizes", cam.ID)
		_, _ = s.dispatch(event{kind: evDeviceFailed, err: err})
		return err
	}
	orientation := NewOrientation(cam.SensorOrientation, cfg.Display)
	s.log.Infow("camera selected",
		"camera", cam.ID,
		"size", size,
		"preview", PreviewAspect(size, cfg.Landscape),
		"sensor", orientation.Sensor,
		"display", orientation.Display.Degrees(),
		"rotation", orientation.FrameRotation(),
		"output", orientation.OutputOrientation(),
	)

	dev, err := s.driver.OpenDevice(ctx, cam.ID, s.onDeviceEvent)
	if err != nil {
		_, _ = s.dispatch(event{kind: evDeviceFailed, err: err})
		return errors.Wrapf(ErrDevice, "open camera %s: %v", cam.ID, err)
	}
	if _, err := s.dispatch(event{kind: evDeviceOpened, device: dev}); err != nil {
		return multierr.Append(errors.Wrapf(ErrDevice, "camera %s lost while opening", cam.ID), dev.Close())
	}

	reader := NewReader(size, orientation.FrameRotation(), cfg.Listener, s.log)
	if _, err := s.dispatch(event{kind: evConfigureRequested, reader: reader}); err != nil {
		return multierr.Append(errors.Wrapf(ErrDevice, "camera %s lost while opening", cam.ID), reader.Close())
	}

	targets := []Target{reader}
	if cfg.Preview != nil {
		targets = []Target{cfg.Preview, reader}
	}
	stream, err := dev.CreateSession(ctx, StreamConfig{Size: size, Targets: targets})
	if err == nil {
		if err = stream.Start(ctx); err != nil {
			err = multierr.Append(err, stream.Stop())
		}
	}
	if err != nil {
		_, _ = s.dispatch(event{kind: evSessionFailed, err: err})
		return errors.Wrapf(ErrSessionConfigFailed, "%v", err)
	}
	if _, err := s.dispatch(event{kind: evSessionConfigured, stream: stream}); err != nil {
		return multierr.Append(errors.Wrapf(ErrDevice, "camera %s lost while configuring", cam.ID), stream.Stop())
	}
	s.mu.Lock()
	s.size = size
	s.orientation = orientation
	s.mu.Unlock()
	return nil
}

func (s *Session) pickCamera(ctx context.Context, id string) (Characteristics, error) {
	cams, err := s.driver.Cameras(ctx)
	if err != nil {
		return Characteristics{}, errors.Wrapf(ErrDevice, "list cameras: %v", err)
	}
	for _, c := range cams {
		if id != "" && c.ID == id {
			return c, nil
		}
		if id == "" && c.Facing != FacingFront {
			return c, nil
		}
	}
	if id != "" {
		return Characteristics{}, errors.Wrapf(ErrDevice, "camera %q not found", id)
	}
	return Characteristics{}, errors.Wrap(ErrDevice, "no usable camera")
}

// onDeviceEvent feeds driver notifications into the state machine.
func (s *Session) onDeviceEvent(ev DeviceEvent, err error) {
	if err == nil {
		err = errors.New(ev.String())
	}
	if _, derr := s.dispatch(event{kind: evDeviceLost, err: err}); derr != nil {
		s.log.Debugw("device event ignored", "event", ev, "error", derr)
	}
}

// Close stops the repeating request, then releases the reader, then the
// device. It is idempotent and safe after a failed or timed-out Open.
//
// Close panics if the open/close lock is still held after the close timeout,
// as that means the device is stuck.
func (s *Session) Close() error {
	s.mu.Lock()
	timeout := s.closeTimeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.lock.Acquire(ctx, 1); err != nil {
		panic(fmt.Sprintf("capture: session %s lock still held after %s, device is stuck", s.id, timeout))
	}
	defer s.lock.Release(1)

	from, err := s.dispatch(event{kind: evCloseRequested})
	if err != nil {
		return err
	}
	if from == StateClosed {
		return nil
	}

	s.mu.Lock()
	res := s.takeResourcesLocked()
	s.mu.Unlock()
	err = res.release()

	if _, derr := s.dispatch(event{kind: evClosed}); derr != nil {
		err = multierr.Append(err, derr)
	}
	return err
}

// dispatch applies one event and returns the state it was applied in.
// Resources are released outside the state lock so that drivers may report
// events while being stopped.
func (s *Session) dispatch(ev event) (State, error) {
	s.mu.Lock()
	from := s.state
	to, err := nextState(from, ev.kind)
	if err != nil {
		s.mu.Unlock()
		return from, err
	}
	s.state = to

	var (
		res    resources
		report error
	)
	switch ev.kind {
	case evDeviceOpened:
		s.device = ev.device
	case evConfigureRequested:
		s.reader = ev.reader
	case evSessionConfigured:
		s.stream = ev.stream
	case evDeviceFailed:
		res = s.takeResourcesLocked()
		report = ev.err
		if !errors.Is(report, ErrDevice) {
			report = errors.Wrapf(ErrDevice, "%v", ev.err)
		}
	case evSessionFailed:
		res = s.takeResourcesLocked()
		report = errors.Wrapf(ErrSessionConfigFailed, "%v", ev.err)
	case evDeviceLost:
		if from != StateClosed && from != StateClosing {
			res = s.takeResourcesLocked()
			report = errors.Wrapf(ErrDevice, "%v", ev.err)
		}
	}
	onError := s.onError
	s.mu.Unlock()

	if from != to {
		s.log.Debugw("state change", "event", ev.kind, "from", from, "to", to)
	}
	if rerr := res.release(); rerr != nil {
		s.log.Warnw("release after failure", "error", rerr)
	}
	if report != nil {
		s.log.Errorw("capture failed", "state", from, "error", report)
		if onError != nil {
			onError(report)
		}
	}
	return from, nil
}

// resources are the handles owned by an open session.
type resources struct {
	stream Stream
	reader *Reader
	device Device
}

func (s *Session) takeResourcesLocked() resources {
	r := resources{stream: s.stream, reader: s.reader, device: s.device}
	s.stream, s.reader, s.device = nil, nil, nil
	return r
}

// release runs in order: stream, reader, device. Every step runs even if an
// earlier one fails.
func (r resources) release() error {
	var err error
	if r.stream != nil {
		err = multierr.Append(err, errors.Wrap(r.stream.Stop(), "stop stream"))
	}
	if r.reader != nil {
		err = multierr.Append(err, errors.Wrap(r.reader.Close(), "close reader"))
	}
	if r.device != nil {
		err = multierr.Append(err, errors.Wrap(r.device.Close(), "close device"))
	}
	return err
}
