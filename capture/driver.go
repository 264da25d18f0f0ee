package capture

import (
	"context"

	"github.com/nvr-ai/live-detect/images"
)

// Facing is the direction a camera points.
type Facing int

// Camera facings.
const (
	FacingBack Facing = iota
	FacingFront
	FacingExternal
)

// Characteristics describes one camera as reported by its driver.
type Characteristics struct {
	ID                string
	Facing            Facing
	SensorOrientation int
	// SupportedSizes is in device order.
	SupportedSizes []Size
}

// DeviceEvent is an asynchronous notification from an open device.
type DeviceEvent int

// Device events.
const (
	DeviceDisconnected DeviceEvent = iota + 1
	DeviceError
)

func (e DeviceEvent) String() string {
	switch e {
	case DeviceDisconnected:
		return "disconnected"
	case DeviceError:
		return "error"
	}
	return "unknown"
}

// DeviceCallback receives device events. It may be called from any goroutine.
type DeviceCallback func(ev DeviceEvent, err error)

// Driver enumerates and opens cameras.
type Driver interface {
	Cameras(ctx context.Context) ([]Characteristics, error)
	OpenDevice(ctx context.Context, id string, cb DeviceCallback) (Device, error)
}

// Device is an open camera.
type Device interface {
	// CreateSession binds the targets into a capture session at the given size.
	CreateSession(ctx context.Context, cfg StreamConfig) (Stream, error)
	Close() error
}

// StreamConfig describes a capture session.
type StreamConfig struct {
	Size    Size
	Targets []Target
}

// Stream is a configured capture session.
type Stream interface {
	// Start installs the repeating capture request.
	Start(ctx context.Context) error
	// Stop removes the repeating request and closes the session.
	Stop() error
}

// Target receives captured frames. The frame is only valid for the duration
// of the call; implementations copy what they keep.
type Target interface {
	Accept(frame *images.RawFrame)
}

// TargetFunc adapts a function to a Target.
type TargetFunc func(frame *images.RawFrame)

// Accept calls f.
func (f TargetFunc) Accept(frame *images.RawFrame) { f(frame) }

// Permissions reports whether the user granted camera access.
type Permissions interface {
	CameraGranted() bool
}

// Granted is a Permissions that always allows access.
type Granted struct{}

// CameraGranted returns true.
func (Granted) CameraGranted() bool { return true }
