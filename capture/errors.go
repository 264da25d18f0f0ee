package capture

import "github.com/pkg/errors"

var (
	// ErrPermissionDenied is returned when camera access was not granted.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrTimeout is returned when the open/close lock is not acquired in time.
	ErrTimeout = errors.New("timed out waiting for the camera lock")
	// ErrDevice wraps lower-level camera failures.
	ErrDevice = errors.New("camera device error")
	// ErrSessionConfigFailed is returned when the capture session cannot be established.
	ErrSessionConfigFailed = errors.New("capture session configuration failed")
)
