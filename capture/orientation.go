package capture

import "github.com/nvr-ai/live-detect/images"

// DisplayRotation is the rotation of the display from its natural orientation.
type DisplayRotation int

// Display rotations, in quarter turns.
const (
	Rotation0 DisplayRotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees converts the rotation into degrees in [0, 360).
func (r DisplayRotation) Degrees() int {
	return images.NormalizeRotation(int(r) * 90)
}

// RotationFromDegrees maps degrees onto the nearest lower quarter turn.
func RotationFromDegrees(degrees int) DisplayRotation {
	return DisplayRotation(images.NormalizeRotation(degrees) / 90)
}

// CompensationTable maps each display rotation to the rotation that keeps
// captured images upright.
type CompensationTable [4]int

// DefaultCompensation is the sensor-to-device compensation of a back camera.
var DefaultCompensation = CompensationTable{90, 0, 270, 180}

// Orientation is the rotation state of one session. It is fixed when the
// session is set up and passed to whoever needs it.
type Orientation struct {
	// Sensor is the clockwise mounting angle of the sensor in degrees.
	Sensor int
	// Display is the display rotation at setup time.
	Display DisplayRotation
	// Compensation is the lookup table for Display.
	Compensation CompensationTable
}

// NewOrientation builds an Orientation using DefaultCompensation.
func NewOrientation(sensorDegrees int, display DisplayRotation) Orientation {
	return Orientation{
		Sensor:       images.NormalizeRotation(sensorDegrees),
		Display:      RotationFromDegrees(display.Degrees()),
		Compensation: DefaultCompensation,
	}
}

// FrameRotation is the rotation applied to frames before inference, in [0, 360).
func (o Orientation) FrameRotation() int {
	return images.NormalizeRotation(o.Sensor + o.Display.Degrees())
}

// OutputOrientation is the orientation tag for still captures, in [0, 360).
func (o Orientation) OutputOrientation() int {
	return images.NormalizeRotation(o.Compensation[o.Display] + o.Sensor + 270)
}

// PreviewAspect returns the preview size as laid out on screen. The device
// configuration, not the sensor, decides the layout: portrait swaps the edges.
func PreviewAspect(size Size, landscape bool) Size {
	if landscape {
		return size
	}
	return Size{Width: size.Height, Height: size.Width}
}
