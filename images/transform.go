package images

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Transform is a 2D affine transform in row-major form:
//
//	x' = A*x + B*y + Tx
//	y' = C*x + D*y + Ty
//
// The zero value is not useful; start from Identity.
type Transform struct {
	A, B, Tx float32
	C, D, Ty float32
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{A: 1, D: 1}
}

// Translate returns a pure translation.
func Translate(dx, dy float32) Transform {
	return Transform{A: 1, D: 1, Tx: dx, Ty: dy}
}

// Scale returns a pure scale about the origin.
func Scale(sx, sy float32) Transform {
	return Transform{A: sx, D: sy}
}

// Rotate returns a clockwise rotation (in image coordinates, y pointing down)
// about the origin. Multiples of 90 degrees are exact.
func Rotate(degrees int) Transform {
	var sin, cos float32
	switch normalizeDegrees(degrees) {
	case 0:
		cos = 1
	case 90:
		sin = 1
	case 180:
		cos = -1
	case 270:
		sin = -1
	default:
		rad := float32(degrees) * math32.Pi / 180
		sin, cos = math32.Sincos(rad)
	}
	return Transform{A: cos, B: -sin, C: sin, D: cos}
}

// Then returns the transform that applies t first and next second.
func (t Transform) Then(next Transform) Transform {
	return Transform{
		A:  next.A*t.A + next.B*t.C,
		B:  next.A*t.B + next.B*t.D,
		Tx: next.A*t.Tx + next.B*t.Ty + next.Tx,
		C:  next.C*t.A + next.D*t.C,
		D:  next.C*t.B + next.D*t.D,
		Ty: next.C*t.Tx + next.D*t.Ty + next.Ty,
	}
}

// Apply maps a point through the transform.
func (t Transform) Apply(x, y float32) (float32, float32) {
	return t.A*x + t.B*y + t.Tx, t.C*x + t.D*y + t.Ty
}

// Invert returns the inverse transform.
//
// Returns:
//   - Transform: The inverse.
//   - error: If the transform is singular.
func (t Transform) Invert() (Transform, error) {
	det := t.A*t.D - t.B*t.C
	if math32.Abs(det) < 1e-12 {
		return Transform{}, errors.New("transform is not invertible")
	}
	inv := 1 / det
	a, b := t.D*inv, -t.B*inv
	c, d := -t.C*inv, t.A*inv
	return Transform{
		A: a, B: b, Tx: -(a*t.Tx + b*t.Ty),
		C: c, D: d, Ty: -(c*t.Tx + d*t.Ty),
	}, nil
}

func (t Transform) String() string {
	return fmt.Sprintf("[%.4f %.4f %.2f; %.4f %.4f %.2f]", t.A, t.B, t.Tx, t.C, t.D, t.Ty)
}

// ComputeTransform builds the transform from source pixel space into
// destination pixel space.
//
// The source is centred on the origin, rotated, scaled and then moved to the
// destination centre. For 90 and 270 degree rotations the source width and
// height are swapped before the scale is chosen. With cropToFit the larger of
// the two axis scales is used for both axes so the destination is filled and
// the overflow cropped; otherwise each axis is scaled independently.
//
// Arguments:
//   - srcW, srcH: Source dimensions in pixels.
//   - dstW, dstH: Destination dimensions in pixels.
//   - rotation: Clockwise rotation in degrees; must be a multiple of 90.
//   - cropToFit: Keep aspect ratio by cropping instead of stretching.
//
// Returns:
//   - Transform: The source-to-destination transform.
//   - error: If any dimension is not positive or the rotation is not a multiple of 90.
func ComputeTransform(srcW, srcH, dstW, dstH, rotation int, cropToFit bool) (Transform, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Transform{}, errors.Errorf("invalid geometry %dx%d -> %dx%d", srcW, srcH, dstW, dstH)
	}
	rotation = normalizeDegrees(rotation)
	if rotation%90 != 0 {
		return Transform{}, errors.Errorf("rotation must be a multiple of 90, got %d", rotation)
	}

	t := Translate(-float32(srcW)/2, -float32(srcH)/2)
	if rotation != 0 {
		t = t.Then(Rotate(rotation))
	}

	inW, inH := srcW, srcH
	if rotation == 90 || rotation == 270 {
		inW, inH = srcH, srcW
	}
	if inW != dstW || inH != dstH {
		sx := float32(dstW) / float32(inW)
		sy := float32(dstH) / float32(inH)
		if cropToFit {
			s := math32.Max(sx, sy)
			sx, sy = s, s
		}
		t = t.Then(Scale(sx, sy))
	}

	return t.Then(Translate(float32(dstW)/2, float32(dstH)/2)), nil
}

// normalizeDegrees folds any angle into [0, 360).
func normalizeDegrees(d int) int {
	d %= 360
	if d < 0 {
		d += 360
	}
	return d
}

// NormalizeRotation folds a rotation in degrees into [0, 360).
func NormalizeRotation(degrees int) int {
	return normalizeDegrees(degrees)
}
