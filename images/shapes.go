package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned rectangle with float coordinates. Right and Bottom
// are exclusive, like image.Rectangle. A Box carries no coordinate space of
// its own; callers keep model-input and view space apart.
type Box struct {
	Left, Top, Right, Bottom float32
}

// Width returns the horizontal extent, or 0 for an empty box.
func (b Box) Width() float32 { return math32.Max(0, b.Right-b.Left) }

// Height returns the vertical extent, or 0 for an empty box.
func (b Box) Height() float32 { return math32.Max(0, b.Bottom-b.Top) }

// Area returns Width * Height.
func (b Box) Area() float32 { return b.Width() * b.Height() }

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.Right <= b.Left || b.Bottom <= b.Top }

// Scale multiplies every coordinate by s.
func (b Box) Scale(s float32) Box {
	return Box{Left: b.Left * s, Top: b.Top * s, Right: b.Right * s, Bottom: b.Bottom * s}
}

// ToRect converts to an integer rectangle, truncating towards zero.
func (b Box) ToRect() image.Rectangle {
	return image.Rect(int(b.Left), int(b.Top), int(b.Right), int(b.Bottom)).Canon()
}

func (b Box) String() string {
	return fmt.Sprintf("(%.1f, %.1f)-(%.1f, %.1f)", b.Left, b.Top, b.Right, b.Bottom)
}

// CalculateIoU returns the Intersection over Union of two boxes, a value
// between 0.0 (disjoint) and 1.0 (identical).
//
// The intersection is bounded by the larger of the two top-left corners and
// the smaller of the two bottom-right corners. When either side of that
// rectangle is zero or negative the boxes do not overlap and 0 is returned
// before any division. The union follows inclusion-exclusion:
//
//	Area(A ∪ B) = Area(A) + Area(B) - Area(A ∩ B)
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: The IoU score.
//
// Example:
//
//	r := Box{Left: 0, Top: 0, Right: 10, Bottom: 10}
//	o := Box{Left: 5, Top: 5, Right: 15, Bottom: 15}
//	CalculateIoU(r, o) // 25 / 175 = 0.142857
func CalculateIoU(r, o Box) float32 {
	ix1 := math32.Max(r.Left, o.Left)
	iy1 := math32.Max(r.Top, o.Top)
	ix2 := math32.Min(r.Right, o.Right)
	iy2 := math32.Min(r.Bottom, o.Bottom)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}
