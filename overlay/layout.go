// Package overlay maps detections from model-input space into a view and
// draws them.
package overlay

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/live-detect/images"
)

// DefaultPadding keeps boxes off the view edges.
const DefaultPadding = 5

// Layout describes where the square model input sits inside a view.
//
// The top Reserved rows of the view hold status text and are never drawn
// over. The model square is scaled uniformly into the remaining area and
// centred.
type Layout struct {
	ViewWidth      int `json:"viewWidth" yaml:"viewWidth"`
	ViewHeight     int `json:"viewHeight" yaml:"viewHeight"`
	Reserved       int `json:"reserved" yaml:"reserved"`
	ModelInputSize int `json:"modelInputSize" yaml:"modelInputSize"`
	Padding        int `json:"padding" yaml:"padding"`
}

// Validate checks that the layout leaves room to draw.
func (l Layout) Validate() error {
	switch {
	case l.ViewWidth <= 0 || l.ViewHeight <= 0:
		return errors.Errorf("invalid view size %dx%d", l.ViewWidth, l.ViewHeight)
	case l.ModelInputSize <= 0:
		return errors.Errorf("invalid model input size %d", l.ModelInputSize)
	case l.Reserved < 0 || l.Reserved >= l.ViewHeight:
		return errors.Errorf("reserved height %d does not fit view height %d", l.Reserved, l.ViewHeight)
	case l.Padding < 0:
		return errors.Errorf("negative padding %d", l.Padding)
	}
	return nil
}

// Scale returns the uniform model-to-view scale factor.
func (l Layout) Scale() float32 {
	s := float32(l.ModelInputSize)
	return math32.Min(float32(l.ViewWidth)/s, float32(l.ViewHeight-l.Reserved)/s)
}

// Offsets returns the view position of the model square's top-left corner.
func (l Layout) Offsets() (x, y float32) {
	side := float32(l.ModelInputSize) * l.Scale()
	x = (float32(l.ViewWidth) - side) / 2
	y = (float32(l.ViewHeight-l.Reserved)-side)/2 + float32(l.Reserved)
	return x, y
}

// Content returns the view rectangle covered by the model square.
func (l Layout) Content() image.Rectangle {
	x, y := l.Offsets()
	side := float32(l.ModelInputSize) * l.Scale()
	return image.Rect(int(x), int(y), int(x+side), int(y+side))
}

// MapToView converts a model-input-space box into view space.
//
// Each edge is scaled, shifted by the centring offsets and clamped to the
// view minus the padding margin. The top edge is additionally kept below the
// reserved band.
//
// Arguments:
//   - b: A box in model-input space (0..ModelInputSize).
//
// Returns:
//   - images.Box: The box in view pixels.
func (l Layout) MapToView(b images.Box) images.Box {
	scale := l.Scale()
	offX, offY := l.Offsets()
	pad := float32(l.Padding)
	w, h := float32(l.ViewWidth), float32(l.ViewHeight)

	return images.Box{
		Left:   clamp(b.Left*scale+offX, pad, w-pad),
		Top:    clamp(b.Top*scale+offY, offY+pad, h-pad),
		Right:  clamp(b.Right*scale+offX, pad, w-pad),
		Bottom: clamp(b.Bottom*scale+offY, offY+pad, h-pad),
	}
}

func clamp(v, lo, hi float32) float32 {
	if hi < lo {
		return lo
	}
	return math32.Min(math32.Max(v, lo), hi)
}
