package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/live-detect/postprocess"
)

// BoxColor is the stroke and caption color of drawn detections.
var BoxColor = color.RGBA{R: 255, A: 255}

// Caption formats the text drawn above a detection, e.g. "person 0.87".
func Caption(d postprocess.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// Render draws every detection onto surface in the given order.
//
// Boxes are expected in model-input space and are mapped through layout.
// Each box is outlined and captioned at its top-left corner. Boxes that are
// empty after clamping are skipped.
func Render(surface Surface, layout Layout, detections []postprocess.Detection) {
	for _, d := range detections {
		v := layout.MapToView(d.Box)
		if v.Empty() {
			continue
		}
		r := v.ToRect()
		surface.DrawRect(r, BoxColor, 3)
		surface.DrawText(Caption(d), image.Pt(r.Min.X, r.Min.Y), BoxColor)
	}
}
