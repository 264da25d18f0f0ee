package images

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Resample draws src into dst through t (source to destination space).
//
// Each destination pixel centre is mapped back into the source with the
// inverse of t and sampled nearest-neighbour. Pixels that land outside the
// source are written as black. The destination tensor is written in place.
//
// Arguments:
//   - src: The packed source image.
//   - t: The source-to-destination transform from ComputeTransform.
//   - dst: The pre-allocated model tensor.
//
// Returns:
//   - error: If t is singular or an argument is nil.
func Resample(src *image.RGBA, t Transform, dst *ModelTensor) error {
	if src == nil || dst == nil {
		return errors.New("nil source or destination")
	}
	inv, err := t.Invert()
	if err != nil {
		return err
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	size := dst.size

	for dy := 0; dy < size; dy++ {
		fy := float32(dy) + 0.5
		for dx := 0; dx < size; dx++ {
			sx, sy := inv.Apply(float32(dx)+0.5, fy)
			px := int(math32.Floor(sx))
			py := int(math32.Floor(sy))
			i := dy*size + dx
			if px < 0 || py < 0 || px >= w || py >= h {
				dst.setPixel(i, 0, 0, 0)
				continue
			}
			o := py*src.Stride + px*4
			dst.setPixel(i, src.Pix[o], src.Pix[o+1], src.Pix[o+2])
		}
	}
	return nil
}
