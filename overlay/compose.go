package overlay

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Compose paints an upright preview frame into dst so that it lines up with
// boxes mapped through layout.
//
// The centred square of src is scaled into the layout's content rectangle,
// matching the crop the model sees. Everything outside it, including the
// reserved band, is cleared to black.
//
// Arguments:
//   - dst: The view image; its bounds must match the layout's view size.
//   - src: The preview frame.
//   - layout: The view layout.
//
// Returns:
//   - error: If the layout is invalid or dst has the wrong size.
func Compose(dst *image.RGBA, src image.Image, layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	if dst.Bounds().Dx() != layout.ViewWidth || dst.Bounds().Dy() != layout.ViewHeight {
		return errors.Errorf("view image is %v, layout wants %dx%d", dst.Bounds().Size(), layout.ViewWidth, layout.ViewHeight)
	}
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	content := layout.Content()
	if content.Empty() || src.Bounds().Empty() {
		return nil
	}
	square := centerSquare(src.Bounds())
	scaled := resize.Resize(uint(content.Dx()), uint(content.Dy()), crop(src, square), resize.Bilinear)
	draw.Draw(dst, content.Add(dst.Bounds().Min), scaled, scaled.Bounds().Min, draw.Src)
	return nil
}

func centerSquare(r image.Rectangle) image.Rectangle {
	side := min(r.Dx(), r.Dy())
	x := r.Min.X + (r.Dx()-side)/2
	y := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x, y, x+side, y+side)
}

func crop(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
