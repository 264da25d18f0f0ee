package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Surface is anything detections can be drawn on.
type Surface interface {
	Bounds() image.Rectangle
	// DrawRect outlines r with the given stroke thickness.
	DrawRect(r image.Rectangle, c color.RGBA, thickness int)
	// DrawText writes text with its baseline starting at at.
	DrawText(text string, at image.Point, c color.RGBA)
}

// RGBASurface draws onto an in-memory RGBA image.
type RGBASurface struct {
	Image *image.RGBA
	Face  font.Face
}

// NewRGBASurface wraps img using the built-in 7x13 bitmap face.
func NewRGBASurface(img *image.RGBA) *RGBASurface {
	return &RGBASurface{Image: img, Face: basicfont.Face7x13}
}

func (s *RGBASurface) Bounds() image.Rectangle { return s.Image.Bounds() }

func (s *RGBASurface) DrawRect(r image.Rectangle, c color.RGBA, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r = r.Canon()
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(s.Image, e.Intersect(s.Image.Bounds()), src, image.Point{}, draw.Over)
	}
}

func (s *RGBASurface) DrawText(text string, at image.Point, c color.RGBA) {
	d := &font.Drawer{
		Dst:  s.Image,
		Src:  image.NewUniform(c),
		Face: s.Face,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}

// MatSurface draws onto an OpenCV matrix.
type MatSurface struct {
	Mat       *gocv.Mat
	FontScale float64
}

// NewMatSurface wraps mat.
func NewMatSurface(mat *gocv.Mat) *MatSurface {
	return &MatSurface{Mat: mat, FontScale: 1.2}
}

func (s *MatSurface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Mat.Cols(), s.Mat.Rows())
}

func (s *MatSurface) DrawRect(r image.Rectangle, c color.RGBA, thickness int) {
	gocv.Rectangle(s.Mat, r, c, thickness)
}

func (s *MatSurface) DrawText(text string, at image.Point, c color.RGBA) {
	gocv.PutText(s.Mat, text, at, gocv.FontHersheyPlain, s.FontScale, c, 2)
}
