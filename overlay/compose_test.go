package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halves(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{G: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCompose(t *testing.T) {
	layout := Layout{ViewWidth: 20, ViewHeight: 30, Reserved: 10, ModelInputSize: 10}
	dst := image.NewRGBA(image.Rect(0, 0, 20, 30))
	dst.SetRGBA(10, 2, color.RGBA{B: 255, A: 255})

	require.NoError(t, Compose(dst, halves(40, 20), layout))

	assert.Equal(t, image.Rect(0, 10, 20, 30), layout.Content())
	assert.Equal(t, color.RGBA{A: 255}, dst.RGBAAt(10, 2), "reserved band is cleared")

	left := dst.RGBAAt(2, 20)
	right := dst.RGBAAt(17, 20)
	assert.Greater(t, left.R, left.G)
	assert.Greater(t, right.G, right.R)
}

func TestCompose_Errors(t *testing.T) {
	layout := Layout{ViewWidth: 20, ViewHeight: 30, ModelInputSize: 10}
	assert.Error(t, Compose(image.NewRGBA(image.Rect(0, 0, 10, 10)), halves(4, 4), layout))
	assert.Error(t, Compose(image.NewRGBA(image.Rect(0, 0, 20, 30)), halves(4, 4), Layout{}))
}

func TestCenterSquare(t *testing.T) {
	assert.Equal(t, image.Rect(10, 0, 30, 20), centerSquare(image.Rect(0, 0, 40, 20)))
	assert.Equal(t, image.Rect(0, 5, 10, 15), centerSquare(image.Rect(0, 0, 10, 20)))
}
