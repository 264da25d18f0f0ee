package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	white = color.RGBA{255, 255, 255, 255}
)

// quadrants returns a 2x2 image: red, green / blue, white.
func quadrants() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, red)
	img.SetRGBA(1, 0, green)
	img.SetRGBA(0, 1, blue)
	img.SetRGBA(1, 1, white)
	return img
}

func pixel(tn *ModelTensor, x, y int) color.RGBA {
	r, g, b := tn.PixelAt(x, y)
	return color.RGBA{r, g, b, 255}
}

func TestNewModelTensor(t *testing.T) {
	q, err := NewModelTensor(300, true, Normalization{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 300, 300, 3}, q.Shape())
	assert.Len(t, q.Bytes(), 300*300*3)
	assert.Nil(t, q.Float32s())
	assert.True(t, q.Quantized())
	assert.Equal(t, 300, q.Size())

	f, err := NewModelTensor(4, false, DefaultNormalization())
	require.NoError(t, err)
	assert.Len(t, f.Float32s(), 4*4*3)
	assert.Equal(t, []int{1, 4, 4, 3}, []int(f.Dense().Shape()))

	_, err = NewModelTensor(0, true, Normalization{})
	assert.Error(t, err)
	_, err = NewModelTensor(4, false, Normalization{})
	assert.Error(t, err, "zero std must be rejected for float tensors")
}

func TestResample_Upscale(t *testing.T) {
	tn, err := NewModelTensor(4, true, Normalization{})
	require.NoError(t, err)
	tr, err := ComputeTransform(2, 2, 4, 4, 0, false)
	require.NoError(t, err)
	require.NoError(t, Resample(quadrants(), tr, tn))

	assert.Equal(t, red, pixel(tn, 0, 0))
	assert.Equal(t, red, pixel(tn, 1, 1))
	assert.Equal(t, green, pixel(tn, 3, 0))
	assert.Equal(t, blue, pixel(tn, 0, 3))
	assert.Equal(t, white, pixel(tn, 2, 2))
}

func TestResample_Rotate90(t *testing.T) {
	tn, err := NewModelTensor(2, true, Normalization{})
	require.NoError(t, err)
	tr, err := ComputeTransform(2, 2, 2, 2, 90, false)
	require.NoError(t, err)
	require.NoError(t, Resample(quadrants(), tr, tn))

	assert.Equal(t, blue, pixel(tn, 0, 0))
	assert.Equal(t, red, pixel(tn, 1, 0))
	assert.Equal(t, white, pixel(tn, 0, 1))
	assert.Equal(t, green, pixel(tn, 1, 1))
}

func TestResample_NormalizesAndBlanksOutside(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	tn, err := NewModelTensor(4, false, DefaultNormalization())
	require.NoError(t, err)

	// Only the top-left quarter of the destination is covered.
	require.NoError(t, Resample(src, Scale(0.5, 0.5), tn))

	data := tn.Float32s()
	assert.InDelta(t, 127.0/128.0, data[0], 1e-6)
	last := (4*4 - 1) * 3
	assert.InDelta(t, -1.0, data[last], 1e-6)
}

func TestResample_Errors(t *testing.T) {
	tn, err := NewModelTensor(2, true, Normalization{})
	require.NoError(t, err)
	assert.Error(t, Resample(nil, Identity(), tn))
	assert.Error(t, Resample(quadrants(), Identity(), nil))
	assert.Error(t, Resample(quadrants(), Scale(0, 0), tn))
}
