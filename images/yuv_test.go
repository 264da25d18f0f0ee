package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPlanarFrame builds an I420 frame whose rows are padded by pad bytes of garbage.
func newPlanarFrame(w, h, pad int, yv, uv, vv func(x, y int) byte) *RawFrame {
	plane := func(pw, ph int, f func(x, y int) byte) Plane {
		stride := pw + pad
		data := make([]byte, stride*ph)
		for i := range data {
			data[i] = 0xAB
		}
		for y := 0; y < ph; y++ {
			for x := 0; x < pw; x++ {
				data[y*stride+x] = f(x, y)
			}
		}
		return Plane{Data: data, RowStride: stride, PixelStride: 1}
	}
	cw, ch := (w+1)/2, (h+1)/2
	return NewRawFrame(w, h, 0, plane(w, h, yv), plane(cw, ch, uv), plane(cw, ch, vv), nil)
}

func constant(v byte) func(int, int) byte { return func(int, int) byte { return v } }

func TestYUVToRGB_KnownColors(t *testing.T) {
	tests := []struct {
		name    string
		y, u, v int
		r, g, b uint8
	}{
		{"black", 16, 128, 128, 0, 0, 0},
		{"below black clamps", 0, 128, 128, 0, 0, 0},
		{"white", 235, 128, 128, 254, 254, 254},
		{"red", 81, 90, 240, 254, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := yuvToRGB(tt.y, tt.u, tt.v)
			assert.Equal(t, []uint8{tt.r, tt.g, tt.b}, []uint8{r, g, b})
		})
	}
}

func TestConvertToPacked_HonoursRowPadding(t *testing.T) {
	yFn := func(x, y int) byte { return byte(16 + 10*x + 20*y) }
	plain := newPlanarFrame(6, 4, 0, yFn, constant(128), constant(128))
	padded := newPlanarFrame(6, 4, 7, yFn, constant(128), constant(128))

	a := image.NewRGBA(image.Rect(0, 0, 6, 4))
	b := image.NewRGBA(image.Rect(0, 0, 6, 4))
	require.NoError(t, ConvertToPacked(plain, a))
	require.NoError(t, ConvertToPacked(padded, b))

	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, uint8(0xff), a.Pix[3], "alpha is opaque")
}

func TestConvertToPacked_ChromaSubsampling(t *testing.T) {
	// Left 2x2 block red, right 2x2 block black.
	uFn := func(x, _ int) byte { return []byte{90, 128}[x] }
	vFn := func(x, _ int) byte { return []byte{240, 128}[x] }
	yFn := func(x, _ int) byte {
		if x < 2 {
			return 81
		}
		return 16
	}
	frame := newPlanarFrame(4, 2, 0, yFn, uFn, vFn)
	dst := image.NewRGBA(image.Rect(0, 0, 4, 2))
	require.NoError(t, ConvertToPacked(frame, dst))

	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			c := dst.RGBAAt(x, y)
			if x < 2 {
				assert.Equal(t, uint8(254), c.R, "pixel %d,%d", x, y)
				assert.Equal(t, uint8(0), c.B, "pixel %d,%d", x, y)
			} else {
				assert.Equal(t, uint8(0), c.R, "pixel %d,%d", x, y)
			}
		}
	}
}

func TestConvertToPacked_SemiPlanar(t *testing.T) {
	// NV21: one interleaved V/U plane shared by both chroma planes.
	w, h := 4, 2
	luma := make([]byte, w*h)
	for i := range luma {
		luma[i] = 81
	}
	vu := []byte{240, 90, 240, 90}
	frame := NewRawFrame(w, h, 0,
		Plane{Data: luma, RowStride: w, PixelStride: 1},
		Plane{Data: vu[1:], RowStride: w, PixelStride: 2},
		Plane{Data: vu, RowStride: w, PixelStride: 2},
		nil)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	require.NoError(t, ConvertToPacked(frame, dst))
	for x := 0; x < w; x++ {
		assert.Equal(t, uint8(254), dst.RGBAAt(x, 1).R)
	}
}

func TestConvertToPacked_Errors(t *testing.T) {
	frame := newPlanarFrame(4, 4, 0, constant(16), constant(128), constant(128))

	assert.Error(t, ConvertToPacked(nil, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	assert.Error(t, ConvertToPacked(frame, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	frame.Y.Data = frame.Y.Data[:3]
	assert.Error(t, ConvertToPacked(frame, image.NewRGBA(image.Rect(0, 0, 4, 4))))
}

func TestRawFrame_ReleaseOnce(t *testing.T) {
	calls := 0
	f := NewRawFrame(2, 2, 0, Plane{}, Plane{}, Plane{}, func() { calls++ })
	f.Release()
	f.Release()
	assert.Equal(t, 1, calls)

	f.SetRelease(func() { calls += 10 })
	f.Release()
	assert.Equal(t, 11, calls)
}

func TestRawFrame_CopyFrom(t *testing.T) {
	src := newPlanarFrame(4, 2, 2, constant(50), constant(60), constant(70))
	src.Seq = 9
	src.Rotation = 90

	var dst RawFrame
	dst.CopyFrom(src)
	assert.Equal(t, uint64(9), dst.Seq)
	assert.Equal(t, 90, dst.Rotation)
	assert.Equal(t, src.Y.Data, dst.Y.Data)
	require.NoError(t, dst.Validate())

	src.Y.Data[0] = 0
	assert.Equal(t, byte(50), dst.Y.Data[0], "copy must not alias the source")
}
