package images

import (
	"image"

	"github.com/pkg/errors"
)

// maxChannelValue is the upper bound of the 10-bit fixed point intermediate
// values used by yuvToRGB (2^18 - 1).
const maxChannelValue = 262143

// ConvertToPacked converts a YUV 4:2:0 frame into interleaved RGBA.
//
// Row and pixel strides of every plane are honoured, so padded rows and
// semi-planar chroma (NV12/NV21) are handled without copying. dst must be
// exactly frame-sized; it is overwritten in place.
//
// Arguments:
//   - frame: The frame to convert.
//   - dst: The pre-allocated destination image.
//
// Returns:
//   - error: If the frame or destination geometry is invalid.
func ConvertToPacked(frame *RawFrame, dst *image.RGBA) error {
	if frame == nil {
		return errors.New("nil frame")
	}
	if err := frame.Validate(); err != nil {
		return errors.Wrap(err, "invalid frame")
	}
	b := dst.Bounds()
	if b.Dx() != frame.Width || b.Dy() != frame.Height {
		return errors.Errorf("destination is %dx%d, frame is %dx%d",
			b.Dx(), b.Dy(), frame.Width, frame.Height)
	}

	yp, up, vp := frame.Y, frame.U, frame.V
	for y := 0; y < frame.Height; y++ {
		yRow := y * yp.RowStride
		uRow := (y >> 1) * up.RowStride
		vRow := (y >> 1) * vp.RowStride
		out := dst.Pix[y*dst.Stride : y*dst.Stride+frame.Width*4]

		for x := 0; x < frame.Width; x++ {
			cx := x >> 1
			r, g, bl := yuvToRGB(
				int(yp.Data[yRow+x*yp.PixelStride]),
				int(up.Data[uRow+cx*up.PixelStride]),
				int(vp.Data[vRow+cx*vp.PixelStride]),
			)
			o := x * 4
			out[o] = r
			out[o+1] = g
			out[o+2] = bl
			out[o+3] = 0xff
		}
	}
	return nil
}

// yuvToRGB is the BT.601 limited-range conversion in 10-bit fixed point.
func yuvToRGB(y, u, v int) (uint8, uint8, uint8) {
	y -= 16
	u -= 128
	v -= 128
	if y < 0 {
		y = 0
	}

	r := 1192*y + 1634*v
	g := 1192*y - 833*v - 400*u
	b := 1192*y + 2066*u

	return clampChannel(r), clampChannel(g), clampChannel(b)
}

func clampChannel(c int) uint8 {
	if c < 0 {
		c = 0
	} else if c > maxChannelValue {
		c = maxChannelValue
	}
	return uint8(c >> 10)
}
