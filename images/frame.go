// Package images - Frame, color conversion and geometry utilities for the
// capture-to-model path.
package images

import (
	"fmt"
	"sync"
)

// Plane is one plane of a planar or semi-planar YUV 4:2:0 frame.
type Plane struct {
	// Data holds the plane samples. Rows may be padded past the logical width.
	Data []byte
	// RowStride is the distance in bytes between the starts of two rows.
	RowStride int
	// PixelStride is the distance in bytes between two horizontally adjacent
	// samples. It is 1 for planar layouts and 2 for interleaved chroma (NV12/NV21).
	PixelStride int
}

// RawFrame is a YUV 4:2:0 frame as produced by the capture device.
//
// Ownership is transient: whoever receives a frame owns it until Release is
// called, after which the underlying buffers may be overwritten.
type RawFrame struct {
	// Seq is the delivery sequence number assigned by the reader.
	Seq uint64
	// Width and Height are the logical frame dimensions in pixels.
	Width, Height int
	// Rotation is the clockwise rotation in degrees needed to display the frame upright.
	Rotation int
	// Y, U and V are the luma and chroma planes.
	Y, U, V Plane

	releaseOnce sync.Once
	release     func()
}

// NewRawFrame wraps caller-owned planes into a frame. The release callback,
// if not nil, runs exactly once on Release.
func NewRawFrame(width, height, rotation int, y, u, v Plane, release func()) *RawFrame {
	return &RawFrame{
		Width:    width,
		Height:   height,
		Rotation: rotation,
		Y:        y,
		U:        u,
		V:        v,
		release:  release,
	}
}

// SetRelease replaces the release callback and re-arms Release.
func (f *RawFrame) SetRelease(release func()) {
	f.releaseOnce = sync.Once{}
	f.release = release
}

// Release hands the frame buffers back to their owner. Safe to call more than once.
func (f *RawFrame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// Validate checks that the planes are large enough for the declared geometry.
func (f *RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	cw, ch := (f.Width+1)/2, (f.Height+1)/2
	if err := f.Y.validate("Y", f.Width, f.Height); err != nil {
		return err
	}
	if err := f.U.validate("U", cw, ch); err != nil {
		return err
	}
	return f.V.validate("V", cw, ch)
}

func (p Plane) validate(name string, w, h int) error {
	if p.PixelStride <= 0 || p.RowStride < (w-1)*p.PixelStride+1 {
		return fmt.Errorf("plane %s: bad strides (row=%d, pixel=%d) for width %d",
			name, p.RowStride, p.PixelStride, w)
	}
	need := (h-1)*p.RowStride + (w-1)*p.PixelStride + 1
	if len(p.Data) < need {
		return fmt.Errorf("plane %s: holds %d bytes, needs %d", name, len(p.Data), need)
	}
	return nil
}

// CopyFrom copies the geometry and plane contents of src into f, reusing f's
// buffers when they are large enough. The release callback is left untouched.
func (f *RawFrame) CopyFrom(src *RawFrame) {
	f.Seq = src.Seq
	f.Width, f.Height, f.Rotation = src.Width, src.Height, src.Rotation
	f.Y = copyPlane(f.Y, src.Y)
	f.U = copyPlane(f.U, src.U)
	f.V = copyPlane(f.V, src.V)
}

func copyPlane(dst, src Plane) Plane {
	if cap(dst.Data) < len(src.Data) {
		dst.Data = make([]byte, len(src.Data))
	}
	dst.Data = dst.Data[:len(src.Data)]
	copy(dst.Data, src.Data)
	dst.RowStride = src.RowStride
	dst.PixelStride = src.PixelStride
	return dst
}
