package images

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Channels is the number of color channels in a model tensor (RGB).
const Channels = 3

// Normalization is the per-channel (R, G, B) mean and standard deviation
// applied when a model expects float input: v' = (v - Mean[c]) / Std[c].
type Normalization struct {
	Mean [Channels]float32 `json:"mean" yaml:"mean"`
	Std  [Channels]float32 `json:"std" yaml:"std"`
}

// DefaultNormalization maps [0, 255] onto [-1, 1).
func DefaultNormalization() Normalization {
	return Normalization{
		Mean: [Channels]float32{128, 128, 128},
		Std:  [Channels]float32{128, 128, 128},
	}
}

// ModelTensor is the fixed-size NHWC input buffer of a detection model.
//
// It is allocated once and overwritten for every frame. Quantized tensors hold
// raw bytes; float tensors hold normalized values.
type ModelTensor struct {
	size      int
	quantized bool
	norm      Normalization
	dense     *tensor.Dense
	u8        []uint8
	f32       []float32
}

// NewModelTensor allocates a size x size x 3 tensor.
//
// Arguments:
//   - size: Width and height of the square model input.
//   - quantized: Whether the model consumes uint8 instead of float32.
//   - norm: Per-channel normalization used for float tensors.
//
// Returns:
//   - *ModelTensor: The tensor.
//   - error: If size is not positive or a float tensor has a zero std.
func NewModelTensor(size int, quantized bool, norm Normalization) (*ModelTensor, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid tensor size %d", size)
	}
	t := &ModelTensor{size: size, quantized: quantized, norm: norm}
	n := size * size * Channels
	if quantized {
		t.u8 = make([]uint8, n)
		t.dense = tensor.New(tensor.WithShape(1, size, size, Channels), tensor.WithBacking(t.u8))
		return t, nil
	}
	for c, s := range norm.Std {
		if s == 0 {
			return nil, errors.Errorf("channel %d has zero std", c)
		}
	}
	t.f32 = make([]float32, n)
	t.dense = tensor.New(tensor.WithShape(1, size, size, Channels), tensor.WithBacking(t.f32))
	return t, nil
}

// Size returns the width (and height) of the tensor in pixels.
func (t *ModelTensor) Size() int { return t.size }

// Quantized reports whether the tensor holds raw bytes.
func (t *ModelTensor) Quantized() bool { return t.quantized }

// Shape returns the NHWC shape.
func (t *ModelTensor) Shape() []int { return t.dense.Shape().Clone() }

// Dense exposes the tensor as a gorgonia dense tensor sharing the same backing.
func (t *ModelTensor) Dense() *tensor.Dense { return t.dense }

// Bytes returns the backing buffer of a quantized tensor, nil otherwise.
func (t *ModelTensor) Bytes() []uint8 { return t.u8 }

// Float32s returns the backing buffer of a float tensor, nil otherwise.
func (t *ModelTensor) Float32s() []float32 { return t.f32 }

// setPixel writes one RGB pixel at index i (pixel index, not byte index).
func (t *ModelTensor) setPixel(i int, r, g, b uint8) {
	o := i * Channels
	if t.quantized {
		t.u8[o] = r
		t.u8[o+1] = g
		t.u8[o+2] = b
		return
	}
	n := &t.norm
	t.f32[o] = (float32(r) - n.Mean[0]) / n.Std[0]
	t.f32[o+1] = (float32(g) - n.Mean[1]) / n.Std[1]
	t.f32[o+2] = (float32(b) - n.Mean[2]) / n.Std[2]
}

// PixelAt returns the raw channel values at (x, y) of a quantized tensor.
func (t *ModelTensor) PixelAt(x, y int) (r, g, b uint8) {
	o := (y*t.size + x) * Channels
	return t.u8[o], t.u8[o+1], t.u8[o+2]
}
