// Package postprocess turns raw detector output into display-ready results.
package postprocess

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/live-detect/images"
)

// DefaultCapacity is the number of output slots of an SSD-style detector.
const DefaultCapacity = 10

// DefaultThreshold is the confidence a detection must exceed to be displayed.
const DefaultThreshold float32 = 0.5

// ErrBatchFull is returned when appending to a batch at capacity.
var ErrBatchFull = errors.New("detection batch is full")

// Detection is one candidate object proposed by the model.
type Detection struct {
	// ID is the output slot the detection came from.
	ID int `json:"id"`
	// Class is the raw class index reported by the model.
	Class int `json:"class"`
	// Label is the human readable class name.
	Label string `json:"label"`
	// Confidence is the score in [0, 1].
	Confidence float32 `json:"confidence"`
	// Box is expressed in model-input pixel space.
	Box images.Box `json:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("#%d %s %.2f %s", d.ID, d.Label, d.Confidence, d.Box)
}

// Batch is the fixed-capacity output of one inference call. Batches are
// never shared across frames.
type Batch struct {
	capacity   int
	detections []Detection
}

// NewBatch allocates an empty batch. A non-positive capacity falls back to
// DefaultCapacity.
func NewBatch(capacity int) *Batch {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Batch{capacity: capacity, detections: make([]Detection, 0, capacity)}
}

// Append adds a detection, clamping its confidence into [0, 1].
func (b *Batch) Append(d Detection) error {
	if len(b.detections) >= b.capacity {
		return ErrBatchFull
	}
	switch {
	case d.Confidence < 0:
		d.Confidence = 0
	case d.Confidence > 1:
		d.Confidence = 1
	}
	b.detections = append(b.detections, d)
	return nil
}

// Len returns the number of detections in the batch.
func (b *Batch) Len() int { return len(b.detections) }

// Cap returns the fixed capacity of the batch.
func (b *Batch) Cap() int { return b.capacity }

// At returns the i-th detection in model output order.
func (b *Batch) At(i int) Detection { return b.detections[i] }

// Detections returns a copy of the batch contents in model output order.
func (b *Batch) Detections() []Detection {
	out := make([]Detection, len(b.detections))
	copy(out, b.detections)
	return out
}
