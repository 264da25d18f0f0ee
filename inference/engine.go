// Package inference loads a pre-trained detector and runs single-frame
// inference on a fixed-size model tensor.
package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/postprocess"
)

// RawOutput is the per-slot output of one forward pass. Slot i owns
// Boxes[4i:4i+4] as normalized [yMin, xMin, yMax, xMax], Classes[i] as the
// model class index (label index minus LabelOffset) and Scores[i].
type RawOutput struct {
	Boxes   []float32
	Classes []float32
	Scores  []float32
}

// Backend is a model runtime. Implementations are not required to be safe
// for concurrent use; the Engine serializes calls.
type Backend interface {
	Run(ctx context.Context, input *images.ModelTensor) (RawOutput, error)
	Close() error
}

// Engine runs a detection model on one tensor at a time.
type Engine struct {
	mu      sync.Mutex
	backend Backend
	labels  Labels
	opts    Options
	closed  bool
	log     *zap.SugaredLogger
}

// Load parses a model and prepares it for inference.
//
// Arguments:
//   - modelBytes: The serialized model.
//   - labels: The label list; index 0 is the reserved background entry.
//   - opts: Backend and tensor options.
//
// Returns:
//   - *Engine: The loaded engine.
//   - error: ErrLoad if the model cannot be parsed, the label list is empty
//     or the options are invalid.
func Load(modelBytes []byte, labels Labels, opts Options) (*Engine, error) {
	if len(modelBytes) == 0 {
		return nil, errors.Wrap(ErrLoad, "empty model")
	}
	if err := checkLoad(labels, opts); err != nil {
		return nil, err
	}

	var (
		backend Backend
		err     error
	)
	switch opts.Backend {
	case BackendONNX:
		backend, err = newONNXBackend(modelBytes, opts)
	case BackendOpenCV:
		backend, err = newOpenCVBackend(modelBytes, opts)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrLoad, "%s backend: %v", opts.Backend, err)
	}
	return newEngine(backend, labels, opts), nil
}

// NewEngine wraps an already constructed backend.
//
// Returns:
//   - *Engine: The engine.
//   - error: ErrLoad if the backend is nil, the label list is empty or the
//     options are invalid.
func NewEngine(backend Backend, labels Labels, opts Options) (*Engine, error) {
	if backend == nil {
		return nil, errors.Wrap(ErrLoad, "nil backend")
	}
	if err := checkLoad(labels, opts); err != nil {
		return nil, err
	}
	return newEngine(backend, labels, opts), nil
}

func checkLoad(labels Labels, opts Options) error {
	if len(labels) == 0 {
		return errors.Wrap(ErrLoad, "empty label list")
	}
	if err := opts.Validate(); err != nil {
		return errors.Wrapf(ErrLoad, "options: %v", err)
	}
	return nil
}

func newEngine(backend Backend, labels Labels, opts Options) *Engine {
	e := &Engine{
		backend: backend,
		labels:  labels,
		opts:    opts,
		log:     opts.logger(),
	}
	e.log.Infow("model loaded",
		"backend", opts.Backend,
		"input", []int{1, opts.InputSize, opts.InputSize, images.Channels},
		"quantized", opts.feedsBytes(),
		"capacity", opts.Capacity,
		"labels", len(labels),
	)
	return e
}

// InputSize returns the edge of the square model input.
func (e *Engine) InputSize() int { return e.opts.InputSize }

// Capacity returns the number of detections produced per call.
func (e *Engine) Capacity() int { return e.opts.Capacity }

// Labels returns the label list.
func (e *Engine) Labels() Labels { return e.labels }

// NewTensor allocates an input tensor matching the model.
func (e *Engine) NewTensor() (*images.ModelTensor, error) {
	return images.NewModelTensor(e.opts.InputSize, e.opts.feedsBytes(), e.opts.Normalization)
}

// Infer runs one forward pass.
//
// Calls are serialized. The returned batch always holds exactly Capacity
// detections in model slot order, with boxes scaled into model-input pixel
// space. Low-confidence slots are kept.
//
// Arguments:
//   - ctx: Checked before the forward pass starts.
//   - input: A tensor allocated by NewTensor.
//
// Returns:
//   - *postprocess.Batch: The detections.
//   - error: ErrEngineClosed after Unload, ErrInference on runtime failure,
//     malformed output or an unknown class index.
func (e *Engine) Infer(ctx context.Context, input *images.ModelTensor) (*postprocess.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil || input.Size() != e.opts.InputSize || input.Quantized() != e.opts.feedsBytes() {
		return nil, errors.Wrap(ErrInference, "input tensor does not match the model")
	}

	out, err := e.backend.Run(ctx, input)
	if err != nil {
		return nil, errors.Wrapf(ErrInference, "run: %v", err)
	}
	return e.decode(out)
}

func (e *Engine) decode(out RawOutput) (*postprocess.Batch, error) {
	n := e.opts.Capacity
	if len(out.Boxes) < n*4 || len(out.Classes) < n || len(out.Scores) < n {
		return nil, errors.Wrapf(ErrInference,
			"output too short for %d slots: boxes=%d classes=%d scores=%d",
			n, len(out.Boxes), len(out.Classes), len(out.Scores))
	}

	size := float32(e.opts.InputSize)
	batch := postprocess.NewBatch(n)
	for i := 0; i < n; i++ {
		class := int(out.Classes[i])
		label, err := e.labels.Lookup(class)
		if err != nil {
			return nil, errors.Wrapf(ErrInference, "slot %d: %v", i, err)
		}
		b := out.Boxes[i*4 : i*4+4]
		d := postprocess.Detection{
			ID:         i,
			Class:      class,
			Label:      label,
			Confidence: out.Scores[i],
			Box: images.Box{
				Left:   b[1] * size,
				Top:    b[0] * size,
				Right:  b[3] * size,
				Bottom: b[2] * size,
			},
		}
		if err := batch.Append(d); err != nil {
			return nil, errors.Wrapf(ErrInference, "slot %d: %v", i, err)
		}
	}
	return batch, nil
}

// Unload releases the model. Only the first call has an effect.
func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	err := e.backend.Close()
	e.backend = nil
	e.log.Infow("model unloaded", "error", err)
	return err
}
