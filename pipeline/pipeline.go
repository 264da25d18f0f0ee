// Package pipeline connects captured frames to the detector without ever
// blocking the capture side.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/postprocess"
	"github.com/nvr-ai/live-detect/profiler"
)

// ErrStopped is returned by operations on a stopped pipeline.
var ErrStopped = errors.New("pipeline stopped")

// Detector runs the model on a prepared tensor. *inference.Engine
// implements it.
type Detector interface {
	InputSize() int
	NewTensor() (*images.ModelTensor, error)
	Infer(ctx context.Context, input *images.ModelTensor) (*postprocess.Batch, error)
}

// Result is one published detection snapshot. Detections is owned by the
// receiver.
type Result struct {
	Seq        uint64
	Detections []postprocess.Detection
	Latency    time.Duration
}

// Sink receives results in delivery order.
type Sink interface {
	Publish(Result)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Result)

// Publish calls f(r).
func (f SinkFunc) Publish(r Result) { f(r) }

// Options configures a Pipeline.
type Options struct {
	// Threshold drops detections at or below this confidence.
	Threshold float32 `json:"threshold" yaml:"threshold"`
	// NMS optionally suppresses overlapping boxes.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
	// CropToFit keeps the frame's aspect ratio by cropping it to the
	// square model input instead of stretching it.
	CropToFit bool `json:"cropToFit" yaml:"cropToFit"`

	Recorder profiler.Recorder `json:"-" yaml:"-"`
	Logger   *zap.Logger       `json:"-" yaml:"-"`
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Threshold: postprocess.DefaultThreshold,
		CropToFit: true,
	}
}

type geometry struct {
	width, height, rotation int
}

func (g geometry) String() string {
	return fmt.Sprintf("%dx%d@%d", g.width, g.height, g.rotation)
}

type job struct {
	seq     uint64
	started time.Time
}

// Pipeline admits at most one frame at a time, prepares it on the caller's
// goroutine and runs inference on its own worker goroutine.
//
// The model tensor and the packed frame buffer are allocated once and only
// touched while the gate is held, so the frame side and the worker never
// access them at the same time.
type Pipeline struct {
	detector Detector
	sink     Sink
	opts     Options
	rec      profiler.Recorder
	log      *zap.SugaredLogger
	gate     Gate

	geomMu    sync.Mutex
	geom      geometry
	transform images.Transform
	packed    *image.RGBA
	tensor    *images.ModelTensor

	jobs      chan job
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	stopped   atomic.Bool
	stopOnce  sync.Once
	published atomic.Uint64
}

// New allocates the model tensor and starts the inference worker.
//
// Arguments:
//   - detector: The loaded model.
//   - sink: Receives every published result.
//   - opts: Filtering and geometry options.
//
// Returns:
//   - *Pipeline: The running pipeline; call Stop when done.
//   - error: If the tensor cannot be allocated or an argument is nil.
func New(detector Detector, sink Sink, opts Options) (*Pipeline, error) {
	if detector == nil || sink == nil {
		return nil, errors.New("pipeline needs a detector and a sink")
	}
	tensor, err := detector.NewTensor()
	if err != nil {
		return nil, errors.Wrap(err, "allocating model tensor")
	}
	if opts.Recorder == nil {
		opts.Recorder = profiler.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		detector: detector,
		sink:     sink,
		opts:     opts,
		rec:      opts.Recorder,
		log:      logger.Sugar().Named("pipeline"),
		tensor:   tensor,
		jobs:     make(chan job, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Gate exposes the admission gate counters.
func (p *Pipeline) Gate() *Gate { return &p.gate }

// Published returns how many results reached the sink.
func (p *Pipeline) Published() uint64 { return p.published.Load() }

// SetGeometry recomputes the frame-to-model transform for frames of the
// given size and rotation. Frames that arrive with a different geometry
// trigger the same recomputation.
func (p *Pipeline) SetGeometry(width, height, rotation int) error {
	if p.stopped.Load() {
		return ErrStopped
	}
	p.geomMu.Lock()
	defer p.geomMu.Unlock()
	return p.setGeometryLocked(geometry{width, height, images.NormalizeRotation(rotation)})
}

func (p *Pipeline) setGeometryLocked(g geometry) error {
	size := p.detector.InputSize()
	t, err := images.ComputeTransform(g.width, g.height, size, size, g.rotation, p.opts.CropToFit)
	if err != nil {
		return errors.Wrapf(err, "geometry %v", g)
	}
	p.transform = t
	if p.packed == nil || p.packed.Rect.Dx() != g.width || p.packed.Rect.Dy() != g.height {
		p.packed = image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	}
	p.geom = g
	p.log.Infow("frame geometry changed", "geometry", g.String(), "transform", t.String())
	return nil
}

// OnFrame is the capture listener. It returns quickly in every case and
// always releases the frame.
//
// When an inference is already in flight the frame is dropped. Otherwise it
// is converted into the model tensor here and handed to the worker.
func (p *Pipeline) OnFrame(frame *images.RawFrame) {
	defer frame.Release()

	if p.stopped.Load() {
		return
	}
	if !p.gate.TryAcquire() {
		p.rec.Increment(profiler.CounterDropped)
		return
	}
	p.rec.Increment(profiler.CounterAdmitted)
	started := time.Now()

	if err := p.prepare(frame); err != nil {
		p.log.Warnw("dropping frame", "seq", frame.Seq, "error", err)
		p.rec.Increment(profiler.CounterFailed)
		p.gate.Release()
		return
	}

	select {
	case p.jobs <- job{seq: frame.Seq, started: started}:
	default:
		// The gate makes a full slot impossible; never block the reader anyway.
		p.gate.Release()
	}
}

func (p *Pipeline) prepare(frame *images.RawFrame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("conversion panicked: %v", r)
		}
	}()
	defer p.rec.StartOperation(profiler.OpConvert)()

	p.geomMu.Lock()
	defer p.geomMu.Unlock()

	g := geometry{frame.Width, frame.Height, images.NormalizeRotation(frame.Rotation)}
	if p.packed == nil || g != p.geom {
		if err := p.setGeometryLocked(g); err != nil {
			return err
		}
	}
	if err := images.ConvertToPacked(frame, p.packed); err != nil {
		return errors.Wrap(err, "converting frame")
	}
	return errors.Wrap(images.Resample(p.packed, p.transform, p.tensor), "resampling frame")
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.jobs:
			p.process(j)
		}
	}
}

func (p *Pipeline) process(j job) {
	defer p.gate.Release()
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("inference panicked", "seq", j.seq, "panic", r)
			p.rec.Increment(profiler.CounterFailed)
		}
	}()

	endInfer := p.rec.StartOperation(profiler.OpInference)
	batch, err := p.detector.Infer(p.ctx, p.tensor)
	endInfer()
	if err != nil {
		if !p.stopped.Load() {
			p.log.Warnw("inference failed", "seq", j.seq, "error", err)
			p.rec.Increment(profiler.CounterFailed)
		}
		return
	}

	detections := postprocess.Filter(batch, p.opts.Threshold)
	if p.opts.NMS.Enabled() {
		detections = postprocess.ApplyGreedyNMS(detections, p.opts.NMS)
	}

	if p.stopped.Load() {
		p.log.Debugw("discarding result after stop", "seq", j.seq)
		return
	}
	p.sink.Publish(Result{Seq: j.seq, Detections: detections, Latency: time.Since(j.started)})
	p.published.Add(1)
	p.rec.Increment(profiler.CounterPublished)
}

// Stop shuts the worker down and waits for it. A result still being
// computed is discarded. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.cancel()
		<-p.done
		p.log.Infow("pipeline stopped",
			"admitted", p.gate.Admitted(),
			"dropped", p.gate.Dropped(),
			"published", p.published.Load())
	})
}
