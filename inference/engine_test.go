package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nvr-ai/live-detect/images"
)

type fakeBackend struct {
	out      RawOutput
	err      error
	delay    time.Duration
	runs     atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	closes   atomic.Int32
}

func (f *fakeBackend) Run(_ context.Context, _ *images.ModelTensor) (RawOutput, error) {
	f.runs.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.maxSeen.Load() {
		f.maxSeen.Store(n)
	}
	time.Sleep(f.delay)
	return f.out, f.err
}

func (f *fakeBackend) Close() error {
	f.closes.Add(1)
	return nil
}

var testLabels = Labels{"???", "person", "bicycle", "car"}

func testOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.Capacity = 3
	opts.Logger = zaptest.NewLogger(t)
	return opts
}

func threeSlots() RawOutput {
	return RawOutput{
		Boxes: []float32{
			0.1, 0.2, 0.5, 0.6,
			0, 0, 1, 1,
			0.5, 0.25, 0.75, 0.5,
		},
		Classes: []float32{0, 2, 1},
		Scores:  []float32{0.9, 0.1, 0.6},
	}
}

func newTestEngine(t *testing.T, backend Backend) *Engine {
	t.Helper()
	e, err := NewEngine(backend, testLabels, testOptions(t))
	require.NoError(t, err)
	return e
}

func TestEngine_InferDecodesSlots(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{out: threeSlots()})
	in, err := e.NewTensor()
	require.NoError(t, err)
	assert.True(t, in.Quantized())
	assert.Equal(t, DefaultInputSize, in.Size())

	batch, err := e.Infer(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 3, batch.Len(), "low-confidence slots are kept")

	first := batch.At(0)
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, "person", first.Label)
	assert.InDelta(t, 0.9, first.Confidence, 1e-6)
	assert.InDelta(t, 60, first.Box.Left, 1e-3)
	assert.InDelta(t, 30, first.Box.Top, 1e-3)
	assert.InDelta(t, 180, first.Box.Right, 1e-3)
	assert.InDelta(t, 150, first.Box.Bottom, 1e-3)

	assert.Equal(t, "car", batch.At(1).Label)
	assert.Equal(t, "bicycle", batch.At(2).Label)
	assert.InDelta(t, 75, batch.At(2).Box.Left, 1e-3)
}

func TestEngine_InferErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown class", func(t *testing.T) {
		out := threeSlots()
		out.Classes[1] = 3
		e := newTestEngine(t, &fakeBackend{out: out})
		in, _ := e.NewTensor()
		_, err := e.Infer(ctx, in)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("negative class", func(t *testing.T) {
		out := threeSlots()
		out.Classes[0] = -1
		e := newTestEngine(t, &fakeBackend{out: out})
		in, _ := e.NewTensor()
		_, err := e.Infer(ctx, in)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("short output", func(t *testing.T) {
		out := threeSlots()
		out.Scores = out.Scores[:2]
		e := newTestEngine(t, &fakeBackend{out: out})
		in, _ := e.NewTensor()
		_, err := e.Infer(ctx, in)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("backend failure", func(t *testing.T) {
		e := newTestEngine(t, &fakeBackend{err: assert.AnError})
		in, _ := e.NewTensor()
		_, err := e.Infer(ctx, in)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("mismatched tensor", func(t *testing.T) {
		e := newTestEngine(t, &fakeBackend{out: threeSlots()})
		in, err := images.NewModelTensor(64, true, images.Normalization{})
		require.NoError(t, err)
		_, err = e.Infer(ctx, in)
		assert.ErrorIs(t, err, ErrInference)
		_, err = e.Infer(ctx, nil)
		assert.ErrorIs(t, err, ErrInference)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := &fakeBackend{out: threeSlots()}
		e := newTestEngine(t, f)
		in, _ := e.NewTensor()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Infer(cctx, in)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, f.runs.Load())
	})
}

func TestEngine_InferIsSerialized(t *testing.T) {
	f := &fakeBackend{out: threeSlots(), delay: 5 * time.Millisecond}
	e := newTestEngine(t, f)
	in, err := e.NewTensor()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Infer(context.Background(), in)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 8, f.runs.Load())
	assert.EqualValues(t, 1, f.maxSeen.Load())
}

func TestEngine_UnloadOnce(t *testing.T) {
	f := &fakeBackend{out: threeSlots()}
	e := newTestEngine(t, f)
	in, _ := e.NewTensor()

	require.NoError(t, e.Unload())
	require.NoError(t, e.Unload())
	assert.EqualValues(t, 1, f.closes.Load())

	_, err := e.Infer(context.Background(), in)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestLoad_Errors(t *testing.T) {
	opts := testOptions(t)

	_, err := Load(nil, testLabels, opts)
	assert.ErrorIs(t, err, ErrLoad)

	_, err = Load([]byte("model"), nil, opts)
	assert.ErrorIs(t, err, ErrLoad)

	bad := opts
	bad.Backend = "tflite"
	_, err = Load([]byte("model"), testLabels, bad)
	assert.ErrorIs(t, err, ErrLoad)

	bad = opts
	bad.InputSize = 0
	_, err = Load([]byte("model"), testLabels, bad)
	assert.ErrorIs(t, err, ErrLoad)

	_, err = NewEngine(nil, testLabels, opts)
	assert.ErrorIs(t, err, ErrLoad)
}

func TestEngine_FloatTensor(t *testing.T) {
	opts := testOptions(t)
	opts.Quantized = false
	e, err := NewEngine(&fakeBackend{out: threeSlots()}, testLabels, opts)
	require.NoError(t, err)

	in, err := e.NewTensor()
	require.NoError(t, err)
	assert.False(t, in.Quantized())
	_, err = e.Infer(context.Background(), in)
	assert.NoError(t, err)

	opts.Backend = BackendOpenCV
	e, err = NewEngine(&fakeBackend{out: threeSlots()}, testLabels, opts)
	require.NoError(t, err)
	in, err = e.NewTensor()
	require.NoError(t, err)
	assert.True(t, in.Quantized(), "opencv normalizes inside its blob")
}

func TestDecodeDetectionRows(t *testing.T) {
	rows := []float32{
		0, 1, 0.8, 0.1, 0.2, 0.3, 0.4,
		0, 3, 0.6, 0.5, 0.6, 0.7, 0.8,
	}
	boxes := make([]float32, 12)
	classes := make([]float32, 3)
	scores := []float32{9, 9, 9}

	out, err := decodeDetectionRows(rows, boxes, classes, scores)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, 0}, out.Classes)
	assert.Equal(t, []float32{0.8, 0.6, 0}, out.Scores)
	assert.Equal(t, []float32{0.2, 0.1, 0.4, 0.3}, out.Boxes[:4])
	assert.Equal(t, []float32{0, 0, 0, 0}, out.Boxes[8:])

	_, err = decodeDetectionRows(rows[:5], boxes, classes, scores)
	assert.Error(t, err)
}
