package inference

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/nvr-ai/live-detect/images"
)

// Execution providers understood by the onnx backend.
const (
	ProviderCPU      = "cpu"
	ProviderCoreML   = "coreml"
	ProviderOpenVINO = "openvino"
	ProviderCUDA     = "cuda"
)

var ortMu sync.Mutex

// initializeORT loads the native runtime once per process.
func initializeORT(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		p, err := defaultSharedLibraryPath()
		if err != nil {
			return err
		}
		libPath = p
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "initialize onnxruntime from %s", libPath)
	}
	return nil
}

// defaultSharedLibraryPath returns the bundled runtime for the current platform.
func defaultSharedLibraryPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll", nil
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// onnxBackend runs an SSD-style model with pre-allocated input and output tensors.
type onnxBackend struct {
	session *ort.AdvancedSession
	inU8    *ort.Tensor[uint8]
	inF32   *ort.Tensor[float32]
	boxes   *ort.Tensor[float32]
	classes *ort.Tensor[float32]
	scores  *ort.Tensor[float32]
	count   *ort.Tensor[float32]
}

func newONNXBackend(model []byte, opts Options) (Backend, error) {
	if err := initializeORT(opts.SharedLibraryPath); err != nil {
		return nil, err
	}
	log := opts.logger()

	ins, outs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, errors.Wrap(err, "inspect model")
	}
	for i, in := range ins {
		log.Infow("input tensor", "index", i, "name", in.Name, "shape", in.Dimensions.String(), "type", in.DataType.String())
	}
	for i, out := range outs {
		log.Infow("output tensor", "index", i, "name", out.Name, "shape", out.Dimensions.String(), "type", out.DataType.String())
	}

	b := &onnxBackend{}
	ok := false
	defer func() {
		if !ok {
			_ = b.Close()
		}
	}()

	size := int64(opts.InputSize)
	inShape := ort.NewShape(1, size, size, images.Channels)
	var input ort.ArbitraryTensor
	if opts.feedsBytes() {
		b.inU8, err = ort.NewEmptyTensor[uint8](inShape)
		input = b.inU8
	} else {
		b.inF32, err = ort.NewEmptyTensor[float32](inShape)
		input = b.inF32
	}
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	n := int64(opts.Capacity)
	if b.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n, 4)); err != nil {
		return nil, errors.Wrap(err, "create box tensor")
	}
	if b.classes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		return nil, errors.Wrap(err, "create class tensor")
	}
	if b.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err != nil {
		return nil, errors.Wrap(err, "create score tensor")
	}
	outputs := []ort.ArbitraryTensor{b.boxes, b.classes, b.scores}
	outputNames := opts.OutputNames[:3]
	if len(opts.OutputNames) > 3 {
		if b.count, err = ort.NewEmptyTensor[float32](ort.NewShape(1)); err != nil {
			return nil, errors.Wrap(err, "create count tensor")
		}
		outputs = append(outputs, b.count)
		outputNames = opts.OutputNames[:4]
	}

	options, err := sessionOptions(opts)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	b.session, err = ort.NewAdvancedSessionWithONNXData(
		model,
		[]string{opts.InputName},
		outputNames,
		[]ort.ArbitraryTensor{input},
		outputs,
		options,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}

	ok = true
	return b, nil
}

// sessionOptions configures threading and the execution provider.
func sessionOptions(opts Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	fail := func(err error, msg string) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, errors.Wrap(err, msg)
	}

	if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return fail(err, "set intra-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fail(err, "set optimization level")
	}

	switch strings.ToLower(opts.ExecutionProvider) {
	case "", ProviderCPU:
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fail(err, "enable CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}); err != nil {
			return fail(err, "enable OpenVINO")
		}
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fail(err, "create CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fail(err, "enable CUDA")
		}
	default:
		return fail(errors.Errorf("unknown execution provider %q", opts.ExecutionProvider), "session options")
	}
	return options, nil
}

func (b *onnxBackend) Run(_ context.Context, input *images.ModelTensor) (RawOutput, error) {
	if b.inU8 != nil {
		copy(b.inU8.GetData(), input.Bytes())
	} else {
		copy(b.inF32.GetData(), input.Float32s())
	}
	if err := b.session.Run(); err != nil {
		return RawOutput{}, err
	}
	return RawOutput{
		Boxes:   b.boxes.GetData(),
		Classes: b.classes.GetData(),
		Scores:  b.scores.GetData(),
	}, nil
}

// Close destroys the session and every tensor it owns.
func (b *onnxBackend) Close() error {
	var err error
	if b.session != nil {
		err = multierr.Append(err, b.session.Destroy())
		b.session = nil
	}
	for _, t := range []interface{ Destroy() error }{b.inU8, b.inF32, b.boxes, b.classes, b.scores, b.count} {
		err = multierr.Append(err, destroy(t))
	}
	b.inU8, b.inF32, b.boxes, b.classes, b.scores, b.count = nil, nil, nil, nil, nil, nil
	return err
}

// destroy tolerates typed nil tensors.
func destroy(t interface{ Destroy() error }) error {
	switch v := t.(type) {
	case *ort.Tensor[uint8]:
		if v == nil {
			return nil
		}
	case *ort.Tensor[float32]:
		if v == nil {
			return nil
		}
	}
	return t.Destroy()
}
