package inference

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/postprocess"
)

// BackendKind selects the runtime that executes the model.
type BackendKind string

const (
	// BackendONNX runs the model with onnxruntime.
	BackendONNX BackendKind = "onnx"
	// BackendOpenCV runs the model with the OpenCV DNN module.
	BackendOpenCV BackendKind = "opencv"
)

// DefaultInputSize is the square input edge of an SSD MobileNet detector.
const DefaultInputSize = 300

// Options configures how a model is loaded and fed.
type Options struct {
	// Backend selects the runtime.
	Backend BackendKind `json:"backend" yaml:"backend"`
	// InputSize is the width and height of the square model input.
	InputSize int `json:"inputSize" yaml:"inputSize"`
	// Capacity is the number of detection slots the model emits.
	Capacity int `json:"capacity" yaml:"capacity"`
	// Quantized models take raw uint8 pixels; others take normalized floats.
	Quantized bool `json:"quantized" yaml:"quantized"`
	// Normalization is applied to float inputs.
	Normalization images.Normalization `json:"normalization" yaml:"normalization"`

	// ONNX backend.
	SharedLibraryPath string   `json:"sharedLibraryPath" yaml:"sharedLibraryPath"`
	InputName         string   `json:"inputName" yaml:"inputName"`
	OutputNames       []string `json:"outputNames" yaml:"outputNames"`
	ExecutionProvider string   `json:"executionProvider" yaml:"executionProvider"`
	IntraOpThreads    int      `json:"intraOpThreads" yaml:"intraOpThreads"`

	// OpenCV backend.
	Framework string `json:"framework" yaml:"framework"`
	Config    []byte `json:"-" yaml:"-"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

// DefaultOptions returns the settings of a quantized 300x300 SSD MobileNet.
func DefaultOptions() Options {
	return Options{
		Backend:       BackendONNX,
		InputSize:     DefaultInputSize,
		Capacity:      postprocess.DefaultCapacity,
		Quantized:     true,
		Normalization: images.DefaultNormalization(),
		InputName:     "normalized_input_image_tensor",
		OutputNames: []string{
			"detection_boxes",
			"detection_classes",
			"detection_scores",
			"num_detections",
		},
		ExecutionProvider: "cpu",
		Framework:         "onnx",
	}
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	switch o.Backend {
	case BackendONNX:
		if o.InputName == "" || len(o.OutputNames) < 3 {
			return errors.New("onnx backend needs an input name and box, class and score output names")
		}
	case BackendOpenCV:
		// The input blob takes a single scale factor for all channels.
		if !o.Quantized {
			std := o.Normalization.Std
			if std[0] <= 0 || std[1] != std[0] || std[2] != std[0] {
				return errors.Errorf("opencv backend needs one positive std for every channel, got %v", std)
			}
		}
	default:
		return errors.Errorf("unknown backend %q", o.Backend)
	}
	if o.InputSize <= 0 {
		return errors.Errorf("invalid input size %d", o.InputSize)
	}
	if o.Capacity <= 0 {
		return errors.Errorf("invalid capacity %d", o.Capacity)
	}
	return nil
}

// feedsBytes reports whether the engine expects a quantized tensor. The
// OpenCV backend normalizes inside its input blob, so it is always fed bytes.
func (o Options) feedsBytes() bool {
	return o.Quantized || o.Backend == BackendOpenCV
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger.Named("inference").Sugar()
}
