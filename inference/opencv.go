package inference

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/live-detect/images"
)

// detectionRowLen is the width of an OpenCV DetectionOutput row:
// [imageId, classId, confidence, left, top, right, bottom].
const detectionRowLen = 7

// opencvBackend runs a model through the OpenCV DNN module.
type opencvBackend struct {
	net     gocv.Net
	size    int
	scale   float64
	mean    gocv.Scalar
	boxes   []float32
	classes []float32
	scores  []float32
}

func newOpenCVBackend(model []byte, opts Options) (_ Backend, err error) {
	framework := opts.Framework
	if framework == "" {
		framework = "onnx"
	}

	var net gocv.Net
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during model parsing: %v", r)
			}
		}()
		net, err = gocv.ReadNetBytes(framework, model, opts.Config)
	}()
	if err != nil {
		return nil, errors.Wrap(err, "read net")
	}
	if net.Empty() {
		return nil, errors.New("model is empty or incompatible with OpenCV DNN")
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set target")
	}
	opts.logger().Infow("opencv model parsed", "framework", framework, "layers", len(net.GetLayerNames()))

	ob := &opencvBackend{
		net:     net,
		size:    opts.InputSize,
		scale:   1,
		mean:    gocv.NewScalar(0, 0, 0, 0),
		boxes:   make([]float32, opts.Capacity*4),
		classes: make([]float32, opts.Capacity),
		scores:  make([]float32, opts.Capacity),
	}
	if !opts.Quantized {
		n := opts.Normalization
		ob.scale = 1 / float64(n.Std[0])
		ob.mean = gocv.NewScalar(float64(n.Mean[0]), float64(n.Mean[1]), float64(n.Mean[2]), 0)
	}
	return ob, nil
}

func (b *opencvBackend) Run(_ context.Context, input *images.ModelTensor) (RawOutput, error) {
	img, err := gocv.NewMatFromBytes(b.size, b.size, gocv.MatTypeCV8UC3, input.Bytes())
	if err != nil {
		return RawOutput{}, errors.Wrap(err, "wrap input")
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, b.scale, image.Pt(b.size, b.size), b.mean, false, false)
	defer blob.Close()

	b.net.SetInput(blob, "")
	out := b.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return RawOutput{}, errors.New("forward returned an empty output")
	}

	rows, err := out.DataPtrFloat32()
	if err != nil {
		return RawOutput{}, errors.Wrap(err, "read output")
	}
	return decodeDetectionRows(rows, b.boxes, b.classes, b.scores)
}

// decodeDetectionRows converts DetectionOutput rows into slot order. Missing
// rows become zero-score slots of class 0.
//
// OpenCV reports label indices directly, so LabelOffset is subtracted to
// obtain the model class index.
func decodeDetectionRows(rows, boxes, classes, scores []float32) (RawOutput, error) {
	if len(rows)%detectionRowLen != 0 {
		return RawOutput{}, errors.Errorf("output length %d is not a multiple of %d", len(rows), detectionRowLen)
	}
	n := len(scores)
	for i := 0; i < n; i++ {
		o := i * detectionRowLen
		if o >= len(rows) {
			copy(boxes[i*4:i*4+4], []float32{0, 0, 0, 0})
			classes[i] = 0
			scores[i] = 0
			continue
		}
		r := rows[o : o+detectionRowLen]
		classes[i] = r[1] - LabelOffset
		scores[i] = r[2]
		boxes[i*4] = r[4]
		boxes[i*4+1] = r[3]
		boxes[i*4+2] = r[6]
		boxes[i*4+3] = r[5]
	}
	return RawOutput{Boxes: boxes, Classes: classes, Scores: scores}, nil
}

func (b *opencvBackend) Close() error {
	return b.net.Close()
}
