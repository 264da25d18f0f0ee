package inference

import "github.com/pkg/errors"

var (
	// ErrLoad is returned when the model or label assets are missing or malformed.
	ErrLoad = errors.New("model load failed")
	// ErrInference is returned when a forward pass fails or its output is unusable.
	ErrInference = errors.New("inference failed")
	// ErrEngineClosed is returned by Infer after Unload.
	ErrEngineClosed = errors.New("engine is closed")
	// ErrLabelOutOfRange is returned for class indices outside the label list.
	ErrLabelOutOfRange = errors.New("label index out of range")
)
