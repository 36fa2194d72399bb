package inference

import (
	"context"
	"errors"
	"image"
)

var (
	ErrDisposed         = errors.New("inference: tensor already disposed")
	ErrShapeMismatch    = errors.New("inference: shape mismatch")
	ErrUnsupportedLayer = errors.New("inference: unsupported layer")
	ErrLayerIndex       = errors.New("inference: layer index out of range")
)

// Tensor is a backend-owned n-dimensional value.
type Tensor interface {
	Shape() []int
	// Data copies the values out in row-major order.
	Data(ctx context.Context) ([]float32, error)
	Dispose()
}

// Backend performs the preprocessing operations. Each call returns a new
// tensor and leaves its argument untouched; the caller owns both.
type Backend interface {
	Name() string
	FromPixels(img image.Image) (Tensor, error)
	ResizeBilinear(t Tensor, height, width int) (Tensor, error)
	Cast(t Tensor) (Tensor, error)
	// Affine computes t*scale + offset element-wise.
	Affine(t Tensor, scale, offset float32) (Tensor, error)
	ExpandDims(t Tensor, axis int) (Tensor, error)
}

// Layer is the backend's view of one layer.
type Layer interface {
	Name() string
	ClassName() string
}

// Model is a loaded, inference-capable network.
type Model interface {
	Backend() Backend
	// InputShape is the declared input shape including the batch dimension.
	// Undeclared dimensions are zero or negative.
	InputShape() []int
	Layers() []Layer
	// Truncate returns a predictor whose output is layer index's output. It
	// shares parameters with the model.
	Truncate(index int) (Predictor, error)
}

type Predictor interface {
	Predict(ctx context.Context, input Tensor) (Tensor, error)
	// OutputShape is the declared output shape including the batch dimension.
	OutputShape() []int
	Close() error
}

// Normalization selects the input value range a model was trained on.
type Normalization int

const (
	// NormalizeUnit scales pixels to [0, 1].
	NormalizeUnit Normalization = iota
	// NormalizeSymmetric scales pixels to [-1, 1].
	NormalizeSymmetric
)

func (n Normalization) String() string {
	if n == NormalizeSymmetric {
		return "symmetric"
	}
	return "unit"
}

func ParseNormalization(s string) Normalization {
	if s == "symmetric" {
		return NormalizeSymmetric
	}
	return NormalizeUnit
}

// Normalizer is implemented by models that know their input range.
type Normalizer interface {
	Normalization() Normalization
}
