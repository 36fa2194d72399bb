// Package capture runs a model once per layer and records every layer's
// output, containing failures to the layer that caused them.
package capture

import (
	"context"
	"image"
	"time"

	"github.com/charmbracelet/log"

	"github.com/san-kum/layerscope/internal/inference"
)

const DefaultInputSize = 224

const unknownType = "unknown"

type Option func(*Pipeline)

func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithNormalization overrides whatever range the model reports.
func WithNormalization(n inference.Normalization) Option {
	return func(p *Pipeline) { p.norm = &n }
}

// WithDefaultSize sets the resize target used when the model leaves its
// input height or width undeclared.
func WithDefaultSize(height, width int) Option {
	return func(p *Pipeline) {
		if height > 0 {
			p.defaultH = height
		}
		if width > 0 {
			p.defaultW = width
		}
	}
}

type Pipeline struct {
	logger   *log.Logger
	norm     *inference.Normalization
	defaultH int
	defaultW int
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:   log.Default(),
		defaultH: DefaultInputSize,
		defaultW: DefaultInputSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) normalization(model inference.Model) inference.Normalization {
	if p.norm != nil {
		return *p.norm
	}
	if n, ok := model.(inference.Normalizer); ok {
		return n.Normalization()
	}
	return inference.NormalizeUnit
}

// targetSize reads height and width from an NHWC input shape.
func (p *Pipeline) targetSize(shape []int) (int, int) {
	h, w := p.defaultH, p.defaultW
	if len(shape) >= 3 {
		if shape[1] > 0 {
			h = shape[1]
		}
		if shape[2] > 0 {
			w = shape[2]
		}
	}
	return h, w
}

// Capture returns one record per model layer, in order. Layer failures are
// recorded in place and never returned. Every tensor and predictor the call
// creates is released before it returns, whatever the outcome.
func (p *Pipeline) Capture(ctx context.Context, model inference.Model, img image.Image) ([]Record, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if img == nil {
		return nil, ErrNoImage
	}

	layers := model.Layers()
	records := make([]Record, len(layers))
	predictors := make([]inference.Predictor, len(layers))
	defer func() {
		for _, pr := range predictors {
			if pr != nil {
				pr.Close()
			}
		}
	}()

	for i, l := range layers {
		records[i] = Record{LayerName: l.Name(), Type: l.ClassName()}
		if records[i].Type == "" {
			records[i].Type = unknownType
		}
		pr, err := model.Truncate(i)
		if err != nil {
			records[i].Outcome = p.fail(i, l.Name(), StageBuild, err)
			continue
		}
		predictors[i] = pr
	}

	h, w := p.targetSize(model.InputShape())
	input, err := preprocess(model.Backend(), img, h, w, p.normalization(model))
	if err != nil {
		return nil, err
	}
	defer input.Dispose()

	for i, pr := range predictors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pr == nil {
			continue
		}
		start := time.Now()
		outcome, err := p.run(ctx, i, layers[i].Name(), pr, input)
		if err != nil {
			return nil, err
		}
		pr.Close()
		predictors[i] = nil
		records[i].Outcome = outcome
		p.logger.Debug("captured layer", "index", i, "name", layers[i].Name(), "elapsed", time.Since(start))
	}
	return records, nil
}

// run predicts one layer. The error return is reserved for cancellation.
func (p *Pipeline) run(ctx context.Context, i int, name string, pr inference.Predictor, input inference.Tensor) (Outcome, error) {
	out, err := pr.Predict(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return p.fail(i, name, StagePredict, err), nil
	}
	defer out.Dispose()

	data, err := out.Data(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return p.fail(i, name, StageRead, err), nil
	}
	return Activation{Data: data, Shape: out.Shape()}, nil
}

func (p *Pipeline) fail(i int, name string, stage Stage, err error) Failure {
	lerr := &LayerError{Index: i, Name: name, Stage: stage, Err: err}
	p.logger.Warn("layer capture failed", "index", i, "name", name, "stage", stage, "err", err)
	return Failure{Err: lerr}
}

type step struct {
	op string
	fn func(inference.Tensor) (inference.Tensor, error)
}

// preprocess turns img into a [1, h, w, 3] float tensor. Each intermediate
// is disposed once the next exists; on error nothing is left allocated.
func preprocess(b inference.Backend, img image.Image, h, w int, norm inference.Normalization) (inference.Tensor, error) {
	cur, err := b.FromPixels(img)
	if err != nil {
		return nil, &PreprocessError{Op: "from pixels", Err: err}
	}

	steps := []step{
		{"resize", func(t inference.Tensor) (inference.Tensor, error) { return b.ResizeBilinear(t, h, w) }},
		{"cast", b.Cast},
		{"scale", func(t inference.Tensor) (inference.Tensor, error) { return b.Affine(t, 1.0/255, 0) }},
	}
	if norm == inference.NormalizeSymmetric {
		steps = append(steps, step{"normalize", func(t inference.Tensor) (inference.Tensor, error) { return b.Affine(t, 2, -1) }})
	}
	steps = append(steps, step{"batch", func(t inference.Tensor) (inference.Tensor, error) { return b.ExpandDims(t, 0) }})

	for _, s := range steps {
		next, err := s.fn(cur)
		cur.Dispose()
		if err != nil {
			return nil, &PreprocessError{Op: s.op, Err: err}
		}
		cur = next
	}
	return cur, nil
}
