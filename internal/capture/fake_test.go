package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/san-kum/layerscope/internal/inference"
)

var errBoom = errors.New("boom")

type affineCall struct{ scale, offset float32 }

type fakeBackend struct {
	mu       sync.Mutex
	acquired int
	released int
	failOp   string
	resized  [2]int
	affines  []affineCall
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquired - b.released
}

func (b *fakeBackend) tensor(shape []int) *fakeTensor {
	b.mu.Lock()
	b.acquired++
	b.mu.Unlock()
	n := 1
	for _, d := range shape {
		n *= max(d, 1)
	}
	return &fakeTensor{b: b, shape: slices.Clone(shape), data: make([]float32, n)}
}

func (b *fakeBackend) check(op string, t inference.Tensor) (*fakeTensor, error) {
	if b.failOp == op {
		return nil, fmt.Errorf("%s: %w", op, errBoom)
	}
	ft := t.(*fakeTensor)
	if ft.isDisposed() {
		return nil, inference.ErrDisposed
	}
	return ft, nil
}

func (b *fakeBackend) FromPixels(img image.Image) (inference.Tensor, error) {
	if b.failOp == "from pixels" {
		return nil, errBoom
	}
	r := img.Bounds()
	return b.tensor([]int{r.Dy(), r.Dx(), 3}), nil
}

func (b *fakeBackend) ResizeBilinear(t inference.Tensor, h, w int) (inference.Tensor, error) {
	if _, err := b.check("resize", t); err != nil {
		return nil, err
	}
	b.resized = [2]int{h, w}
	return b.tensor([]int{h, w, 3}), nil
}

func (b *fakeBackend) Cast(t inference.Tensor) (inference.Tensor, error) {
	ft, err := b.check("cast", t)
	if err != nil {
		return nil, err
	}
	return b.tensor(ft.shape), nil
}

func (b *fakeBackend) Affine(t inference.Tensor, scale, offset float32) (inference.Tensor, error) {
	ft, err := b.check("scale", t)
	if err != nil {
		return nil, err
	}
	b.affines = append(b.affines, affineCall{scale, offset})
	return b.tensor(ft.shape), nil
}

func (b *fakeBackend) ExpandDims(t inference.Tensor, axis int) (inference.Tensor, error) {
	ft, err := b.check("batch", t)
	if err != nil {
		return nil, err
	}
	return b.tensor(append([]int{1}, ft.shape...)), nil
}

type fakeTensor struct {
	b        *fakeBackend
	shape    []int
	data     []float32
	failRead bool

	mu       sync.Mutex
	disposed bool
}

func (t *fakeTensor) Shape() []int { return slices.Clone(t.shape) }

func (t *fakeTensor) Data(ctx context.Context) ([]float32, error) {
	if t.failRead {
		return nil, errBoom
	}
	if t.isDisposed() {
		return nil, inference.ErrDisposed
	}
	return slices.Clone(t.data), nil
}

func (t *fakeTensor) isDisposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

func (t *fakeTensor) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.disposed = true
	t.b.mu.Lock()
	t.b.released++
	t.b.mu.Unlock()
}

type fakeLayer struct {
	name, class string
	out         []int
}

func (l fakeLayer) Name() string      { return l.name }
func (l fakeLayer) ClassName() string { return l.class }

type fakeModel struct {
	backend     *fakeBackend
	input       []int
	layers      []fakeLayer
	failBuild   map[int]bool
	failPredict map[int]bool
	failRead    map[int]bool
	cancelAt    int
	cancel      context.CancelFunc

	mu     sync.Mutex
	opened int
	closed int
}

func newFakeModel(layers ...fakeLayer) *fakeModel {
	return &fakeModel{
		backend:     &fakeBackend{},
		input:       []int{-1, 8, 8, 3},
		layers:      layers,
		failBuild:   map[int]bool{},
		failPredict: map[int]bool{},
		failRead:    map[int]bool{},
		cancelAt:    -1,
	}
}

func (m *fakeModel) Backend() inference.Backend { return m.backend }
func (m *fakeModel) InputShape() []int          { return m.input }

func (m *fakeModel) Layers() []inference.Layer {
	out := make([]inference.Layer, len(m.layers))
	for i, l := range m.layers {
		out[i] = l
	}
	return out
}

func (m *fakeModel) Truncate(i int) (inference.Predictor, error) {
	if m.failBuild[i] {
		return nil, errBoom
	}
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
	return &fakePredictor{model: m, index: i}, nil
}

func (m *fakeModel) openPredictors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened - m.closed
}

type symmetricModel struct{ *fakeModel }

func (symmetricModel) Normalization() inference.Normalization { return inference.NormalizeSymmetric }

type fakePredictor struct {
	model  *fakeModel
	index  int
	closed bool
}

func (p *fakePredictor) OutputShape() []int {
	return append([]int{-1}, p.model.layers[p.index].out...)
}

func (p *fakePredictor) Predict(ctx context.Context, input inference.Tensor) (inference.Tensor, error) {
	if p.model.cancelAt == p.index {
		p.model.cancel()
		return nil, ctx.Err()
	}
	if p.model.failPredict[p.index] {
		return nil, errBoom
	}
	if input.(*fakeTensor).isDisposed() {
		return nil, inference.ErrDisposed
	}
	t := p.model.backend.tensor(append([]int{1}, p.model.layers[p.index].out...))
	t.failRead = p.model.failRead[p.index]
	return t, nil
}

func (p *fakePredictor) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.model.mu.Lock()
	p.model.closed++
	p.model.mu.Unlock()
	return nil
}

func fourLayers() *fakeModel {
	return newFakeModel(
		fakeLayer{"input", "InputLayer", []int{8, 8, 3}},
		fakeLayer{"conv", "Conv2D", []int{8, 8, 4}},
		fakeLayer{"mystery", "", []int{8, 8, 4}},
		fakeLayer{"dense", "Dense", []int{10}},
	)
}
