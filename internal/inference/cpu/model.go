package cpu

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"

	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/inference"
)

const (
	DefaultInputSize = 224
	inputChannels    = 3
)

var errClosed = errors.New("cpu: predictor closed")

type Option func(*Model)

// WithSeed fixes weight initialization. Layer i draws from seed+i.
func WithSeed(seed int64) Option {
	return func(m *Model) { m.seed = seed }
}

// WithInputSize overrides the spatial size declared by the input layer.
func WithInputSize(height, width int) Option {
	return func(m *Model) { m.inH, m.inW = height, width }
}

func WithNormalization(n inference.Normalization) Option {
	return func(m *Model) { m.norm = n }
}

type layerInfo struct {
	name, class string
}

func (l layerInfo) Name() string      { return l.name }
func (l layerInfo) ClassName() string { return l.class }

// node is one compiled layer. A node that failed to compile passes its first
// operand through so later layers still build, and keeps err for Truncate.
type node struct {
	info     layerInfo
	sources  []int // -1 is the model input
	outShape []int
	run      kernel
	err      error
}

// forwardPass holds every layer output computed so far for one input tensor.
type forwardPass struct {
	outputs [][]float32
	done    int
}

// Model is a randomly initialized network compiled from a layer graph. It
// produces activations with realistic shapes and value ranges; the values are
// not those of any trained network.
type Model struct {
	backend  *Backend
	seed     int64
	inH, inW int
	norm     inference.Normalization
	nodes    []node

	mu     sync.Mutex
	passes map[uint64]*forwardPass
}

var (
	_ inference.Model      = (*Model)(nil)
	_ inference.Normalizer = (*Model)(nil)
)

// Load compiles g. Operands follow layer order; an add layer also reads
// the input of its residual source, or the layers named in its Inputs.
func Load(b *Backend, g graph.Graph, opts ...Option) (*Model, error) {
	if g.Len() == 0 {
		return nil, fmt.Errorf("cpu: empty graph")
	}
	m := &Model{backend: b, seed: 1, passes: make(map[uint64]*forwardPass)}
	m.inH, m.inW = declaredInput(g.Layers[0])
	for _, opt := range opts {
		opt(m)
	}
	if m.inH <= 0 {
		m.inH = DefaultInputSize
	}
	if m.inW <= 0 {
		m.inW = DefaultInputSize
	}

	residualFrom := make(map[int]int, len(g.Residuals))
	for _, e := range g.Residuals {
		residualFrom[e.To] = e.From
	}

	m.nodes = make([]node, len(g.Layers))
	for i, l := range g.Layers {
		m.nodes[i] = m.compile(i, l, g, residualFrom)
	}
	return m, nil
}

func declaredInput(l graph.Layer) (int, int) {
	if l.Kind != graph.KindInput {
		return 0, 0
	}
	switch len(l.Shape) {
	case 3:
		return l.Shape[0], l.Shape[1]
	case 4:
		return l.Shape[1], l.Shape[2]
	}
	return 0, 0
}

func (m *Model) inputShape() []int { return []int{1, m.inH, m.inW, inputChannels} }

func (m *Model) shapeOf(src int) []int {
	if src < 0 {
		return m.inputShape()
	}
	return m.nodes[src].outShape
}

func (m *Model) compile(i int, l graph.Layer, g graph.Graph, residualFrom map[int]int) node {
	n := node{
		info:    layerInfo{name: l.Name, class: className(l)},
		sources: []int{i - 1},
	}
	in := m.shapeOf(i - 1)
	rng := rand.New(rand.NewSource(m.seed + int64(i)))
	workers := m.backend.workers

	fail := func(err error) node {
		n.err = fmt.Errorf("layer %d (%s): %w", i, l.Name, err)
		n.outShape = in
		n.run = flattenForward
		return n
	}

	act, err := parseActivation(l.Activation)
	if err != nil {
		return fail(err)
	}

	switch l.Kind {
	case graph.KindInput:
		n.outShape, n.run = in, flattenForward
	case graph.KindConv2D:
		c, out, err := newConv2D(rng, in, l.Filters, l.KernelSize, l.Strides, act)
		if err != nil {
			return fail(err)
		}
		n.outShape, n.run = out, c.forward(workers)
	case graph.KindDepthwiseConv2D:
		d, out, err := newDepthwise(rng, in, l.KernelSize, l.Strides, act)
		if err != nil {
			return fail(err)
		}
		n.outShape, n.run = out, d.forward(workers)
	case graph.KindBatchNorm:
		bn, out, err := newBatchNorm(rng, in)
		if err != nil {
			return fail(err)
		}
		n.outShape, n.run = out, bn.forward
	case graph.KindActivation:
		if act == "" {
			act = "relu"
		}
		n.outShape, n.run = in, act.forward(in[len(in)-1])
	case graph.KindAdd:
		operands, err := addOperands(i, l, g, residualFrom)
		if err != nil {
			return fail(err)
		}
		for _, src := range operands[1:] {
			if !slices.Equal(m.shapeOf(src), in) {
				return fail(fmt.Errorf("%w: add %v with %v", inference.ErrShapeMismatch, in, m.shapeOf(src)))
			}
		}
		n.sources, n.outShape, n.run = operands, in, addForward
	case graph.KindPooling2D:
		p, out, err := newPooling(in, l.PoolSize, l.PoolType)
		if err != nil {
			return fail(err)
		}
		n.outShape, n.run = out, p.forward
	case graph.KindFlatten:
		n.outShape, n.run = []int{1, numElements(in)}, flattenForward
	case graph.KindDense:
		d, out, err := newDense(rng, in, l.Units, act)
		if err != nil {
			return fail(err)
		}
		n.outShape, n.run = out, d.forward(workers)
	default:
		return fail(fmt.Errorf("%w: kind %s", inference.ErrUnsupportedLayer, l.Kind))
	}
	return n
}

// addOperands lists the producer indices an add layer sums. The first is
// always the preceding layer.
func addOperands(i int, l graph.Layer, g graph.Graph, residualFrom map[int]int) ([]int, error) {
	operands := []int{i - 1}
	if len(l.Inputs) > 0 {
		for _, name := range l.Inputs {
			j := g.Index(name)
			if j < 0 || j >= i {
				return nil, fmt.Errorf("%w: add input %q", inference.ErrUnsupportedLayer, name)
			}
			if j != i-1 {
				operands = append(operands, j)
			}
		}
	} else if from, ok := residualFrom[i]; ok {
		// The residual edge starts at the first layer of the block; the skip
		// connection carries that layer's input.
		operands = append(operands, from-1)
	}
	if len(operands) < 2 {
		return nil, fmt.Errorf("%w: add needs two operands", inference.ErrUnsupportedLayer)
	}
	return operands, nil
}

func className(l graph.Layer) string {
	switch l.Kind {
	case graph.KindInput:
		return "InputLayer"
	case graph.KindConv2D:
		return "Conv2D"
	case graph.KindDepthwiseConv2D:
		return "DepthwiseConv2D"
	case graph.KindBatchNorm:
		return "BatchNormalization"
	case graph.KindActivation:
		return "Activation"
	case graph.KindAdd:
		return "Add"
	case graph.KindPooling2D:
		switch l.PoolType {
		case "avg", "average":
			return "AveragePooling2D"
		case "global_avg":
			return "GlobalAveragePooling2D"
		case "global_max":
			return "GlobalMaxPooling2D"
		}
		return "MaxPooling2D"
	case graph.KindFlatten:
		return "Flatten"
	case graph.KindDense:
		return "Dense"
	}
	return ""
}

func (m *Model) Backend() inference.Backend { return m.backend }

func (m *Model) InputShape() []int { return []int{-1, m.inH, m.inW, inputChannels} }

func (m *Model) Normalization() inference.Normalization { return m.norm }

func (m *Model) Layers() []inference.Layer {
	out := make([]inference.Layer, len(m.nodes))
	for i := range m.nodes {
		out[i] = m.nodes[i].info
	}
	return out
}

// OutputShape reports layer index's compiled output shape.
func (m *Model) OutputShape(index int) []int {
	if index < 0 || index >= len(m.nodes) {
		return nil
	}
	return slices.Clone(m.nodes[index].outShape)
}

func (m *Model) Truncate(index int) (inference.Predictor, error) {
	if index < 0 || index >= len(m.nodes) {
		return nil, fmt.Errorf("%w: %d of %d", inference.ErrLayerIndex, index, len(m.nodes))
	}
	if err := m.nodes[index].err; err != nil {
		return nil, err
	}
	return &predictor{model: m, index: index}, nil
}

// CachedPasses is the number of input tensors with retained layer outputs.
func (m *Model) CachedPasses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passes)
}

// forward runs the network on input up to layer index, resuming from layer
// outputs already computed for the same tensor. Outputs are dropped when the
// input is disposed.
func (m *Model) forward(ctx context.Context, input inference.Tensor, index int) ([]float32, error) {
	t, data, err := m.backend.own(input)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(t.shape, m.inputShape()) {
		return nil, fmt.Errorf("%w: input %v, model expects %v", inference.ErrShapeMismatch, t.shape, m.inputShape())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pass, ok := m.passes[t.id]
	if !ok {
		pass = &forwardPass{outputs: make([][]float32, len(m.nodes))}
		id := t.id
		if !t.whenDisposed(func() { m.dropPass(id) }) {
			return nil, inference.ErrDisposed
		}
		m.passes[id] = pass
	}

	for k := pass.done; k <= index; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nd := &m.nodes[k]
		operands := make([][]float32, len(nd.sources))
		for j, src := range nd.sources {
			if src < 0 {
				operands[j] = data
			} else {
				operands[j] = pass.outputs[src]
			}
		}
		pass.outputs[k] = nd.run(operands)
		pass.done = k + 1
	}
	return slices.Clone(pass.outputs[index]), nil
}

func (m *Model) dropPass(id uint64) {
	m.mu.Lock()
	delete(m.passes, id)
	m.mu.Unlock()
}

type predictor struct {
	model *Model
	index int

	mu     sync.Mutex
	closed bool
}

func (p *predictor) Predict(ctx context.Context, input inference.Tensor) (inference.Tensor, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errClosed
	}
	out, err := p.model.forward(ctx, input, p.index)
	if err != nil {
		return nil, err
	}
	return p.model.backend.newTensor(p.model.nodes[p.index].outShape, out, float32Type), nil
}

func (p *predictor) OutputShape() []int {
	shape := slices.Clone(p.model.nodes[p.index].outShape)
	shape[0] = -1
	return shape
}

func (p *predictor) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
