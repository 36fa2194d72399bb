package cpu

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/san-kum/layerscope/internal/inference"
)

// kernel computes one layer's output from its operands' values.
type kernel func(inputs [][]float32) []float32

// parallelFor splits [0, n) into contiguous chunks, one per worker.
func parallelFor(workers, n int, fn func(lo, hi int)) {
	if workers <= 1 || n < 2 {
		fn(0, n)
		return
	}
	workers = min(workers, n)
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(lo, hi)
		}()
	}
	wg.Wait()
}

func heUniform(rng *rand.Rand, fanIn, n int) []float32 {
	limit := math.Sqrt(6 / float64(max(fanIn, 1)))
	w := make([]float32, n)
	for i := range w {
		w[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	return w
}

func pair(v [2]int, def int) (int, int) {
	a, b := v[0], v[1]
	if a <= 0 {
		a = def
	}
	if b <= 0 {
		b = a
	}
	return a, b
}

// samePadding returns the output extent and leading pad for one axis.
func samePadding(in, k, s int) (out, pad int) {
	out = (in + s - 1) / s
	total := max((out-1)*s+k-in, 0)
	return out, total / 2
}

func spatial(shape []int) (h, w, c int, err error) {
	if len(shape) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: want [1 h w c], got %v", inference.ErrShapeMismatch, shape)
	}
	return shape[1], shape[2], shape[3], nil
}

type conv2D struct {
	h, w, c, f     int
	kh, kw, sh, sw int
	oh, ow         int
	padT, padL     int
	weights        []float32 // [kh][kw][c][f]
	bias           []float32
	act            activation
}

func newConv2D(rng *rand.Rand, in []int, filters int, k, s [2]int, act activation) (*conv2D, []int, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, nil, err
	}
	if filters <= 0 {
		return nil, nil, fmt.Errorf("%w: conv2d needs filters > 0", inference.ErrUnsupportedLayer)
	}
	l := &conv2D{h: h, w: w, c: c, f: filters, act: act}
	l.kh, l.kw = pair(k, 3)
	l.sh, l.sw = pair(s, 1)
	l.oh, l.padT = samePadding(h, l.kh, l.sh)
	l.ow, l.padL = samePadding(w, l.kw, l.sw)
	l.weights = heUniform(rng, l.kh*l.kw*c, l.kh*l.kw*c*filters)
	l.bias = make([]float32, filters)
	return l, []int{1, l.oh, l.ow, filters}, nil
}

func (l *conv2D) forward(workers int) kernel {
	return func(inputs [][]float32) []float32 {
		in := inputs[0]
		out := make([]float32, l.oh*l.ow*l.f)
		parallelFor(workers, l.oh, func(lo, hi int) {
			acc := make([]float32, l.f)
			for oy := lo; oy < hi; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					copy(acc, l.bias)
					for ky := 0; ky < l.kh; ky++ {
						iy := oy*l.sh + ky - l.padT
						if iy < 0 || iy >= l.h {
							continue
						}
						for kx := 0; kx < l.kw; kx++ {
							ix := ox*l.sw + kx - l.padL
							if ix < 0 || ix >= l.w {
								continue
							}
							px := in[(iy*l.w+ix)*l.c : (iy*l.w+ix+1)*l.c]
							wbase := (ky*l.kw + kx) * l.c * l.f
							for ci, v := range px {
								if v == 0 {
									continue
								}
								row := l.weights[wbase+ci*l.f : wbase+(ci+1)*l.f]
								for fi, wv := range row {
									acc[fi] += v * wv
								}
							}
						}
					}
					copy(out[(oy*l.ow+ox)*l.f:], acc)
				}
			}
		})
		l.act.apply(out, l.f)
		return out
	}
}

type depthwise struct {
	h, w, c        int
	kh, kw, sh, sw int
	oh, ow         int
	padT, padL     int
	weights        []float32 // [kh][kw][c]
	act            activation
}

func newDepthwise(rng *rand.Rand, in []int, k, s [2]int, act activation) (*depthwise, []int, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, nil, err
	}
	l := &depthwise{h: h, w: w, c: c, act: act}
	l.kh, l.kw = pair(k, 3)
	l.sh, l.sw = pair(s, 1)
	l.oh, l.padT = samePadding(h, l.kh, l.sh)
	l.ow, l.padL = samePadding(w, l.kw, l.sw)
	l.weights = heUniform(rng, l.kh*l.kw, l.kh*l.kw*c)
	return l, []int{1, l.oh, l.ow, c}, nil
}

func (l *depthwise) forward(workers int) kernel {
	return func(inputs [][]float32) []float32 {
		in := inputs[0]
		out := make([]float32, l.oh*l.ow*l.c)
		parallelFor(workers, l.oh, func(lo, hi int) {
			for oy := lo; oy < hi; oy++ {
				for ox := 0; ox < l.ow; ox++ {
					dst := out[(oy*l.ow+ox)*l.c : (oy*l.ow+ox+1)*l.c]
					for ky := 0; ky < l.kh; ky++ {
						iy := oy*l.sh + ky - l.padT
						if iy < 0 || iy >= l.h {
							continue
						}
						for kx := 0; kx < l.kw; kx++ {
							ix := ox*l.sw + kx - l.padL
							if ix < 0 || ix >= l.w {
								continue
							}
							px := in[(iy*l.w+ix)*l.c:]
							wk := l.weights[(ky*l.kw+kx)*l.c:]
							for ci := range dst {
								dst[ci] += px[ci] * wk[ci]
							}
						}
					}
				}
			}
		})
		l.act.apply(out, l.c)
		return out
	}
}

// batchNorm is folded to a per-channel scale and shift.
type batchNorm struct {
	gamma, beta []float32
}

func newBatchNorm(rng *rand.Rand, in []int) (*batchNorm, []int, error) {
	if len(in) < 2 {
		return nil, nil, fmt.Errorf("%w: batchnorm on %v", inference.ErrShapeMismatch, in)
	}
	c := in[len(in)-1]
	l := &batchNorm{gamma: make([]float32, c), beta: make([]float32, c)}
	for i := 0; i < c; i++ {
		l.gamma[i] = float32(1 + (rng.Float64()*2-1)*0.1)
		l.beta[i] = float32((rng.Float64()*2 - 1) * 0.1)
	}
	return l, in, nil
}

func (l *batchNorm) forward(inputs [][]float32) []float32 {
	in := inputs[0]
	c := len(l.gamma)
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = v*l.gamma[i%c] + l.beta[i%c]
	}
	return out
}

type activation string

func parseActivation(s string) (activation, error) {
	a := activation(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case "", "linear", "relu", "relu6", "sigmoid", "tanh", "softmax":
		return a, nil
	}
	return "", fmt.Errorf("%w: activation %q", inference.ErrUnsupportedLayer, s)
}

// apply transforms data in place; softmax normalizes along the last axis of
// size channels.
func (a activation) apply(data []float32, channels int) {
	switch a {
	case "relu":
		for i, v := range data {
			data[i] = max(v, 0)
		}
	case "relu6":
		for i, v := range data {
			data[i] = min(max(v, 0), 6)
		}
	case "sigmoid":
		for i, v := range data {
			data[i] = float32(1 / (1 + math.Exp(-float64(v))))
		}
	case "tanh":
		for i, v := range data {
			data[i] = float32(math.Tanh(float64(v)))
		}
	case "softmax":
		if channels <= 0 {
			return
		}
		for base := 0; base+channels <= len(data); base += channels {
			row := data[base : base+channels]
			peak := row[0]
			for _, v := range row {
				peak = max(peak, v)
			}
			var sum float64
			for i, v := range row {
				e := math.Exp(float64(v - peak))
				row[i] = float32(e)
				sum += e
			}
			for i := range row {
				row[i] = float32(float64(row[i]) / sum)
			}
		}
	}
}

func (a activation) forward(channels int) kernel {
	return func(inputs [][]float32) []float32 {
		out := append([]float32(nil), inputs[0]...)
		a.apply(out, channels)
		return out
	}
}

func addForward(inputs [][]float32) []float32 {
	out := append([]float32(nil), inputs[0]...)
	for _, operand := range inputs[1:] {
		for i, v := range operand {
			out[i] += v
		}
	}
	return out
}

type pooling struct {
	h, w, c int
	ph, pw  int
	oh, ow  int
	useMax  bool
	global  bool
}

func newPooling(in []int, size [2]int, poolType string) (*pooling, []int, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, nil, err
	}
	l := &pooling{h: h, w: w, c: c}
	switch strings.ToLower(poolType) {
	case "", "max":
		l.useMax = true
	case "avg", "average":
	case "global_avg":
		l.global = true
	case "global_max":
		l.global, l.useMax = true, true
	default:
		return nil, nil, fmt.Errorf("%w: pool type %q", inference.ErrUnsupportedLayer, poolType)
	}
	if l.global {
		l.ph, l.pw, l.oh, l.ow = h, w, 1, 1
		return l, []int{1, c}, nil
	}
	l.ph, l.pw = pair(size, 2)
	l.ph, l.pw = min(l.ph, h), min(l.pw, w)
	l.oh, l.ow = h/l.ph, w/l.pw
	return l, []int{1, l.oh, l.ow, c}, nil
}

func (l *pooling) forward(inputs [][]float32) []float32 {
	in := inputs[0]
	out := make([]float32, l.oh*l.ow*l.c)
	area := float32(l.ph * l.pw)
	for oy := 0; oy < l.oh; oy++ {
		for ox := 0; ox < l.ow; ox++ {
			dst := out[(oy*l.ow+ox)*l.c : (oy*l.ow+ox+1)*l.c]
			for ci := range dst {
				var acc float32
				if l.useMax {
					acc = float32(math.Inf(-1))
				}
				for ky := 0; ky < l.ph; ky++ {
					for kx := 0; kx < l.pw; kx++ {
						v := in[((oy*l.ph+ky)*l.w+ox*l.pw+kx)*l.c+ci]
						if l.useMax {
							acc = max(acc, v)
						} else {
							acc += v
						}
					}
				}
				if !l.useMax {
					acc /= area
				}
				dst[ci] = acc
			}
		}
	}
	return out
}

func flattenForward(inputs [][]float32) []float32 {
	return append([]float32(nil), inputs[0]...)
}

// dense applies along the last axis.
type dense struct {
	in, units int
	weights   []float32 // [in][units]
	bias      []float32
	act       activation
}

func newDense(rng *rand.Rand, in []int, units int, act activation) (*dense, []int, error) {
	if len(in) < 2 {
		return nil, nil, fmt.Errorf("%w: dense on %v", inference.ErrShapeMismatch, in)
	}
	if units <= 0 {
		return nil, nil, fmt.Errorf("%w: dense needs units > 0", inference.ErrUnsupportedLayer)
	}
	last := in[len(in)-1]
	l := &dense{
		in: last, units: units, act: act,
		weights: heUniform(rng, last, last*units),
		bias:    make([]float32, units),
	}
	out := append([]int(nil), in...)
	out[len(out)-1] = units
	return l, out, nil
}

func (l *dense) forward(workers int) kernel {
	return func(inputs [][]float32) []float32 {
		in := inputs[0]
		rows := len(in) / l.in
		out := make([]float32, rows*l.units)
		parallelFor(workers, l.units, func(lo, hi int) {
			for r := 0; r < rows; r++ {
				x := in[r*l.in : (r+1)*l.in]
				dst := out[r*l.units : (r+1)*l.units]
				for u := lo; u < hi; u++ {
					acc := l.bias[u]
					for i, v := range x {
						acc += v * l.weights[i*l.units+u]
					}
					dst[u] = acc
				}
			}
		})
		l.act.apply(out, l.units)
		return out
	}
}
