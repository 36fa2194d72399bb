package cpu

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/san-kum/layerscope/internal/inference"
)

// Stats counts tensor lifetimes. Live is Acquired - Released.
type Stats struct {
	Acquired int64
	Released int64
	Live     int64
}

type Backend struct {
	workers  int
	nextID   atomic.Uint64
	acquired atomic.Int64
	released atomic.Int64
}

var _ inference.Backend = (*Backend)(nil)

func NewBackend(workers int) *Backend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Backend{workers: workers}
}

func (b *Backend) Name() string { return "cpu" }
func (b *Backend) Workers() int { return b.workers }

func (b *Backend) Stats() Stats {
	acq, rel := b.acquired.Load(), b.released.Load()
	return Stats{Acquired: acq, Released: rel, Live: acq - rel}
}

func (b *Backend) newTensor(shape []int, data []float32, dt dtype) *Tensor {
	b.acquired.Add(1)
	return &Tensor{
		backend: b,
		id:      b.nextID.Add(1),
		shape:   append([]int(nil), shape...),
		data:    data,
		dtype:   dt,
	}
}

// NewTensor wraps a copy of data. len(data) must match shape.
func (b *Backend) NewTensor(shape []int, data []float32) (*Tensor, error) {
	if numElements(shape) != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", inference.ErrShapeMismatch, len(data), shape)
	}
	return b.newTensor(shape, append([]float32(nil), data...), float32Type), nil
}

func (b *Backend) own(t inference.Tensor) (*Tensor, []float32, error) {
	ct, ok := t.(*Tensor)
	if !ok || ct.backend != b {
		return nil, nil, fmt.Errorf("cpu: tensor %T does not belong to this backend", t)
	}
	data, err := ct.values()
	if err != nil {
		return nil, nil, err
	}
	return ct, data, nil
}

// FromPixels returns an int32 tensor of shape [height, width, 3].
func (b *Backend) FromPixels(img image.Image) (inference.Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("cpu: nil image")
	}
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("cpu: empty image %v", bounds)
	}
	data := make([]float32, h*w*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := (y*w + x) * 3
			data[i] = float32(r >> 8)
			data[i+1] = float32(g >> 8)
			data[i+2] = float32(bl >> 8)
		}
	}
	return b.newTensor([]int{h, w, 3}, data, int32Type), nil
}

// ResizeBilinear resizes the two spatial axes of an HWC or NHWC tensor
// without corner alignment.
func (b *Backend) ResizeBilinear(t inference.Tensor, height, width int) (inference.Tensor, error) {
	src, data, err := b.own(t)
	if err != nil {
		return nil, err
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: resize to %dx%d", inference.ErrShapeMismatch, height, width)
	}
	shape := src.shape
	batch := 1
	switch len(shape) {
	case 3:
	case 4:
		batch, shape = shape[0], shape[1:]
	default:
		return nil, fmt.Errorf("%w: resize needs rank 3 or 4, got %v", inference.ErrShapeMismatch, src.shape)
	}
	inH, inW, c := shape[0], shape[1], shape[2]
	out := make([]float32, batch*height*width*c)
	scaleY := float64(inH) / float64(height)
	scaleX := float64(inW) / float64(width)

	for n := 0; n < batch; n++ {
		in := data[n*inH*inW*c : (n+1)*inH*inW*c]
		dst := out[n*height*width*c : (n+1)*height*width*c]
		for y := 0; y < height; y++ {
			sy := float64(y) * scaleY
			y0 := int(math.Floor(sy))
			y1 := min(y0+1, inH-1)
			fy := float32(sy - float64(y0))
			for x := 0; x < width; x++ {
				sx := float64(x) * scaleX
				x0 := int(math.Floor(sx))
				x1 := min(x0+1, inW-1)
				fx := float32(sx - float64(x0))
				for ch := 0; ch < c; ch++ {
					tl := in[(y0*inW+x0)*c+ch]
					tr := in[(y0*inW+x1)*c+ch]
					bl := in[(y1*inW+x0)*c+ch]
					br := in[(y1*inW+x1)*c+ch]
					top := tl + (tr-tl)*fx
					bot := bl + (br-bl)*fx
					dst[(y*width+x)*c+ch] = top + (bot-top)*fy
				}
			}
		}
	}

	outShape := []int{height, width, c}
	if len(src.shape) == 4 {
		outShape = []int{batch, height, width, c}
	}
	return b.newTensor(outShape, out, float32Type), nil
}

func (b *Backend) Cast(t inference.Tensor) (inference.Tensor, error) {
	src, data, err := b.own(t)
	if err != nil {
		return nil, err
	}
	return b.newTensor(src.shape, append([]float32(nil), data...), float32Type), nil
}

func (b *Backend) Affine(t inference.Tensor, scale, offset float32) (inference.Tensor, error) {
	src, data, err := b.own(t)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = v*scale + offset
	}
	return b.newTensor(src.shape, out, float32Type), nil
}

func (b *Backend) ExpandDims(t inference.Tensor, axis int) (inference.Tensor, error) {
	src, data, err := b.own(t)
	if err != nil {
		return nil, err
	}
	if axis < 0 || axis > len(src.shape) {
		return nil, fmt.Errorf("%w: axis %d for rank %d", inference.ErrShapeMismatch, axis, len(src.shape))
	}
	shape := make([]int, 0, len(src.shape)+1)
	shape = append(shape, src.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, src.shape[axis:]...)
	return b.newTensor(shape, append([]float32(nil), data...), src.dtype), nil
}
