package cpu

import (
	"context"
	"slices"
	"sync"

	"github.com/san-kum/layerscope/internal/inference"
)

type dtype int

const (
	float32Type dtype = iota
	int32Type
)

// Tensor is a dense row-major buffer. Integer tensors store whole numbers in
// the same float32 backing.
type Tensor struct {
	backend *Backend
	id      uint64
	shape   []int
	data    []float32
	dtype   dtype

	mu        sync.Mutex
	disposed  bool
	onDispose []func()
}

var _ inference.Tensor = (*Tensor)(nil)

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

func (t *Tensor) Data(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil, inference.ErrDisposed
	}
	return slices.Clone(t.data), nil
}

// Dispose releases the buffer. Calling it more than once is harmless.
func (t *Tensor) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.data = nil
	hooks := t.onDispose
	t.onDispose = nil
	t.mu.Unlock()

	t.backend.released.Add(1)
	for _, fn := range hooks {
		fn()
	}
}

func (t *Tensor) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// whenDisposed registers fn to run on Dispose. It reports false, without
// registering, when the tensor is already gone.
func (t *Tensor) whenDisposed(fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return false
	}
	t.onDispose = append(t.onDispose, fn)
	return true
}

// values returns the live backing slice for kernels. The caller must not
// retain it past Dispose.
func (t *Tensor) values() ([]float32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return nil, inference.ErrDisposed
	}
	return t.data, nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
