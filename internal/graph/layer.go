package graph

import "fmt"

// Layer describes one layer of a network. Zero values mean "not set".
type Layer struct {
	Name       string   `json:"name" yaml:"name"`
	Kind       Kind     `json:"type" yaml:"type"`
	Filters    int      `json:"filters,omitempty" yaml:"filters,omitempty"`
	KernelSize [2]int   `json:"kernelSize,omitempty" yaml:"kernel_size,omitempty"`
	Strides    [2]int   `json:"strides,omitempty" yaml:"strides,omitempty"`
	Units      int      `json:"units,omitempty" yaml:"units,omitempty"`
	Activation string   `json:"activation,omitempty" yaml:"activation,omitempty"`
	PoolSize   [2]int   `json:"poolSize,omitempty" yaml:"pool_size,omitempty"`
	PoolType   string   `json:"poolType,omitempty" yaml:"pool_type,omitempty"`
	Shape      []int    `json:"shape,omitempty" yaml:"shape,omitempty"`
	Inputs     []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// Edge connects two layer indices. From is always less than To.
type Edge struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Graph is an ordered layer list plus the residual edges inferred for it.
// Index order is execution order.
type Graph struct {
	Layers    []Layer `json:"layers"`
	Residuals []Edge  `json:"residuals"`
}

// New builds a graph from an ordered layer list. A nil strategy means
// Lookback with the default window.
func New(layers []Layer, strategy ResidualStrategy) Graph {
	if strategy == nil {
		strategy = DefaultResidualStrategy()
	}
	owned := make([]Layer, len(layers))
	copy(owned, layers)
	return Graph{
		Layers:    owned,
		Residuals: strategy.Infer(owned),
	}
}

func (g Graph) Len() int { return len(g.Layers) }

// Index returns the position of the named layer, or -1.
func (g Graph) Index(name string) int {
	for i, l := range g.Layers {
		if l.Name == name {
			return i
		}
	}
	return -1
}

func placeholderName(index int) string {
	return fmt.Sprintf("layer_%d", index)
}
