package graph

// DefaultLookback is the span of one MobileNetV2 inverted-residual block.
const DefaultLookback = 6

// ResidualStrategy decides which non-consecutive edges a layer list has.
type ResidualStrategy interface {
	Infer(layers []Layer) []Edge
}

// Lookback connects each add layer at index i to index max(0, i-Window).
// It ignores what the network actually wires together; an architecture whose
// skip connections span a different number of layers gets wrong sources.
type Lookback struct {
	Window int
}

func DefaultResidualStrategy() ResidualStrategy {
	return Lookback{Window: DefaultLookback}
}

func (s Lookback) Infer(layers []Layer) []Edge {
	window := s.Window
	if window <= 0 {
		window = DefaultLookback
	}
	edges := make([]Edge, 0)
	for i, l := range layers {
		// An add at index 0 has no earlier layer to connect from.
		if l.Kind != KindAdd || i == 0 {
			continue
		}
		edges = append(edges, Edge{From: max(0, i-window), To: i})
	}
	return edges
}

// Explicit reads inbound layer names from Layer.Inputs. Only connections that
// skip at least one layer are reported; unresolved names are ignored.
type Explicit struct{}

func (Explicit) Infer(layers []Layer) []Edge {
	index := make(map[string]int, len(layers))
	for i, l := range layers {
		if _, dup := index[l.Name]; !dup {
			index[l.Name] = i
		}
	}
	edges := make([]Edge, 0)
	for i, l := range layers {
		for _, in := range l.Inputs {
			j, ok := index[in]
			if !ok || j >= i-1 {
				continue
			}
			edges = append(edges, Edge{From: j, To: i})
		}
	}
	return edges
}

// Fallback uses Explicit when any layer declares inputs and Lookback
// otherwise.
type Fallback struct {
	Lookback Lookback
}

func (s Fallback) Infer(layers []Layer) []Edge {
	for _, l := range layers {
		if len(l.Inputs) > 0 {
			return Explicit{}.Infer(layers)
		}
	}
	return s.Lookback.Infer(layers)
}
