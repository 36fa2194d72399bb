package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extract resolves the layer list in raw and builds a graph. Residual edges
// come from declared inputs when any layer has them, and from the default
// lookback otherwise. See the package documentation for accepted shapes.
func Extract(raw any) (Graph, error) {
	return ExtractWith(raw, Fallback{Lookback: Lookback{Window: DefaultLookback}})
}

// ExtractWith is Extract with a caller-chosen residual strategy.
func ExtractWith(raw any, strategy ResidualStrategy) (Graph, error) {
	items, ok := findLayers(raw)
	if !ok || len(items) == 0 {
		return Graph{}, ErrNotFound
	}

	layers := make([]Layer, len(items))
	for i, item := range items {
		layers[i] = normalize(item)
	}
	assignNames(layers)
	return New(layers, strategy), nil
}

// ExtractJSON decodes a JSON description and extracts from it.
func ExtractJSON(data []byte) (Graph, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Graph{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Extract(raw)
}

// ExtractYAML decodes a YAML description and extracts from it. JSON is valid
// YAML, so this also accepts JSON input.
func ExtractYAML(data []byte) (Graph, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Graph{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Extract(raw)
}

func findLayers(raw any) ([]any, bool) {
	if seq, ok := asSeq(raw); ok {
		return seq, true
	}
	root, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	if model, ok := asMap(root["model"]); ok {
		if seq, ok := asSeq(model["layers"]); ok {
			return seq, true
		}
	}
	if seq, ok := asSeq(root["layers"]); ok {
		return seq, true
	}
	if model, ok := asMap(root["model"]); ok {
		if inner, ok := asMap(model["model"]); ok {
			if seq, ok := asSeq(inner["layers"]); ok {
				return seq, true
			}
		}
	}
	return nil, false
}

// assignNames keeps the first use of every declared name and gives every
// other layer a positional placeholder that collides with no kept name.
func assignNames(layers []Layer) {
	taken := make(map[string]bool, len(layers))
	keep := make([]bool, len(layers))
	for i, l := range layers {
		if l.Name != "" && !taken[l.Name] {
			taken[l.Name] = true
			keep[i] = true
		}
	}
	for i := range layers {
		if keep[i] {
			continue
		}
		base := placeholderName(i)
		name := base
		for n := 1; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[name] = true
		layers[i].Name = name
	}
}

// normalize reads a layer object. Keras-style objects keep their attributes
// under "config"; both levels are consulted, the outer one first.
func normalize(item any) Layer {
	obj, ok := asMap(item)
	if !ok {
		return Layer{Kind: KindUnknown}
	}
	cfg, _ := asMap(obj["config"])
	get := func(keys ...string) any {
		for _, k := range keys {
			if v, ok := obj[k]; ok && v != nil {
				return v
			}
		}
		for _, k := range keys {
			if v, ok := cfg[k]; ok && v != nil {
				return v
			}
		}
		return nil
	}

	l := Layer{
		Name:       asString(get("name")),
		Kind:       ParseKind(asString(get("type", "kind", "class_name", "className"))),
		Filters:    asInt(get("filters")),
		KernelSize: asPair(get("kernelSize", "kernel_size")),
		Strides:    asPair(get("strides")),
		Units:      asInt(get("units")),
		Activation: asString(get("activation")),
		PoolSize:   asPair(get("poolSize", "pool_size")),
		PoolType:   asString(get("poolType", "pool_type")),
		Shape:      asInts(get("shape", "batch_input_shape", "inputShape")),
		Inputs:     asStrings(get("inputs", "inbound")),
	}
	if l.Kind == KindActivation && l.Activation == "" {
		// "ReLU" or "Softmax" as the class name carries the function itself.
		l.Activation = strings.ToLower(asString(get("type", "kind", "class_name", "className")))
		if l.Activation == "activation" {
			l.Activation = ""
		}
	}
	if l.Kind == KindPooling2D && l.PoolType == "" {
		l.PoolType = poolTypeFromClass(asString(get("type", "kind", "class_name", "className")))
	}
	return l
}

func poolTypeFromClass(class string) string {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "global") && strings.Contains(c, "average"):
		return "global_avg"
	case strings.Contains(c, "global"):
		return "global_max"
	case strings.Contains(c, "average"):
		return "avg"
	case strings.Contains(c, "max"):
		return "max"
	}
	return ""
}

func asSeq(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case fmt.Stringer:
		return s.String()
	}
	return ""
}

func asInt(v any) int {
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// asPair accepts a scalar (square) or a list of at least two numbers.
func asPair(v any) [2]int {
	if seq, ok := asSeq(v); ok {
		var p [2]int
		switch len(seq) {
		case 0:
		case 1:
			p[0], p[1] = asInt(seq[0]), asInt(seq[0])
		default:
			p[0], p[1] = asInt(seq[0]), asInt(seq[1])
		}
		return p
	}
	if n := asInt(v); n != 0 {
		return [2]int{n, n}
	}
	return [2]int{}
}

// asInts keeps nulls (batch dimensions) as -1.
func asInts(v any) []int {
	seq, ok := asSeq(v)
	if !ok {
		return nil
	}
	out := make([]int, len(seq))
	for i, x := range seq {
		if x == nil {
			out[i] = -1
			continue
		}
		out[i] = asInt(x)
	}
	return out
}

func asStrings(v any) []string {
	seq, ok := asSeq(v)
	if !ok {
		if s := asString(v); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(seq))
	for _, x := range seq {
		if s := asString(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}
