package architecture

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/san-kum/layerscope/internal/graph"
)

// Model-type tags understood by the default registry.
const (
	MobileNetV2Vis = "mobilenetv2-vis"
	MobileNetV2    = "mobilenetv2"
	MobileNetV1    = "mobilenetv1"
	Simple         = "simple"
	Embedded       = "embedded"
	Custom         = "custom"
)

// Source tells where a resolved graph came from.
type Source int

const (
	SourceExtracted Source = iota
	SourceFallback
)

func (s Source) String() string {
	if s == SourceFallback {
		return "fallback"
	}
	return "extracted"
}

type Registry struct {
	fallbacks map[string]func() []graph.Layer
	def       func() []graph.Layer
	logger    *log.Logger
}

func NewRegistry() *Registry {
	r := &Registry{
		fallbacks: make(map[string]func() []graph.Layer),
		def:       SimpleCNN,
		logger:    log.Default(),
	}

	r.fallbacks[MobileNetV2Vis] = MobileNetV2Detailed
	r.fallbacks[MobileNetV2] = MobileNetV2Summary
	r.fallbacks[MobileNetV1] = MobileNetV1Summary
	r.fallbacks[Simple] = SimpleCNN
	r.fallbacks[Embedded] = SimpleCNN
	r.fallbacks[Custom] = SimpleCNN

	return r
}

// SetLogger replaces the logger used to report extraction misses.
func (r *Registry) SetLogger(l *log.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Register adds or replaces the fallback layers for a model type.
func (r *Registry) Register(modelType string, fn func() []graph.Layer) {
	r.fallbacks[modelType] = fn
}

// Fallback returns the graph for a model type, using the simple CNN for
// unregistered tags. It is never empty.
func (r *Registry) Fallback(modelType string) graph.Graph {
	fn, ok := r.fallbacks[modelType]
	if !ok {
		fn = r.def
	}
	layers := fn()
	if len(layers) == 0 {
		layers = r.def()
	}
	return graph.New(layers, nil)
}

// Resolve extracts a graph from raw and falls back by model type when the
// description has no recognizable layer list. Resolve never fails.
func (r *Registry) Resolve(raw any, modelType string) (graph.Graph, Source) {
	g, err := graph.Extract(raw)
	if err == nil {
		r.logger.Debug("extracted layers", "model_type", modelType, "layers", g.Len())
		return g, SourceExtracted
	}
	if !errors.Is(err, graph.ErrNotFound) {
		r.logger.Warn("extraction failed", "model_type", modelType, "err", err)
	} else {
		r.logger.Warn("no layers in model description, using fallback", "model_type", modelType)
	}
	return r.Fallback(modelType), SourceFallback
}

// ResolveBytes decodes data as YAML (a superset of JSON) before resolving.
// Undecodable input resolves to the fallback like any other miss.
func (r *Registry) ResolveBytes(data []byte, modelType string) (graph.Graph, Source) {
	g, err := graph.ExtractYAML(data)
	if err == nil {
		return g, SourceExtracted
	}
	r.logger.Warn("using fallback architecture", "model_type", modelType, "err", err)
	return r.Fallback(modelType), SourceFallback
}

func (r *Registry) ListModelTypes() []string {
	names := make([]string, 0, len(r.fallbacks))
	for name := range r.fallbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe is a one-line summary used by the CLI.
func (r *Registry) Describe(modelType string) string {
	g := r.Fallback(modelType)
	return fmt.Sprintf("%s: %d layers, %d residual edges, spacing %.0f",
		modelType, g.Len(), len(g.Residuals), SpacingFor(modelType))
}
