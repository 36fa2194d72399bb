package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/layout"
)

// LayoutLayer is one positioned layer in a LayoutDocument.
type LayoutLayer struct {
	Index    int              `json:"index"`
	Name     string           `json:"name"`
	Kind     string           `json:"kind"`
	Position layout.Position3 `json:"position"`
}

// LayoutDocument is what an external renderer needs to draw the network.
type LayoutDocument struct {
	ModelType string        `json:"modelType"`
	Source    string        `json:"source"`
	Spacing   float64       `json:"spacing"`
	Layers    []LayoutLayer `json:"layers"`
	Edges     []graph.Edge  `json:"edges"`
	Residuals []graph.Edge  `json:"residuals"`
	Camera    layout.Camera `json:"camera"`
}

func NewLayoutDocument(modelType, source string, g graph.Graph, r layout.Result) LayoutDocument {
	doc := LayoutDocument{
		ModelType: modelType,
		Source:    source,
		Spacing:   r.Spacing,
		Layers:    make([]LayoutLayer, 0, len(g.Layers)),
		Edges:     r.Edges,
		Residuals: r.Residuals,
		Camera:    r.Camera,
	}
	for i, l := range g.Layers {
		var pos layout.Position3
		if i < len(r.Positions) {
			pos = r.Positions[i]
		}
		doc.Layers = append(doc.Layers, LayoutLayer{Index: i, Name: l.Name, Kind: l.Kind.String(), Position: pos})
	}
	return doc
}

func WriteLayout(w io.Writer, doc LayoutDocument) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func ExportLayout(path string, doc LayoutDocument) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteLayout(file, doc)
}
