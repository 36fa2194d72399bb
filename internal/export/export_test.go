package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/layout"
	"github.com/san-kum/layerscope/internal/viz"
)

func TestLayoutDocument(t *testing.T) {
	layers := []graph.Layer{
		{Name: "input", Kind: graph.KindInput},
		{Name: "conv", Kind: graph.KindConv2D},
		{Name: "add", Kind: graph.KindAdd},
	}
	g := graph.New(layers, graph.DefaultResidualStrategy())
	r := layout.Compute(g, 6)
	doc := NewLayoutDocument("custom", "graph", g, r)

	path := filepath.Join(t.TempDir(), "layout.json")
	if err := ExportLayout(path, doc); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var got LayoutDocument
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Layers) != 3 || got.Layers[1].Kind != "conv2d" {
		t.Fatalf("layers = %+v", got.Layers)
	}
	if got.Layers[2].Position.Z-got.Layers[1].Position.Z != 6 {
		t.Errorf("spacing not preserved: %+v", got.Layers)
	}
	if len(got.Edges) != 2 || len(got.Residuals) != len(g.Residuals) {
		t.Errorf("edges = %v residuals = %v", got.Edges, got.Residuals)
	}
	if got.Camera != r.Camera {
		t.Errorf("camera = %+v, want %+v", got.Camera, r.Camera)
	}
}

func TestWriteSummary(t *testing.T) {
	records := []capture.Record{
		{LayerName: "input", Type: "InputLayer", Outcome: capture.Activation{Data: []float32{-1, 0, 2, 3}, Shape: []int{1, 2, 2}}},
		{LayerName: "conv", Type: "Conv2D", Outcome: capture.Failure{Err: errors.New("boom")}},
	}
	var buf bytes.Buffer
	if err := WriteSummary(&buf, records); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	header := strings.Join(rows[0], ",")
	if header != "index,name,type,status,shape,min,max,active,total,mean,peak,sparsity,error" {
		t.Errorf("header = %v", header)
	}
	col := func(name string) int {
		for i, h := range rows[0] {
			if h == name {
				return i
			}
		}
		t.Fatalf("no column %q", name)
		return -1
	}

	ok := rows[1]
	if ok[col("status")] != "ok" || ok[col("shape")] != "1x2x2" || ok[col("min")] != "-1.000000" {
		t.Errorf("ok row = %v", ok)
	}
	if ok[col("active")] != "2" || ok[col("total")] != "4" {
		t.Errorf("ok counts = %v", ok)
	}
	if ok[col("mean")] != "1.000000" || ok[col("peak")] != "3.000000" || ok[col("sparsity")] != "0.500000" {
		t.Errorf("ok reductions = %v", ok)
	}

	failed := rows[2]
	if len(failed) != len(rows[0]) {
		t.Fatalf("failed row has %d fields, want %d", len(failed), len(rows[0]))
	}
	if failed[col("status")] != "failed" || failed[col("error")] != "boom" || failed[col("peak")] != "" {
		t.Errorf("failed row = %v", failed)
	}
}

func TestCanvasToSVG(t *testing.T) {
	if CanvasToSVG(nil, 2, "#fff") != "" {
		t.Error("nil canvas produced output")
	}
	c := viz.NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)
	svg := CanvasToSVG(c, 2, "#00ff00")
	if n := strings.Count(svg, "<circle"); n != 2 {
		t.Errorf("circles = %d, want 2", n)
	}
	if !strings.Contains(svg, `fill="#00ff00"`) {
		t.Error("color not applied")
	}
}

func TestProfileToSVG(t *testing.T) {
	if ProfileToSVG([]float64{1}, 100, 50, "#fff") != "" {
		t.Error("single value produced output")
	}
	if ProfileToSVG([]float64{math.NaN(), math.NaN()}, 100, 50, "#fff") != "" {
		t.Error("all-NaN profile produced output")
	}
	svg := ProfileToSVG([]float64{0, 1, math.NaN(), 2}, 100, 50, "#fff")
	if n := strings.Count(svg, "M"); n < 2 {
		t.Errorf("NaN did not break the line: %s", svg)
	}
}
