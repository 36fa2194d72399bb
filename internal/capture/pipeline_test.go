package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"slices"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/inference"
	"github.com/san-kum/layerscope/internal/inference/cpu"
)

func quiet(opts ...Option) *Pipeline {
	return New(append([]Option{WithLogger(log.New(io.Discard))}, opts...)...)
}

func testImage() image.Image { return image.NewRGBA(image.Rect(0, 0, 16, 12)) }

func assertReleased(t *testing.T, m *fakeModel) {
	t.Helper()
	if live := m.backend.live(); live != 0 {
		t.Errorf("%d tensors still live", live)
	}
	if open := m.openPredictors(); open != 0 {
		t.Errorf("%d predictors still open", open)
	}
}

func TestCaptureRecordsEveryLayer(t *testing.T) {
	m := fourLayers()
	records, err := quiet().Capture(context.Background(), m, testImage())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(records) != len(m.layers) {
		t.Fatalf("got %d records, want %d", len(records), len(m.layers))
	}

	wantTypes := []string{"InputLayer", "Conv2D", "unknown", "Dense"}
	for i, r := range records {
		if r.LayerName != m.layers[i].name {
			t.Errorf("record %d name = %q", i, r.LayerName)
		}
		if r.Type != wantTypes[i] {
			t.Errorf("record %d type = %q, want %q", i, r.Type, wantTypes[i])
		}
		a, ok := r.Activation()
		if !ok {
			t.Fatalf("record %d failed: %v", i, r.Err())
		}
		if len(a.Shape) != len(m.layers[i].out)+1 {
			t.Errorf("record %d rank = %d", i, len(a.Shape))
		}
	}
	if m.backend.resized != [2]int{8, 8} {
		t.Errorf("resized to %v", m.backend.resized)
	}
	assertReleased(t, m)
}

func TestCaptureContainsLayerFailures(t *testing.T) {
	m := fourLayers()
	m.failBuild[1] = true
	m.failPredict[2] = true
	m.failRead[3] = true

	records, err := quiet().Capture(context.Background(), m, testImage())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Failed() {
		t.Errorf("record 0 should succeed: %v", records[0].Err())
	}

	tests := []struct {
		index int
		stage Stage
	}{
		{1, StageBuild},
		{2, StagePredict},
		{3, StageRead},
	}
	for _, tt := range tests {
		r := records[tt.index]
		if !r.Failed() {
			t.Errorf("record %d should be failed", tt.index)
			continue
		}
		var lerr *LayerError
		if !errors.As(r.Err(), &lerr) {
			t.Fatalf("record %d err %T not *LayerError", tt.index, r.Err())
		}
		if lerr.Index != tt.index || lerr.Stage != tt.stage || lerr.Name != m.layers[tt.index].name {
			t.Errorf("record %d: %+v", tt.index, lerr)
		}
		if !errors.Is(r.Err(), errBoom) {
			t.Errorf("record %d does not wrap cause", tt.index)
		}
	}

	ok, failed := Counts(records)
	if ok != 1 || failed != 3 {
		t.Errorf("Counts = %d, %d", ok, failed)
	}
	assertReleased(t, m)
}

func TestCaptureCancellation(t *testing.T) {
	m := fourLayers()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.cancelAt = 2
	m.cancel = cancel

	records, err := quiet().Capture(ctx, m, testImage())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil", records)
	}
	assertReleased(t, m)
}

func TestCaptureAlreadyCancelled(t *testing.T) {
	m := fourLayers()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := quiet().Capture(ctx, m, testImage()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	assertReleased(t, m)
}

func TestCapturePreprocessFailure(t *testing.T) {
	for _, op := range []string{"from pixels", "resize", "cast", "scale", "batch"} {
		t.Run(op, func(t *testing.T) {
			m := fourLayers()
			m.backend.failOp = op
			_, err := quiet().Capture(context.Background(), m, testImage())
			var perr *PreprocessError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *PreprocessError", err)
			}
			if perr.Op != op {
				t.Errorf("Op = %q", perr.Op)
			}
			if !errors.Is(err, errBoom) {
				t.Errorf("cause not wrapped: %v", err)
			}
			assertReleased(t, m)
		})
	}
}

func TestCapturePreconditions(t *testing.T) {
	if _, err := quiet().Capture(context.Background(), nil, testImage()); !errors.Is(err, ErrNoModel) {
		t.Errorf("nil model err = %v", err)
	}
	if _, err := quiet().Capture(context.Background(), fourLayers(), nil); !errors.Is(err, ErrNoImage) {
		t.Errorf("nil image err = %v", err)
	}
}

func TestCaptureNormalization(t *testing.T) {
	unit := []affineCall{{1.0 / 255, 0}}
	symmetric := []affineCall{{1.0 / 255, 0}, {2, -1}}

	tests := []struct {
		name  string
		model func(*fakeModel) inference.Model
		opts  []Option
		want  []affineCall
	}{
		{"default unit", func(m *fakeModel) inference.Model { return m }, nil, unit},
		{"model symmetric", func(m *fakeModel) inference.Model { return symmetricModel{m} }, nil, symmetric},
		{"option symmetric", func(m *fakeModel) inference.Model { return m },
			[]Option{WithNormalization(inference.NormalizeSymmetric)}, symmetric},
		{"option overrides model", func(m *fakeModel) inference.Model { return symmetricModel{m} },
			[]Option{WithNormalization(inference.NormalizeUnit)}, unit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fourLayers()
			if _, err := quiet(tt.opts...).Capture(context.Background(), tt.model(m), testImage()); err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(m.backend.affines, tt.want) {
				t.Errorf("affine calls = %v, want %v", m.backend.affines, tt.want)
			}
			assertReleased(t, m)
		})
	}
}

func TestCaptureDefaultSize(t *testing.T) {
	m := fourLayers()
	m.input = []int{-1, -1, 0, 3}
	if _, err := quiet().Capture(context.Background(), m, testImage()); err != nil {
		t.Fatal(err)
	}
	if m.backend.resized != [2]int{224, 224} {
		t.Errorf("resized to %v, want 224x224", m.backend.resized)
	}

	m = fourLayers()
	m.input = []int{-1, -1, 64, 3}
	if _, err := quiet(WithDefaultSize(32, 32)).Capture(context.Background(), m, testImage()); err != nil {
		t.Fatal(err)
	}
	if m.backend.resized != [2]int{32, 64} {
		t.Errorf("resized to %v, want 32x64", m.backend.resized)
	}
}

func TestCaptureWithCPUBackend(t *testing.T) {
	b := cpu.NewBackend(2)
	g := graph.New([]graph.Layer{
		{Kind: graph.KindInput, Name: "input", Shape: []int{8, 8, 3}},
		{Kind: graph.KindConv2D, Name: "conv", Filters: 4, KernelSize: [2]int{3, 3}, Activation: "relu"},
		{Kind: graph.KindUnknown, Name: "mystery"},
		{Kind: graph.KindPooling2D, Name: "pool", PoolSize: [2]int{2, 2}},
		{Kind: graph.KindFlatten, Name: "flatten"},
		{Kind: graph.KindDense, Name: "out", Units: 3, Activation: "softmax"},
	}, nil)
	m, err := cpu.Load(b, g)
	if err != nil {
		t.Fatal(err)
	}

	records, err := quiet().Capture(context.Background(), m, testImage())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(records) != g.Len() {
		t.Fatalf("got %d records", len(records))
	}
	for i, r := range records {
		if i == 2 {
			if !r.Failed() || !errors.Is(r.Err(), inference.ErrUnsupportedLayer) {
				t.Errorf("unknown layer record = %+v", r)
			}
			continue
		}
		a, ok := r.Activation()
		if !ok {
			t.Fatalf("record %d failed: %v", i, r.Err())
		}
		if !slices.Equal(a.Shape, m.OutputShape(i)) {
			t.Errorf("record %d shape = %v, want %v", i, a.Shape, m.OutputShape(i))
		}
	}
	if s := b.Stats(); s.Live != 0 {
		t.Errorf("live tensors = %d", s.Live)
	}
	if m.CachedPasses() != 0 {
		t.Errorf("forward cache not dropped")
	}
}
