package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/san-kum/layerscope/internal/architecture"
	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/config"
	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/inference/cpu"
	"github.com/san-kum/layerscope/internal/layout"
	"github.com/san-kum/layerscope/internal/viz"
)

const gradientSize = 256

// env is the resolved configuration shared by every command.
type env struct {
	cfg      *config.Config
	logger   *log.Logger
	graph    graph.Graph
	source   architecture.Source
	layout   layout.Result
	pipeline *capture.Pipeline
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "layerscope",
		ReportTimestamp: true,
		Level:           cfg.Level(),
	})

	reg := architecture.NewRegistry()
	reg.SetLogger(logger)

	var (
		g   graph.Graph
		src architecture.Source
	)
	if cfg.ModelPath != "" {
		data, err := os.ReadFile(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("read model description: %w", err)
		}
		g, src = reg.ResolveBytes(data, cfg.ModelType)
	} else {
		g, src = reg.Fallback(cfg.ModelType), architecture.SourceFallback
	}
	logger.Debug("resolved graph", "model_type", cfg.ModelType, "source", src, "layers", g.Len())

	pipeline := capture.New(
		capture.WithLogger(logger),
		capture.WithNormalization(cfg.Normalization()),
		capture.WithDefaultSize(cfg.Capture.DefaultHeight, cfg.Capture.DefaultWidth),
	)

	return &env{
		cfg:      cfg,
		logger:   logger,
		graph:    g,
		source:   src,
		layout:   layout.Compute(g, cfg.LayoutSpacing()),
		pipeline: pipeline,
	}, nil
}

// loadConfig layers defaults, the config file, the preset and then any
// flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("model-type") {
		cfg.ModelType = modelType
	}
	if preset != "" {
		p := config.GetPreset(cfg.ModelType, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q for model type %s (available: %s)",
				preset, cfg.ModelType, strings.Join(config.ListPresets(cfg.ModelType), ", "))
		}
		cfg.Apply(p)
	}

	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("model") {
		cfg.ModelPath = modelPath
	}
	if flags.Changed("image") {
		cfg.ImagePath = imagePath
	}
	if flags.Changed("spacing") {
		cfg.Spacing = spacing
	}
	if flags.Changed("speed") {
		cfg.Speed = speed
	}
	if flags.Changed("theme") {
		cfg.Theme = theme
	}
	if flags.Changed("seed") {
		cfg.Backend.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Backend.Workers = workers
	}
	if flags.Changed("input-size") {
		cfg.Backend.InputSize = inputSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// prepare compiles the graph on a fresh CPU backend and loads the input.
func (e *env) prepare() (*cpu.Model, image.Image, error) {
	opts := []cpu.Option{
		cpu.WithSeed(e.cfg.Backend.Seed),
		cpu.WithNormalization(e.cfg.Normalization()),
	}
	if n := e.cfg.Backend.InputSize; n > 0 {
		opts = append(opts, cpu.WithInputSize(n, n))
	}
	backend := cpu.NewBackend(e.cfg.Backend.Workers)
	model, err := cpu.Load(backend, e.graph, opts...)
	if err != nil {
		return nil, nil, err
	}

	img, err := loadImage(e.cfg.ImagePath)
	if err != nil {
		return nil, nil, err
	}
	e.logger.Debug("model ready", "backend", backend.Name(), "workers", backend.Workers(), "input", model.InputShape())
	return model, img, nil
}

func (e *env) capture(ctx context.Context) ([]capture.Record, error) {
	model, img, err := e.prepare()
	if err != nil {
		return nil, err
	}
	return e.pipeline.Capture(ctx, model, img)
}

func loadImage(path string) (image.Image, error) {
	if path == "" {
		return gradient(gradientSize), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// gradient is a stand-in input with structure in every channel.
func gradient(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / size),
				G: uint8(y * 255 / size),
				B: uint8((x + y) * 127 / size),
				A: 255,
			})
		}
	}
	return img
}

func layerDetail(l graph.Layer) string {
	var parts []string
	if l.Filters > 0 {
		parts = append(parts, fmt.Sprintf("filters=%d", l.Filters))
	}
	if l.Units > 0 {
		parts = append(parts, fmt.Sprintf("units=%d", l.Units))
	}
	if l.Activation != "" {
		parts = append(parts, "act="+l.Activation)
	}
	if l.PoolType != "" {
		parts = append(parts, "pool="+l.PoolType)
	}
	return strings.Join(parts, " ")
}

// preview draws the layout from its home camera onto a w x h cell canvas.
func (e *env) preview(w, h int) *viz.Canvas {
	canvas := viz.NewCanvas(w, h)
	viz.NewScene(e.layout).Render(canvas, viz.NewCamera(e.layout.Camera))
	return canvas
}
