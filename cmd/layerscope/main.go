package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/layerscope/internal/architecture"
	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/config"
	"github.com/san-kum/layerscope/internal/export"
	"github.com/san-kum/layerscope/internal/metrics"
	"github.com/san-kum/layerscope/internal/playback"
	"github.com/san-kum/layerscope/internal/session"
	"github.com/san-kum/layerscope/internal/viz"
)

var (
	configFile string
	logLevel   string
	preset     string
	modelType  string
	modelPath  string
	imagePath  string
	spacing    float64
	speed      float64
	theme      string
	seed       int64
	workers    int
	inputSize  int
	outPath    string
	svgOut     string
	profileOut string
	svgScale   float64
)

const (
	previewWidth  = 60
	previewHeight = 16
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "layerscope",
		Short:         "step through CNN layer activations in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "yaml config file")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")
	pf.StringVar(&preset, "preset", "", "named preset for the model type")
	pf.StringVar(&modelType, "model-type", config.DefaultModelType, "architecture tag")
	pf.StringVar(&modelPath, "model", "", "JSON or YAML model description")
	pf.StringVar(&imagePath, "image", "", "input image (png or jpeg); a gradient is used when empty")
	pf.Float64Var(&spacing, "spacing", 0, "layer spacing (0 uses the model type's default)")
	pf.Float64Var(&speed, "speed", config.DefaultSpeed, "playback speed")
	pf.StringVar(&theme, "theme", config.DefaultTheme, "color theme")
	pf.Int64Var(&seed, "seed", config.DefaultSeed, "weight seed for the cpu backend")
	pf.IntVar(&workers, "workers", 0, "cpu backend workers (0 uses every core)")
	pf.IntVar(&inputSize, "input-size", 0, "override the model input height and width")

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "print the resolved layer graph",
		RunE:  runGraph,
	}

	layoutCmd := &cobra.Command{
		Use:   "layout",
		Short: "print layer positions and the fitted camera",
		RunE:  runLayout,
	}

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "capture every layer's activation and print a summary",
		RunE:  runCapture,
	}

	playCmd := &cobra.Command{
		Use:   "play",
		Short: "interactive layer-by-layer playback",
		RunE:  runPlay,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model-type]",
		Short: "list model types, or the presets of one",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				reg := architecture.NewRegistry()
				fmt.Println("model types:")
				for _, t := range reg.ListModelTypes() {
					fmt.Printf("  %s\n", reg.Describe(t))
				}
				return
			}
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model type: %s\n", args[0])
				return
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
		},
	}

	exportLayoutCmd := &cobra.Command{
		Use:   "export-layout",
		Short: "write the layout as JSON",
		RunE:  runExportLayout,
	}
	exportLayoutCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (stdout when empty)")

	exportSummaryCmd := &cobra.Command{
		Use:   "export-summary",
		Short: "capture and write per-layer statistics as CSV",
		RunE:  runExportSummary,
	}
	exportSummaryCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (stdout when empty)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg",
		Short: "render the layout, and optionally the mean activation profile, as SVG",
		RunE:  runExportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&svgOut, "output", "o", "layout.svg", "layout svg file")
	exportSVGCmd.Flags().StringVar(&profileOut, "profile", "", "also capture and write the mean activation profile to this file")
	exportSVGCmd.Flags().Float64Var(&svgScale, "scale", 4, "svg units per canvas sub-pixel")

	rootCmd.AddCommand(graphCmd, layoutCmd, captureCmd, playCmd, presetsCmd, exportLayoutCmd, exportSummaryCmd, exportSVGCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runGraph(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s), %d layers\n\n", e.cfg.ModelType, e.source, e.graph.Len())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tKIND\tDETAIL")
	for i, l := range e.graph.Layers {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, l.Name, l.Kind, layerDetail(l))
	}
	w.Flush()

	if len(e.graph.Residuals) > 0 {
		fmt.Println("\nresiduals:")
		for _, r := range e.graph.Residuals {
			fmt.Printf("  %s -> %s\n", e.graph.Layers[r.From].Name, e.graph.Layers[r.To].Name)
		}
	}
	return nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tX\tY\tZ")
	for i, p := range e.layout.Positions {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.2f\n", i, e.graph.Layers[i].Name, p.X, p.Y, p.Z)
	}
	w.Flush()

	cam := e.layout.Camera
	eye := cam.Position()
	fmt.Printf("\nspacing %.1f, camera eye (%.1f, %.1f, %.1f) looking at (%.1f, %.1f, %.1f)\n\n",
		e.layout.Spacing, eye.X, eye.Y, eye.Z, cam.LookAt.X, cam.LookAt.Y, cam.LookAt.Z)
	fmt.Print(e.preview(previewWidth, previewHeight).String())
	return nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	records, err := e.capture(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tTYPE\tSHAPE\tMIN\tMAX\tMEAN\tPEAK\tSPARSITY\tACTIVE")
	peak, sparsity := metrics.NewPeak(), metrics.NewSparsity()
	for i, rec := range records {
		act, ok := rec.Activation()
		if !ok {
			fmt.Fprintf(w, "%d\t%s\t%s\tfailed: %v\t\t\t\t\t\t\n", i, rec.LayerName, rec.Type, rec.Err())
			continue
		}
		s := metrics.Summarize(act.Data)
		peak.Reset()
		peak.Observe(act.Data)
		sparsity.Reset()
		sparsity.Observe(act.Data)
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%.4f\t%.4f\t%.4f\t%.4f\t%.1f%%\t%.1f%%\n",
			i, rec.LayerName, rec.Type, act.Shape, s.Min, s.Max, s.Mean,
			peak.Value(), sparsity.Value()*100, s.ActiveFraction()*100)
	}
	w.Flush()

	okCount, failed := capture.Counts(records)
	fmt.Printf("\n%d captured, %d failed\n", okCount, failed)

	profile := metrics.FillGaps(metrics.Profile(records, metrics.NewMean()))
	if len(profile) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(profile,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("mean activation by layer"),
		))
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	player := playback.New()
	if err := player.SetSpeed(e.cfg.Speed); err != nil {
		return err
	}

	sess := session.New(player, e.pipeline, session.WithLogger(e.logger))
	model, img, err := e.prepare()
	if err != nil {
		return err
	}
	records, err := sess.Process(ctx, model, img)
	if err != nil {
		return err
	}

	app := viz.NewApp(player, e.graph, e.layout, records,
		viz.WithTitle("layerscope "+e.cfg.ModelType),
		viz.WithTheme(e.cfg.Theme),
	)
	return viz.Run(app)
}

func runExportLayout(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	doc := export.NewLayoutDocument(e.cfg.ModelType, e.source.String(), e.graph, e.layout)
	if outPath == "" {
		return export.WriteLayout(os.Stdout, doc)
	}
	if err := export.ExportLayout(outPath, doc); err != nil {
		return err
	}
	e.logger.Info("layout written", "path", outPath, "layers", len(doc.Layers))
	return nil
}

func runExportSummary(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	records, err := e.capture(ctx)
	if err != nil {
		return err
	}
	if outPath == "" {
		return export.WriteSummary(os.Stdout, records)
	}
	if err := export.ExportSummary(outPath, records); err != nil {
		return err
	}
	e.logger.Info("summary written", "path", outPath, "records", len(records))
	return nil
}

func runExportSVG(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	t := viz.GetTheme(e.cfg.Theme)

	canvas := e.preview(previewWidth*2, previewHeight*2)
	if err := os.WriteFile(svgOut, []byte(export.CanvasToSVG(canvas, svgScale, string(t.Node))), 0644); err != nil {
		return err
	}
	e.logger.Info("layout svg written", "path", svgOut)

	if profileOut == "" {
		return nil
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	records, err := e.capture(ctx)
	if err != nil {
		return err
	}
	svg := export.ProfileToSVG(metrics.Profile(records, metrics.NewMean()), 800, 300, string(t.Accent))
	if svg == "" {
		return fmt.Errorf("profile needs at least two captured layers")
	}
	if err := os.WriteFile(profileOut, []byte(svg), 0644); err != nil {
		return err
	}
	e.logger.Info("profile svg written", "path", profileOut, "records", len(records))
	return nil
}
