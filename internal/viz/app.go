package viz

import (
	"fmt"
	"iter"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/flow"
	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/layout"
	"github.com/san-kum/layerscope/internal/metrics"
	"github.com/san-kum/layerscope/internal/playback"
)

const (
	defaultWidth  = 60
	defaultHeight = 20
	panelWidth    = 46
	frameRate     = 30
	sparkSamples  = 256
)

type stepMsg int

type frameMsg time.Time

type AppOption func(*App)

func WithTitle(title string) AppOption {
	return func(a *App) { a.title = title }
}

func WithTheme(name string) AppOption {
	return func(a *App) { a.theme = GetTheme(name) }
}

// WithNow sets the clock driving flow animations.
func WithNow(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

// App is the bubbletea model for stepping through a captured network.
type App struct {
	player  *playback.Player
	steps   chan int
	layers  []graph.Layer
	profile []float64

	scene  *Scene
	canvas *Canvas
	camera *Camera
	theme  Theme
	title  string
	now    func() time.Time

	flowNext func() (flow.Segment, bool)
	flowStop func()

	width, height int
	showHelp      bool
}

// NewApp subscribes to p's step changes; p should already hold records.
func NewApp(p *playback.Player, g graph.Graph, r layout.Result, records []capture.Record, opts ...AppOption) App {
	a := App{
		player:  p,
		steps:   make(chan int, 64),
		layers:  g.Layers,
		profile: metrics.FillGaps(metrics.Profile(records, metrics.NewMean())),
		scene:   NewScene(r),
		canvas:  NewCanvas(defaultWidth, defaultHeight),
		camera:  NewCamera(r.Camera),
		theme:   ThemeDefault,
		title:   "layerscope",
		now:     time.Now,
		width:   defaultWidth + panelWidth,
		height:  defaultHeight,
	}
	for i, rec := range records {
		if rec.Failed() {
			a.scene.Failed[i] = true
		}
	}
	for _, opt := range opts {
		opt(&a)
	}

	steps := a.steps
	p.OnStepChange(func(step int) {
		select {
		case steps <- step:
		default:
		}
	})
	return a
}

func waitForStep(ch <-chan int) tea.Cmd {
	return func() tea.Msg { return stepMsg(<-ch) }
}

func frameTick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (a App) Init() tea.Cmd {
	return tea.Batch(waitForStep(a.steps), frameTick())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
	case stepMsg:
		a.onStep(int(msg))
		return a, waitForStep(a.steps)
	case frameMsg:
		a.advanceFlow()
		return a, frameTick()
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.stopFlow()
		a.player.Pause()
		return a, tea.Quit
	case " ":
		if a.player.Animating() {
			a.player.Pause()
		} else {
			a.player.Start()
		}
	case "right", "l", "n":
		a.player.NextStep()
	case "left", "h", "b":
		a.player.PreviousStep()
	case "r":
		a.player.Reset()
	case "+", "=":
		// cycleSpeed only returns UISpeeds, which SetSpeed always accepts.
		_ = a.player.SetSpeed(cycleSpeed(a.player.Speed(), 1))
	case "-", "_":
		_ = a.player.SetSpeed(cycleSpeed(a.player.Speed(), -1))
	case "f":
		a.startFlow(flow.Pulse(a.scene.Layout, flow.PulseDuration, flow.WithNow(a.now)))
	case "c":
		a.camera.Reset()
	case "x":
		a.camera.RotateX(0.1)
	case "X":
		a.camera.RotateX(-0.1)
	case "y":
		a.camera.RotateY(0.1)
	case "Y":
		a.camera.RotateY(-0.1)
	case "z":
		a.camera.ZoomIn()
	case "Z":
		a.camera.ZoomOut()
	case "t":
		a.theme = NextTheme(a.theme.Name)
	case "?":
		a.showHelp = !a.showHelp
	}
	return a, nil
}

// cycleSpeed moves to the neighbouring UI speed, clamping at both ends.
func cycleSpeed(current float64, dir int) float64 {
	idx := 0
	for i, s := range playback.UISpeeds {
		if s <= current {
			idx = i
		}
	}
	idx = min(max(idx+dir, 0), len(playback.UISpeeds)-1)
	return playback.UISpeeds[idx]
}

func (a *App) resize(w, h int) {
	a.width, a.height = w, h
	cw := max(w-panelWidth-8, 20)
	ch := max(h-4, 8)
	a.canvas = NewCanvas(cw, ch)
}

func (a *App) onStep(step int) {
	a.scene.Active = step - 1
	if step < 2 {
		a.stopFlow()
		return
	}
	from, to := step-2, step-1
	pos := a.scene.Layout.Positions
	if to >= len(pos) {
		return
	}
	edge := graph.Edge{From: from, To: to}
	seq := flow.Interpolate(pos[from], pos[to], playback.StepDuration(a.player.Speed()), flow.WithNow(a.now))
	a.startFlow(alongEdge(edge, seq))
}

func alongEdge(e graph.Edge, seq iter.Seq[layout.Position3]) iter.Seq[flow.Segment] {
	return func(yield func(flow.Segment) bool) {
		for p := range seq {
			if !yield(flow.Segment{Edge: e, Point: p}) {
				return
			}
		}
	}
}

func (a *App) startFlow(seq iter.Seq[flow.Segment]) {
	a.stopFlow()
	a.flowNext, a.flowStop = iter.Pull(seq)
}

func (a *App) stopFlow() {
	if a.flowStop != nil {
		a.flowStop()
	}
	a.flowNext, a.flowStop = nil, nil
	a.scene.Particle = nil
}

func (a *App) advanceFlow() {
	if a.flowNext == nil {
		return
	}
	seg, ok := a.flowNext()
	if !ok {
		a.stopFlow()
		return
	}
	p := seg.Point
	a.scene.Particle = &p
}

func (a App) View() string {
	a.scene.Render(a.canvas, a.camera)
	canvasView := canvasStyle.Render(a.canvas.Render(a.theme.toneStyles()))
	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, panelStyle.Render(a.panel()))
	if a.showHelp {
		return helpText + "\n\n" + main
	}
	return main
}

func (a App) panel() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(a.title)) + "\n\n")

	state := a.player.State()
	switch state {
	case playback.Running:
		s.WriteString(StatusRunning.Render("▶ RUNNING"))
	default:
		s.WriteString(StatusPaused.Render("❚❚ " + strings.ToUpper(state.String())))
	}
	s.WriteString("\n\n")

	step, n := a.player.CurrentStep(), a.player.Len()
	progress := 0.0
	if n > 0 {
		progress = float64(step) / float64(n)
	}
	s.WriteString(line("Step", fmt.Sprintf("%d/%d", step, n)))
	s.WriteString(ProgressBar(progress, 30) + "\n")
	s.WriteString(line("Speed", fmt.Sprintf("%.1fx", a.player.Speed())))
	s.WriteString("\n")

	rec, ok := a.player.CurrentActivation()
	if !ok {
		s.WriteString(KeyHint.Render("no active layer") + "\n")
	} else {
		s.WriteString(a.layerPanel(step-1, rec))
	}

	if len(a.profile) > 1 {
		chart := asciigraph.Plot(a.profile, asciigraph.Height(5), asciigraph.Width(30), asciigraph.Caption("mean activation by layer"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString(KeyHint.Render("SP:Play ←→:Step R:Reset +-:Speed\nF:Flow C:Camera T:Theme ?:Help Q:Quit"))
	return s.String()
}

func (a App) layerPanel(index int, rec capture.Record) string {
	var s strings.Builder
	s.WriteString(line("Layer", rec.LayerName))
	s.WriteString(line("Type", rec.Type))
	if index >= 0 && index < len(a.layers) {
		s.WriteString(line("Kind", a.layers[index].Kind.String()))
	}

	act, ok := rec.Activation()
	if !ok {
		s.WriteString(StatusFailed.Render("capture failed") + "\n")
		if err := rec.Err(); err != nil {
			s.WriteString(KeyHint.Render(truncate(err.Error(), panelWidth-6)) + "\n")
		}
		return s.String() + "\n"
	}

	sum := metrics.Summarize(act.Data)
	s.WriteString(line("Shape", fmt.Sprint(act.Shape)))
	s.WriteString(line("Min", fmt.Sprintf("%.4f", sum.Min)))
	s.WriteString(line("Max", fmt.Sprintf("%.4f", sum.Max)))
	s.WriteString(line("Mean", fmt.Sprintf("%.4f", sum.Mean)))
	s.WriteString(line("Active", fmt.Sprintf("%.1f%%", sum.ActiveFraction()*100)))

	sample := make([]float64, 0, min(len(act.Data), sparkSamples))
	for _, v := range act.Data[:min(len(act.Data), sparkSamples)] {
		sample = append(sample, float64(v))
	}
	s.WriteString(SparklineChart(sample, 30) + "\n\n")
	return s.String()
}

func line(label, value string) string {
	return MetricLabel.Render(label) + MetricValue.Render(value) + "\n"
}

func truncate(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

const helpText = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space    - Play/Pause               ║
║  → / L    - Next layer               ║
║  ← / H    - Previous layer           ║
║  R        - Reset to step 0          ║
║  + / -    - Change speed             ║
║  F        - Pulse data flow          ║
║  C        - Reset camera             ║
║  X Y      - Rotate camera            ║
║  Z        - Zoom in (shift: out)     ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝`

// Run blocks until the user quits.
func Run(app App) error {
	_, err := tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}
