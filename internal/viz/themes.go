package viz

import "github.com/charmbracelet/lipgloss"

// Theme colours the network and the side panel.
type Theme struct {
	Name     string
	Node     lipgloss.Color
	Active   lipgloss.Color
	Residual lipgloss.Color
	Particle lipgloss.Color
	Failed   lipgloss.Color
	Text     lipgloss.Color
	Muted    lipgloss.Color
	Accent   lipgloss.Color
}

var (
	ThemeDefault = Theme{
		Name:     "default",
		Node:     lipgloss.Color("#4488ff"),
		Active:   lipgloss.Color("#ffcc00"),
		Residual: lipgloss.Color("#ff6b6b"),
		Particle: lipgloss.Color("#00ff88"),
		Failed:   lipgloss.Color("#ff0000"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#666688"),
		Accent:   lipgloss.Color("#00ccff"),
	}

	ThemeCyberpunk = Theme{
		Name:     "cyberpunk",
		Node:     lipgloss.Color("#00ffff"),
		Active:   lipgloss.Color("#ff00ff"),
		Residual: lipgloss.Color("#ffff00"),
		Particle: lipgloss.Color("#ffffff"),
		Failed:   lipgloss.Color("#ff0000"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#666666"),
		Accent:   lipgloss.Color("#ff8800"),
	}

	ThemeRetro = Theme{
		Name:     "retro",
		Node:     lipgloss.Color("#00aa00"),
		Active:   lipgloss.Color("#88ff88"),
		Residual: lipgloss.Color("#00cc00"),
		Particle: lipgloss.Color("#ffff00"),
		Failed:   lipgloss.Color("#ff0000"),
		Text:     lipgloss.Color("#00ff00"),
		Muted:    lipgloss.Color("#005500"),
		Accent:   lipgloss.Color("#88ff88"),
	}

	ThemeMinimal = Theme{
		Name:     "minimal",
		Node:     lipgloss.Color("#cccccc"),
		Active:   lipgloss.Color("#0088ff"),
		Residual: lipgloss.Color("#888888"),
		Particle: lipgloss.Color("#ffffff"),
		Failed:   lipgloss.Color("#ff0000"),
		Text:     lipgloss.Color("#ffffff"),
		Muted:    lipgloss.Color("#888888"),
		Accent:   lipgloss.Color("#0088ff"),
	}

	Themes = []Theme{ThemeDefault, ThemeCyberpunk, ThemeRetro, ThemeMinimal}
)

// GetTheme falls back to ThemeDefault for unknown names.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeDefault
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

// NextTheme cycles through Themes.
func NextTheme(current string) Theme {
	for i, t := range Themes {
		if t.Name == current {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return ThemeDefault
}

func (t Theme) toneStyles() [toneCount]lipgloss.Style {
	var s [toneCount]lipgloss.Style
	s[ToneNode] = lipgloss.NewStyle().Foreground(t.Node)
	s[ToneResidual] = lipgloss.NewStyle().Foreground(t.Residual)
	s[ToneFailed] = lipgloss.NewStyle().Foreground(t.Failed)
	s[ToneActive] = lipgloss.NewStyle().Foreground(t.Active).Bold(true)
	s[ToneParticle] = lipgloss.NewStyle().Foreground(t.Particle).Bold(true)
	return s
}
