package viz

import (
	"github.com/san-kum/layerscope/internal/layout"
)

// Scene is everything drawn for one frame.
type Scene struct {
	Layout layout.Result
	// Active is the highlighted layer index, or -1.
	Active int
	// Failed marks layers whose capture failed.
	Failed map[int]bool
	// Particle is the flow marker position, if one is animating.
	Particle *layout.Position3
}

func NewScene(r layout.Result) *Scene {
	return &Scene{Layout: r, Active: -1, Failed: map[int]bool{}}
}

type projected struct {
	x, y    int
	depth   float64
	visible bool
}

// Render clears c and draws the scene through cam.
func (s *Scene) Render(c *Canvas, cam *Camera) {
	if c == nil || cam == nil {
		return
	}
	c.Clear()
	sw, sh := c.PixelSize()

	pts := make([]projected, len(s.Layout.Positions))
	for i, p := range s.Layout.Positions {
		x, y, d, ok := cam.Project(p, sw, sh)
		pts[i] = projected{x, y, d, ok}
	}
	valid := func(i int) bool { return i >= 0 && i < len(pts) && pts[i].depth > cam.Near }

	for _, e := range s.Layout.Edges {
		if valid(e.From) && valid(e.To) {
			a, b := pts[e.From], pts[e.To]
			c.DrawLine(a.x, a.y, b.x, b.y, ToneNode)
		}
	}

	// Residual edges arc above the layer axis through a raised midpoint.
	lift := s.Layout.Spacing
	for _, e := range s.Layout.Residuals {
		if !valid(e.From) || !valid(e.To) {
			continue
		}
		from, to := s.Layout.Positions[e.From], s.Layout.Positions[e.To]
		mid := from.Lerp(to, 0.5)
		mid.Y += lift
		mx, my, md, _ := cam.Project(mid, sw, sh)
		if md <= cam.Near {
			continue
		}
		a, b := pts[e.From], pts[e.To]
		c.DrawLine(a.x, a.y, mx, my, ToneResidual)
		c.DrawLine(mx, my, b.x, b.y, ToneResidual)
	}

	for i, p := range pts {
		if !p.visible {
			continue
		}
		switch {
		case i == s.Active:
			c.FillBox(p.x, p.y, 2, ToneActive)
		case s.Failed[i]:
			c.DrawBox(p.x, p.y, 1, ToneFailed)
		default:
			c.DrawBox(p.x, p.y, 1, ToneNode)
		}
	}

	if s.Particle != nil {
		if x, y, _, ok := cam.Project(*s.Particle, sw, sh); ok {
			c.FillBox(x, y, 1, ToneParticle)
		}
	}
}
