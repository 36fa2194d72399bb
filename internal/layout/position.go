package layout

import "math"

// Position3 is a point in the renderer's world space.
type Position3 struct {
	X, Y, Z float64
}

func (p Position3) Add(o Position3) Position3    { return Position3{p.X + o.X, p.Y + o.Y, p.Z + o.Z} }
func (p Position3) Sub(o Position3) Position3    { return Position3{p.X - o.X, p.Y - o.Y, p.Z - o.Z} }
func (p Position3) Scale(s float64) Position3    { return Position3{p.X * s, p.Y * s, p.Z * s} }
func (p Position3) Length() float64              { return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z) }
func (p Position3) Distance(o Position3) float64 { return p.Sub(o).Length() }

// Lerp moves t of the way from p to o.
func (p Position3) Lerp(o Position3, t float64) Position3 { return p.Add(o.Sub(p).Scale(t)) }
