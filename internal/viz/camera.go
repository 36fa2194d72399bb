package viz

import (
	"math"

	"github.com/san-kum/layerscope/internal/layout"
)

// DefaultYaw turns the layer axis off the line of sight so the network
// reads left to right in a terminal.
const DefaultYaw = math.Pi / 3

// Camera projects world points from the layout's eye point towards its
// look-at point, after orbiting the scene by RotX and RotY.
type Camera struct {
	Eye, Target layout.Position3
	FOV, Near   float64
	RotX, RotY  float64
	Zoom        float64

	home layout.Camera
}

func NewCamera(c layout.Camera) *Camera {
	cam := &Camera{home: c}
	cam.Reset()
	return cam
}

// Reset restores the framing the camera was created with.
func (c *Camera) Reset() {
	c.Eye = c.home.Position()
	c.Target = c.home.LookAt
	c.FOV = math.Pi * 75 / 180
	c.Near = 0.1
	c.RotX, c.RotY = 0, DefaultYaw
	c.Zoom = 1
}

// Frame replaces the home framing and resets to it.
func (c *Camera) Frame(h layout.Camera) {
	c.home = h
	c.Reset()
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// RotatePoint orbits p around the target.
func (c *Camera) RotatePoint(p layout.Position3) layout.Position3 {
	p = p.Sub(c.Target)
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	return p.Add(c.Target)
}

// Project maps p to sub-pixel coordinates on a sw x sh surface. It returns
// the view depth and whether the point is in front of the camera and on
// screen.
func (c *Camera) Project(p layout.Position3, sw, sh int) (int, int, float64, bool) {
	forward := normalize(c.Target.Sub(c.Eye))
	right := normalize(cross(forward, layout.Position3{Y: 1}))
	if right.Length() == 0 {
		right = layout.Position3{X: 1}
	}
	up := cross(right, forward)

	d := c.RotatePoint(p).Sub(c.Eye)
	depth := dot(d, forward)
	if depth <= c.Near {
		return 0, 0, depth, false
	}
	focal := float64(min(sw, sh)) / 2 / math.Tan(c.FOV/2) * c.Zoom
	sx := int(dot(d, right)/depth*focal) + sw/2
	sy := int(-dot(d, up)/depth*focal) + sh/2
	return sx, sy, depth, sx >= 0 && sx < sw && sy >= 0 && sy < sh
}

func dot(a, b layout.Position3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func cross(a, b layout.Position3) layout.Position3 {
	return layout.Position3{X: a.Y*b.Z - a.Z*b.Y, Y: a.Z*b.X - a.X*b.Z, Z: a.X*b.Y - a.Y*b.X}
}

func normalize(v layout.Position3) layout.Position3 {
	if l := v.Length(); l != 0 {
		return v.Scale(1 / l)
	}
	return layout.Position3{}
}
