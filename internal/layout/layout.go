package layout

import "github.com/san-kum/layerscope/internal/graph"

const (
	DefaultSpacing = 10.0

	// Camera margins added to the half and quarter depth.
	CameraDistanceMargin = 50.0
	CameraHeightMargin   = 10.0
)

// Camera frames the whole layout from above and behind the last layer.
type Camera struct {
	Distance float64   `json:"distance"`
	Height   float64   `json:"height"`
	LookAt   Position3 `json:"lookAt"`
}

// Position returns the camera eye point: up Height, back Distance along Z.
func (c Camera) Position() Position3 {
	return Position3{X: c.LookAt.X, Y: c.LookAt.Y + c.Height, Z: c.LookAt.Z + c.Distance}
}

type Result struct {
	Positions []Position3  `json:"positions"`
	Edges     []graph.Edge `json:"edges"`
	Residuals []graph.Edge `json:"residuals"`
	Camera    Camera       `json:"camera"`
	Spacing   float64      `json:"spacing"`
}

// Compute places the layers of g along Z, centred on the origin, spacing
// apart. It is a pure function of its arguments; non-positive spacing means
// DefaultSpacing.
func Compute(g graph.Graph, spacing float64) Result {
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	n := g.Len()

	positions := make([]Position3, n)
	centre := float64(n-1) / 2
	for i := range positions {
		positions[i] = Position3{Z: spacing * (float64(i) - centre)}
	}

	edges := make([]graph.Edge, 0, max(0, n-1))
	for i := 0; i+1 < n; i++ {
		edges = append(edges, graph.Edge{From: i, To: i + 1})
	}

	residuals := make([]graph.Edge, len(g.Residuals))
	copy(residuals, g.Residuals)

	return Result{
		Positions: positions,
		Edges:     edges,
		Residuals: residuals,
		Camera:    FitCamera(n, spacing),
		Spacing:   spacing,
	}
}

// FitCamera frames n layers spaced apart.
func FitCamera(n int, spacing float64) Camera {
	depth := float64(n) * spacing
	return Camera{
		Distance: depth/2 + CameraDistanceMargin,
		Height:   depth/4 + CameraHeightMargin,
	}
}

// Bounds returns the extent of the layout along Z.
func (r Result) Bounds() (minZ, maxZ float64) {
	if len(r.Positions) == 0 {
		return 0, 0
	}
	return r.Positions[0].Z, r.Positions[len(r.Positions)-1].Z
}
