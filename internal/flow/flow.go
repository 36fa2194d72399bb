// Package flow produces wall-clock driven point sequences for animating
// data moving between layers.
package flow

import (
	"iter"
	"time"

	"github.com/san-kum/layerscope/internal/graph"
	"github.com/san-kum/layerscope/internal/layout"
)

// PulseDuration is the time a pulse spends on each edge.
const PulseDuration = 500 * time.Millisecond

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithNow replaces time.Now as the clock.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func Lerp(from, to layout.Position3, t float64) layout.Position3 {
	return from.Lerp(to, t)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// Interpolate yields points from from to to as time passes. Progress is
// measured from the first pull. The sequence ends after yielding to, and
// can be ranged over only once; later ranges yield nothing.
func Interpolate(from, to layout.Position3, duration time.Duration, opts ...Option) iter.Seq[layout.Position3] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	used := false
	return func(yield func(layout.Position3) bool) {
		if used {
			return
		}
		used = true
		if duration <= 0 {
			yield(to)
			return
		}
		start := o.now()
		for {
			progress := clamp(float64(o.now().Sub(start))/float64(duration), 0, 1)
			if progress >= 1 {
				yield(to)
				return
			}
			if !yield(Lerp(from, to, progress)) {
				return
			}
		}
	}
}

// Segment is one hop of a pulse.
type Segment struct {
	Edge  graph.Edge
	Point layout.Position3
}

// Pulse chains an interpolation over every primary edge of r, each taking
// perEdge. Like Interpolate it is single use.
func Pulse(r layout.Result, perEdge time.Duration, opts ...Option) iter.Seq[Segment] {
	used := false
	return func(yield func(Segment) bool) {
		if used {
			return
		}
		used = true
		for _, e := range r.Edges {
			if e.From < 0 || e.To >= len(r.Positions) {
				continue
			}
			for p := range Interpolate(r.Positions[e.From], r.Positions[e.To], perEdge, opts...) {
				if !yield(Segment{Edge: e, Point: p}) {
					return
				}
			}
		}
	}
}
