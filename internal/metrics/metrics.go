// Package metrics reduces captured activation buffers to scalar statistics.
package metrics

import (
	"math"

	"github.com/san-kum/layerscope/internal/capture"
)

// Metric accumulates over any number of buffers until Reset.
type Metric interface {
	Name() string
	Observe(data []float32)
	Value() float64
	Reset()
}

type Mean struct {
	sum     float64
	samples int
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) Name() string { return "mean" }

func (m *Mean) Observe(data []float32) {
	for _, v := range data {
		m.sum += float64(v)
	}
	m.samples += len(data)
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *Mean) Reset() {
	m.sum = 0
	m.samples = 0
}

// Peak tracks the largest absolute value.
type Peak struct {
	peak float64
}

func NewPeak() *Peak { return &Peak{} }

func (p *Peak) Name() string { return "peak" }

func (p *Peak) Observe(data []float32) {
	for _, v := range data {
		p.peak = math.Max(p.peak, math.Abs(float64(v)))
	}
}

func (p *Peak) Value() float64 { return p.peak }
func (p *Peak) Reset()         { p.peak = 0 }

// Sparsity is the fraction of values that are not positive. ReLU layers
// typically sit well above one half.
type Sparsity struct {
	inactive int
	samples  int
}

func NewSparsity() *Sparsity { return &Sparsity{} }

func (s *Sparsity) Name() string { return "sparsity" }

func (s *Sparsity) Observe(data []float32) {
	for _, v := range data {
		if v <= 0 {
			s.inactive++
		}
	}
	s.samples += len(data)
}

func (s *Sparsity) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.inactive) / float64(s.samples)
}

func (s *Sparsity) Reset() {
	s.inactive = 0
	s.samples = 0
}

func Defaults() []Metric {
	return []Metric{NewMean(), NewPeak(), NewSparsity()}
}

// Summary describes one activation buffer. Active counts values above zero.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Active int     `json:"active"`
	Total  int     `json:"total"`
}

// Summarize is zero for an empty buffer.
func Summarize(data []float32) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1), Total: len(data)}
	mean := NewMean()
	mean.Observe(data)
	for _, v := range data {
		f := float64(v)
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
		if v > 0 {
			s.Active++
		}
	}
	s.Mean = mean.Value()
	return s
}

// ActiveFraction is Active/Total, or zero for an empty summary.
func (s Summary) ActiveFraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Active) / float64(s.Total)
}

// Profile evaluates m over each record separately. Failed records
// contribute NaN so indices stay aligned with layers.
func Profile(records []capture.Record, m Metric) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		a, ok := r.Activation()
		if !ok {
			out[i] = math.NaN()
			continue
		}
		m.Reset()
		m.Observe(a.Data)
		out[i] = m.Value()
	}
	m.Reset()
	return out
}

// FillGaps replaces NaN entries with the previous finite value (or zero) for
// plotters that cannot skip points.
func FillGaps(values []float64) []float64 {
	out := make([]float64, len(values))
	last := 0.0
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = last
			continue
		}
		out[i] = v
		last = v
	}
	return out
}
