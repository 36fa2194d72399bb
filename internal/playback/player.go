// Package playback steps through captured activations one layer at a time,
// either manually or on a timer.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/san-kum/layerscope/internal/capture"
)

var ErrInvalidSpeed = errors.New("playback: speed must be a positive finite number")

const DefaultSpeed = 1.0

// UISpeeds are the multipliers offered to users. SetSpeed accepts any
// positive value.
var UISpeeds = []float64{0.5, 1.0, 1.5, 2.0}

type State int

const (
	// Idle: step 0, not animating.
	Idle State = iota
	// Stepped: step in [1, Len], not animating.
	Stepped
	// Running: advancing on a timer.
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stepped:
		return "stepped"
	case Running:
		return "running"
	}
	return "unknown"
}

// StepDuration is the timer period for a speed multiplier.
func StepDuration(speed float64) time.Duration {
	if !validSpeed(speed) {
		speed = DefaultSpeed
	}
	return time.Duration(float64(time.Second) / speed)
}

func validSpeed(speed float64) bool {
	return speed > 0 && !math.IsInf(speed, 0) && !math.IsNaN(speed)
}

type Option func(*Player)

func WithClock(c Clock) Option {
	return func(p *Player) { p.clock = c }
}

type notification struct {
	fn   func(int)
	step int
}

// Player is the playback cursor over a list of records. Step 0 means no
// layer is active; step i selects record i-1.
//
// Step-change callbacks run on the goroutine that caused the change, once per
// change and before the changing call returns. Deliveries are serialized in
// change order. A callback may read state and may Start, Pause or SetSpeed;
// it must not call Reset, NextStep or PreviousStep, which would deadlock.
type Player struct {
	clock Clock

	mu        sync.Mutex
	records   []capture.Record
	step      int
	animating bool
	speed     float64
	onStep    func(int)

	ticker Ticker
	stop   chan struct{}
	gen    uint64

	// deliverMu is held from a change until its callback returns.
	deliverMu sync.Mutex
}

func New(opts ...Option) *Player {
	p := &Player{clock: RealClock{}, speed: DefaultSpeed}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnStepChange replaces the subscriber. nil unsubscribes.
func (p *Player) OnStepChange(fn func(step int)) {
	p.mu.Lock()
	p.onStep = fn
	p.mu.Unlock()
}

// SetActivations replaces the records and returns to Idle without notifying.
func (p *Player) SetActivations(records []capture.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTicker()
	p.records = append([]capture.Record(nil), records...)
	p.step = 0
}

// Start has no effect while running or with no records.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.animating || len(p.records) == 0 {
		return
	}
	p.startTicker()
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTicker()
}

// Reset pauses, rewinds to step 0 and always notifies.
func (p *Player) Reset() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	p.stopTicker()
	p.step = 0
	n := p.current()
	p.mu.Unlock()
	n.deliver()
}

// NextStep is a no-op at the last step.
func (p *Player) NextStep() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	n := p.advance()
	p.mu.Unlock()
	n.deliver()
}

// PreviousStep is a no-op at step 0.
func (p *Player) PreviousStep() {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	var n notification
	if p.step > 0 {
		p.step--
		n = p.current()
	}
	p.mu.Unlock()
	n.deliver()
}

// SetSpeed changes the speed multiplier. A running timer is replaced so the
// new period applies from now.
func (p *Player) SetSpeed(speed float64) error {
	if !validSpeed(speed) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = speed
	if p.animating {
		p.stopTicker()
		p.startTicker()
	}
	return nil
}

// CurrentActivation reports false when no layer is active.
func (p *Player) CurrentActivation() (capture.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.step < 1 || p.step > len(p.records) {
		return capture.Record{}, false
	}
	return p.records[p.step-1], true
}

func (p *Player) CurrentStep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.step
}

func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *Player) Animating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.animating
}

func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.animating:
		return Running
	case p.step == 0:
		return Idle
	}
	return Stepped
}

// advance requires p.mu. The zero notification means nothing changed.
func (p *Player) advance() notification {
	if p.step >= len(p.records) {
		return notification{}
	}
	p.step++
	return p.current()
}

// current requires p.mu.
func (p *Player) current() notification {
	return notification{fn: p.onStep, step: p.step}
}

func (n notification) deliver() {
	if n.fn != nil {
		n.fn(n.step)
	}
}

// startTicker requires p.mu.
func (p *Player) startTicker() {
	p.animating = true
	p.gen++
	gen := p.gen
	t := p.clock.NewTicker(StepDuration(p.speed))
	stop := make(chan struct{})
	p.ticker, p.stop = t, stop
	go p.run(gen, t, stop)
}

// stopTicker requires p.mu. Ticks already in flight from the old ticker are
// discarded by the generation check in tick.
func (p *Player) stopTicker() {
	p.animating = false
	if p.ticker == nil {
		return
	}
	p.ticker.Stop()
	close(p.stop)
	p.ticker, p.stop = nil, nil
	p.gen++
}

func (p *Player) run(gen uint64, t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			p.tick(gen)
		}
	}
}

func (p *Player) tick(gen uint64) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.mu.Lock()
	if !p.animating || p.gen != gen {
		p.mu.Unlock()
		return
	}
	n := p.advance()
	if p.step >= len(p.records) {
		p.stopTicker()
	}
	p.mu.Unlock()
	n.deliver()
}
