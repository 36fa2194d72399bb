// Package session feeds capture results into a player, keeping only the
// result of the most recent request.
package session

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/inference"
	"github.com/san-kum/layerscope/internal/playback"
)

var ErrSuperseded = errors.New("session: superseded by a newer capture")

type Capturer interface {
	Capture(ctx context.Context, model inference.Model, img image.Image) ([]capture.Record, error)
}

type CaptureFunc func(ctx context.Context, model inference.Model, img image.Image) ([]capture.Record, error)

func (f CaptureFunc) Capture(ctx context.Context, model inference.Model, img image.Image) ([]capture.Record, error) {
	return f(ctx, model, img)
}

type Option func(*Session)

func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

type Session struct {
	player   *playback.Player
	capturer Capturer
	logger   *log.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc

	// deliverMu makes the freshness check and the hand-off to the player
	// one step.
	deliverMu sync.Mutex
}

func New(player *playback.Player, capturer Capturer, opts ...Option) *Session {
	s := &Session{player: player, capturer: capturer, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Player() *playback.Player { return s.player }

// Process captures img and, unless another Process started in the meantime,
// loads the records into the player and resets it. Starting a Process
// cancels the one in flight, which then returns ErrSuperseded.
func (s *Session) Process(ctx context.Context, model inference.Model, img image.Image) ([]capture.Record, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	id := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	records, err := s.capturer.Capture(cctx, model, img)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if !s.finish(id) {
		s.logger.Debug("discarding superseded capture", "request", id)
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	s.player.SetActivations(records)
	s.player.Reset()
	return records, nil
}

// finish reports whether id is still the newest request and, if so, retires
// its cancel func.
func (s *Session) finish(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != id {
		return false
	}
	s.cancel = nil
	return true
}

// Cancel aborts the capture in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}
