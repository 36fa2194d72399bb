package session

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/inference"
	"github.com/san-kum/layerscope/internal/playback"
)

func recs(names ...string) []capture.Record {
	out := make([]capture.Record, len(names))
	for i, n := range names {
		out[i] = capture.Record{LayerName: n, Outcome: capture.Activation{Data: []float32{1}, Shape: []int{1}}}
	}
	return out
}

func quiet() Option { return WithLogger(log.New(io.Discard)) }

var img = image.NewRGBA(image.Rect(0, 0, 1, 1))

func TestProcessDelivers(t *testing.T) {
	p := playback.New()
	var steps []int
	p.OnStepChange(func(s int) { steps = append(steps, s) })

	s := New(p, CaptureFunc(func(context.Context, inference.Model, image.Image) ([]capture.Record, error) {
		return recs("a", "b", "c"), nil
	}), quiet())

	got, err := s.Process(context.Background(), nil, img)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(got) != 3 || p.Len() != 3 {
		t.Errorf("records = %d, player len = %d", len(got), p.Len())
	}
	if p.CurrentStep() != 0 || len(steps) != 1 || steps[0] != 0 {
		t.Errorf("step = %d, notifications = %v", p.CurrentStep(), steps)
	}
}

func TestProcessPropagatesError(t *testing.T) {
	p := playback.New()
	p.SetActivations(recs("old"))
	s := New(p, CaptureFunc(func(context.Context, inference.Model, image.Image) ([]capture.Record, error) {
		return nil, capture.ErrNoModel
	}), quiet())

	if _, err := s.Process(context.Background(), nil, img); !errors.Is(err, capture.ErrNoModel) {
		t.Fatalf("err = %v", err)
	}
	if p.Len() != 1 {
		t.Errorf("player was modified on error")
	}
}

func TestNewerProcessWins(t *testing.T) {
	p := playback.New()
	started := make(chan struct{})
	firstCancelled := make(chan struct{})

	var calls int
	var mu sync.Mutex
	s := New(p, CaptureFunc(func(ctx context.Context, _ inference.Model, _ image.Image) ([]capture.Record, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-ctx.Done()
			close(firstCancelled)
			return nil, ctx.Err()
		}
		return recs("new", "new"), nil
	}), quiet())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Process(context.Background(), nil, img)
		errc <- err
	}()
	<-started

	if _, err := s.Process(context.Background(), nil, img); err != nil {
		t.Fatalf("second Process: %v", err)
	}

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("first capture was not cancelled")
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first err = %v, want ErrSuperseded", err)
	}
	if p.Len() != 2 {
		t.Errorf("player len = %d, want the newer result", p.Len())
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	p := playback.New()
	release := make(chan struct{})
	started := make(chan struct{})

	var calls int
	var mu sync.Mutex
	s := New(p, CaptureFunc(func(ctx context.Context, _ inference.Model, _ image.Image) ([]capture.Record, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return recs("stale"), nil
		}
		return recs("fresh", "fresh", "fresh"), nil
	}), quiet())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Process(context.Background(), nil, img)
		errc <- err
	}()
	<-started

	if _, err := s.Process(context.Background(), nil, img); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("stale err = %v", err)
	}
	if p.Len() != 3 {
		t.Errorf("player len = %d, stale result overwrote fresh one", p.Len())
	}
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	s := New(playback.New(), CaptureFunc(func(ctx context.Context, _ inference.Model, _ image.Image) ([]capture.Record, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), quiet())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Process(context.Background(), nil, img)
		errc <- err
	}()
	<-started
	s.Cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancel did not stop the capture")
	}
}
