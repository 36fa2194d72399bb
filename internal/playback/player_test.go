package playback_test

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/layerscope/internal/capture"
	"github.com/san-kum/layerscope/internal/playback"
)

type recorder struct {
	mu    sync.Mutex
	steps []int
}

func (r *recorder) record(step int) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

func (r *recorder) Steps() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int{}, r.steps...)
}

func records(n int) []capture.Record {
	out := make([]capture.Record, n)
	for i := range out {
		out[i] = capture.Record{
			LayerName: fmt.Sprintf("layer_%d", i),
			Type:      "Conv2D",
			Outcome:   capture.Activation{Data: []float32{float32(i)}, Shape: []int{1, 1}},
		}
	}
	return out
}

var _ = Describe("Player", func() {
	var (
		clock  *playback.FakeClock
		player *playback.Player
		events *recorder
	)

	BeforeEach(func() {
		clock = playback.NewFakeClock(time.Unix(0, 0))
		player = playback.New(playback.WithClock(clock))
		events = &recorder{}
		player.OnStepChange(events.record)
	})

	AfterEach(func() {
		player.Pause()
	})

	// tick advances one period and waits for the player to consume it.
	tick := func(period time.Duration, wantStep int) {
		clock.Advance(period)
		Eventually(player.CurrentStep).Should(Equal(wantStep))
	}

	It("starts idle with nothing active", func() {
		Expect(player.State()).To(Equal(playback.Idle))
		Expect(player.CurrentStep()).To(Equal(0))
		Expect(player.Speed()).To(Equal(1.0))
		_, ok := player.CurrentActivation()
		Expect(ok).To(BeFalse())
	})

	Describe("SetActivations", func() {
		It("rewinds without notifying", func() {
			player.SetActivations(records(3))
			player.NextStep()
			player.NextStep()

			player.SetActivations(records(5))
			Expect(player.CurrentStep()).To(Equal(0))
			Expect(player.Len()).To(Equal(5))
			Expect(player.State()).To(Equal(playback.Idle))
			Expect(events.Steps()).To(Equal([]int{1, 2}))
		})

		It("stops a running timer", func() {
			player.SetActivations(records(3))
			player.Start()
			player.SetActivations(records(3))
			Expect(player.Animating()).To(BeFalse())
			Expect(clock.ActiveTickers()).To(Equal(0))
		})
	})

	Describe("stepping", func() {
		BeforeEach(func() {
			player.SetActivations(records(3))
		})

		It("stops at the last step", func() {
			for range 5 {
				player.NextStep()
			}
			Expect(player.CurrentStep()).To(Equal(3))
			Expect(events.Steps()).To(Equal([]int{1, 2, 3}))
			Expect(player.State()).To(Equal(playback.Stepped))
		})

		It("stops at step zero", func() {
			player.PreviousStep()
			Expect(player.CurrentStep()).To(Equal(0))
			Expect(events.Steps()).To(BeEmpty())

			player.NextStep()
			player.PreviousStep()
			player.PreviousStep()
			Expect(events.Steps()).To(Equal([]int{1, 0}))
		})

		It("exposes the record behind the cursor", func() {
			player.NextStep()
			player.NextStep()
			r, ok := player.CurrentActivation()
			Expect(ok).To(BeTrue())
			Expect(r.LayerName).To(Equal("layer_1"))
		})

		It("distinguishes a failed record from no record", func() {
			recs := records(2)
			recs[0].Outcome = capture.Failure{Err: errors.New("broken")}
			player.SetActivations(recs)
			player.NextStep()

			r, ok := player.CurrentActivation()
			Expect(ok).To(BeTrue())
			Expect(r.Failed()).To(BeTrue())
		})

		It("lets a callback pause the player", func() {
			player.OnStepChange(func(step int) {
				events.record(step)
				if step == 2 {
					player.Pause()
				}
			})
			player.Start()
			tick(time.Second, 1)
			tick(time.Second, 2)
			Eventually(player.Animating).Should(BeFalse())
			Expect(events.Steps()).To(Equal([]int{1, 2}))
		})

		It("runs each callback before the change that caused it returns", func() {
			entered := make(chan struct{}, 1)
			release := make(chan struct{})
			var completed atomic.Int32
			player.OnStepChange(func(step int) {
				if step == 1 {
					entered <- struct{}{}
					<-release
				}
				completed.Add(1)
			})

			go player.NextStep()
			Eventually(entered).Should(Receive())

			var atReturn atomic.Int32
			done := make(chan struct{})
			go func() {
				player.NextStep()
				atReturn.Store(completed.Load())
				close(done)
			}()
			Consistently(done, 50*time.Millisecond).ShouldNot(BeClosed())

			close(release)
			Eventually(done).Should(BeClosed())
			Expect(atReturn.Load()).To(Equal(int32(2)))
			Expect(player.CurrentStep()).To(Equal(2))
		})
	})

	Describe("Reset", func() {
		It("notifies zero exactly once from idle", func() {
			player.Reset()
			Expect(events.Steps()).To(Equal([]int{0}))
		})

		It("rewinds from a stepped state", func() {
			player.SetActivations(records(4))
			player.NextStep()
			player.NextStep()
			player.Reset()
			Expect(player.CurrentStep()).To(Equal(0))
			Expect(events.Steps()).To(Equal([]int{1, 2, 0}))
		})

		It("stops a running player", func() {
			player.SetActivations(records(4))
			player.Start()
			tick(time.Second, 1)

			player.Reset()
			Expect(player.State()).To(Equal(playback.Idle))
			Expect(clock.ActiveTickers()).To(Equal(0))
			Expect(events.Steps()).To(Equal([]int{1, 0}))

			clock.Advance(time.Second)
			Consistently(player.CurrentStep, "50ms").Should(Equal(0))
		})
	})

	Describe("Start", func() {
		It("does nothing without records", func() {
			player.Start()
			Expect(player.Animating()).To(BeFalse())
			Expect(clock.Periods()).To(BeEmpty())
		})

		It("ignores a second start", func() {
			player.SetActivations(records(2))
			player.Start()
			player.Start()
			Expect(player.State()).To(Equal(playback.Running))
			Expect(clock.Periods()).To(HaveLen(1))
		})

		It("auto-pauses after the last record", func() {
			player.SetActivations(records(12))
			player.Start()
			Expect(clock.Periods()).To(Equal([]time.Duration{time.Second}))

			for step := 1; step <= 12; step++ {
				tick(time.Second, step)
			}
			Eventually(player.Animating).Should(BeFalse())
			Expect(clock.ActiveTickers()).To(Equal(0))
			Expect(player.State()).To(Equal(playback.Stepped))

			clock.Advance(3 * time.Second)
			Consistently(player.CurrentStep, "50ms").Should(Equal(12))
			Expect(events.Steps()).To(Equal([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}))
		})

		It("pauses on the first tick when already at the end", func() {
			player.SetActivations(records(1))
			player.NextStep()
			player.Start()
			clock.Advance(time.Second)
			Eventually(player.Animating).Should(BeFalse())
			Expect(player.CurrentStep()).To(Equal(1))
		})
	})

	Describe("Pause", func() {
		It("is idempotent", func() {
			player.SetActivations(records(3))
			player.Start()
			player.Pause()
			player.Pause()
			Expect(player.Animating()).To(BeFalse())
			Expect(clock.ActiveTickers()).To(Equal(0))

			clock.Advance(2 * time.Second)
			Consistently(player.CurrentStep, "50ms").Should(Equal(0))
		})
	})

	Describe("SetSpeed", func() {
		It("restarts a running timer at the new period", func() {
			player.SetActivations(records(10))
			player.Start()
			tick(time.Second, 1)

			clock.Advance(400 * time.Millisecond)
			Expect(player.SetSpeed(2.0)).To(Succeed())
			Expect(clock.Periods()).To(Equal([]time.Duration{time.Second, 500 * time.Millisecond}))
			Expect(clock.ActiveTickers()).To(Equal(1))

			clock.Advance(100 * time.Millisecond)
			Consistently(player.CurrentStep, "50ms").Should(Equal(1))

			tick(400*time.Millisecond, 2)

			// The old one-second ticker would have fired here.
			clock.Advance(100 * time.Millisecond)
			Consistently(player.CurrentStep, "50ms").Should(Equal(2))

			tick(400*time.Millisecond, 3)
			Expect(events.Steps()).To(Equal([]int{1, 2, 3}))
		})

		It("only stores the speed while paused", func() {
			Expect(player.SetSpeed(1.5)).To(Succeed())
			Expect(player.Speed()).To(Equal(1.5))
			Expect(clock.Periods()).To(BeEmpty())
		})

		DescribeTable("rejects invalid speeds",
			func(speed float64) {
				player.SetActivations(records(3))
				player.Start()

				err := player.SetSpeed(speed)
				Expect(err).To(MatchError(playback.ErrInvalidSpeed))
				Expect(player.Speed()).To(Equal(1.0))
				Expect(player.Animating()).To(BeTrue())
				Expect(clock.Periods()).To(HaveLen(1))
			},
			Entry("zero", 0.0),
			Entry("negative", -1.0),
			Entry("NaN", math.NaN()),
			Entry("infinite", math.Inf(1)),
		)
	})
})

var _ = Describe("StepDuration", func() {
	It("divides one second by the speed", func() {
		Expect(playback.StepDuration(1)).To(Equal(time.Second))
		Expect(playback.StepDuration(2)).To(Equal(500 * time.Millisecond))
		Expect(playback.StepDuration(0.5)).To(Equal(2 * time.Second))
	})

	It("falls back to the default for invalid speeds", func() {
		Expect(playback.StepDuration(0)).To(Equal(time.Second))
	})

	It("covers every UI speed", func() {
		for _, s := range playback.UISpeeds {
			Expect(playback.StepDuration(s)).To(BeNumerically(">", 0))
		}
	})
})

var _ = Describe("State", func() {
	It("names each state", func() {
		Expect(playback.Idle.String()).To(Equal("idle"))
		Expect(playback.Stepped.String()).To(Equal("stepped"))
		Expect(playback.Running.String()).To(Equal("running"))
	})
})
