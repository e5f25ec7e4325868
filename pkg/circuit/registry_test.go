package circuit_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/circuit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("Registry", func() {
	var (
		clock    *fakeClock
		registry *circuit.Registry
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		registry = circuit.NewRegistry(circuit.Config{
			Settings: circuit.Settings{Threshold: 3, Cooldown: time.Minute},
			Clock:    clock.Now,
		})
	})

	fail := func(id string) circuit.State {
		p := registry.Acquire(id)
		Expect(p.Allowed).To(BeTrue())
		return registry.RecordFailure(id, p)
	}

	succeed := func(id string) circuit.State {
		p := registry.Acquire(id)
		Expect(p.Allowed).To(BeTrue())
		return registry.RecordSuccess(id, p)
	}

	tripOpen := func(id string) {
		for range 3 {
			fail(id)
		}
		Expect(registry.State(id).Status).To(Equal(circuit.StatusOpen))
	}

	It("starts closed", func() {
		p := registry.Acquire("a")
		Expect(p.Allowed).To(BeTrue())
		Expect(p.Trial).To(BeFalse())
		Expect(p.State.Status).To(Equal(circuit.StatusClosed))
	})

	It("applies defaults to invalid settings", func() {
		r := circuit.NewRegistry(circuit.Config{})
		Expect(r.Settings()).To(Equal(circuit.DefaultSettings()))
	})

	It("opens after threshold consecutive failures", func() {
		fail("a")
		fail("a")
		Expect(registry.State("a").Status).To(Equal(circuit.StatusClosed))

		s := fail("a")
		Expect(s.Status).To(Equal(circuit.StatusOpen))
		Expect(s.OpenedAt).To(Equal(clock.Now()))
		Expect(s.ConsecutiveFailures).To(Equal(3))
	})

	It("resets the failure count on success", func() {
		fail("a")
		fail("a")
		succeed("a")
		fail("a")
		fail("a")

		Expect(registry.State("a").Status).To(Equal(circuit.StatusClosed))
		Expect(registry.State("a").ConsecutiveFailures).To(Equal(2))
	})

	It("refuses an open breaker until the cooldown elapses", func() {
		tripOpen("a")

		clock.Advance(59 * time.Second)
		p := registry.Acquire("a")
		Expect(p.Allowed).To(BeFalse())
		Expect(p.State.Status).To(Equal(circuit.StatusOpen))
	})

	It("grants exactly one half-open trial after the cooldown", func() {
		tripOpen("a")
		clock.Advance(time.Minute)

		first := registry.Acquire("a")
		Expect(first.Allowed).To(BeTrue())
		Expect(first.Trial).To(BeTrue())
		Expect(first.State.Status).To(Equal(circuit.StatusHalfOpen))

		second := registry.Acquire("a")
		Expect(second.Allowed).To(BeFalse())
		Expect(second.State.TrialInFlight).To(BeTrue())
	})

	It("grants a single trial under concurrent acquirers", func() {
		tripOpen("a")
		clock.Advance(time.Minute)

		var (
			granted atomic.Int32
			wg      sync.WaitGroup
		)
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if registry.Acquire("a").Allowed {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(granted.Load()).To(Equal(int32(1)))
	})

	It("closes when the trial succeeds", func() {
		tripOpen("a")
		clock.Advance(time.Minute)
		trial := registry.Acquire("a")

		s := registry.RecordSuccess("a", trial)
		Expect(s.Status).To(Equal(circuit.StatusClosed))
		Expect(s.ConsecutiveFailures).To(BeZero())
		Expect(s.TrialInFlight).To(BeFalse())
		Expect(s.OpenedAt).To(BeZero())
	})

	It("re-opens with a fresh timestamp when the trial fails", func() {
		tripOpen("a")
		clock.Advance(time.Minute)
		trial := registry.Acquire("a")

		clock.Advance(5 * time.Second)
		s := registry.RecordFailure("a", trial)
		Expect(s.Status).To(Equal(circuit.StatusOpen))
		Expect(s.OpenedAt).To(Equal(clock.Now()))

		Expect(registry.Acquire("a").Allowed).To(BeFalse())
	})

	It("lets another caller take the trial after a release", func() {
		tripOpen("a")
		clock.Advance(time.Minute)
		trial := registry.Acquire("a")
		Expect(trial.Trial).To(BeTrue())

		registry.Release("a", trial)
		Expect(registry.Acquire("a").Trial).To(BeTrue())
	})

	Describe("late outcomes", func() {
		It("does not close an open breaker on a success acquired while closed", func() {
			registry.UpdateSettings(circuit.Settings{Threshold: 1, Cooldown: time.Minute})

			early := registry.Acquire("a")
			failing := registry.Acquire("a")
			Expect(registry.RecordFailure("a", failing).Status).To(Equal(circuit.StatusOpen))

			s := registry.RecordSuccess("a", early)
			Expect(s.Status).To(Equal(circuit.StatusOpen))
			Expect(registry.Acquire("a").Allowed).To(BeFalse())
		})

		It("does not end a running trial on a failure acquired while closed", func() {
			early := registry.Acquire("a")
			tripOpen("a")
			clock.Advance(time.Minute)

			trial := registry.Acquire("a")
			Expect(trial.Trial).To(BeTrue())

			s := registry.RecordFailure("a", early)
			Expect(s.Status).To(Equal(circuit.StatusHalfOpen))
			Expect(s.TrialInFlight).To(BeTrue())

			clock.Advance(time.Minute)
			Expect(registry.Acquire("a").Allowed).To(BeFalse())

			Expect(registry.RecordSuccess("a", trial).Status).To(Equal(circuit.StatusClosed))
		})

		It("ignores the outcome of a trial that was released", func() {
			tripOpen("a")
			clock.Advance(time.Minute)

			released := registry.Acquire("a")
			registry.Release("a", released)
			current := registry.Acquire("a")
			Expect(current.Trial).To(BeTrue())

			Expect(registry.RecordFailure("a", released).Status).To(Equal(circuit.StatusHalfOpen))
			registry.Release("a", released)
			Expect(registry.State("a").TrialInFlight).To(BeTrue())

			Expect(registry.RecordFailure("a", current).Status).To(Equal(circuit.StatusOpen))
		})

		It("never runs two trials while closed-state attempts finish late", func() {
			var early []circuit.Permit
			for range 10 {
				early = append(early, registry.Acquire("a"))
			}
			tripOpen("a")
			clock.Advance(time.Minute)

			trial := registry.Acquire("a")
			Expect(trial.Trial).To(BeTrue())

			var (
				granted atomic.Int32
				wg      sync.WaitGroup
			)
			for _, p := range early {
				wg.Add(1)
				go func() {
					defer wg.Done()
					registry.RecordFailure("a", p)
					clock.Advance(time.Minute)
					if registry.Acquire("a").Allowed {
						granted.Add(1)
					}
				}()
			}
			wg.Wait()

			Expect(granted.Load()).To(BeZero())
			Expect(registry.State("a").TrialInFlight).To(BeTrue())
		})
	})

	It("keeps breakers independent", func() {
		tripOpen("a")
		Expect(registry.Acquire("b").Allowed).To(BeTrue())
	})

	It("applies updated settings", func() {
		registry.UpdateSettings(circuit.Settings{Threshold: 1, Cooldown: time.Second})

		fail("a")
		Expect(registry.State("a").Status).To(Equal(circuit.StatusOpen))

		clock.Advance(time.Second)
		Expect(registry.Acquire("a").Trial).To(BeTrue())
	})

	It("snapshots every registered breaker", func() {
		registry.Register("a")
		registry.Register("b")
		tripOpen("b")

		snap := registry.Snapshot()
		Expect(snap).To(HaveLen(2))
		Expect(snap["a"].Status).To(Equal(circuit.StatusClosed))
		Expect(snap["b"].Status).To(Equal(circuit.StatusOpen))
	})
})
