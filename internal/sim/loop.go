package sim

import (
	"time"
)

// Clock abstracts time for the loop so tests can drive ticks manually.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts functions into the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock for ClockFunc.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// TickContext describes one loop iteration handed to the stepper.
type TickContext struct {
	Tick  uint64
	Now   time.Time
	Delta time.Duration
}

// Stepper advances the simulation by one tick. Step runs on the loop
// goroutine only; no two steps overlap.
type Stepper interface {
	Step(ctx TickContext)
}

// LoopConfig tunes the fixed-timestep runner.
type LoopConfig struct {
	// TickRate is the maximum number of steps per second.
	TickRate int
	// CatchupMaxTicks caps the delta handed to a step after a stall, in
	// multiples of the tick budget.
	CatchupMaxTicks int
}

// Loop drives a Stepper at a fixed maximum rate until stopped.
type Loop struct {
	stepper Stepper
	config  LoopConfig
	clock   Clock

	// AfterStep, when set, observes each completed step's duration.
	AfterStep func(ctx TickContext, took time.Duration)
}

// NewLoop wraps the stepper with a fixed-timestep runner.
func NewLoop(stepper Stepper, cfg LoopConfig, clock Clock) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Loop{stepper: stepper, config: cfg, clock: clock}
}

// Run blocks, stepping the simulation until the stop channel closes. The
// current step always finishes before Run returns.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil || l.stepper == nil {
		return
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	budget := time.Second / time.Duration(tickRate)
	maxDelta := budget
	if l.config.CatchupMaxTicks > 1 {
		maxDelta = budget * time.Duration(l.config.CatchupMaxTicks)
	}

	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	last := l.clock.Now()
	var tick uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := l.clock.Now()
			delta := now.Sub(last)
			if delta <= 0 {
				delta = budget
			} else if delta > maxDelta {
				delta = maxDelta
			}
			last = now
			tick++

			ctx := TickContext{Tick: tick, Now: now, Delta: delta}
			start := l.clock.Now()
			l.stepper.Step(ctx)
			if l.AfterStep != nil {
				l.AfterStep(ctx, l.clock.Now().Sub(start))
			}
		}
	}
}
