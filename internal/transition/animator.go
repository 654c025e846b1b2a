// SPDX-License-Identifier: GPL-3.0-only

package transition

import (
	"math"
	"time"
)

// FrameScheduler runs a callback on the next frame.
type FrameScheduler interface {
	PostFrameCallback(cb func(frameTime time.Time))
}

// Animator moves a level from one value to another over a fixed duration,
// easing in and out. It steps on frame callbacks.
type Animator struct {
	frames   FrameScheduler
	now      func() time.Time
	from     float64
	to       float64
	duration time.Duration
	set      func(level float64)
	onEnd    func()

	started    bool
	startTime  time.Time
	generation uint64
}

// NewAnimator creates a stopped animator. set receives every new level and onEnd is
// called whenever the animation reaches its final value.
func NewAnimator(frames FrameScheduler, now func() time.Time, from, to float64, duration time.Duration,
	set func(level float64), onEnd func()) *Animator {
	return &Animator{
		frames:   frames,
		now:      now,
		from:     from,
		to:       to,
		duration: duration,
		set:      set,
		onEnd:    onEnd,
	}
}

// IsStarted reports whether the animation is running.
func (a *Animator) IsStarted() bool {
	return a.started
}

// Start restarts the animation from its first value.
func (a *Animator) Start() {
	a.generation++
	a.started = true
	a.startTime = a.now()
	a.set(a.from)
	a.post()
}

// End jumps to the final value and reports completion, whether or not the
// animation was running.
func (a *Animator) End() {
	a.generation++
	a.started = false
	a.set(a.to)
	if a.onEnd != nil {
		a.onEnd()
	}
}

func (a *Animator) post() {
	gen := a.generation
	a.frames.PostFrameCallback(func(frameTime time.Time) {
		a.frame(gen, frameTime)
	})
}

func (a *Animator) frame(gen uint64, frameTime time.Time) {
	if gen != a.generation || !a.started {
		return
	}

	fraction := 1.0
	if a.duration > 0 {
		fraction = float64(frameTime.Sub(a.startTime)) / float64(a.duration)
	}
	if fraction >= 1 {
		a.End()
		return
	}

	a.set(a.from + (a.to-a.from)*accelerateDecelerate(math.Max(0, fraction)))
	a.post()
}

func accelerateDecelerate(t float64) float64 {
	return math.Cos((t+1)*math.Pi)/2 + 0.5
}
