// SPDX-License-Identifier: GPL-3.0-only

package brightness

import (
	"fmt"
	"io"
	"math"
	"time"
)

// Ramp moves a level toward a target at a bounded rate in levels per second.
// It never overshoots the target.
type Ramp struct {
	current   uint32
	target    uint32
	rate      float64
	animated  float64
	lastStep  time.Time
	animating bool
	firstTime bool
}

// NewRamp creates a ramp. The first AnimateTo jumps straight to its target.
func NewRamp() *Ramp {
	return &Ramp{firstTime: true}
}

// Current returns the current level.
func (r *Ramp) Current() uint32 { return r.current }

// Target returns the target level.
func (r *Ramp) Target() uint32 { return r.target }

// Rate returns the active rate.
func (r *Ramp) Rate() float64 { return r.rate }

// Animating reports whether the ramp is still moving.
func (r *Ramp) Animating() bool { return r.animating }

// AnimateTo sets a new target and reports whether the target changed.
//
// A faster rate always replaces the active one. A slower rate only replaces it when
// the ramp is idle or the new target lies on the other side of the current level;
// otherwise the ramp keeps moving at its current speed.
func (r *Ramp) AnimateTo(target uint32, rate float64, now time.Time) bool {
	if r.firstTime {
		r.firstTime = false
		changed := r.target != target || r.current != target
		r.current = target
		r.target = target
		r.animated = float64(target)
		r.rate = rate
		return changed
	}

	if !r.animating || rate > r.rate ||
		(target <= r.current && r.current <= r.target) ||
		(r.target <= r.current && r.current <= target) {
		r.rate = rate
	}

	changed := r.target != target
	r.target = target

	if !r.animating && target != r.current {
		r.animating = true
		r.animated = float64(r.current)
		r.lastStep = now
	}
	return changed
}

// Step advances the ramp to now and returns the new level and whether it is still moving.
func (r *Ramp) Step(now time.Time) (uint32, bool) {
	if !r.animating {
		return r.current, false
	}

	dt := now.Sub(r.lastStep).Seconds()
	if dt < 0 {
		dt = 0
	}
	r.lastStep = now

	amount := dt * r.rate
	if r.rate <= 0 {
		amount = math.Inf(1)
	}
	target := float64(r.target)
	if target > float64(r.current) {
		r.animated = math.Min(r.animated+amount, target)
	} else {
		r.animated = math.Max(r.animated-amount, target)
	}

	r.current = uint32(math.Round(r.animated))
	if r.current == r.target {
		r.animating = false
	}
	return r.current, r.animating
}

// FrameScheduler runs a callback on the next frame.
type FrameScheduler interface {
	PostFrameCallback(cb func(frameTime time.Time))
}

// RampAnimator drives a Ramp from frame callbacks and pushes every new level to a setter.
type RampAnimator struct {
	ramp   *Ramp
	frames FrameScheduler
	set    func(level uint32)
	now    func() time.Time
	posted bool
}

// NewRampAnimator creates an animator. now supplies the time for new animations.
func NewRampAnimator(frames FrameScheduler, now func() time.Time, set func(level uint32)) *RampAnimator {
	return &RampAnimator{
		ramp:   NewRamp(),
		frames: frames,
		set:    set,
		now:    now,
	}
}

// AnimateTo starts or retargets the animation and reports whether the target changed.
func (a *RampAnimator) AnimateTo(target uint32, rate float64) bool {
	wasFirst := a.ramp.firstTime
	changed := a.ramp.AnimateTo(target, rate, a.now())

	if wasFirst {
		a.set(a.ramp.Current())
		return changed
	}
	if a.ramp.Animating() {
		a.post()
	}
	return changed
}

// Animating reports whether the animation is running.
func (a *RampAnimator) Animating() bool {
	return a.ramp.Animating()
}

// Current returns the last level pushed to the setter.
func (a *RampAnimator) Current() uint32 {
	return a.ramp.Current()
}

// Target returns the target level.
func (a *RampAnimator) Target() uint32 {
	return a.ramp.Target()
}

func (a *RampAnimator) post() {
	if a.posted {
		return
	}
	a.posted = true
	a.frames.PostFrameCallback(a.frame)
}

func (a *RampAnimator) frame(frameTime time.Time) {
	a.posted = false
	before := a.ramp.Current()
	level, animating := a.ramp.Step(frameTime)
	if level != before {
		a.set(level)
	}
	if animating {
		a.post()
	}
}

// Dump writes the animator state.
func (a *RampAnimator) Dump(w io.Writer) {
	fmt.Fprintln(w, "Brightness ramp:")
	fmt.Fprintf(w, "  current=%d target=%d\n", a.ramp.Current(), a.ramp.Target())
	fmt.Fprintf(w, "  rate=%.1f/s animating=%t\n", a.ramp.Rate(), a.ramp.Animating())
}
