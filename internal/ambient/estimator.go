// SPDX-License-Identifier: GPL-3.0-only

// Package ambient estimates a stable ambient light level from noisy lux samples.
//
// Two exponential moving averages track the recent (short-term) and settled
// (long-term) light level. A new ambient value is only accepted when both averages
// cross a hysteresis band around the current value and stay there for a debounce
// window whose length depends on the direction of the change.
package ambient

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/sensor"
)

// Direction is the direction of a pending ambient change.
type Direction int

const (
	// Darkening means both averages are below the darkening threshold.
	Darkening Direction = -1
	// Steady means no change is pending.
	Steady Direction = 0
	// Brightening means both averages are above the brightening threshold.
	Brightening Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Brightening:
		return "brightening"
	case Darkening:
		return "darkening"
	default:
		return "steady"
	}
}

// Config holds the estimator tuning.
type Config struct {
	ShortTermTimeConstant time.Duration
	LongTermTimeConstant  time.Duration

	// BrighteningHysteresis and DarkeningHysteresis are fractions of the accepted lux.
	BrighteningHysteresis float64
	DarkeningHysteresis   float64

	BrighteningDebounce     time.Duration
	BrighteningDebounceFast time.Duration
	DarkeningDebounce       time.Duration

	// BrighteningFastThreshold is the short/long spread in lux that selects the fast debounce.
	BrighteningFastThreshold float64

	// SyntheticRate is the re-evaluation period used when the sensor goes quiet.
	SyntheticRate time.Duration

	// WarmUp makes every sample replace both averages for this long after enabling.
	WarmUp time.Duration

	// ConservativeDarkening accepts max(short, long) instead of short when darkening.
	ConservativeDarkening bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		ShortTermTimeConstant:    1000 * time.Millisecond,
		LongTermTimeConstant:     5000 * time.Millisecond,
		BrighteningHysteresis:    0.10,
		DarkeningHysteresis:      0.20,
		BrighteningDebounce:      4000 * time.Millisecond,
		BrighteningDebounceFast:  1000 * time.Millisecond,
		DarkeningDebounce:        8000 * time.Millisecond,
		BrighteningFastThreshold: 300,
		SyntheticRate:            2000 * time.Millisecond,
		WarmUp:                   0,
		ConservativeDarkening:    true,
	}
}

// Scheduler arms and cancels re-evaluation timers on the control loop.
type Scheduler interface {
	Now() time.Time
	PostAt(when time.Time, fn func()) looper.Token
	Cancel(token looper.Token) bool
}

// Listener is told about every accepted ambient lux value.
type Listener func(lux float64)

// Estimator is the ambient light filter. All methods must be called from the control loop.
type Estimator struct {
	sched    Scheduler
	cfg      Config
	listener Listener

	enabled        bool
	enableTime     time.Time
	samples        int
	shortTerm      float64
	longTerm       float64
	lastLux        float64
	lastLuxTime    time.Time
	ambientLux     float64
	valid          bool
	direction      Direction
	directionTime  time.Time
	timer          looper.Token
	timerArmed     bool
	responsiveness float64
	accepted       int
}

// NewEstimator creates a disabled estimator.
func NewEstimator(sched Scheduler, cfg Config, listener Listener) *Estimator {
	return &Estimator{
		sched:          sched,
		cfg:            cfg,
		listener:       listener,
		responsiveness: 1,
	}
}

// Enabled reports whether the estimator is accepting samples.
func (e *Estimator) Enabled() bool {
	return e.enabled
}

// AmbientLux returns the accepted ambient lux and whether it is valid.
func (e *Estimator) AmbientLux() (float64, bool) {
	return e.ambientLux, e.valid
}

// Averages returns the short-term and long-term averages.
func (e *Estimator) Averages() (short, long float64) {
	return e.shortTerm, e.longTerm
}

// Direction returns the pending debounce direction.
func (e *Estimator) Direction() Direction {
	return e.direction
}

// SetResponsiveness scales the filter time constants and debounce windows.
// Non-positive values mean 1.
func (e *Estimator) SetResponsiveness(factor float64) {
	if factor <= 0 {
		factor = 1
	}
	e.responsiveness = factor
}

// Enable starts a fresh estimate.
func (e *Estimator) Enable() {
	if e.enabled {
		return
	}
	e.enabled = true
	e.enableTime = e.sched.Now()
	log.Debug().Msg("Ambient light estimator enabled")
}

// Disable stops estimation and invalidates the estimate.
func (e *Estimator) Disable() {
	if !e.enabled {
		return
	}
	e.enabled = false
	e.valid = false
	e.samples = 0
	e.direction = Steady
	e.cancelTimer()
	log.Debug().Msg("Ambient light estimator disabled")
}

// HandleSample feeds one raw lux reading.
func (e *Estimator) HandleSample(s sensor.Sample) {
	if !e.enabled {
		return
	}
	e.cancelTimer()
	e.applyMeasurement(s.Time, s.Value)
	e.update(s.Time)
}

func (e *Estimator) applyMeasurement(t time.Time, lux float64) {
	e.samples++
	if e.samples == 1 || e.warmingUp(t) {
		e.shortTerm = lux
		e.longTerm = lux
	} else {
		dt := float64(t.Sub(e.lastLuxTime)) / float64(time.Millisecond)
		if dt < 0 {
			dt = 0
		}
		e.shortTerm += (lux - e.shortTerm) * dt / (e.scaledMillis(e.cfg.ShortTermTimeConstant) + dt)
		e.longTerm += (lux - e.longTerm) * dt / (e.scaledMillis(e.cfg.LongTermTimeConstant) + dt)
	}
	e.lastLux = lux
	e.lastLuxTime = t
}

func (e *Estimator) update(t time.Time) {
	if !e.valid || e.warmingUp(t) {
		e.direction = Steady
		e.directionTime = t
		e.accept(e.shortTerm)
		return
	}

	brighteningThreshold := e.ambientLux * (1 + e.cfg.BrighteningHysteresis)
	if e.shortTerm > brighteningThreshold && e.longTerm > brighteningThreshold {
		if e.direction != Brightening {
			e.direction = Brightening
			e.directionTime = t
		}
		delay := e.cfg.BrighteningDebounce
		if e.shortTerm-e.longTerm > e.cfg.BrighteningFastThreshold {
			delay = e.cfg.BrighteningDebounceFast
		}
		deadline := e.directionTime.Add(e.scaled(delay))
		if !t.Before(deadline) {
			e.accept(e.shortTerm)
		} else {
			e.schedule(deadline)
		}
		return
	}

	darkeningThreshold := e.ambientLux * (1 - e.cfg.DarkeningHysteresis)
	if e.shortTerm < darkeningThreshold && e.longTerm < darkeningThreshold {
		if e.direction != Darkening {
			e.direction = Darkening
			e.directionTime = t
		}
		deadline := e.directionTime.Add(e.scaled(e.cfg.DarkeningDebounce))
		if !t.Before(deadline) {
			next := e.shortTerm
			if e.cfg.ConservativeDarkening {
				next = math.Max(e.shortTerm, e.longTerm)
			}
			e.accept(next)
		} else {
			e.schedule(deadline)
		}
		return
	}

	if e.direction != Steady {
		e.direction = Steady
		e.directionTime = t
	}

	// The sensor may stay silent while the light is constant, leaving the filters stale.
	if e.lastLux > brighteningThreshold || e.lastLux < darkeningThreshold {
		e.schedule(t.Add(e.cfg.SyntheticRate))
	}
}

// reevaluate runs on the timer: it synthesizes a sample if the sensor went quiet.
// warmingUp reports whether t is inside the warm-up window, where samples
// replace both averages outright.
func (e *Estimator) warmingUp(t time.Time) bool {
	return t.Sub(e.enableTime) < e.cfg.WarmUp
}

func (e *Estimator) reevaluate() {
	e.timerArmed = false
	if !e.enabled {
		return
	}
	now := e.sched.Now()
	if !now.Before(e.lastLuxTime.Add(e.cfg.SyntheticRate)) {
		e.applyMeasurement(now, e.lastLux)
	}
	e.update(now)
}

func (e *Estimator) accept(lux float64) {
	changed := !e.valid || lux != e.ambientLux
	e.ambientLux = lux
	e.valid = true
	if !changed {
		return
	}
	e.accepted++
	log.Debug().
		Float64("lux", lux).
		Float64("short", e.shortTerm).
		Float64("long", e.longTerm).
		Msg("Ambient lux accepted")
	if e.listener != nil {
		e.listener(lux)
	}
}

func (e *Estimator) schedule(when time.Time) {
	e.cancelTimer()
	e.timer = e.sched.PostAt(when, e.reevaluate)
	e.timerArmed = true
}

func (e *Estimator) cancelTimer() {
	if e.timerArmed {
		e.sched.Cancel(e.timer)
		e.timerArmed = false
	}
}

func (e *Estimator) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * e.responsiveness)
}

func (e *Estimator) scaledMillis(d time.Duration) float64 {
	return float64(e.scaled(d)) / float64(time.Millisecond)
}

// Dump writes the filter state.
func (e *Estimator) Dump(w io.Writer) {
	fmt.Fprintln(w, "Ambient light estimator:")
	fmt.Fprintf(w, "  enabled=%t\n", e.enabled)
	fmt.Fprintf(w, "  ambientLux=%.2f valid=%t\n", e.ambientLux, e.valid)
	fmt.Fprintf(w, "  shortTermAverage=%.2f\n", e.shortTerm)
	fmt.Fprintf(w, "  longTermAverage=%.2f\n", e.longTerm)
	fmt.Fprintf(w, "  lastObservedLux=%.2f\n", e.lastLux)
	fmt.Fprintf(w, "  samples=%d accepted=%d\n", e.samples, e.accepted)
	fmt.Fprintf(w, "  direction=%s\n", e.direction)
	fmt.Fprintf(w, "  responsiveness=%.2f\n", e.responsiveness)
}
