// SPDX-License-Identifier: GPL-3.0-only

// Package proximity turns raw distance samples into a debounced near/far state.
package proximity

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/sensor"
)

// State is the debounced proximity state.
type State int

const (
	// Unknown means no sample has been committed since the gate was enabled.
	Unknown State = iota
	// Near means an object is close to the screen.
	Near
	// Far means nothing is close to the screen.
	Far
)

func (s State) String() string {
	switch s {
	case Near:
		return "near"
	case Far:
		return "far"
	default:
		return "unknown"
	}
}

const (
	// DefaultThreshold is the distance below which a sample counts as near.
	DefaultThreshold = 5.0

	// DefaultPositiveDebounce delays a transition to Near.
	DefaultPositiveDebounce = 0 * time.Millisecond

	// DefaultNegativeDebounce delays a transition to Far.
	DefaultNegativeDebounce = 500 * time.Millisecond
)

// Config holds the gate tuning.
type Config struct {
	Threshold        float64
	PositiveDebounce time.Duration
	NegativeDebounce time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:        DefaultThreshold,
		PositiveDebounce: DefaultPositiveDebounce,
		NegativeDebounce: DefaultNegativeDebounce,
	}
}

// Scheduler arms and cancels debounce timers on the control loop.
type Scheduler interface {
	Now() time.Time
	PostAt(when time.Time, fn func()) looper.Token
	Cancel(token looper.Token) bool
}

// Listener is told about every committed state change.
type Listener func(State)

// Gate is a debounced binary gate. All methods must be called from the control loop.
type Gate struct {
	sched    Scheduler
	cfg      Config
	maxRange float64
	listener Listener

	enabled        bool
	state          State
	pending        State
	pendingTime    time.Time
	timer          looper.Token
	timerArmed     bool
	responsiveness float64
}

// NewGate creates a disabled gate for a sensor with the given max range.
func NewGate(sched Scheduler, maxRange float64, cfg Config, listener Listener) *Gate {
	return &Gate{
		sched:          sched,
		cfg:            cfg,
		maxRange:       maxRange,
		listener:       listener,
		state:          Far,
		pending:        Unknown,
		responsiveness: 1,
	}
}

// Threshold returns the near/far boundary: the configured threshold capped at the sensor range.
func (g *Gate) Threshold() float64 {
	if g.maxRange > 0 {
		return math.Min(g.maxRange, g.cfg.Threshold)
	}
	return g.cfg.Threshold
}

// Enabled reports whether the gate is accepting samples.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// State returns the committed state.
func (g *Gate) State() State {
	return g.state
}

// SetResponsiveness scales both debounce delays. Non-positive values mean 1.
func (g *Gate) SetResponsiveness(factor float64) {
	if factor <= 0 {
		factor = 1
	}
	g.responsiveness = factor
}

// Enable starts accepting samples from the Unknown state.
func (g *Gate) Enable() {
	if g.enabled {
		return
	}
	g.enabled = true
	g.state = Unknown
	g.pending = Unknown
	log.Debug().Msg("Proximity gate enabled")
}

// Disable stops accepting samples and returns to Far, notifying if the state was Near.
func (g *Gate) Disable() {
	if !g.enabled {
		return
	}
	g.enabled = false
	g.cancelTimer()
	g.pending = Unknown

	previous := g.state
	g.state = Far
	log.Debug().Str("previous", previous.String()).Msg("Proximity gate disabled")
	if previous == Near && g.listener != nil {
		g.listener(Far)
	}
}

// HandleSample classifies a raw distance and debounces it.
func (g *Gate) HandleSample(s sensor.Sample) {
	if !g.enabled {
		return
	}

	next := Far
	if s.Value >= 0 && s.Value < g.Threshold() {
		next = Near
	}
	if next == g.pending {
		return
	}

	g.cancelTimer()
	g.pending = next
	if next == Near {
		g.pendingTime = s.Time.Add(g.scaled(g.cfg.PositiveDebounce))
	} else {
		g.pendingTime = s.Time.Add(g.scaled(g.cfg.NegativeDebounce))
	}
	g.debounce()
}

func (g *Gate) debounce() {
	if !g.enabled || g.pending == Unknown {
		return
	}
	if !g.pendingTime.After(g.sched.Now()) {
		g.commit(g.pending)
		return
	}
	g.timer = g.sched.PostAt(g.pendingTime, func() {
		g.timerArmed = false
		g.debounce()
	})
	g.timerArmed = true
}

func (g *Gate) commit(next State) {
	if g.state == next {
		return
	}
	g.state = next
	log.Debug().Str("state", next.String()).Msg("Proximity state committed")
	if g.listener != nil {
		g.listener(next)
	}
}

func (g *Gate) cancelTimer() {
	if g.timerArmed {
		g.sched.Cancel(g.timer)
		g.timerArmed = false
	}
}

func (g *Gate) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * g.responsiveness)
}

// Dump writes the gate state.
func (g *Gate) Dump(w io.Writer) {
	fmt.Fprintln(w, "Proximity gate:")
	fmt.Fprintf(w, "  enabled=%t\n", g.enabled)
	fmt.Fprintf(w, "  threshold=%.2f\n", g.Threshold())
	fmt.Fprintf(w, "  state=%s\n", g.state)
	fmt.Fprintf(w, "  pending=%s\n", g.pending)
	if g.timerArmed {
		fmt.Fprintf(w, "  pendingTime=%s\n", g.pendingTime.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(w, "  responsiveness=%.2f\n", g.responsiveness)
}
