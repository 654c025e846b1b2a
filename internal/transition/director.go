// SPDX-License-Identifier: GPL-3.0-only

package transition

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultOnDuration is the length of the screen-on animation.
	DefaultOnDuration = 250 * time.Millisecond

	// DefaultOffDuration is the length of the screen-off animation.
	DefaultOffDuration = 400 * time.Millisecond
)

// Screen is the display the director drives: its power, the animation level and
// the transition surface.
type Screen interface {
	ScreenOn() bool
	SetScreenOn(on bool)
	BeamLevel() float64
	SetBeamLevel(level float64)
	// PrepareBeam acquires the transition surface and reports whether it succeeded.
	PrepareBeam(mode Mode) bool
	DismissBeam()
	// HoldBeam keeps the last frame up and the surface acquired until the next
	// PrepareBeam or DismissBeam.
	HoldBeam()
	BeamState() State
}

// DirectorConfig controls the on/off animations.
type DirectorConfig struct {
	// AnimateOn plays an animation when the screen turns on; otherwise it appears at once.
	AnimateOn bool
	// Fade replaces the warm-up and cool-down effects with a fade.
	Fade        bool
	OnDuration  time.Duration
	OffDuration time.Duration
}

// DefaultDirectorConfig returns the stock animation settings.
func DefaultDirectorConfig() DirectorConfig {
	return DirectorConfig{
		AnimateOn:   true,
		Fade:        false,
		OnDuration:  DefaultOnDuration,
		OffDuration: DefaultOffDuration,
	}
}

// Director sequences screen on/off changes with their animations.
//
// Screen on is asserted before the reveal starts and screen off only once the level
// reached 0. After screen off the surface is held until the next screen on. An on request arriving while the off animation runs waits for it to
// finish, and the other way around. All methods must be called from the control loop.
type Director struct {
	screen Screen
	cfg    DirectorConfig
	now    func() time.Time

	on  *Animator
	off *Animator

	blocked      bool
	blockedSince time.Time
}

// NewDirector creates a director. onEnd is called whenever an animation finishes so
// the caller can re-evaluate its state.
func NewDirector(screen Screen, frames FrameScheduler, now func() time.Time, cfg DirectorConfig, onEnd func()) *Director {
	d := &Director{
		screen: screen,
		cfg:    cfg,
		now:    now,
	}
	d.on = NewAnimator(frames, now, 0, 1, cfg.OnDuration, screen.SetBeamLevel, onEnd)
	d.off = NewAnimator(frames, now, 1, 0, cfg.OffDuration, screen.SetBeamLevel, onEnd)
	return d
}

// Busy reports whether an on or off animation is running.
func (d *Director) Busy() bool {
	return d.on.IsStarted() || d.off.IsStarted()
}

// Blocked reports whether the screen is on but held dark.
func (d *Director) Blocked() bool {
	return d.blocked
}

// State returns the transition state, including the blocked substate.
func (d *Director) State() State {
	if d.blocked {
		return StateBlocked
	}
	return d.screen.BeamState()
}

// Update moves the screen toward wantOn. blockScreenOn holds a dark screen dark.
func (d *Director) Update(wantOn, blockScreenOn bool) {
	if wantOn {
		d.updateOn(blockScreenOn)
	} else {
		d.updateOff()
	}
}

func (d *Director) updateOn(blockScreenOn bool) {
	if d.off.IsStarted() {
		return
	}

	// The screen is on but its contents stay hidden until the level rises.
	d.setScreenOn(true)

	if blockScreenOn && d.screen.BeamLevel() == 0 {
		d.block()
		return
	}
	d.unblock()

	if !d.cfg.AnimateOn {
		d.screen.SetBeamLevel(1)
		d.screen.DismissBeam()
		return
	}
	if d.on.IsStarted() {
		return
	}

	switch {
	case d.screen.BeamLevel() == 1:
		d.screen.DismissBeam()
	case d.screen.PrepareBeam(d.onMode()):
		d.on.Start()
	default:
		d.on.End()
	}
}

func (d *Director) updateOff() {
	if d.on.IsStarted() || d.off.IsStarted() {
		return
	}

	// Releasing the surface restores the captured image, so the dark frame stays up
	// until the next screen on.
	if d.screen.BeamLevel() == 0 {
		d.setScreenOn(false)
		d.screen.HoldBeam()
		return
	}

	if d.screen.PrepareBeam(d.offMode()) && d.screen.ScreenOn() {
		d.off.Start()
	} else {
		d.off.End()
	}
}

func (d *Director) setScreenOn(on bool) {
	if d.screen.ScreenOn() == on {
		return
	}
	d.screen.SetScreenOn(on)
	log.Info().Bool("on", on).Msg("Screen power changed")
}

func (d *Director) block() {
	if d.blocked {
		return
	}
	d.blocked = true
	d.blockedSince = d.now()
	log.Info().Msg("Blocked screen on")
}

func (d *Director) unblock() {
	if !d.blocked {
		return
	}
	d.blocked = false
	log.Info().Dur("blocked_for", d.now().Sub(d.blockedSince)).Msg("Unblocked screen on")
}

func (d *Director) onMode() Mode {
	if d.cfg.Fade {
		return ModeFade
	}
	return ModeWarmUp
}

func (d *Director) offMode() Mode {
	if d.cfg.Fade {
		return ModeFade
	}
	return ModeCoolDown
}

// Dump writes the director state.
func (d *Director) Dump(w io.Writer) {
	fmt.Fprintln(w, "Transition director:")
	fmt.Fprintf(w, "  state=%s animate_on=%t fade=%t\n", d.State(), d.cfg.AnimateOn, d.cfg.Fade)
	fmt.Fprintf(w, "  on_animating=%t off_animating=%t blocked=%t\n", d.on.IsStarted(), d.off.IsStarted(), d.blocked)
	fmt.Fprintf(w, "  screen_on=%t level=%.3f\n", d.screen.ScreenOn(), d.screen.BeamLevel())
}
