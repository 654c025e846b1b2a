// SPDX-License-Identifier: GPL-3.0-only

package power

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/displaypowerd/internal/backlight"
	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/transition"
)

// poster queues work on the control loop.
type poster interface {
	Post(fn func()) looper.Token
}

// drawScheduler runs work after the frame callbacks of the next frame.
type drawScheduler interface {
	PostDrawCallback(cb func(frameTime time.Time))
}

// DisplayState is the visible state of the display: screen power, backlight level
// and transition level. Changes are pushed to the hardware asynchronously;
// WaitUntilClean tells when the hardware caught up.
//
// The effective backlight is the level while the screen is on and the transition
// level is above 0, and 0 otherwise. All methods must be called from the control loop.
type DisplayState struct {
	loop      poster
	frames    drawScheduler
	machine   *transition.Machine
	modulator *Modulator

	screenOn  bool
	level     uint32
	beamLevel float64

	screenReady         bool
	screenUpdatePending bool
	beamReady           bool
	beamDrawPending     bool
	prepareFailures     int

	cleanListener func()
}

var _ transition.Screen = (*DisplayState)(nil)

// NewDisplayState creates a display state that starts fully on at maxLevel and
// writes to device from a background goroutine.
func NewDisplayState(loop poster, frames drawScheduler, machine *transition.Machine, device backlight.Device, maxLevel uint32) *DisplayState {
	s := &DisplayState{
		loop:      loop,
		frames:    frames,
		machine:   machine,
		screenOn:  true,
		level:     maxLevel,
		beamLevel: 1,
		beamReady: true,
	}
	s.modulator = NewModulator(device, func() {
		loop.Post(s.screenUpdate)
	})
	return s
}

// Start pushes the initial state to the hardware.
func (s *DisplayState) Start() {
	s.scheduleScreenUpdate()
}

// ScreenOn reports whether the screen is on.
func (s *DisplayState) ScreenOn() bool {
	return s.screenOn
}

// SetScreenOn turns the screen on or off.
func (s *DisplayState) SetScreenOn(on bool) {
	if s.screenOn == on {
		return
	}
	s.screenOn = on
	s.screenReady = false
	s.scheduleScreenUpdate()
}

// Level returns the backlight level in device units.
func (s *DisplayState) Level() uint32 {
	return s.level
}

// SetLevel sets the backlight level used while the screen is on.
func (s *DisplayState) SetLevel(level uint32) {
	if s.level == level {
		return
	}
	s.level = level
	if s.screenOn {
		s.screenReady = false
		s.scheduleScreenUpdate()
	}
}

// BeamLevel returns the transition level in [0, 1].
func (s *DisplayState) BeamLevel() float64 {
	return s.beamLevel
}

// SetBeamLevel sets the transition level and redraws the transition on the next frame.
func (s *DisplayState) SetBeamLevel(level float64) {
	if s.beamLevel == level {
		return
	}
	s.beamLevel = level
	if s.screenOn {
		s.screenReady = false
		s.scheduleScreenUpdate()
	}
	if s.machine.Prepared() {
		s.beamReady = false
		s.scheduleBeamDraw()
	}
}

// PrepareBeam acquires the transition surface. On failure the transition is skipped
// and the caller applies the screen state without animation.
func (s *DisplayState) PrepareBeam(mode transition.Mode) bool {
	if err := s.machine.Prepare(mode); err != nil {
		s.prepareFailures++
		if s.prepareFailures == 1 {
			log.Warn().Err(err).Str("mode", mode.String()).Msg("Transition unavailable, switching screen without animation")
		} else {
			log.Debug().Err(err).Str("mode", mode.String()).Msg("Transition unavailable")
		}
		s.beamReady = true
		return false
	}
	s.beamReady = false
	s.scheduleBeamDraw()
	return true
}

// DismissBeam releases the transition surface.
func (s *DisplayState) DismissBeam() {
	s.machine.Dismiss()
	s.beamReady = true
}

// HoldBeam keeps the transition surface showing its last frame.
func (s *DisplayState) HoldBeam() {
	s.machine.Hold()
}

// BeamState returns the transition machine state.
func (s *DisplayState) BeamState() transition.State {
	return s.machine.State()
}

// WaitUntilClean reports whether the hardware reflects the state. If not, listener
// is called once it does, replacing any listener registered before.
func (s *DisplayState) WaitUntilClean(listener func()) bool {
	if !s.screenReady || !s.beamReady {
		s.cleanListener = listener
		return false
	}
	s.cleanListener = nil
	return true
}

func (s *DisplayState) scheduleScreenUpdate() {
	if s.screenUpdatePending {
		return
	}
	s.screenUpdatePending = true
	s.loop.Post(s.screenUpdate)
}

// screenUpdate is also posted by the modulator once the device caught up.
func (s *DisplayState) screenUpdate() {
	s.screenUpdatePending = false
	if s.modulator.SetState(s.screenOn, s.effectiveLevel()) {
		s.screenReady = true
		s.invokeCleanListener()
	}
}

func (s *DisplayState) effectiveLevel() uint32 {
	if s.screenOn && s.beamLevel > 0 {
		return s.level
	}
	return 0
}

func (s *DisplayState) scheduleBeamDraw() {
	if s.beamDrawPending {
		return
	}
	s.beamDrawPending = true
	s.frames.PostDrawCallback(s.beamDraw)
}

func (s *DisplayState) beamDraw(time.Time) {
	s.beamDrawPending = false
	if s.machine.Prepared() {
		if err := s.machine.Draw(s.beamLevel); err != nil {
			log.Warn().Err(err).Msg("Failed to draw transition")
		}
	}
	s.beamReady = true
	s.invokeCleanListener()
}

func (s *DisplayState) invokeCleanListener() {
	if s.cleanListener != nil && s.screenReady && s.beamReady {
		listener := s.cleanListener
		s.cleanListener = nil
		listener()
	}
}

// Dump writes the display state.
func (s *DisplayState) Dump(w io.Writer) {
	on, level := s.modulator.State()
	fmt.Fprintln(w, "Display state:")
	fmt.Fprintf(w, "  screen_on=%t level=%d beam_level=%.3f\n", s.screenOn, s.level, s.beamLevel)
	fmt.Fprintf(w, "  screen_ready=%t beam_ready=%t update_pending=%t draw_pending=%t\n",
		s.screenReady, s.beamReady, s.screenUpdatePending, s.beamDrawPending)
	fmt.Fprintf(w, "  device_on=%t device_level=%d prepare_failures=%d\n", on, level, s.prepareFailures)
	s.machine.Dump(w)
}
