// SPDX-License-Identifier: GPL-3.0-only

package transition

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// State is the transition state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateWarmUp
	StateCoolDown
	StateFade
	// StateBlocked is a warm-up held at level 0 until the screen may be revealed.
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateWarmUp:
		return "warm-up"
	case StateCoolDown:
		return "cool-down"
	case StateFade:
		return "fade"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

func stateFor(mode Mode) State {
	switch mode {
	case ModeWarmUp:
		return StateWarmUp
	case ModeCoolDown:
		return StateCoolDown
	default:
		return StateFade
	}
}

// Machine owns the transition surface. A surface is acquired by Prepare and
// released by Dismiss, by the next Prepare or by a failed Prepare; it is never left
// half prepared.
type Machine struct {
	surface Surface

	state    State
	mode     Mode
	prepared bool
	level    float64
	width    int
	height   int
	frames   uint64
}

// NewMachine creates an idle machine drawing on surface.
func NewMachine(surface Surface) *Machine {
	return &Machine{surface: surface}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Mode returns the mode of the last Prepare.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Prepared reports whether the surface is held.
func (m *Machine) Prepared() bool {
	return m.prepared
}

// Prepare acquires the surface for mode. Any previous transition is dismissed first.
// On failure the machine is idle again and the error wraps ErrSurfaceUnavailable.
func (m *Machine) Prepare(mode Mode) error {
	m.Dismiss()

	m.state = StatePreparing
	m.mode = mode

	if m.surface == nil {
		m.state = StateIdle
		return ErrSurfaceUnavailable
	}

	m.width, m.height = m.surface.Size()
	if m.width <= 0 || m.height <= 0 {
		m.state = StateIdle
		return fmt.Errorf("%w: invalid surface size %dx%d", ErrSurfaceUnavailable, m.width, m.height)
	}

	if err := m.surface.Prepare(mode != ModeFade); err != nil {
		m.surface.Release()
		m.state = StateIdle
		return fmt.Errorf("%w: %w", ErrSurfaceUnavailable, err)
	}

	m.prepared = true
	m.state = stateFor(mode)
	log.Debug().Str("mode", mode.String()).Int("width", m.width).Int("height", m.height).Msg("Transition surface prepared")
	return nil
}

// Draw shows the frame for level. It does nothing unless prepared.
func (m *Machine) Draw(level float64) error {
	if !m.prepared {
		return nil
	}
	m.level = level
	m.frames++
	if err := m.surface.Show(BuildFrame(m.mode, level, m.width, m.height)); err != nil {
		return fmt.Errorf("failed to show transition frame: %w", err)
	}
	return nil
}

// Hold returns to idle but keeps the surface and its last frame.
func (m *Machine) Hold() {
	if m.prepared && m.state != StateIdle {
		log.Debug().Str("mode", m.mode.String()).Uint64("frames", m.frames).Msg("Transition surface held")
	}
	m.state = StateIdle
}

// Dismiss releases the surface and returns to idle.
func (m *Machine) Dismiss() {
	if m.prepared {
		m.surface.Release()
		log.Debug().Str("mode", m.mode.String()).Uint64("frames", m.frames).Msg("Transition surface dismissed")
	}
	m.prepared = false
	m.state = StateIdle
	m.frames = 0
}

// Dump writes the machine state.
func (m *Machine) Dump(w io.Writer) {
	fmt.Fprintln(w, "Transition surface:")
	fmt.Fprintf(w, "  state=%s mode=%s prepared=%t\n", m.state, m.mode, m.prepared)
	fmt.Fprintf(w, "  size=%dx%d level=%.3f frames=%d\n", m.width, m.height, m.level, m.frames)
}
