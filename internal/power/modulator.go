// SPDX-License-Identifier: GPL-3.0-only

package power

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/displaypowerd/internal/backlight"
)

// Modulator applies screen power and backlight level to the device off the control
// loop. Only the latest requested state matters; intermediate states may be skipped.
//
// When the device turns on, power is applied before the level. When it turns off,
// the level is applied before power is cut.
type Modulator struct {
	device backlight.Device
	// done is posted to the control loop each time the device caught up.
	done   func()
	inline bool

	mu               sync.Mutex
	pendingOn        bool
	pendingLevel     uint32
	actualOn         bool
	actualLevel      uint32
	initialized      bool
	applied          bool
	changeInProgress bool
}

// NewModulator creates a modulator that applies changes on its own goroutine and
// calls done (from that goroutine) when the device reflects the latest state.
func NewModulator(device backlight.Device, done func()) *Modulator {
	return &Modulator{device: device, done: done}
}

// NewInlineModulator creates a modulator that applies changes synchronously.
func NewInlineModulator(device backlight.Device) *Modulator {
	return &Modulator{device: device, inline: true}
}

// SetState requests a new device state and reports whether the device already
// reflects it. When false, done is called once it does.
func (m *Modulator) SetState(on bool, level uint32) bool {
	m.mu.Lock()
	if m.initialized && on == m.pendingOn && level == m.pendingLevel {
		inProgress := m.changeInProgress
		m.mu.Unlock()
		return !inProgress
	}
	m.initialized = true
	m.pendingOn = on
	m.pendingLevel = level

	if m.inline {
		m.mu.Unlock()
		m.apply()
		return true
	}
	if m.changeInProgress {
		m.mu.Unlock()
		return false
	}
	m.changeInProgress = true
	m.mu.Unlock()

	go func() {
		m.apply()
		if m.done != nil {
			m.done()
		}
	}()
	return false
}

// apply loops until the device matches the pending state.
func (m *Modulator) apply() {
	for {
		m.mu.Lock()
		on := m.pendingOn
		level := m.pendingLevel
		onChanged := !m.applied || on != m.actualOn
		if !onChanged && level == m.actualLevel {
			m.changeInProgress = false
			m.mu.Unlock()
			return
		}
		m.applied = true
		m.actualOn = on
		m.actualLevel = level
		m.mu.Unlock()

		log.Debug().Bool("on", on).Uint32("level", level).Msg("Applying backlight state")

		if onChanged && on {
			m.setPower(true)
		}
		if err := m.device.SetLevel(level); err != nil {
			log.Warn().Err(err).Uint32("level", level).Msg("Failed to set backlight level")
		}
		if onChanged && !on {
			m.setPower(false)
		}
	}
}

func (m *Modulator) setPower(on bool) {
	if err := m.device.SetPower(on); err != nil {
		log.Warn().Err(err).Bool("on", on).Msg("Failed to set backlight power")
	}
}

// State returns the last state written to the device.
func (m *Modulator) State() (on bool, level uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actualOn, m.actualLevel
}
