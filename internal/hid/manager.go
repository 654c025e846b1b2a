// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/shini4i/displaypowerd/internal/backlight"
	"github.com/shini4i/displaypowerd/internal/brightness"
)

// Manager tracks every connected Studio Display and drives them as one backlight.
//
// Levels are nits. The displays have no panel power control over HID, so powering off
// drops them to their minimum level and powering on restores the last level.
type Manager struct {
	displays   map[string]*Display // serial -> display
	mu         sync.RWMutex
	enumerator func() ([]DeviceInfo, error)
	opener     func(serial string) (Device, error)

	level    uint32
	hasLevel bool
	on       bool
}

var _ backlight.Device = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEnumerator replaces the USB enumeration.
func WithEnumerator(fn func() ([]DeviceInfo, error)) ManagerOption {
	return func(m *Manager) {
		m.enumerator = fn
	}
}

// WithOpener replaces the HID opener.
func WithOpener(fn func(serial string) (Device, error)) ManagerOption {
	return func(m *Manager) {
		m.opener = fn
	}
}

// NewManager creates a manager with no displays; call RefreshDisplays to find them.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		displays:   make(map[string]*Display),
		enumerator: EnumerateDisplays,
		opener:     OpenDisplay,
		on:         true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListDisplays describes the open displays ordered by serial.
func (m *Manager) ListDisplays() []DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	serials := lo.Keys(m.displays)
	sort.Strings(serials)
	return lo.Map(serials, func(serial string, _ int) DeviceInfo {
		return m.displays[serial].device.Info()
	})
}

// GetDisplay returns the display with serial.
func (m *Manager) GetDisplay(serial string) (*Display, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	display, ok := m.displays[serial]
	if !ok {
		return nil, fmt.Errorf("display with serial %s not found", serial)
	}
	return display, nil
}

// RefreshDisplays re-enumerates the bus, closing displays that went away and opening
// new ones. New displays receive the current output level.
func (m *Manager) RefreshDisplays() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.enumerator()
	if err != nil {
		return fmt.Errorf("failed to enumerate displays: %w", err)
	}
	present := lo.SliceToMap(current, func(info DeviceInfo) (string, DeviceInfo) {
		return info.Serial, info
	})

	for serial := range m.displays {
		if _, ok := present[serial]; !ok {
			log.Info().Str("serial", serial).Msg("Display disconnected")
			m.dropLocked(serial)
		}
	}

	for serial, info := range present {
		if _, ok := m.displays[serial]; ok {
			continue
		}
		device, err := m.opener(serial)
		if err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to open display")
			continue
		}
		display := NewDisplay(device)
		m.displays[serial] = display
		log.Info().Str("serial", serial).Str("product", info.Product).Msg("Display connected")

		if m.hasLevel {
			if err := display.SetNits(m.outputLocked()); err != nil {
				log.Warn().Err(err).Str("serial", serial).Msg("Failed to apply level to new display")
			}
		}
	}
	return nil
}

// SetLevel sets every display to level nits, clamped to the Studio Display range.
// Displays that were unplugged are dropped; other failures are returned joined.
func (m *Manager) SetLevel(level uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level = brightness.StudioDisplayRange.Clamp(level)
	m.hasLevel = true
	if !m.on {
		return nil
	}
	return m.applyLocked(m.level)
}

// SetPower drops the displays to their minimum level when off and restores the
// last level when on.
func (m *Manager) SetPower(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.on == on {
		return nil
	}
	m.on = on
	if !m.hasLevel {
		return nil
	}
	return m.applyLocked(m.outputLocked())
}

// Range returns the Studio Display nits range.
func (m *Manager) Range() brightness.Range {
	return brightness.StudioDisplayRange
}

func (m *Manager) outputLocked() uint32 {
	if !m.on {
		return brightness.StudioDisplayRange.Min
	}
	return m.level
}

func (m *Manager) applyLocked(nits uint32) error {
	var errs []error
	for serial, display := range m.displays {
		err := display.SetNits(nits)
		switch {
		case err == nil:
		case IsDeviceGone(err):
			log.Warn().Err(err).Str("serial", serial).Msg("Display gone, dropping it")
			m.dropLocked(serial)
		default:
			errs = append(errs, fmt.Errorf("display %s: %w", serial, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) dropLocked(serial string) {
	if err := m.displays[serial].Close(); err != nil {
		log.Warn().Err(err).Str("serial", serial).Msg("Failed to close display")
	}
	delete(m.displays, serial)
}

// Close closes every display.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serial := range m.displays {
		m.dropLocked(serial)
	}
	return nil
}

// Count returns the number of open displays.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.displays)
}
