// SPDX-License-Identifier: GPL-3.0-only

// Package backlight drives display backlights and panel power.
package backlight

//go:generate mockgen -source=backlight.go -destination=mocks/device_mock.go -package=mocks

import (
	"errors"
	"fmt"

	"github.com/shini4i/displaypowerd/internal/brightness"
)

// Device is a backlight with a level range and a power switch.
type Device interface {
	// SetLevel sets the backlight level within Range.
	SetLevel(level uint32) error

	// SetPower blanks or unblanks the panel.
	SetPower(on bool) error

	// Range returns the supported level range.
	Range() brightness.Range

	// Close releases the device.
	Close() error
}

// Switch is a panel power switch.
type Switch interface {
	Set(on bool) error
	Close() error
}

// Gated combines a backlight with a separate panel power switch.
type Gated struct {
	Device
	power Switch
}

// NewGated wraps dev so SetPower also drives power.
func NewGated(dev Device, power Switch) *Gated {
	return &Gated{Device: dev, power: power}
}

// SetPower switches the panel and then the backlight when turning on, and the other
// way around when turning off.
func (g *Gated) SetPower(on bool) error {
	if on {
		if err := g.power.Set(true); err != nil {
			return fmt.Errorf("failed to power panel on: %w", err)
		}
		return g.Device.SetPower(true)
	}

	if err := g.Device.SetPower(false); err != nil {
		return err
	}
	if err := g.power.Set(false); err != nil {
		return fmt.Errorf("failed to power panel off: %w", err)
	}
	return nil
}

// Close closes the switch and the backlight.
func (g *Gated) Close() error {
	return errors.Join(g.power.Close(), g.Device.Close())
}
