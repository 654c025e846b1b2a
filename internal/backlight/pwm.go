// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/shini4i/displaypowerd/internal/brightness"
)

// DefaultPWMFrequency is used when no frequency is configured.
const DefaultPWMFrequency = 25 * physic.KiloHertz

type pwmPin interface {
	String() string
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

// PWM is a backlight driven by the duty cycle of a GPIO pin.
type PWM struct {
	pin       pwmPin
	frequency physic.Frequency
	levels    brightness.Range
	level     uint32
	on        bool
}

// NewPWM initializes the host drivers and opens the pin called name.
// levels is the level range exposed to callers; it maps linearly onto the duty cycle.
func NewPWM(name string, frequency physic.Frequency, levels brightness.Range) (*PWM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find pin %s", name)
	}
	return newPWM(pin, frequency, levels), nil
}

func newPWM(pin pwmPin, frequency physic.Frequency, levels brightness.Range) *PWM {
	if frequency == 0 {
		frequency = DefaultPWMFrequency
	}
	if levels.Max == 0 {
		levels = brightness.Range{Min: 0, Max: 255}
	}
	return &PWM{pin: pin, frequency: frequency, levels: levels, on: true}
}

// SetLevel updates the duty cycle. While powered off the level is only remembered.
func (p *PWM) SetLevel(level uint32) error {
	p.level = p.levels.Clamp(level)
	if !p.on {
		return nil
	}
	return p.apply()
}

// SetPower drives the pin low when off and restores the duty cycle when on.
func (p *PWM) SetPower(on bool) error {
	p.on = on
	if !on {
		if err := p.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to switch %s off: %w", p.pin, err)
		}
		return nil
	}
	return p.apply()
}

// Range returns the level range.
func (p *PWM) Range() brightness.Range {
	return p.levels
}

// Close halts the pin.
func (p *PWM) Close() error {
	return p.pin.Halt()
}

// Duty returns the duty cycle for level.
func (p *PWM) Duty(level uint32) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(level) / int64(p.levels.Max))
}

func (p *PWM) apply() error {
	if err := p.pin.PWM(p.Duty(p.level), p.frequency); err != nil {
		return fmt.Errorf("failed to set %s duty cycle: %w", p.pin, err)
	}
	return nil
}
