// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

type outputLine interface {
	SetValue(value int) error
	Close() error
}

// PowerLine is a panel enable line on a GPIO character device.
type PowerLine struct {
	chip *gpiocdev.Chip
	line outputLine
}

// NewPowerLine requests offset on chip as an output that starts with the panel on.
func NewPowerLine(chip string, offset int, activeLow bool) (*PowerLine, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("failed to open gpio chip %s: %w", chip, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(1)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.RequestLine(offset, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to request power line %d: %w", offset, err)
	}
	return &PowerLine{chip: c, line: line}, nil
}

// Set drives the line active for on.
func (p *PowerLine) Set(on bool) error {
	value := 0
	if on {
		value = 1
	}
	if err := p.line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set power line: %w", err)
	}
	return nil
}

// Close releases the line and the chip.
func (p *PowerLine) Close() error {
	if err := p.line.Close(); err != nil {
		return fmt.Errorf("failed to release power line: %w", err)
	}
	if p.chip != nil {
		return p.chip.Close()
	}
	return nil
}
