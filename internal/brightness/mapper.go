// SPDX-License-Identifier: GPL-3.0-only

package brightness

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/shini4i/displaypowerd/internal/twilight"
)

// Table is an auto-brightness curve. Levels[0] applies from 0 lux up to Lux[0],
// Levels[i] applies at Lux[i-1]. There is exactly one more level than lux breakpoint.
type Table struct {
	Lux    []float64
	Levels []uint32
}

// Validate checks the table shape.
func (t Table) Validate() error {
	if len(t.Lux) == 0 {
		return fmt.Errorf("%w: at least one lux breakpoint is required", ErrInvalidSpline)
	}
	if len(t.Levels) != len(t.Lux)+1 {
		return fmt.Errorf("%w: expected %d levels for %d lux breakpoints, got %d",
			ErrInvalidSpline, len(t.Lux)+1, len(t.Lux), len(t.Levels))
	}
	for i := 1; i < len(t.Levels); i++ {
		if t.Levels[i] < t.Levels[i-1] {
			return fmt.Errorf("%w: levels must be non-decreasing (level[%d]=%d < level[%d]=%d)",
				ErrInvalidSpline, i, t.Levels[i], i-1, t.Levels[i-1])
		}
	}
	return nil
}

// Mapper turns accepted ambient lux into a backlight level.
type Mapper struct {
	spline *Spline
	device Range
	limits Range
	gamma  GammaConfig
}

// NewMapper builds a mapper. device is the hardware level range used to normalize
// the table, limits the configured minimum and maximum output level.
func NewMapper(table Table, device, limits Range, gamma GammaConfig) (*Mapper, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	x := append([]float64{0}, table.Lux...)
	y := lo.Map(table.Levels, func(level uint32, _ int) float64 {
		return device.Normalize(level)
	})

	spline, err := NewSpline(x, y)
	if err != nil {
		return nil, err
	}

	return &Mapper{
		spline: spline,
		device: device,
		limits: limits,
		gamma:  gamma,
	}, nil
}

// Normalized returns the raw spline value for lux, in [0, 1].
func (m *Mapper) Normalized(lux float64) float64 {
	return m.spline.Interpolate(lux)
}

// Gamma returns the combined gamma for an adjustment and twilight state at now.
func (m *Mapper) Gamma(adjustment float64, tw twilight.State, now time.Time) float64 {
	gamma := 1.0
	if adjustment != 0 {
		gamma *= UserGamma(adjustment, m.gamma.MaxGamma)
	}
	if m.gamma.UseTwilight {
		gamma *= NightGamma(now, tw, m.gamma.MaxTwilightGamma, m.gamma.TwilightWindow)
	}
	return gamma
}

// Map returns the output level for lux and the gamma that produced it.
func (m *Mapper) Map(lux, adjustment float64, tw twilight.State, now time.Time) (uint32, float64) {
	value := m.Normalized(lux)
	gamma := m.Gamma(adjustment, tw, now)
	if gamma != 1 {
		value = math.Pow(value, gamma)
	}
	level := m.device.FromNormalized(value)
	return m.limits.Clamp(level), gamma
}

func (m *Mapper) String() string {
	return fmt.Sprintf("Mapper{%s, device=%v, limits=%v}", m.spline, m.device, m.limits)
}
