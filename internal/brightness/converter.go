// SPDX-License-Identifier: GPL-3.0-only

// Package brightness maps ambient light to backlight levels and animates level changes.
//
// Levels are device integers inside a Range. The Apple Studio Display reports
// brightness in nits between 400 and 60000; sysfs and PWM backlights use their own
// ranges.
package brightness

import "math"

const (
	// MinStudioDisplayNits is the minimum brightness value in nits supported by the Apple Studio Display.
	MinStudioDisplayNits uint32 = 400

	// MaxStudioDisplayNits is the maximum brightness value in nits supported by the Apple Studio Display.
	MaxStudioDisplayNits uint32 = 60000
)

// StudioDisplayRange is the level range of the Apple Studio Display.
var StudioDisplayRange = Range{Min: MinStudioDisplayNits, Max: MaxStudioDisplayNits}

// Range is an inclusive interval of device brightness levels.
type Range struct {
	Min uint32
	Max uint32
}

// Span returns the difference between maximum and minimum level.
func (r Range) Span() uint32 {
	if r.Max < r.Min {
		return 0
	}
	return r.Max - r.Min
}

// Clamp ensures the level is within the range.
func (r Range) Clamp(level uint32) uint32 {
	if level < r.Min {
		return r.Min
	}
	if level > r.Max {
		return r.Max
	}
	return level
}

// ClampInt clamps a signed level, treating negative values as below the range.
func (r Range) ClampInt(level int64) uint32 {
	if level < int64(r.Min) {
		return r.Min
	}
	if level > int64(r.Max) {
		return r.Max
	}
	return uint32(level)
}

// ToPercent converts a level to a percentage (0-100) of the range.
// Values outside the range are clamped before conversion.
// Uses rounding to ensure round-trip consistency with FromPercent.
func (r Range) ToPercent(level uint32) uint8 {
	if r.Span() == 0 {
		return 100
	}
	level = r.Clamp(level)
	percent := float64(level-r.Min) / float64(r.Span()) * 100
	return uint8(math.Round(percent))
}

// FromPercent converts a percentage (0-100) to a level.
// Percentages above 100 are treated as 100%.
func (r Range) FromPercent(percent uint8) uint32 {
	if percent > 100 {
		percent = 100
	}
	level := uint32(float64(percent)*float64(r.Span())/100) + r.Min
	return r.Clamp(level)
}

// Normalize converts a level into [0, 1] relative to the range maximum.
func (r Range) Normalize(level uint32) float64 {
	if r.Max == 0 {
		return 0
	}
	return math.Min(1, float64(level)/float64(r.Max))
}

// FromNormalized scales a [0, 1] value by the range maximum and clamps it to the range.
func (r Range) FromNormalized(v float64) uint32 {
	if math.IsNaN(v) || v <= 0 {
		return r.Min
	}
	return r.ClampInt(int64(math.Round(v * float64(r.Max))))
}
