// SPDX-License-Identifier: GPL-3.0-only

package brightness

import (
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/shini4i/displaypowerd/internal/twilight"
)

const (
	// DefaultMaxGamma bounds the user adjustment: +1 maps to 1/3, -1 to 3.
	DefaultMaxGamma = 3.0

	// DefaultMaxTwilightGamma is the gamma applied in the core of the night.
	DefaultMaxTwilightGamma = 1.5

	// DefaultTwilightWindow is how long the twilight gamma takes to ramp after sunset and before sunrise.
	DefaultTwilightWindow = 2 * time.Hour
)

// GammaConfig controls the gamma applied on top of the spline.
type GammaConfig struct {
	MaxGamma         float64
	UseTwilight      bool
	MaxTwilightGamma float64
	TwilightWindow   time.Duration
}

// DefaultGammaConfig returns the stock gamma settings.
func DefaultGammaConfig() GammaConfig {
	return GammaConfig{
		MaxGamma:         DefaultMaxGamma,
		UseTwilight:      false,
		MaxTwilightGamma: DefaultMaxTwilightGamma,
		TwilightWindow:   DefaultTwilightWindow,
	}
}

// UserGamma converts a user adjustment in [-1, 1] to a gamma exponent.
// Positive adjustments brighten (gamma < 1).
func UserGamma(adjustment, maxGamma float64) float64 {
	if math.IsNaN(adjustment) {
		return 1
	}
	return math.Pow(maxGamma, -lo.Clamp(adjustment, -1, 1))
}

// TwilightGamma returns the gamma for now inside the night between lastSunset and
// nextSunrise: it ramps linearly from 1 to maxGamma over window after sunset, holds
// maxGamma, and ramps back to 1 over window before sunrise. Outside the night it is 1.
func TwilightGamma(now, lastSunset, nextSunrise time.Time, maxGamma float64, window time.Duration) float64 {
	if lastSunset.IsZero() || nextSunrise.IsZero() || now.Before(lastSunset) || now.After(nextSunrise) {
		return 1
	}
	if window <= 0 {
		return maxGamma
	}
	if now.Before(lastSunset.Add(window)) {
		return lerp(1, maxGamma, float64(now.Sub(lastSunset))/float64(window))
	}
	if now.After(nextSunrise.Add(-window)) {
		return lerp(1, maxGamma, float64(nextSunrise.Sub(now))/float64(window))
	}
	return maxGamma
}

// NightGamma combines the two overlapping nights around today. It is 1 during the day.
func NightGamma(now time.Time, s twilight.State, maxGamma float64, window time.Duration) float64 {
	if !s.Night {
		return 1
	}
	early := TwilightGamma(now, s.YesterdaySunset, s.TodaySunrise, maxGamma, window)
	late := TwilightGamma(now, s.TodaySunset, s.TomorrowSunrise, maxGamma, window)
	return early * late
}

func lerp(start, end, amount float64) float64 {
	return start + (end-start)*amount
}
