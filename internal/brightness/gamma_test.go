// SPDX-License-Identifier: GPL-3.0-only

package brightness_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/twilight"
)

func TestUserGamma(t *testing.T) {
	tests := []struct {
		name       string
		adjustment float64
		expected   float64
	}{
		{name: "neutral", adjustment: 0, expected: 1},
		{name: "full brighten", adjustment: 1, expected: 1.0 / 3.0},
		{name: "full dim", adjustment: -1, expected: 3},
		{name: "half brighten", adjustment: 0.5, expected: 1 / math.Sqrt(3)},
		{name: "clamped above", adjustment: 4, expected: 1.0 / 3.0},
		{name: "clamped below", adjustment: -9, expected: 3},
		{name: "nan", adjustment: math.NaN(), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, brightness.UserGamma(tt.adjustment, brightness.DefaultMaxGamma), 1e-9)
		})
	}
}

func TestTwilightGamma(t *testing.T) {
	sunset := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)
	sunrise := sunset.Add(12 * time.Hour)
	window := brightness.DefaultTwilightWindow
	maxGamma := brightness.DefaultMaxTwilightGamma

	tests := []struct {
		name     string
		now      time.Time
		expected float64
	}{
		{name: "three hours before sunset", now: sunset.Add(-3 * time.Hour), expected: 1},
		{name: "at sunset", now: sunset, expected: 1},
		{name: "one hour after sunset", now: sunset.Add(time.Hour), expected: 1.25},
		{name: "deep night", now: sunset.Add(6 * time.Hour), expected: 1.5},
		{name: "half an hour before sunrise", now: sunrise.Add(-30 * time.Minute), expected: 1.125},
		{name: "after sunrise", now: sunrise.Add(time.Minute), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, brightness.TwilightGamma(tt.now, sunset, sunrise, maxGamma, window), 1e-9)
		})
	}

	assert.Equal(t, 1.0, brightness.TwilightGamma(sunset.Add(time.Hour), time.Time{}, sunrise, maxGamma, window),
		"unknown sunset disables twilight")
	assert.Equal(t, maxGamma, brightness.TwilightGamma(sunset.Add(time.Minute), sunset, sunrise, maxGamma, 0))
}

func TestNightGamma(t *testing.T) {
	sunset := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)
	state := twilight.State{
		YesterdaySunset: sunset.AddDate(0, 0, -1),
		TodaySunrise:    sunset.Add(-11 * time.Hour),
		TodaySunset:     sunset,
		TomorrowSunrise: sunset.Add(13 * time.Hour),
		Night:           true,
	}

	got := brightness.NightGamma(sunset.Add(time.Hour), state, 1.5, 2*time.Hour)
	assert.Greater(t, got, 1.0)
	assert.Less(t, got, 1.5)

	early := brightness.NightGamma(state.TodaySunrise.Add(-time.Hour), state, 1.5, 2*time.Hour)
	assert.InDelta(t, 1.25, early, 1e-9, "pre-dawn uses the night that started yesterday")

	state.Night = false
	assert.Equal(t, 1.0, brightness.NightGamma(sunset.Add(time.Hour), state, 1.5, 2*time.Hour))
}
