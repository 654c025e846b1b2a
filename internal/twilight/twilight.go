// SPDX-License-Identifier: GPL-3.0-only

// Package twilight tracks sunrise and sunset around the current day.
package twilight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/rs/zerolog/log"
)

// maxRecheck bounds how long the tracker sleeps between recomputations.
const maxRecheck = time.Hour

// State describes the sunrise and sunset times surrounding a moment.
type State struct {
	YesterdaySunset time.Time
	TodaySunrise    time.Time
	TodaySunset     time.Time
	TomorrowSunrise time.Time
	Night           bool
}

// Valid reports whether all four boundaries are known. Near the poles the sun may
// not rise or set at all.
func (s State) Valid() bool {
	return !s.YesterdaySunset.IsZero() && !s.TodaySunrise.IsZero() &&
		!s.TodaySunset.IsZero() && !s.TomorrowSunrise.IsZero()
}

func (s State) String() string {
	if !s.Valid() {
		return "twilight{unknown}"
	}
	return fmt.Sprintf("twilight{night=%t yesterdaySunset=%s todaySunrise=%s todaySunset=%s tomorrowSunrise=%s}",
		s.Night,
		s.YesterdaySunset.Format(time.RFC3339),
		s.TodaySunrise.Format(time.RFC3339),
		s.TodaySunset.Format(time.RFC3339),
		s.TomorrowSunrise.Format(time.RFC3339))
}

// Compute returns the twilight state at now for the given location.
func Compute(latitude, longitude float64, now time.Time) State {
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)

	_, yesterdaySunset := sunrise.SunriseSunset(latitude, longitude, yesterday.Year(), yesterday.Month(), yesterday.Day())
	todaySunrise, todaySunset := sunrise.SunriseSunset(latitude, longitude, now.Year(), now.Month(), now.Day())
	tomorrowSunrise, _ := sunrise.SunriseSunset(latitude, longitude, tomorrow.Year(), tomorrow.Month(), tomorrow.Day())

	s := State{
		YesterdaySunset: yesterdaySunset,
		TodaySunrise:    todaySunrise,
		TodaySunset:     todaySunset,
		TomorrowSunrise: tomorrowSunrise,
	}
	if s.Valid() {
		s.Night = now.Before(todaySunrise) || !now.Before(todaySunset)
	}
	return s
}

// Tracker keeps the current twilight state fresh.
type Tracker struct {
	latitude  float64
	longitude float64
	now       func() time.Time

	mu    sync.RWMutex
	state State
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock sets the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker for a location and computes the initial state.
func NewTracker(latitude, longitude float64, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		latitude:  latitude,
		longitude: longitude,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state = Compute(latitude, longitude, t.now())
	return t
}

// State returns the last computed state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Refresh recomputes the state and reports whether it changed.
func (t *Tracker) Refresh() bool {
	next := Compute(t.latitude, t.longitude, t.now())

	t.mu.Lock()
	defer t.mu.Unlock()
	changed := next != t.state
	t.state = next
	return changed
}

// NextBoundary returns the next sunrise or sunset after now, or zero if unknown.
func (t *Tracker) NextBoundary() time.Time {
	now := t.now()
	s := t.State()
	for _, b := range []time.Time{s.TodaySunrise, s.TodaySunset, s.TomorrowSunrise} {
		if !b.IsZero() && b.After(now) {
			return b
		}
	}
	return time.Time{}
}

// Run recomputes the state at every boundary until ctx is done, calling onChange
// whenever it changes.
func (t *Tracker) Run(ctx context.Context, onChange func()) error {
	log.Info().
		Float64("latitude", t.latitude).
		Float64("longitude", t.longitude).
		Str("state", t.State().String()).
		Msg("Twilight tracker started")

	for {
		wait := maxRecheck
		if next := t.NextBoundary(); !next.IsZero() {
			if d := next.Sub(t.now()) + time.Second; d < wait {
				wait = d
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if t.Refresh() {
			log.Info().Str("state", t.State().String()).Msg("Twilight state changed")
			if onChange != nil {
				onChange()
			}
		}
	}
}
