// SPDX-License-Identifier: GPL-3.0-only

package twilight_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/displaypowerd/internal/twilight"
)

// Berlin
const (
	lat = 52.52
	lng = 13.405
)

func TestCompute_DayAndNight(t *testing.T) {
	tests := []struct {
		name  string
		now   time.Time
		night bool
	}{
		{name: "summer noon", now: time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC), night: false},
		{name: "summer midnight", now: time.Date(2026, 6, 21, 23, 30, 0, 0, time.UTC), night: true},
		{name: "winter early morning", now: time.Date(2026, 12, 21, 5, 0, 0, 0, time.UTC), night: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := twilight.Compute(lat, lng, tt.now)
			require.True(t, s.Valid())
			assert.Equal(t, tt.night, s.Night)
			assert.True(t, s.YesterdaySunset.Before(s.TodaySunrise))
			assert.True(t, s.TodaySunrise.Before(s.TodaySunset))
			assert.True(t, s.TodaySunset.Before(s.TomorrowSunrise))
		})
	}
}

func TestCompute_PolarNightIsInvalid(t *testing.T) {
	s := twilight.Compute(89.0, 0, time.Date(2026, 12, 21, 12, 0, 0, 0, time.UTC))
	assert.False(t, s.Valid())
	assert.False(t, s.Night)
	assert.Equal(t, "twilight{unknown}", s.String())
}

func TestTracker_RefreshReportsChanges(t *testing.T) {
	now := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	tr := twilight.NewTracker(lat, lng, twilight.WithClock(func() time.Time { return now }))
	assert.False(t, tr.State().Night)

	assert.False(t, tr.Refresh(), "same moment should not change the state")

	now = tr.State().TodaySunset.Add(time.Minute)
	assert.True(t, tr.Refresh())
	assert.True(t, tr.State().Night)
}

func TestTracker_NextBoundary(t *testing.T) {
	now := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	tr := twilight.NewTracker(lat, lng, twilight.WithClock(func() time.Time { return now }))
	assert.Equal(t, tr.State().TodaySunset, tr.NextBoundary())
}

func TestTracker_RunStopsOnCancel(t *testing.T) {
	tr := twilight.NewTracker(lat, lng)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Run(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)
}
