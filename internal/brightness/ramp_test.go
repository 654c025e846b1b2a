// SPDX-License-Identifier: GPL-3.0-only

package brightness_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/looper"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRamp_FirstCallJumps(t *testing.T) {
	r := brightness.NewRamp()

	assert.True(t, r.AnimateTo(120, 50, t0))
	assert.Equal(t, uint32(120), r.Current())
	assert.False(t, r.Animating())

	assert.False(t, r.AnimateTo(120, 50, t0), "same target is not a change")
}

func TestRamp_StepsAtRateWithoutOvershoot(t *testing.T) {
	r := brightness.NewRamp()
	r.AnimateTo(100, 0, t0)

	require.True(t, r.AnimateTo(200, 100, t0))
	assert.True(t, r.Animating())

	level, moving := r.Step(t0.Add(500 * time.Millisecond))
	assert.Equal(t, uint32(150), level)
	assert.True(t, moving)

	level, moving = r.Step(t0.Add(5 * time.Second))
	assert.Equal(t, uint32(200), level, "never overshoots")
	assert.False(t, moving)
}

func TestRamp_Downward(t *testing.T) {
	r := brightness.NewRamp()
	r.AnimateTo(200, 0, t0)
	r.AnimateTo(50, 100, t0)

	level, _ := r.Step(t0.Add(time.Second))
	assert.Equal(t, uint32(100), level)

	level, moving := r.Step(t0.Add(3 * time.Second))
	assert.Equal(t, uint32(50), level)
	assert.False(t, moving)
}

func TestRamp_RateSelection(t *testing.T) {
	tests := []struct {
		name     string
		target   uint32
		rate     float64
		expected float64
	}{
		{name: "faster rate replaces", target: 250, rate: 400, expected: 400},
		{name: "slower rate same direction keeps speed", target: 250, rate: 20, expected: 100},
		{name: "slower rate on reversal applies", target: 120, rate: 20, expected: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := brightness.NewRamp()
			r.AnimateTo(100, 0, t0)
			r.AnimateTo(200, 100, t0)
			level, _ := r.Step(t0.Add(500 * time.Millisecond))
			require.Equal(t, uint32(150), level)

			r.AnimateTo(tt.target, tt.rate, t0.Add(500*time.Millisecond))
			assert.Equal(t, tt.expected, r.Rate())
		})
	}
}

func TestRamp_RetargetMidwayReverses(t *testing.T) {
	r := brightness.NewRamp()
	r.AnimateTo(100, 0, t0)
	r.AnimateTo(200, 100, t0)
	r.Step(t0.Add(500 * time.Millisecond))

	r.AnimateTo(120, 100, t0.Add(500*time.Millisecond))
	level, moving := r.Step(t0.Add(time.Second))
	assert.Equal(t, uint32(120), level)
	assert.False(t, moving)
}

func TestRampAnimator_DrivesFrames(t *testing.T) {
	clock := looper.NewManualClock(t0)
	l := looper.New(clock)
	frames := looper.NewFrames(l, 16*time.Millisecond)

	var levels []uint32
	a := brightness.NewRampAnimator(frames, clock.Now, func(level uint32) {
		levels = append(levels, level)
	})

	assert.True(t, a.AnimateTo(50, 100))
	assert.Equal(t, []uint32{50}, levels, "first target is applied immediately")

	assert.True(t, a.AnimateTo(100, 1000))
	assert.True(t, a.Animating())

	for i := 0; i < 10; i++ {
		clock.Advance(16 * time.Millisecond)
		l.RunDue()
	}

	assert.Equal(t, []uint32{50, 66, 82, 98, 100}, levels)
	assert.False(t, a.Animating())
	assert.Equal(t, 0, l.Pending())

	var buf bytes.Buffer
	a.Dump(&buf)
	assert.Contains(t, buf.String(), "current=100 target=100")
}
