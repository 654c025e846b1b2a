// SPDX-License-Identifier: GPL-3.0-only

package transition_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/transition"
)

func TestAnimator_RunsToCompletion(t *testing.T) {
	clock := looper.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	l := looper.New(clock)
	frames := looper.NewFrames(l, 10*time.Millisecond)

	var levels []float64
	ends := 0
	a := transition.NewAnimator(frames, clock.Now, 0, 1, 100*time.Millisecond,
		func(v float64) { levels = append(levels, v) }, func() { ends++ })

	a.Start()
	assert.True(t, a.IsStarted())
	assert.Equal(t, []float64{0}, levels, "start applies the first value immediately")

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		l.RunDue()
	}
	assert.InDelta(t, 0.5, levels[len(levels)-1], 1e-9, "eased curve passes the midpoint at half time")

	for i := 0; i < 10; i++ {
		clock.Advance(10 * time.Millisecond)
		l.RunDue()
	}
	assert.False(t, a.IsStarted())
	assert.Equal(t, 1.0, levels[len(levels)-1])
	assert.Equal(t, 1, ends)

	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1])
	}
}

func TestAnimator_EndWithoutStart(t *testing.T) {
	frames := looper.NewFrames(looper.New(looper.NewManualClock(time.Now())), 0)

	level := 1.0
	ends := 0
	a := transition.NewAnimator(frames, time.Now, 1, 0, time.Second, func(v float64) { level = v }, func() { ends++ })

	a.End()
	assert.Equal(t, 0.0, level)
	assert.Equal(t, 1, ends)
	assert.False(t, a.IsStarted())
}

func TestAnimator_RestartDropsStaleFrames(t *testing.T) {
	clock := looper.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	l := looper.New(clock)
	frames := looper.NewFrames(l, 10*time.Millisecond)

	ends := 0
	a := transition.NewAnimator(frames, clock.Now, 0, 1, 50*time.Millisecond, func(float64) {}, func() { ends++ })

	a.Start()
	clock.Advance(30 * time.Millisecond)
	a.Start()
	for i := 0; i < 4; i++ {
		clock.Advance(10 * time.Millisecond)
		l.RunDue()
	}
	assert.True(t, a.IsStarted(), "second start resets the clock")
	assert.Equal(t, 0, ends)

	clock.Advance(20 * time.Millisecond)
	l.RunDue()
	assert.Equal(t, 1, ends)
}
