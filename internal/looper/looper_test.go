// SPDX-License-Identifier: GPL-3.0-only

package looper_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/displaypowerd/internal/looper"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLooper_RunDue_OrdersByTimeThenPostOrder(t *testing.T) {
	clock := looper.NewManualClock(epoch)
	l := looper.New(clock)

	var order []string
	l.PostDelayed(20*time.Millisecond, func() { order = append(order, "late") })
	l.Post(func() { order = append(order, "first") })
	l.Post(func() { order = append(order, "second") })

	assert.Equal(t, 2, l.RunDue())
	assert.Equal(t, []string{"first", "second"}, order)

	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, 1, l.RunDue())
	assert.Equal(t, []string{"first", "second", "late"}, order)
	assert.Equal(t, 0, l.Pending())
}

func TestLooper_RunDue_RunsMessagesPostedWhileDraining(t *testing.T) {
	l := looper.New(looper.NewManualClock(epoch))

	ran := false
	l.Post(func() {
		l.Post(func() { ran = true })
	})

	assert.Equal(t, 2, l.RunDue())
	assert.True(t, ran)
}

func TestLooper_Cancel(t *testing.T) {
	clock := looper.NewManualClock(epoch)
	l := looper.New(clock)

	fired := false
	token := l.PostDelayed(time.Second, func() { fired = true })

	assert.True(t, l.Cancel(token))
	assert.False(t, l.Cancel(token), "second cancel should report nothing pending")

	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, l.RunDue())
	assert.False(t, fired)
}

func TestLooper_Cancel_AfterRunIsNoop(t *testing.T) {
	l := looper.New(looper.NewManualClock(epoch))
	token := l.Post(func() {})
	l.RunDue()
	assert.False(t, l.Cancel(token))
}

func TestLooper_Run_StopsOnContextCancel(t *testing.T) {
	l := looper.New(looper.SystemClock{})

	var count atomic.Int32
	done := make(chan struct{})
	l.Post(func() { count.Add(1) })
	l.PostDelayed(5*time.Millisecond, func() {
		count.Add(1)
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message did not run")
	}
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), count.Load())
}

func TestFrames_CoalescesAndDrawsAfterFrameCallbacks(t *testing.T) {
	clock := looper.NewManualClock(epoch)
	l := looper.New(clock)
	frames := looper.NewFrames(l, 0)
	assert.Equal(t, looper.DefaultFrameInterval, frames.Interval())

	var order []string
	frames.PostFrameCallback(func(time.Time) {
		order = append(order, "anim")
		frames.PostDrawCallback(func(time.Time) { order = append(order, "draw") })
	})
	frames.PostFrameCallback(func(time.Time) { order = append(order, "anim2") })

	assert.Equal(t, 1, l.Pending(), "frame callbacks should share one scheduled frame")

	l.RunDue()
	assert.Empty(t, order, "frame must not run before its interval")

	clock.Advance(looper.DefaultFrameInterval)
	l.RunDue()
	assert.Equal(t, []string{"anim", "anim2", "draw"}, order)
	assert.Equal(t, epoch.Add(looper.DefaultFrameInterval), frames.FrameTime())
}

func TestFrames_CallbackPostedDuringFrameRunsNextFrame(t *testing.T) {
	clock := looper.NewManualClock(epoch)
	l := looper.New(clock)
	frames := looper.NewFrames(l, 10*time.Millisecond)

	var times []time.Time
	var tick func(time.Time)
	tick = func(ft time.Time) {
		times = append(times, ft)
		if len(times) < 3 {
			frames.PostFrameCallback(tick)
		}
	}
	frames.PostFrameCallback(tick)

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		l.RunDue()
	}

	require.Len(t, times, 3)
	assert.Equal(t, 10*time.Millisecond, times[1].Sub(times[0]))
	assert.Equal(t, 10*time.Millisecond, times[2].Sub(times[1]))
}
