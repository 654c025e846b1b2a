// SPDX-License-Identifier: GPL-3.0-only

package looper

import "time"

// DefaultFrameInterval is the frame period used when none is configured (60 Hz).
const DefaultFrameInterval = 16 * time.Millisecond

// Frames coalesces per-frame work onto the looper at a fixed interval.
//
// Frame callbacks run first, then draw callbacks. Draw callbacks posted while frame
// callbacks run are drawn in the same frame. Frames must only be used from the looper
// goroutine.
type Frames struct {
	looper   *Looper
	interval time.Duration

	frameCallbacks []func(time.Time)
	drawCallbacks  []func(time.Time)
	scheduled      bool
	frameTime      time.Time
}

// NewFrames creates a frame scheduler on l. A non-positive interval selects DefaultFrameInterval.
func NewFrames(l *Looper, interval time.Duration) *Frames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Frames{looper: l, interval: interval}
}

// Interval returns the frame period.
func (f *Frames) Interval() time.Duration {
	return f.interval
}

// FrameTime returns the time of the frame currently (or most recently) dispatched.
func (f *Frames) FrameTime() time.Time {
	return f.frameTime
}

// PostFrameCallback runs cb on the next frame.
func (f *Frames) PostFrameCallback(cb func(frameTime time.Time)) {
	f.frameCallbacks = append(f.frameCallbacks, cb)
	f.schedule()
}

// PostDrawCallback runs cb on the next frame after all frame callbacks.
func (f *Frames) PostDrawCallback(cb func(frameTime time.Time)) {
	f.drawCallbacks = append(f.drawCallbacks, cb)
	f.schedule()
}

func (f *Frames) schedule() {
	if f.scheduled {
		return
	}
	f.scheduled = true
	f.looper.PostDelayed(f.interval, f.dispatch)
}

func (f *Frames) dispatch() {
	f.scheduled = false
	f.frameTime = f.looper.Now()

	frame := f.frameCallbacks
	f.frameCallbacks = nil
	for _, cb := range frame {
		cb(f.frameTime)
	}

	draw := f.drawCallbacks
	f.drawCallbacks = nil
	for _, cb := range draw {
		cb(f.frameTime)
	}
}
