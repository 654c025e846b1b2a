// SPDX-License-Identifier: GPL-3.0-only

package power

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBacklight holds the first SetLevel until release is closed.
type blockingBacklight struct {
	fakeBacklight
	entered chan struct{}
	release chan struct{}
	blocked bool
}

func newBlockingBacklight() *blockingBacklight {
	return &blockingBacklight{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingBacklight) SetLevel(level uint32) error {
	if !b.blocked {
		b.blocked = true
		close(b.entered)
		<-b.release
	}
	return b.fakeBacklight.SetLevel(level)
}

func TestInlineModulator_Ordering(t *testing.T) {
	dev := &fakeBacklight{}
	m := NewInlineModulator(dev)

	assert.True(t, m.SetState(true, 100))
	assert.True(t, m.SetState(true, 120))
	assert.True(t, m.SetState(false, 0))

	calls, _, _ := dev.snapshot()
	assert.Equal(t, []string{
		"power on", "level 100",
		"level 120",
		"level 0", "power off",
	}, calls)

	on, level := m.State()
	assert.False(t, on)
	assert.Equal(t, uint32(0), level)
}

func TestInlineModulator_UnchangedStateIsNoop(t *testing.T) {
	dev := &fakeBacklight{}
	m := NewInlineModulator(dev)

	require.True(t, m.SetState(true, 50))
	require.True(t, m.SetState(true, 50))

	calls, _, _ := dev.snapshot()
	assert.Equal(t, []string{"power on", "level 50"}, calls)
}

// The first state is written in full even when it matches the zero value.
func TestInlineModulator_FirstStateAlwaysApplied(t *testing.T) {
	dev := &fakeBacklight{}
	m := NewInlineModulator(dev)

	require.True(t, m.SetState(false, 0))

	calls, _, _ := dev.snapshot()
	assert.Equal(t, []string{"level 0", "power off"}, calls)
}

func TestModulator_LatestValueWins(t *testing.T) {
	dev := newBlockingBacklight()
	done := make(chan struct{}, 4)
	m := NewModulator(dev, func() { done <- struct{}{} })

	assert.False(t, m.SetState(true, 10))
	<-dev.entered

	// Both arrive while the first write is in flight; only the last one is applied.
	assert.False(t, m.SetState(true, 20))
	assert.False(t, m.SetState(true, 30))
	close(dev.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("modulator did not finish")
	}

	calls, level, on := dev.snapshot()
	assert.Equal(t, []string{"power on", "level 10", "level 30"}, calls)
	assert.Equal(t, uint32(30), level)
	assert.True(t, on)

	assert.True(t, m.SetState(true, 30), "device already reflects the state")
	assert.Len(t, done, 0)
}
