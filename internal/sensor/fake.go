// SPDX-License-Identifier: GPL-3.0-only

package sensor

import "sync"

// Fake is a Sensor driven by test code through Emit.
type Fake struct {
	mu        sync.Mutex
	maxRange  float64
	listener  Listener
	enables   int
	disables  int
	EnableErr error
}

var _ Sensor = (*Fake)(nil)

// NewFake creates a Fake sensor reporting the given max range.
func NewFake(maxRange float64) *Fake {
	return &Fake{maxRange: maxRange}
}

// Enable records the listener.
func (f *Fake) Enable(listener Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnableErr != nil {
		return f.EnableErr
	}
	f.listener = listener
	f.enables++
	return nil
}

// Disable drops the listener.
func (f *Fake) Disable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = nil
	f.disables++
	return nil
}

// MaxRange returns the configured max range.
func (f *Fake) MaxRange() float64 {
	return f.maxRange
}

// Enabled reports whether a listener is registered.
func (f *Fake) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener != nil
}

// Counts returns how many times Enable and Disable succeeded.
func (f *Fake) Counts() (enables, disables int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enables, f.disables
}

// Emit delivers s to the listener if the sensor is enabled. It reports whether it was delivered.
func (f *Fake) Emit(s Sample) bool {
	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()

	if listener == nil {
		return false
	}
	listener(s)
	return true
}
