// SPDX-License-Identifier: GPL-3.0-only

package power

// Callbacks receives controller notifications. Methods run on the Executor given to
// the controller, never on the control loop.
type Callbacks interface {
	// OnStateChanged is called once per request that became fully applied.
	OnStateChanged()
	OnProximityPositive()
	OnProximityNegative()
}

// CallbackFuncs adapts plain functions to Callbacks. Nil functions are skipped.
type CallbackFuncs struct {
	StateChanged      func()
	ProximityPositive func()
	ProximityNegative func()
}

func (c CallbackFuncs) OnStateChanged() {
	if c.StateChanged != nil {
		c.StateChanged()
	}
}

func (c CallbackFuncs) OnProximityPositive() {
	if c.ProximityPositive != nil {
		c.ProximityPositive()
	}
}

func (c CallbackFuncs) OnProximityNegative() {
	if c.ProximityNegative != nil {
		c.ProximityNegative()
	}
}

type fanout []Callbacks

// Fanout delivers every notification to each of cbs in order.
func Fanout(cbs ...Callbacks) Callbacks {
	return fanout(cbs)
}

func (f fanout) OnStateChanged() {
	for _, cb := range f {
		cb.OnStateChanged()
	}
}

func (f fanout) OnProximityPositive() {
	for _, cb := range f {
		cb.OnProximityPositive()
	}
}

func (f fanout) OnProximityNegative() {
	for _, cb := range f {
		cb.OnProximityNegative()
	}
}

// Executor runs callbacks off the control loop. Execute must not block.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// InlineExecutor runs callbacks immediately on the calling goroutine. Tests only.
var InlineExecutor Executor = ExecutorFunc(func(fn func()) { fn() })
