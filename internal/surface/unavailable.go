// SPDX-License-Identifier: GPL-3.0-only

package surface

import "github.com/shini4i/displaypowerd/internal/transition"

// Unavailable is a surface that can never be prepared. Transitions on it fall back
// to switching the screen without animation.
type Unavailable struct{}

// Size returns a zero size.
func (Unavailable) Size() (int, int) { return 0, 0 }

// Prepare always fails.
func (Unavailable) Prepare(bool) error { return transition.ErrSurfaceUnavailable }

// Show always fails.
func (Unavailable) Show(transition.Frame) error { return transition.ErrSurfaceUnavailable }

// Release does nothing.
func (Unavailable) Release() {}
