// SPDX-License-Identifier: GPL-3.0-only

package transition

//go:generate mockgen -source=surface.go -destination=mocks/surface_mock.go -package=mocks

import "errors"

// ErrSurfaceUnavailable is returned when no transition surface can be acquired.
var ErrSurfaceUnavailable = errors.New("transition surface unavailable")

// Surface is the graphics handle the transition draws on.
type Surface interface {
	// Size returns the surface dimensions in pixels.
	Size() (width, height int)

	// Prepare acquires the surface. When capture is set the current screen
	// contents are captured so textured layers can draw them.
	Prepare(capture bool) error

	// Show composites and presents a frame.
	Show(frame Frame) error

	// Release frees everything Prepare acquired. It is safe to call at any time.
	Release()
}
