// SPDX-License-Identifier: GPL-3.0-only

// Package power coordinates screen power and brightness on a single control loop.
//
// Callers submit a Request from any goroutine. The Controller merges pending
// requests, drives the light and proximity filters, the brightness ramp and the
// screen transition, and reports through Callbacks once a request is fully applied.
package power

import (
	"fmt"
	"strings"
)

// ScreenState is the requested screen power state.
type ScreenState int

const (
	// ScreenOff turns the screen off.
	ScreenOff ScreenState = iota
	// ScreenDim keeps the screen on at a reduced level.
	ScreenDim
	// ScreenBright keeps the screen on at the requested level.
	ScreenBright
)

func (s ScreenState) String() string {
	switch s {
	case ScreenOff:
		return "off"
	case ScreenDim:
		return "dim"
	case ScreenBright:
		return "bright"
	default:
		return fmt.Sprintf("ScreenState(%d)", int(s))
	}
}

// ParseScreenState parses "off", "dim" or "bright".
func ParseScreenState(s string) (ScreenState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return ScreenOff, nil
	case "dim":
		return ScreenDim, nil
	case "bright", "on":
		return ScreenBright, nil
	default:
		return ScreenOff, fmt.Errorf("unknown screen state %q", s)
	}
}

// Request is the desired display power state. Requests are compared with ==.
type Request struct {
	ScreenState ScreenState

	// ScreenBrightness is the manual level in device units, used when
	// auto-brightness is off or has no estimate yet.
	ScreenBrightness uint32

	UseAutoBrightness bool

	// AutoBrightnessAdjustment shifts the auto-brightness curve, clamped to [-1, 1].
	AutoBrightnessAdjustment float64

	UseProximitySensor bool

	// BlockScreenOn holds a dark screen dark until cleared.
	BlockScreenOn bool

	// Responsiveness multiplies the filter and debounce time constants. Values <= 0 mean 1.
	Responsiveness float64
}

// WantScreenOn reports whether the request keeps the screen on.
func (r Request) WantScreenOn() bool {
	return r.ScreenState != ScreenOff
}

func (r Request) String() string {
	return fmt.Sprintf("screen=%s brightness=%d auto=%t adjustment=%.2f proximity=%t block=%t responsiveness=%.2f",
		r.ScreenState, r.ScreenBrightness, r.UseAutoBrightness, r.AutoBrightnessAdjustment,
		r.UseProximitySensor, r.BlockScreenOn, r.Responsiveness)
}
