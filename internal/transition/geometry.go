// SPDX-License-Identifier: GPL-3.0-only

// Package transition implements the animated screen on/off effect.
//
// The effect is a state machine over a capture surface. A warm-up reveals the screen by
// stretching a bright horizontal line into the full picture, a cool-down plays the same
// phases in reverse and a fade cross-fades through black. The animation level runs
// from 0 (screen dark) to 1 (screen fully visible).
package transition

import "math"

// Mode selects the visual effect.
type Mode int

const (
	// ModeWarmUp reveals the screen.
	ModeWarmUp Mode = iota
	// ModeCoolDown hides the screen.
	ModeCoolDown
	// ModeFade cross-fades through black without capturing the screen.
	ModeFade
)

func (m Mode) String() string {
	switch m {
	case ModeWarmUp:
		return "warm-up"
	case ModeCoolDown:
		return "cool-down"
	case ModeFade:
		return "fade"
	default:
		return "unknown"
	}
}

// HStretchDuration is the share of the level range spent in the horizontal phase.
const HStretchDuration = 0.5

// VStretchDuration is the share of the level range spent in the vertical phase.
const VStretchDuration = 1 - HStretchDuration

// Channel is a color channel mask.
type Channel uint8

const (
	ChannelRed Channel = 1 << iota
	ChannelGreen
	ChannelBlue

	ChannelAll = ChannelRed | ChannelGreen | ChannelBlue
)

// Quad is an axis-aligned rectangle in surface pixels.
type Quad struct {
	X, Y, W, H float64
}

// Layer is one additive draw of a frame.
type Layer struct {
	Quad Quad
	// Channels limits which color channels the layer writes.
	Channels Channel
	// Intensity multiplies the layer color.
	Intensity float64
	// Textured layers draw the captured screen, the others a solid white rectangle.
	Textured bool
}

// Frame describes everything a surface has to show for one animation level.
// Layers are drawn additively over black. OverlayAlpha is the opacity of a black
// overlay over the live screen and is only used in fade mode.
type Frame struct {
	Mode         Mode
	Level        float64
	Layers       []Layer
	OverlayAlpha float64
}

// BuildFrame computes the frame for level on a width x height surface.
func BuildFrame(mode Mode, level float64, width, height int) Frame {
	level = math.Max(0, math.Min(1, level))
	frame := Frame{Mode: mode, Level: level}

	if mode == ModeFade {
		frame.OverlayAlpha = 1 - level
		return frame
	}

	dw, dh := float64(width), float64(height)
	if level < HStretchDuration {
		frame.Layers = hStretch(1-level/HStretchDuration, dw, dh)
	} else {
		frame.Layers = vStretch(1-(level-HStretchDuration)/VStretchDuration, dw, dh)
	}
	return frame
}

// vStretch squeezes the captured screen vertically, each channel with its own curve
// so the edges fringe into color.
func vStretch(stretch, dw, dh float64) []Layer {
	curves := []struct {
		channel Channel
		s       float64
	}{
		{ChannelRed, 7.5},
		{ChannelGreen, 8.0},
		{ChannelBlue, 8.5},
	}

	layers := make([]Layer, 0, len(curves))
	for _, c := range curves {
		a := scurve(stretch, c.s)
		w := dw + dw*a
		h := dh - dh*a
		layers = append(layers, Layer{
			Quad:      Quad{X: (dw - w) * 0.5, Y: (dh - h) * 0.5, W: w, H: h},
			Channels:  c.channel,
			Intensity: 1,
			Textured:  true,
		})
	}
	return layers
}

// hStretch shrinks a one pixel high white line toward the center and fades it out.
func hStretch(stretch, dw, dh float64) []Layer {
	if stretch >= 1 {
		return nil
	}
	ag := scurve(stretch, 8.0)
	w := dw - dw*ag
	h := 1.0
	return []Layer{{
		Quad:      Quad{X: (dw - w) * 0.5, Y: (dh - h) * 0.5, W: w, H: h},
		Channels:  ChannelAll,
		Intensity: 1 - ag,
	}}
}

// scurve maps [0, 1] onto [0, 1] through a sigmoid with steepness s.
func scurve(x, s float64) float64 {
	y := sigmoid(x-0.5, s)
	y0 := sigmoid(-0.5, s)
	y1 := sigmoid(0.5, s)
	return (y - y0) / (y1 - y0)
}

func sigmoid(x, s float64) float64 {
	return 1 / (1 + math.Exp(-x*s))
}
