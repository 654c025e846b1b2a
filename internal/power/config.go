// SPDX-License-Identifier: GPL-3.0-only

package power

import (
	"time"

	"github.com/shini4i/displaypowerd/internal/ambient"
	"github.com/shini4i/displaypowerd/internal/brightness"
	"github.com/shini4i/displaypowerd/internal/looper"
	"github.com/shini4i/displaypowerd/internal/proximity"
	"github.com/shini4i/displaypowerd/internal/transition"
)

// Ramp rates and the dim reduction are expressed on a 0-255 scale and stretched to
// the device range.
const (
	rampRateFast255        = 200
	rampRateSlow255        = 40
	dimMinimumReduction255 = 10
	dimLevel255            = 10
)

// Config is the controller tuning.
type Config struct {
	// Limits bounds every level the controller outputs, in device units.
	Limits brightness.Range

	// DimLevel is the highest level used in the dim state.
	DimLevel uint32
	// DimMinimumReduction is how far below the bright level the dim state goes at least.
	DimMinimumReduction uint32

	// RampRateFast and RampRateSlow are in device units per second.
	RampRateFast float64
	RampRateSlow float64

	// AutoBrightness enables the light sensor path. Table and Gamma shape the curve.
	AutoBrightness bool
	Table          brightness.Table
	Gamma          brightness.GammaConfig

	Ambient    ambient.Config
	Proximity  proximity.Config
	Transition transition.DirectorConfig

	FrameInterval time.Duration
}

// DefaultConfig returns the stock tuning for a device range.
func DefaultConfig(device brightness.Range) Config {
	span := float64(device.Span())
	return Config{
		Limits:              device,
		DimLevel:            device.Min + uint32(span*dimLevel255/255),
		DimMinimumReduction: uint32(span * dimMinimumReduction255 / 255),
		RampRateFast:        span * rampRateFast255 / 255,
		RampRateSlow:        span * rampRateSlow255 / 255,
		AutoBrightness:      false,
		Gamma:               brightness.DefaultGammaConfig(),
		Ambient:             ambient.DefaultConfig(),
		Proximity:           proximity.DefaultConfig(),
		Transition:          transition.DefaultDirectorConfig(),
		FrameInterval:       looper.DefaultFrameInterval,
	}
}
