// SPDX-License-Identifier: GPL-3.0-only

// Package sensor defines the raw sample stream consumed by the control loop and the
// sources that produce it.
package sensor

import "time"

// Sample is a single raw reading: lux for light sensors, distance for proximity sensors.
type Sample struct {
	Time  time.Time
	Value float64
}

// Listener receives samples. It may be called from any goroutine.
type Listener func(Sample)

// Sensor is a source of raw samples that can be switched on and off.
type Sensor interface {
	// Enable starts delivering samples to listener.
	Enable(listener Listener) error

	// Disable stops sample delivery.
	Disable() error

	// MaxRange returns the largest value the sensor can report.
	MaxRange() float64
}
