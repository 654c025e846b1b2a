// SPDX-License-Identifier: GPL-3.0-only

package brightness

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSpline is returned when control points cannot form a monotone spline.
var ErrInvalidSpline = errors.New("invalid spline control points")

// Spline is a monotone cubic Hermite spline (Fritsch-Carlson tangents).
// For non-decreasing control points the curve is non-decreasing everywhere.
type Spline struct {
	x []float64
	y []float64
	m []float64
}

// NewSpline builds a spline through the points (x[i], y[i]). x must be strictly
// increasing and y non-decreasing.
func NewSpline(x, y []float64) (*Spline, error) {
	n := len(x)
	if n != len(y) || n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points with matching lengths, got %d and %d", ErrInvalidSpline, len(x), len(y))
	}

	d := make([]float64, n-1)
	m := make([]float64, n)

	for i := 0; i < n-1; i++ {
		h := x[i+1] - x[i]
		if h <= 0 {
			return nil, fmt.Errorf("%w: x values must be strictly increasing (x[%d]=%g, x[%d]=%g)", ErrInvalidSpline, i, x[i], i+1, x[i+1])
		}
		if y[i+1] < y[i] {
			return nil, fmt.Errorf("%w: y values must be non-decreasing (y[%d]=%g, y[%d]=%g)", ErrInvalidSpline, i, y[i], i+1, y[i+1])
		}
		d[i] = (y[i+1] - y[i]) / h
	}

	m[0] = d[0]
	for i := 1; i < n-1; i++ {
		m[i] = (d[i-1] + d[i]) * 0.5
	}
	m[n-1] = d[n-2]

	for i := 0; i < n-1; i++ {
		if d[i] == 0 {
			m[i] = 0
			m[i+1] = 0
			continue
		}
		a := m[i] / d[i]
		b := m[i+1] / d[i]
		h := math.Hypot(a, b)
		if h > 9 {
			t := 3 / h
			m[i] = t * a * d[i]
			m[i+1] = t * b * d[i]
		}
	}

	return &Spline{
		x: append([]float64(nil), x...),
		y: append([]float64(nil), y...),
		m: m,
	}, nil
}

// Interpolate evaluates the spline at x, holding the end values outside the domain.
func (s *Spline) Interpolate(x float64) float64 {
	n := len(s.x)
	if math.IsNaN(x) {
		return x
	}
	if x <= s.x[0] {
		return s.y[0]
	}
	if x >= s.x[n-1] {
		return s.y[n-1]
	}

	i := 0
	for x >= s.x[i+1] {
		i++
		if x == s.x[i] {
			return s.y[i]
		}
	}

	h := s.x[i+1] - s.x[i]
	t := (x - s.x[i]) / h
	return (s.y[i]*(1+2*t)+h*s.m[i]*t)*(1-t)*(1-t) +
		(s.y[i+1]*(3-2*t)+h*s.m[i+1]*(t-1))*t*t
}

func (s *Spline) String() string {
	return fmt.Sprintf("Spline{x=%v, y=%v}", s.x, s.y)
}
