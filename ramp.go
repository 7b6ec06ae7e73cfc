package gvfx

import (
	"github.com/soypat/geometry/ms1"
	"github.com/soypat/geometry/ms3"
	"github.com/tanema/gween/ease"
)

// Easing selects the interpolation curve of one ramp segment. The curves map
// onto [ease.TweenFunc] implementations.
type Easing uint8

const (
	EaseLinear Easing = iota
	EaseInOutQuad
	EaseInOutCubic
	EaseOutCubic
	EaseInOutSine
)

func (e Easing) fn() ease.TweenFunc {
	switch e {
	case EaseInOutQuad:
		return ease.InOutQuad
	case EaseInOutCubic:
		return ease.InOutCubic
	case EaseOutCubic:
		return ease.OutCubic
	case EaseInOutSine:
		return ease.InOutSine
	}
	return ease.Linear
}

// RampStop is one color key of a [Ramp]. T is the stop position in [0,1];
// Easing shapes the segment that starts at this stop.
type RampStop struct {
	T      float32
	Color  ms3.Vec
	Alpha  float32
	Easing Easing
}

// Ramp is an ordered list of color stops evaluated over a normalized
// parameter, typically particle age. The compiler bakes ramps into a fixed
// lookup table inside the generated shader; At is the exact CPU-side
// evaluation used for that baking and for constant folding.
type Ramp struct {
	Stops []RampStop
}

// NewRamp builds a two-stop linear ramp, the common fade case.
func NewRamp(from, to RampStop) *Ramp {
	return &Ramp{Stops: []RampStop{from, to}}
}

// At evaluates the ramp color and alpha at t. t clamps to [0,1]; positions
// outside the outermost stops clamp to the edge stops. Degenerate ramps
// (no stops) evaluate to opaque white.
func (r *Ramp) At(t float32) (color ms3.Vec, alpha float32) {
	if r == nil || len(r.Stops) == 0 {
		return ms3.Vec{X: 1, Y: 1, Z: 1}, 1
	}
	t = ms1.Clamp(t, 0, 1)
	stops := r.Stops
	if t <= stops[0].T {
		return stops[0].Color, stops[0].Alpha
	}
	last := stops[len(stops)-1]
	if t >= last.T {
		return last.Color, last.Alpha
	}
	for i := 0; i < len(stops)-1; i++ {
		s0, s1 := stops[i], stops[i+1]
		if t > s1.T {
			continue
		}
		span := s1.T - s0.T
		if span <= 0 {
			return s1.Color, s1.Alpha
		}
		u := (t - s0.T) / span
		u = s0.Easing.fn()(u, 0, 1, 1)
		color = ms3.Vec{
			X: ms1.Interp(s0.Color.X, s1.Color.X, u),
			Y: ms1.Interp(s0.Color.Y, s1.Color.Y, u),
			Z: ms1.Interp(s0.Color.Z, s1.Color.Z, u),
		}
		alpha = ms1.Interp(s0.Alpha, s1.Alpha, u)
		return color, alpha
	}
	return last.Color, last.Alpha
}
