package material

import (
	"github.com/soypat/geometry/ms3"

	"github.com/soypat/gvfx"
)

// Built-in preset effects. Each preset is a small authored graph compiled
// on first use like any other graph, so presets exercise the same pipeline
// and cache as user effects.

// rawWhiteSrc is the last-resort program used if the default preset itself
// fails to compile.
const rawWhiteSrc = `#version 430
out vec4 fragColor;
void main() {
fragColor = vec4(1.0,1.0,1.0,1.0);
}
`

// presetDefault is the fallback effect: opaque white fading out linearly
// with particle age.
func presetDefault() *gvfx.MaterialGraph {
	bld := gvfx.Builder{}
	age := bld.ParticleAge("age")
	fade := bld.OneMinus("fade")
	out := bld.Output("out")
	bld.Connect(age, "age", fade, "in")
	bld.Connect(fade, "out", out, "alpha")
	g, _ := bld.Graph()
	return g
}

// presetFlame ramps from a bright yellow core through orange to transparent
// dark red over the particle's life.
func presetFlame() *gvfx.MaterialGraph {
	bld := gvfx.Builder{}
	age := bld.ParticleAge("age")
	ramp := bld.ColorRamp("ramp", &gvfx.Ramp{Stops: []gvfx.RampStop{
		{T: 0, Color: ms3.Vec{X: 1, Y: 0.95, Z: 0.55}, Alpha: 1, Easing: gvfx.EaseOutCubic},
		{T: 0.35, Color: ms3.Vec{X: 1, Y: 0.5, Z: 0.1}, Alpha: 0.9, Easing: gvfx.EaseInOutQuad},
		{T: 1, Color: ms3.Vec{X: 0.4, Y: 0.02, Z: 0}, Alpha: 0},
	}})
	fade := bld.OneMinus("fade")
	out := bld.Output("out")
	bld.Connect(age, "age", ramp, "t")
	bld.Connect(age, "age", fade, "in")
	bld.Connect(ramp, "color", out, "color")
	bld.Connect(fade, "out", out, "alpha")
	g, _ := bld.Graph()
	return g
}

// presetSmoke is a soft gray fade whose opacity is capped by a tunable
// density uniform.
func presetSmoke() *gvfx.MaterialGraph {
	bld := gvfx.Builder{}
	age := bld.ParticleAge("age")
	density := bld.UniformScalar("density", "u_density", 0.5)
	col := bld.ConstColor("gray", 0.35, 0.35, 0.38, 1)
	fade := bld.OneMinus("fade")
	alpha := bld.Clamp("alpha")
	out := bld.Output("out")
	bld.Connect(age, "age", fade, "in")
	bld.Connect(fade, "out", alpha, "in")
	bld.Connect(density, "value", alpha, "max")
	bld.Connect(col, "color", out, "color")
	bld.Connect(alpha, "out", out, "alpha")
	g, _ := bld.Graph()
	return g
}

// presetSpark is a hot white-to-blue flash that dies quickly.
func presetSpark() *gvfx.MaterialGraph {
	bld := gvfx.Builder{}
	age := bld.ParticleAge("age")
	ramp := bld.ColorRamp("ramp", gvfx.Gradient(
		ms3.Vec{X: 1, Y: 1, Z: 0.9}, 1,
		ms3.Vec{X: 0.3, Y: 0.5, Z: 1}, gvfx.EaseInOutCubic,
	))
	flash := bld.OneMinus("flash")
	out := bld.Output("out")
	bld.Connect(age, "age", ramp, "t")
	bld.Connect(age, "age", flash, "in")
	bld.Connect(ramp, "color", out, "color")
	bld.Connect(flash, "out", out, "alpha")
	g, _ := bld.Graph()
	return g
}
