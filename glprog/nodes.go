package glprog

import "github.com/soypat/gvfx"

// rampLUTSize is the number of baked samples a color ramp contributes to
// the generated shader. Easing curves are baked into the samples; the
// shader interpolates linearly between adjacent entries.
const rampLUTSize = 8

// funcDef is one shared function-library entry. Each node type contributes
// at most one definition regardless of how many instances the graph has.
type funcDef struct {
	name   string
	source string
}

var funcTable = map[gvfx.NodeType]funcDef{
	gvfx.NodeAdd: {
		name:   "vfx_add",
		source: "vec4 vfx_add(vec4 a, vec4 b) {\nreturn a+b;\n}\n",
	},
	gvfx.NodeMultiply: {
		name:   "vfx_multiply",
		source: "vec4 vfx_multiply(vec4 a, vec4 b) {\nreturn a*b;\n}\n",
	},
	gvfx.NodeOneMinus: {
		name:   "vfx_one_minus",
		source: "float vfx_one_minus(float x) {\nreturn 1.0-x;\n}\n",
	},
	gvfx.NodeMix: {
		name:   "vfx_mix",
		source: "vec4 vfx_mix(vec4 a, vec4 b, float t) {\nreturn mix(a,b,t);\n}\n",
	},
	gvfx.NodeClamp: {
		name:   "vfx_clamp",
		source: "float vfx_clamp(float x, float lo, float hi) {\nreturn clamp(x,lo,hi);\n}\n",
	},
	gvfx.NodeSine: {
		name:   "vfx_sine",
		source: "float vfx_sine(float x) {\nreturn sin(x);\n}\n",
	},
	gvfx.NodeColorRamp: {
		name: "vfx_color_ramp",
		source: "vec4 vfx_color_ramp(float t, vec4 lut[8]) {\n" +
			"float x = clamp(t,0.0,1.0)*7.0;\n" +
			"int i = int(min(x,6.0));\n" +
			"return mix(lut[i],lut[i+1],x-float(i));\n}\n",
	},
	gvfx.NodeTextureSample: {
		name:   "vfx_texture_sample",
		source: "vec4 vfx_texture_sample(sampler2D tex, vec2 uv) {\nreturn texture(tex,uv);\n}\n",
	},
}

// intrinsicVaryings maps intrinsic node types to the varying fed by the
// particle vertex stage. These never appear in the uniform manifest.
var intrinsicVaryings = map[gvfx.NodeType]struct {
	name string
	typ  gvfx.PortType
}{
	gvfx.NodeParticleAge:      {name: "v_particle_age", typ: gvfx.TypeScalar},
	gvfx.NodeParticleVelocity: {name: "v_particle_velocity", typ: gvfx.TypeVec3},
	gvfx.NodeUV:               {name: "v_uv", typ: gvfx.TypeVec2},
}

// uniformBinding resolves the uniform name, type and manifest default of a
// ClassUniform node. Unnamed uniform nodes derive a name from their id.
func uniformBinding(n *gvfx.Node) (name string, typ gvfx.PortType, def [4]float32) {
	switch n.Type {
	case gvfx.NodeTime:
		return "u_time", gvfx.TypeScalar, [4]float32{}
	case gvfx.NodeUniformScalar:
		name = n.Data.Ref
		if name == "" {
			name = "u_" + gvfx.SanitizeIdentifier(n.ID)
		}
		return name, gvfx.TypeScalar, [4]float32{n.Data.Scalar}
	case gvfx.NodeUniformColor:
		name = n.Data.Ref
		if name == "" {
			name = "u_" + gvfx.SanitizeIdentifier(n.ID)
		}
		return name, gvfx.TypeColor, n.Data.Color
	}
	return "", gvfx.TypeInvalid, [4]float32{}
}
