package glprog

import (
	"github.com/chewxy/math32"
	"github.com/soypat/gvfx"
)

// CPU mirrors of the shared function library, used to pre-evaluate pure
// nodes whose inputs all resolve to compile-time literals. Lane semantics
// match the GLSL bodies exactly so folding never changes shader output.

// foldNode evaluates a pure function node over literal arguments. args are
// already widened to the node's input port types. Returns false when the
// node type has no fold rule.
func foldNode(n *gvfx.Node, args [][4]float32) ([4]float32, bool) {
	switch n.Type {
	case gvfx.NodeAdd:
		return lanewise2(args[0], args[1], func(a, b float32) float32 { return a + b }), true
	case gvfx.NodeMultiply:
		return lanewise2(args[0], args[1], func(a, b float32) float32 { return a * b }), true
	case gvfx.NodeOneMinus:
		return [4]float32{1 - args[0][0]}, true
	case gvfx.NodeMix:
		t := args[2][0]
		return lanewise2(args[0], args[1], func(a, b float32) float32 { return a*(1-t) + b*t }), true
	case gvfx.NodeClamp:
		x, lo, hi := args[0][0], args[1][0], args[2][0]
		if x < lo {
			x = lo
		} else if x > hi {
			x = hi
		}
		return [4]float32{x}, true
	case gvfx.NodeSine:
		return [4]float32{math32.Sin(args[0][0])}, true
	case gvfx.NodeColorRamp:
		// Ramp.At is the same evaluation the LUT baking uses; folding a
		// ramp is exact, not an approximation of the shader's LUT lerp.
		c, a := n.Data.Ramp.At(args[0][0])
		return [4]float32{c.X, c.Y, c.Z, a}, true
	}
	return [4]float32{}, false
}

func lanewise2(a, b [4]float32, f func(a, b float32) float32) (out [4]float32) {
	for i := range out {
		out[i] = f(a[i], b[i])
	}
	return out
}

// broadcast widens a literal of type src to dst's lane layout.
func broadcast(v [4]float32, src, dst gvfx.PortType) [4]float32 {
	if src != gvfx.TypeScalar || dst == gvfx.TypeScalar {
		return v
	}
	return [4]float32{v[0], v[0], v[0], v[0]}
}
