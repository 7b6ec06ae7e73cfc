package glprog

import (
	"bytes"
	"strconv"

	"github.com/soypat/gvfx"
)

const decimalDigits = 9

// AppendFloat appends v formatted as a GLSL float literal, trimming
// trailing zeros but always keeping a decimal point so the literal never
// degrades to an int token.
func AppendFloat(b []byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start+1 && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

// AppendFloats appends the literals separated by sep.
func AppendFloats(b []byte, sep byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}

// AppendLiteral appends a GLSL literal of the given port type from a
// 4-lane value: a bare float for scalars, a vecN constructor otherwise.
func AppendLiteral(b []byte, typ gvfx.PortType, v [4]float32) []byte {
	switch typ {
	case gvfx.TypeScalar:
		return AppendFloat(b, v[0])
	case gvfx.TypeVec2:
		b = append(b, "vec2("...)
		b = AppendFloats(b, ',', v[0], v[1])
	case gvfx.TypeVec3:
		b = append(b, "vec3("...)
		b = AppendFloats(b, ',', v[0], v[1], v[2])
	default:
		b = append(b, "vec4("...)
		b = AppendFloats(b, ',', v[:]...)
	}
	return append(b, ')')
}

// AppendBroadcast appends expr wrapped in a constructor that widens a
// scalar expression to dst, or expr unchanged when no widening applies.
func AppendBroadcast(b []byte, expr string, src, dst gvfx.PortType) []byte {
	if src != gvfx.TypeScalar || dst == gvfx.TypeScalar || dst == gvfx.TypeTexture {
		return append(b, expr...)
	}
	b = append(b, dst.GLSL()...)
	b = append(b, '(')
	b = append(b, expr...)
	return append(b, ')')
}

// appendRampLUT appends the vec4[rampLUTSize](...) array literal holding a
// ramp baked at evenly spaced positions, easing included.
func appendRampLUT(b []byte, ramp *gvfx.Ramp) []byte {
	b = append(b, "vec4["...)
	b = strconv.AppendInt(b, rampLUTSize, 10)
	b = append(b, "]("...)
	for i := 0; i < rampLUTSize; i++ {
		t := float32(i) / float32(rampLUTSize-1)
		c, a := ramp.At(t)
		b = append(b, "vec4("...)
		b = AppendFloats(b, ',', c.X, c.Y, c.Z, a)
		b = append(b, ')')
		if i != rampLUTSize-1 {
			b = append(b, ',')
		}
	}
	return append(b, ')')
}
