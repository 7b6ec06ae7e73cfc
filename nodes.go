package gvfx

import "strconv"

// NodeType tags the computation a node performs. The catalog below fixes
// each type's port signature; the compiler in package glprog owns the
// corresponding shading-language function bodies.
type NodeType uint8

const (
	NodeInvalid NodeType = iota
	// NodeOutput is the graph's sink. Its inputs become the fragment
	// stage's final color and alpha assignments.
	NodeOutput
	// Constant sources. Pre-evaluated wherever possible.
	NodeConstScalar
	NodeConstColor
	// Uniform-backed inputs bound by the render backend through the
	// compiled manifest. Data.Ref names the binding.
	NodeUniformScalar
	NodeUniformColor
	NodeTime
	// Per-particle intrinsics fed as varyings by the particle vertex stage.
	NodeParticleAge
	NodeParticleVelocity
	NodeUV
	// Math.
	NodeAdd
	NodeMultiply
	NodeOneMinus
	NodeMix
	NodeClamp
	NodeSine
	// Color.
	NodeColorRamp
	// Texture sampling. Data.Ref names the sampler uniform.
	NodeTextureSample
	maxNodeType
)

// NodeClass groups node types by how the compiler treats them during
// declaration and entry-body emission.
type NodeClass uint8

const (
	ClassFunc NodeClass = iota
	// ClassConst nodes resolve to literals and never emit a call.
	ClassConst
	// ClassUniform nodes declare a uniform and resolve to its name.
	ClassUniform
	// ClassIntrinsic nodes declare a varying and resolve to its name.
	ClassIntrinsic
	// ClassOutput is the single sink node.
	ClassOutput
)

// NodeSpec is the catalog entry for a node type: its function name stem,
// fixed port signature, class and purity. Pure nodes with all-literal
// inputs are constant folded by the compiler.
type NodeSpec struct {
	Name    string
	Class   NodeClass
	Pure    bool
	Inputs  []PortSpec
	Outputs []PortSpec
}

var nodeCatalog = [maxNodeType]NodeSpec{
	NodeOutput: {
		Name:  "output",
		Class: ClassOutput,
		Inputs: []PortSpec{
			{ID: "color", Name: "Color", Type: TypeColor, Default: [4]float32{1, 1, 1, 1}},
			{ID: "alpha", Name: "Alpha", Type: TypeScalar, Default: [4]float32{1}},
		},
	},
	NodeConstScalar: {
		Name: "const_scalar", Class: ClassConst, Pure: true,
		Outputs: []PortSpec{{ID: "value", Name: "Value", Type: TypeScalar}},
	},
	NodeConstColor: {
		Name: "const_color", Class: ClassConst, Pure: true,
		Outputs: []PortSpec{{ID: "color", Name: "Color", Type: TypeColor}},
	},
	NodeUniformScalar: {
		Name: "uniform_scalar", Class: ClassUniform,
		Outputs: []PortSpec{{ID: "value", Name: "Value", Type: TypeScalar}},
	},
	NodeUniformColor: {
		Name: "uniform_color", Class: ClassUniform,
		Outputs: []PortSpec{{ID: "color", Name: "Color", Type: TypeColor}},
	},
	NodeTime: {
		Name: "time", Class: ClassUniform,
		Outputs: []PortSpec{{ID: "t", Name: "Time", Type: TypeScalar}},
	},
	NodeParticleAge: {
		Name: "particle_age", Class: ClassIntrinsic,
		Outputs: []PortSpec{{ID: "age", Name: "Age", Type: TypeScalar}},
	},
	NodeParticleVelocity: {
		Name: "particle_velocity", Class: ClassIntrinsic,
		Outputs: []PortSpec{{ID: "velocity", Name: "Velocity", Type: TypeVec3}},
	},
	NodeUV: {
		Name: "uv", Class: ClassIntrinsic,
		Outputs: []PortSpec{{ID: "uv", Name: "UV", Type: TypeVec2}},
	},
	NodeAdd: {
		Name: "add", Class: ClassFunc, Pure: true,
		Inputs: []PortSpec{
			{ID: "a", Name: "A", Type: TypeVec4},
			{ID: "b", Name: "B", Type: TypeVec4},
		},
		Outputs: []PortSpec{{ID: "out", Name: "Out", Type: TypeVec4}},
	},
	NodeMultiply: {
		Name: "multiply", Class: ClassFunc, Pure: true,
		Inputs: []PortSpec{
			{ID: "a", Name: "A", Type: TypeVec4, Default: [4]float32{1, 1, 1, 1}},
			{ID: "b", Name: "B", Type: TypeVec4, Default: [4]float32{1, 1, 1, 1}},
		},
		Outputs: []PortSpec{{ID: "out", Name: "Out", Type: TypeVec4}},
	},
	NodeOneMinus: {
		Name: "one_minus", Class: ClassFunc, Pure: true,
		Inputs:  []PortSpec{{ID: "in", Name: "In", Type: TypeScalar}},
		Outputs: []PortSpec{{ID: "out", Name: "Out", Type: TypeScalar}},
	},
	NodeMix: {
		Name: "mix", Class: ClassFunc, Pure: true,
		Inputs: []PortSpec{
			{ID: "a", Name: "A", Type: TypeVec4},
			{ID: "b", Name: "B", Type: TypeVec4, Default: [4]float32{1, 1, 1, 1}},
			{ID: "t", Name: "Factor", Type: TypeScalar, Default: [4]float32{0.5}},
		},
		Outputs: []PortSpec{{ID: "out", Name: "Out", Type: TypeVec4}},
	},
	NodeClamp: {
		Name: "clamp", Class: ClassFunc, Pure: true,
		Inputs: []PortSpec{
			{ID: "in", Name: "In", Type: TypeScalar},
			{ID: "min", Name: "Min", Type: TypeScalar},
			{ID: "max", Name: "Max", Type: TypeScalar, Default: [4]float32{1}},
		},
		Outputs: []PortSpec{{ID: "out", Name: "Out", Type: TypeScalar}},
	},
	NodeSine: {
		Name: "sine", Class: ClassFunc, Pure: true,
		Inputs:  []PortSpec{{ID: "in", Name: "In", Type: TypeScalar}},
		Outputs: []PortSpec{{ID: "out", Name: "Out", Type: TypeScalar}},
	},
	NodeColorRamp: {
		Name: "color_ramp", Class: ClassFunc, Pure: true,
		Inputs:  []PortSpec{{ID: "t", Name: "Factor", Type: TypeScalar}},
		Outputs: []PortSpec{{ID: "color", Name: "Color", Type: TypeColor}},
	},
	NodeTextureSample: {
		// Not pure: sampling depends on bound texture state.
		Name: "texture_sample", Class: ClassFunc,
		Inputs:  []PortSpec{{ID: "uv", Name: "UV", Type: TypeVec2}},
		Outputs: []PortSpec{{ID: "color", Name: "Color", Type: TypeColor}},
	},
}

// Spec returns the catalog entry for the node type. Unregistered types
// return a zero NodeSpec whose Name is empty.
func (t NodeType) Spec() NodeSpec {
	if t >= maxNodeType {
		return NodeSpec{}
	}
	return nodeCatalog[t]
}

func (t NodeType) String() string {
	s := t.Spec()
	if s.Name == "" {
		return "NodeType(" + strconv.Itoa(int(t)) + ")"
	}
	return s.Name
}

// ConstValue returns the literal a ClassConst node resolves to, spread over
// 4 lanes, along with its type.
func (n *Node) ConstValue() ([4]float32, PortType) {
	switch n.Type {
	case NodeConstScalar:
		return [4]float32{n.Data.Scalar}, TypeScalar
	case NodeConstColor:
		return n.Data.Color, TypeColor
	}
	return [4]float32{}, TypeInvalid
}
