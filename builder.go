package gvfx

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/soypat/geometry/ms3"
)

// Builder assembles a [MaterialGraph] programmatically. Authoring mistakes
// (duplicate ids, bad connections) panic by default so they surface at the
// call site; set NoPanic to accumulate them instead and collect the result
// with [Builder.Err] or [Builder.Graph].
type Builder struct {
	// NoPanic switches authoring errors from panics to error accumulation.
	NoPanic   bool
	g         MaterialGraph
	accumErrs []error
	nconn     int
}

// Err returns all accumulated authoring errors joined together.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// Graph finalizes and returns the assembled graph along with any
// accumulated authoring errors. The builder may keep adding nodes after
// the call; the returned graph is a snapshot.
func (bld *Builder) Graph() (*MaterialGraph, error) {
	g := bld.g
	g.Nodes = append([]Node{}, bld.g.Nodes...)
	g.Connections = append([]Connection{}, bld.g.Connections...)
	g.Version = 1
	if g.Created.IsZero() {
		g.Created = time.Now()
	}
	g.Modified = time.Now()
	return &g, bld.Err()
}

func (bld *Builder) graphErrorf(msg string, args ...any) {
	if !bld.NoPanic {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func (bld *Builder) addNode(n Node) string {
	err := bld.g.AddNode(n)
	if err != nil {
		bld.graphErrorf("add node: %s", err)
	}
	return n.ID
}

// Output adds the graph's sink node. A compilable graph has exactly one.
func (bld *Builder) Output(id string) string {
	return bld.addNode(Node{ID: id, Type: NodeOutput})
}

// ConstScalar adds a scalar literal source.
func (bld *Builder) ConstScalar(id string, v float32) string {
	return bld.addNode(Node{ID: id, Type: NodeConstScalar, Data: NodeData{Kind: DataScalar, Scalar: v}})
}

// ConstColor adds an RGBA literal source.
func (bld *Builder) ConstColor(id string, r, g, b, a float32) string {
	return bld.addNode(Node{ID: id, Type: NodeConstColor, Data: NodeData{Kind: DataColor, Color: [4]float32{r, g, b, a}}})
}

// UniformScalar adds a scalar input bound by the render backend under the
// given uniform name, with def as the manifest default.
func (bld *Builder) UniformScalar(id, uniformName string, def float32) string {
	return bld.addNode(Node{ID: id, Type: NodeUniformScalar, Data: NodeData{Kind: DataRef, Ref: uniformName, Scalar: def}})
}

// UniformColor adds a color input bound under the given uniform name.
func (bld *Builder) UniformColor(id, uniformName string, def [4]float32) string {
	return bld.addNode(Node{ID: id, Type: NodeUniformColor, Data: NodeData{Kind: DataRef, Ref: uniformName, Color: def}})
}

// Time adds the elapsed-seconds uniform input.
func (bld *Builder) Time(id string) string {
	return bld.addNode(Node{ID: id, Type: NodeTime})
}

// ParticleAge adds the normalized particle age intrinsic (0 at spawn, 1 at death).
func (bld *Builder) ParticleAge(id string) string {
	return bld.addNode(Node{ID: id, Type: NodeParticleAge})
}

// ParticleVelocity adds the per-particle velocity intrinsic.
func (bld *Builder) ParticleVelocity(id string) string {
	return bld.addNode(Node{ID: id, Type: NodeParticleVelocity})
}

// UV adds the billboard texture-coordinate intrinsic.
func (bld *Builder) UV(id string) string {
	return bld.addNode(Node{ID: id, Type: NodeUV})
}

func (bld *Builder) Add(id string) string      { return bld.addNode(Node{ID: id, Type: NodeAdd}) }
func (bld *Builder) Multiply(id string) string { return bld.addNode(Node{ID: id, Type: NodeMultiply}) }
func (bld *Builder) OneMinus(id string) string { return bld.addNode(Node{ID: id, Type: NodeOneMinus}) }
func (bld *Builder) Mix(id string) string      { return bld.addNode(Node{ID: id, Type: NodeMix}) }
func (bld *Builder) Clamp(id string) string    { return bld.addNode(Node{ID: id, Type: NodeClamp}) }
func (bld *Builder) Sine(id string) string     { return bld.addNode(Node{ID: id, Type: NodeSine}) }

// ColorRamp adds a color ramp over its scalar input. Stops must be ordered
// by position; a nil or empty ramp evaluates to opaque white.
func (bld *Builder) ColorRamp(id string, ramp *Ramp) string {
	if ramp != nil {
		for i := 1; i < len(ramp.Stops); i++ {
			if ramp.Stops[i].T < ramp.Stops[i-1].T {
				bld.graphErrorf("ramp %q stops out of order", id)
				break
			}
		}
	}
	return bld.addNode(Node{ID: id, Type: NodeColorRamp, Data: NodeData{Kind: DataRamp, Ramp: ramp}})
}

// TextureSample adds a texture lookup against the sampler uniform named
// textureName.
func (bld *Builder) TextureSample(id, textureName string) string {
	if textureName == "" {
		bld.graphErrorf("texture node %q needs a sampler name", id)
	}
	return bld.addNode(Node{ID: id, Type: NodeTextureSample, Data: NodeData{Kind: DataRef, Ref: textureName}})
}

// Connect wires an output port to an input port, generating a connection id.
func (bld *Builder) Connect(fromNode, fromPort, toNode, toPort string) string {
	bld.nconn++
	id := "c" + strconv.Itoa(bld.nconn)
	err := bld.g.Connect(id, fromNode, fromPort, toNode, toPort)
	if err != nil {
		bld.graphErrorf("connect: %s", err)
	}
	return id
}

// Gradient is a convenience constructor for the common fire/smoke fade ramp:
// full color at birth easing to transparent at death.
func Gradient(birth ms3.Vec, birthAlpha float32, death ms3.Vec, easing Easing) *Ramp {
	return &Ramp{Stops: []RampStop{
		{T: 0, Color: birth, Alpha: birthAlpha, Easing: easing},
		{T: 1, Color: death, Alpha: 0},
	}}
}
