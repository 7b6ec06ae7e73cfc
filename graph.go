package gvfx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/soypat/geometry/ms3"
)

// PortType is the declared data type of a [Port]. Connections are only valid
// between identical types or from Scalar to a wider vector type (broadcast).
type PortType uint8

const (
	TypeInvalid PortType = iota
	TypeScalar
	TypeVec2
	TypeVec3
	TypeVec4
	TypeColor
	TypeTexture
	maxPortType
)

var portTypeNames = [maxPortType]string{
	TypeInvalid: "invalid",
	TypeScalar:  "scalar",
	TypeVec2:    "vec2",
	TypeVec3:    "vec3",
	TypeVec4:    "vec4",
	TypeColor:   "color",
	TypeTexture: "texture",
}

func (t PortType) String() string {
	if t >= maxPortType {
		return "PortType(" + strconv.Itoa(int(t)) + ")"
	}
	return portTypeNames[t]
}

// GLSL returns the shading language spelling of the type.
func (t PortType) GLSL() string {
	switch t {
	case TypeScalar:
		return "float"
	case TypeVec2:
		return "vec2"
	case TypeVec3:
		return "vec3"
	case TypeVec4, TypeColor:
		return "vec4"
	case TypeTexture:
		return "sampler2D"
	}
	return "void"
}

// Components returns the number of scalar lanes of the type, zero for textures.
func (t PortType) Components() int {
	switch t {
	case TypeScalar:
		return 1
	case TypeVec2:
		return 2
	case TypeVec3:
		return 3
	case TypeVec4, TypeColor:
		return 4
	}
	return 0
}

// CanAssign reports whether a value of type src may feed a port of type dst.
// Identical types are always assignable, Color and Vec4 interchange freely
// (same shading-language representation), and a Scalar widens to any vector
// or color type via broadcast. No other conversions are defined.
func CanAssign(src, dst PortType) bool {
	if src == dst {
		return src != TypeInvalid
	}
	if (src == TypeColor && dst == TypeVec4) || (src == TypeVec4 && dst == TypeColor) {
		return true
	}
	if src == TypeScalar {
		switch dst {
		case TypeVec2, TypeVec3, TypeVec4, TypeColor:
			return true
		}
	}
	return false
}

// PortSpec describes one input or output slot of a node type. Port identities
// and types are fixed by the node-type catalog and immutable at runtime.
type PortSpec struct {
	ID   string
	Name string
	Type PortType
	// Default is the literal emitted for an unconnected input port,
	// stored over 4 lanes regardless of Type.
	Default [4]float32
}

// DataKind tags which arm of [NodeData] is populated.
type DataKind uint8

const (
	DataNone DataKind = iota
	DataScalar
	DataVec
	DataColor
	DataRamp
	DataRef
)

// NodeData is the type-tagged payload carried by nodes whose emission depends
// on authoring-time values: constants, uniform binding names, color ramps and
// texture references.
type NodeData struct {
	Kind   DataKind
	Scalar float32
	Vec    ms3.Vec
	Color  [4]float32
	Ramp   *Ramp
	// Ref is the externally bindable name used by uniform and texture nodes.
	Ref string
}

// Node is a typed unit of computation in the authoring graph. Its input and
// output ports are fixed by Type through the node catalog; X and Y are
// editor placement metadata with no semantic meaning.
type Node struct {
	ID   string
	Type NodeType
	X, Y float32
	Data NodeData
}

// Inputs returns the node's input port specs as defined by its type.
func (n *Node) Inputs() []PortSpec { return n.Type.Spec().Inputs }

// Outputs returns the node's output port specs as defined by its type.
func (n *Node) Outputs() []PortSpec { return n.Type.Spec().Outputs }

// Input looks up an input port by id.
func (n *Node) Input(portID string) (PortSpec, bool) {
	return findPort(n.Type.Spec().Inputs, portID)
}

// Output looks up an output port by id.
func (n *Node) Output(portID string) (PortSpec, bool) {
	return findPort(n.Type.Spec().Outputs, portID)
}

func findPort(ports []PortSpec, id string) (PortSpec, bool) {
	for _, p := range ports {
		if p.ID == id {
			return p, true
		}
	}
	return PortSpec{}, false
}

// Connection is a typed edge from one node's output port to another node's
// input port. The edge type is the source port's declared type and is
// resolved through the catalog rather than stored redundantly.
type Connection struct {
	ID       string
	FromNode string
	FromPort string
	ToNode   string
	ToPort   string
}

// MaterialGraph is the authoring-level effect description: a set of nodes
// with unique ids joined by connections. The compiler in package glprog
// consumes it; the graph itself enforces only authoring invariants
// (unique ids, single incoming connection per input port).
type MaterialGraph struct {
	Nodes       []Node
	Connections []Connection
	Version     int
	Created     time.Time
	Modified    time.Time
}

// Node returns the node with the given id, or nil.
func (g *MaterialGraph) Node(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// AddNode appends a node, rejecting duplicate ids and unknown types.
func (g *MaterialGraph) AddNode(n Node) error {
	if n.ID == "" {
		return errors.New("empty node id")
	} else if n.Type.Spec().Name == "" {
		return fmt.Errorf("node %q has unregistered type %d", n.ID, n.Type)
	} else if g.Node(n.ID) != nil {
		return fmt.Errorf("duplicate node id %q", n.ID)
	}
	g.Nodes = append(g.Nodes, n)
	return nil
}

// Connect adds a connection after checking both endpoints exist, the ports
// exist on their nodes, the types are assignable and the target port is not
// already driven.
func (g *MaterialGraph) Connect(id, fromNode, fromPort, toNode, toPort string) error {
	src := g.Node(fromNode)
	if src == nil {
		return fmt.Errorf("connection %q: source node %q not found", id, fromNode)
	}
	dst := g.Node(toNode)
	if dst == nil {
		return fmt.Errorf("connection %q: target node %q not found", id, toNode)
	}
	out, ok := src.Output(fromPort)
	if !ok {
		return fmt.Errorf("connection %q: node %q has no output port %q", id, fromNode, fromPort)
	}
	in, ok := dst.Input(toPort)
	if !ok {
		return fmt.Errorf("connection %q: node %q has no input port %q", id, toNode, toPort)
	}
	if !CanAssign(out.Type, in.Type) {
		return fmt.Errorf("connection %q: cannot assign %s to %s", id, out.Type, in.Type)
	}
	if c, _ := g.Incoming(toNode, toPort); c != nil {
		return fmt.Errorf("connection %q: port %s.%s already driven by %q", id, toNode, toPort, c.ID)
	}
	g.Connections = append(g.Connections, Connection{
		ID: id, FromNode: fromNode, FromPort: fromPort, ToNode: toNode, ToPort: toPort,
	})
	return nil
}

// Incoming returns the connection driving the given input port, if any,
// along with its index in the connection list.
func (g *MaterialGraph) Incoming(nodeID, portID string) (*Connection, int) {
	for i := range g.Connections {
		c := &g.Connections[i]
		if c.ToNode == nodeID && c.ToPort == portID {
			return c, i
		}
	}
	return nil, -1
}

// OutputNode returns the graph's designated sink node, or nil if absent.
func (g *MaterialGraph) OutputNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeOutput {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Validate checks authoring invariants: unique node ids, connection endpoints
// and ports exist, assignable types, single incoming connection per port.
// It does not detect cycles; that is the compiler's job.
func (g *MaterialGraph) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(g.Nodes))
	for i := range g.Nodes {
		id := g.Nodes[i].ID
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("duplicate node id %q", id))
		}
		seen[id] = struct{}{}
	}
	driven := make(map[[2]string]string, len(g.Connections))
	for i := range g.Connections {
		c := &g.Connections[i]
		if err := g.checkConnection(c); err != nil {
			errs = append(errs, err)
			continue
		}
		key := [2]string{c.ToNode, c.ToPort}
		if prev, dup := driven[key]; dup {
			errs = append(errs, fmt.Errorf("port %s.%s driven by both %q and %q", c.ToNode, c.ToPort, prev, c.ID))
		}
		driven[key] = c.ID
	}
	return errors.Join(errs...)
}

func (g *MaterialGraph) checkConnection(c *Connection) error {
	src := g.Node(c.FromNode)
	if src == nil {
		return fmt.Errorf("connection %q references missing node %q", c.ID, c.FromNode)
	}
	dst := g.Node(c.ToNode)
	if dst == nil {
		return fmt.Errorf("connection %q references missing node %q", c.ID, c.ToNode)
	}
	out, ok := src.Output(c.FromPort)
	if !ok {
		return fmt.Errorf("connection %q references missing port %s.%s", c.ID, c.FromNode, c.FromPort)
	}
	in, ok := dst.Input(c.ToPort)
	if !ok {
		return fmt.Errorf("connection %q references missing port %s.%s", c.ID, c.ToNode, c.ToPort)
	}
	if !CanAssign(out.Type, in.Type) {
		return fmt.Errorf("connection %q: cannot assign %s to %s", c.ID, out.Type, in.Type)
	}
	return nil
}

// AppendCanonical appends a canonical byte serialization of the graph's
// structural content to dst. Nodes and connections are visited in id order
// and editor metadata (placement, timestamps) is excluded, so two graphs
// with identical semantics serialize identically regardless of authoring
// history. The result feeds [MaterialGraph.ContentHash].
func (g *MaterialGraph) AppendCanonical(dst []byte) []byte {
	nodeIDs := make([]string, len(g.Nodes))
	for i := range g.Nodes {
		nodeIDs[i] = g.Nodes[i].ID
	}
	slices.Sort(nodeIDs)
	for _, id := range nodeIDs {
		n := g.Node(id)
		dst = append(dst, 'n', '|')
		dst = append(dst, n.ID...)
		dst = append(dst, '|')
		dst = append(dst, n.Type.Spec().Name...)
		dst = appendCanonicalData(dst, &n.Data)
		dst = append(dst, '\n')
	}
	connIDs := make([]string, len(g.Connections))
	for i := range g.Connections {
		connIDs[i] = g.Connections[i].ID
	}
	slices.Sort(connIDs)
	for _, id := range connIDs {
		for i := range g.Connections {
			c := &g.Connections[i]
			if c.ID != id {
				continue
			}
			dst = append(dst, 'c', '|')
			dst = append(dst, c.ID...)
			dst = append(dst, '|')
			dst = append(dst, c.FromNode...)
			dst = append(dst, '.')
			dst = append(dst, c.FromPort...)
			dst = append(dst, '>')
			dst = append(dst, c.ToNode...)
			dst = append(dst, '.')
			dst = append(dst, c.ToPort...)
			dst = append(dst, '\n')
			break
		}
	}
	return dst
}

func appendCanonicalData(dst []byte, d *NodeData) []byte {
	switch d.Kind {
	case DataScalar:
		dst = append(dst, "|s:"...)
		dst = appendCanonFloat(dst, d.Scalar)
	case DataVec:
		dst = append(dst, "|v:"...)
		arr := d.Vec.Array()
		for _, f := range arr {
			dst = appendCanonFloat(dst, f)
			dst = append(dst, ',')
		}
	case DataColor:
		dst = append(dst, "|k:"...)
		for _, f := range d.Color {
			dst = appendCanonFloat(dst, f)
			dst = append(dst, ',')
		}
	case DataRamp:
		dst = append(dst, "|r:"...)
		if d.Ramp != nil {
			for _, s := range d.Ramp.Stops {
				dst = appendCanonFloat(dst, s.T)
				dst = append(dst, ':')
				arr := s.Color.Array()
				for _, f := range arr {
					dst = appendCanonFloat(dst, f)
					dst = append(dst, ',')
				}
				dst = appendCanonFloat(dst, s.Alpha)
				dst = append(dst, ';')
				dst = append(dst, byte('0'+s.Easing))
			}
		}
	case DataRef:
		dst = append(dst, "|u:"...)
		dst = append(dst, d.Ref...)
	}
	return dst
}

func appendCanonFloat(dst []byte, f float32) []byte {
	return strconv.AppendFloat(dst, float64(f), 'g', -1, 32)
}

// ContentHash returns a content-addressed fingerprint of the graph derived
// from its canonical serialization. Graphs that compile identically hash
// identically; the orchestrator keys its cache on this value.
func (g *MaterialGraph) ContentHash() uint64 {
	return HashBytes(g.AppendCanonical(nil), 0)
}

// HashBytes mixes b into seed with a splitmix-style avalanche. Used for
// content addressing and for function dedup during shader generation.
func HashBytes(b []byte, seed uint64) uint64 {
	x := seed
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}

// SanitizeIdentifier maps an arbitrary node id to a valid shading-language
// identifier fragment: runs of characters outside [A-Za-z0-9_] collapse to
// a single underscore.
func SanitizeIdentifier(id string) string {
	var sb strings.Builder
	sb.Grow(len(id))
	prevUnder := false
	for _, r := range id {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if ok {
			sb.WriteRune(r)
			prevUnder = false
		} else if !prevUnder {
			sb.WriteByte('_')
			prevUnder = true
		}
	}
	s := sb.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}
