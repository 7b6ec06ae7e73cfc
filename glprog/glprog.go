package glprog

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/soypat/gvfx"
)

const versionStr = "#version 430\n"

// Storage classifies a shader-level declaration.
type Storage uint8

const (
	StorageUniform Storage = iota
	StorageVarying
	StorageSampler
	StorageOut
)

// Declaration is one shader-scope declaration: a uniform, an interpolated
// varying fed by the vertex stage, a texture sampler or the stage output.
type Declaration struct {
	Storage Storage
	Type    gvfx.PortType
	Name    string
}

func (d Declaration) append(b []byte) []byte {
	switch d.Storage {
	case StorageUniform, StorageSampler:
		b = append(b, "uniform "...)
	case StorageVarying:
		b = append(b, "in "...)
	case StorageOut:
		b = append(b, "out "...)
	}
	b = append(b, d.Type.GLSL()...)
	b = append(b, ' ')
	b = append(b, d.Name...)
	return append(b, ';', '\n')
}

// Function is one shared function-library entry of a compiled shader.
type Function struct {
	Name   string
	Source []byte
}

// Uniform is one externally bindable parameter of a compiled shader.
// The render backend binds values by Name each frame.
type Uniform struct {
	Name    string
	Type    gvfx.PortType
	Default [4]float32
}

// CompiledShader is the immutable artifact of a successful compilation:
// declarations, the deduplicated function library, the entry-point body and
// the manifest of externally bindable uniforms. Compilation is
// all-or-nothing; a CompiledShader is never partially populated.
type CompiledShader struct {
	Declarations    []Declaration
	FunctionLibrary []Function
	EntryBody       []byte
	Manifest        []Uniform
	// Raw, when non-empty, is a complete hand-written fragment source that
	// bypasses generation; AppendSource returns it verbatim.
	Raw []byte
}

// AppendSource appends the complete fragment-stage source: version header,
// declarations, function library and main body. Hand-written programs pass
// through unchanged.
func (cs *CompiledShader) AppendSource(b []byte) []byte {
	if len(cs.Raw) > 0 {
		return append(b, cs.Raw...)
	}
	b = append(b, versionStr...)
	for _, d := range cs.Declarations {
		b = d.append(b)
	}
	b = append(b, '\n')
	for _, f := range cs.FunctionLibrary {
		b = append(b, f.Source...)
	}
	b = append(b, "void main() {\n"...)
	b = append(b, cs.EntryBody...)
	return append(b, '}', '\n')
}

// WriteFragment writes the concatenated fragment source to w.
func (cs *CompiledShader) WriteFragment(w io.Writer) (int, error) {
	return w.Write(cs.AppendSource(nil))
}

// Uniform returns the manifest entry with the given name.
func (cs *CompiledShader) Uniform(name string) (Uniform, bool) {
	for _, u := range cs.Manifest {
		if u.Name == name {
			return u, true
		}
	}
	return Uniform{}, false
}

// Programmer compiles [gvfx.MaterialGraph] values into [CompiledShader]
// artifacts. It reuses internal scratch space between compilations, so a
// Programmer must not be shared between goroutines; give each caller its
// own instance.
type Programmer struct {
	scratch []byte
	// names maps function name hashes to body hashes for dedup checks.
	names map[uint64]uint64
}

// NewDefaultProgrammer returns a Programmer with reasonable scratch sizes.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratch: make([]byte, 0, 1024),
		names:   make(map[uint64]uint64),
	}
}

// expr is the resolved right-hand side for one node output: either a
// compile-time literal or a GLSL expression referencing earlier locals,
// uniforms or varyings.
type expr struct {
	typ  gvfx.PortType
	text string
	lit  bool
	val  [4]float32
}

// Compile validates the graph and emits its shader artifact. The pipeline
// runs structural validation, type validation, cycle detection, dead-code
// elimination, deterministic topological ordering, constant folding and
// finally declaration/function/body emission. Any failure aborts the whole
// compilation with a typed error and no artifact.
func (p *Programmer) Compile(g *gvfx.MaterialGraph) (*CompiledShader, error) {
	out, err := validateStructure(g)
	if err != nil {
		return nil, err
	}
	if err := validateTypes(g); err != nil {
		return nil, err
	}
	if err := detectCycles(g); err != nil {
		return nil, err
	}
	live := reachableFrom(g, out.ID)
	order := topoOrder(g, live)
	return p.emit(g, order)
}

// validateStructure checks connection endpoints exist, ports exist on their
// nodes, input ports are driven at most once and the graph has exactly one
// output node.
func validateStructure(g *gvfx.MaterialGraph) (*gvfx.Node, error) {
	var out *gvfx.Node
	for i := range g.Nodes {
		if g.Nodes[i].Type == gvfx.NodeOutput {
			if out != nil {
				return nil, ErrMultipleOutputs
			}
			out = &g.Nodes[i]
		}
	}
	if out == nil {
		return nil, ErrNoOutput
	}
	driven := make(map[[2]string]struct{}, len(g.Connections))
	for i := range g.Connections {
		c := &g.Connections[i]
		src := g.Node(c.FromNode)
		if src == nil {
			return nil, &DanglingReferenceError{ConnID: c.ID, NodeID: c.FromNode}
		}
		dst := g.Node(c.ToNode)
		if dst == nil {
			return nil, &DanglingReferenceError{ConnID: c.ID, NodeID: c.ToNode}
		}
		if _, ok := src.Output(c.FromPort); !ok {
			return nil, &DanglingReferenceError{ConnID: c.ID, NodeID: c.FromNode, PortID: c.FromPort}
		}
		if _, ok := dst.Input(c.ToPort); !ok {
			return nil, &DanglingReferenceError{ConnID: c.ID, NodeID: c.ToNode, PortID: c.ToPort}
		}
		key := [2]string{c.ToNode, c.ToPort}
		if _, dup := driven[key]; dup {
			return nil, &PortConflictError{ConnID: c.ID, NodeID: c.ToNode, PortID: c.ToPort}
		}
		driven[key] = struct{}{}
	}
	return out, nil
}

func validateTypes(g *gvfx.MaterialGraph) error {
	for i := range g.Connections {
		c := &g.Connections[i]
		out, _ := g.Node(c.FromNode).Output(c.FromPort)
		in, _ := g.Node(c.ToNode).Input(c.ToPort)
		if !gvfx.CanAssign(out.Type, in.Type) {
			return &TypeMismatchError{ConnID: c.ID, Want: in.Type, Got: out.Type}
		}
	}
	return nil
}

// detectCycles walks the dependency graph (edges from a connection's target
// node back to its source) depth-first. A back-edge to a node on the
// current recursion stack is a cycle.
func detectCycles(g *gvfx.MaterialGraph) error {
	deps := dependencyEdges(g)
	ids := sortedNodeIDs(g)
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(ids))
	var stack []string
	var visit func(id string) *CyclicGraphError
	visit = func(id string) *CyclicGraphError {
		state[id] = onStack
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch state[dep] {
			case onStack:
				i := slices.Index(stack, dep)
				cyc := append([]string{}, stack[i:]...)
				return &CyclicGraphError{NodeIDs: append(cyc, dep)}
			case unvisited:
				if cerr := visit(dep); cerr != nil {
					return cerr
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}
	for _, id := range ids {
		if state[id] == unvisited {
			if cerr := visit(id); cerr != nil {
				return cerr
			}
		}
	}
	return nil
}

// dependencyEdges maps each node id to the sorted, deduplicated ids of the
// nodes feeding it.
func dependencyEdges(g *gvfx.MaterialGraph) map[string][]string {
	deps := make(map[string][]string, len(g.Nodes))
	for i := range g.Connections {
		c := &g.Connections[i]
		deps[c.ToNode] = append(deps[c.ToNode], c.FromNode)
	}
	for id, d := range deps {
		slices.Sort(d)
		deps[id] = slices.Compact(d)
	}
	return deps
}

func sortedNodeIDs(g *gvfx.MaterialGraph) []string {
	ids := make([]string, len(g.Nodes))
	for i := range g.Nodes {
		ids[i] = g.Nodes[i].ID
	}
	slices.Sort(ids)
	return ids
}

// reachableFrom performs the dead-code elimination reachability pass:
// reverse traversal from the output node over dependency edges.
func reachableFrom(g *gvfx.MaterialGraph, outID string) map[string]bool {
	deps := dependencyEdges(g)
	live := map[string]bool{outID: true}
	queue := []string{outID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range deps[id] {
			if !live[dep] {
				live[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return live
}

// topoOrder produces a deterministic linear order of the live nodes such
// that every node appears after all nodes feeding it. Kahn's algorithm with
// ties broken by node id.
func topoOrder(g *gvfx.MaterialGraph, live map[string]bool) []*gvfx.Node {
	indeg := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string)
	for id := range live {
		indeg[id] = 0
	}
	deps := dependencyEdges(g)
	for id := range live {
		for _, dep := range deps[id] {
			if live[dep] {
				indeg[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}
	var ready []string
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]*gvfx.Node, 0, len(indeg))
	for len(ready) > 0 {
		slices.Sort(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, g.Node(id))
		next := dependents[id]
		slices.Sort(next)
		for _, dep := range slices.Compact(next) {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order
}

// emitter accumulates the artifact under construction.
type emitter struct {
	p        *Programmer
	g        *gvfx.MaterialGraph
	decls    []Declaration
	declared map[string]Declaration
	funcs    []Function
	manifest []Uniform
	inMan    map[string]bool
	body     []byte
	exprs    map[string]expr
	varUsed  map[string]bool
}

func (p *Programmer) emit(g *gvfx.MaterialGraph, order []*gvfx.Node) (*CompiledShader, error) {
	clear(p.names)
	em := &emitter{
		p:        p,
		g:        g,
		declared: make(map[string]Declaration),
		inMan:    make(map[string]bool),
		exprs:    make(map[string]expr, len(order)),
		varUsed:  make(map[string]bool, len(order)),
	}
	em.declare(Declaration{Storage: StorageOut, Type: gvfx.TypeVec4, Name: "fragColor"})
	for _, n := range order {
		var err error
		switch n.Type.Spec().Class {
		case gvfx.ClassConst:
			val, typ := n.ConstValue()
			em.exprs[n.ID] = em.literal(typ, val)
		case gvfx.ClassUniform:
			err = em.emitUniform(n)
		case gvfx.ClassIntrinsic:
			err = em.emitIntrinsic(n)
		case gvfx.ClassOutput:
			err = em.emitOutput(n)
		default:
			err = em.emitCall(n)
		}
		if err != nil {
			return nil, err
		}
	}
	return &CompiledShader{
		Declarations:    em.decls,
		FunctionLibrary: em.funcs,
		EntryBody:       em.body,
		Manifest:        em.manifest,
	}, nil
}

func (em *emitter) literal(typ gvfx.PortType, val [4]float32) expr {
	em.p.scratch = AppendLiteral(em.p.scratch[:0], typ, val)
	return expr{typ: typ, lit: true, val: val, text: string(em.p.scratch)}
}

func (em *emitter) declare(d Declaration) error {
	if prev, ok := em.declared[d.Name]; ok {
		if prev != d {
			return fmt.Errorf("declaration %q redeclared as %s (was %s)", d.Name, d.Type, prev.Type)
		}
		return nil
	}
	em.declared[d.Name] = d
	em.decls = append(em.decls, d)
	return nil
}

func (em *emitter) addManifest(u Uniform) {
	if em.inMan[u.Name] {
		return
	}
	em.inMan[u.Name] = true
	em.manifest = append(em.manifest, u)
}

func (em *emitter) emitUniform(n *gvfx.Node) error {
	name, typ, def := uniformBinding(n)
	if err := em.declare(Declaration{Storage: StorageUniform, Type: typ, Name: name}); err != nil {
		return err
	}
	em.addManifest(Uniform{Name: name, Type: typ, Default: def})
	em.exprs[n.ID] = expr{typ: typ, text: name}
	return nil
}

func (em *emitter) emitIntrinsic(n *gvfx.Node) error {
	iv, ok := intrinsicVaryings[n.Type]
	if !ok {
		return &UnsupportedNodeError{NodeID: n.ID, NodeType: n.Type}
	}
	if err := em.declare(Declaration{Storage: StorageVarying, Type: iv.typ, Name: iv.name}); err != nil {
		return err
	}
	em.exprs[n.ID] = expr{typ: iv.typ, text: iv.name}
	return nil
}

// resolveInput produces the expression feeding the given input port: the
// source node's expression widened to the port type, or the catalog default
// literal when the port is unconnected.
func (em *emitter) resolveInput(n *gvfx.Node, port gvfx.PortSpec) expr {
	c, _ := em.g.Incoming(n.ID, port.ID)
	if c == nil {
		return em.literal(port.Type, port.Default)
	}
	src := em.exprs[c.FromNode]
	if src.typ == port.Type || src.typ.GLSL() == port.Type.GLSL() {
		return src
	}
	// Scalar widening to the port's vector type.
	widened := expr{
		typ:  port.Type,
		text: string(AppendBroadcast(nil, src.text, src.typ, port.Type)),
		lit:  src.lit,
		val:  broadcast(src.val, src.typ, port.Type),
	}
	return widened
}

func (em *emitter) emitOutput(n *gvfx.Node) error {
	spec := n.Type.Spec()
	color := em.resolveInput(n, spec.Inputs[0])
	alpha := em.resolveInput(n, spec.Inputs[1])
	em.body = append(em.body, "fragColor = vec4(("...)
	em.body = append(em.body, color.text...)
	em.body = append(em.body, ").rgb, "...)
	em.body = append(em.body, alpha.text...)
	em.body = append(em.body, ");\n"...)
	return nil
}

func (em *emitter) emitCall(n *gvfx.Node) error {
	def, ok := funcTable[n.Type]
	if !ok {
		return &UnsupportedNodeError{NodeID: n.ID, NodeType: n.Type}
	}
	spec := n.Type.Spec()
	args := make([]expr, len(spec.Inputs))
	allLit := true
	for i, port := range spec.Inputs {
		args[i] = em.resolveInput(n, port)
		allLit = allLit && args[i].lit
	}
	outPort := spec.Outputs[0]
	if spec.Pure && allLit {
		vals := make([][4]float32, len(args))
		for i := range args {
			vals[i] = args[i].val
		}
		if val, folded := foldNode(n, vals); folded {
			em.exprs[n.ID] = em.literal(outPort.Type, val)
			return nil
		}
	}
	if err := em.emitFunction(def); err != nil {
		return err
	}
	v := em.uniqueVar(n.ID)
	em.body = append(em.body, outPort.Type.GLSL()...)
	em.body = append(em.body, ' ')
	em.body = append(em.body, v...)
	em.body = append(em.body, " = "...)
	em.body = append(em.body, def.name...)
	em.body = append(em.body, '(')
	switch n.Type {
	case gvfx.NodeTextureSample:
		// Sampler argument comes from node data, not a connection.
		name := n.Data.Ref
		if name == "" {
			name = "tex_" + gvfx.SanitizeIdentifier(n.ID)
		}
		if err := em.declare(Declaration{Storage: StorageSampler, Type: gvfx.TypeTexture, Name: name}); err != nil {
			return err
		}
		em.addManifest(Uniform{Name: name, Type: gvfx.TypeTexture})
		em.body = append(em.body, name...)
		em.body = append(em.body, ',', ' ')
	}
	for i, a := range args {
		em.body = append(em.body, a.text...)
		if i != len(args)-1 {
			em.body = append(em.body, ',', ' ')
		}
	}
	if n.Type == gvfx.NodeColorRamp {
		em.body = append(em.body, ',', ' ')
		em.body = appendRampLUT(em.body, n.Data.Ramp)
	}
	em.body = append(em.body, ");\n"...)
	em.exprs[n.ID] = expr{typ: outPort.Type, text: v}
	return nil
}

// emitFunction adds a shared library function once. Name hashes mixed with
// body hashes guard against distinct definitions colliding on a name.
func (em *emitter) emitFunction(def funcDef) error {
	nameHash := gvfx.HashBytes([]byte(def.name), 0)
	bodyHash := gvfx.HashBytes([]byte(def.source), nameHash)
	if got, exists := em.p.names[nameHash]; exists {
		if got == bodyHash {
			return nil // Already emitted and identical.
		}
		return fmt.Errorf("distinct shader functions share name %q", def.name)
	}
	em.p.names[nameHash] = bodyHash
	em.funcs = append(em.funcs, Function{Name: def.name, Source: []byte(def.source)})
	return nil
}

func (em *emitter) uniqueVar(nodeID string) string {
	base := "n_" + gvfx.SanitizeIdentifier(nodeID)
	v := base
	for i := 2; em.varUsed[v]; i++ {
		v = base + "_" + strconv.Itoa(i)
	}
	em.varUsed[v] = true
	return v
}
