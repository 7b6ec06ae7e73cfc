package glprog_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gvfx"
	"github.com/soypat/gvfx/glprog"
)

func compileOrFatal(t *testing.T, g *gvfx.MaterialGraph) *glprog.CompiledShader {
	t.Helper()
	cs, err := glprog.NewDefaultProgrammer().Compile(g)
	if err != nil {
		t.Fatalf("compile: %s", err)
	}
	return cs
}

// The particle-age scenario: a single intrinsic wired to the output alpha.
// Intrinsics arrive as varyings, so the uniform manifest stays empty.
func TestCompileAgeToAlpha(t *testing.T) {
	var g gvfx.MaterialGraph
	if err := g.AddNode(gvfx.Node{ID: "age", Type: gvfx.NodeParticleAge}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(gvfx.Node{ID: "out", Type: gvfx.NodeOutput}); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect("c1", "age", "age", "out", "alpha"); err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, &g)
	if len(cs.Manifest) != 0 {
		t.Errorf("intrinsic leaked into uniform manifest: %+v", cs.Manifest)
	}
	wantBody := "fragColor = vec4((vec4(1.0,1.0,1.0,1.0)).rgb, v_particle_age);\n"
	if string(cs.EntryBody) != wantBody {
		t.Errorf("entry body:\n%s\nwant:\n%s", cs.EntryBody, wantBody)
	}
	src := string(cs.AppendSource(nil))
	if !strings.Contains(src, "in float v_particle_age;") {
		t.Errorf("missing varying declaration in:\n%s", src)
	}
	if !strings.Contains(src, "out vec4 fragColor;") {
		t.Errorf("missing output declaration in:\n%s", src)
	}
}

// Compiling the same graph content twice yields byte-identical source and
// manifest, even through distinct graph objects and programmers.
func TestCompileDeterminism(t *testing.T) {
	mk := func() *gvfx.MaterialGraph {
		bld := gvfx.Builder{}
		age := bld.ParticleAge("age")
		t1 := bld.Time("time")
		s := bld.Sine("wave")
		mixn := bld.Mix("mixer")
		ramp := bld.ColorRamp("ramp", gvfx.Gradient(ms3.Vec{X: 1, Y: 0.4}, 1, ms3.Vec{}, gvfx.EaseInOutQuad))
		out := bld.Output("out")
		bld.Connect(t1, "t", s, "in")
		bld.Connect(age, "age", ramp, "t")
		bld.Connect(ramp, "color", mixn, "a")
		bld.Connect(s, "out", mixn, "t")
		bld.Connect(mixn, "out", out, "color")
		bld.Connect(age, "age", out, "alpha")
		g, err := bld.Graph()
		if err != nil {
			t.Fatal(err)
		}
		return g
	}
	a := compileOrFatal(t, mk())
	b := compileOrFatal(t, mk())
	if !bytes.Equal(a.AppendSource(nil), b.AppendSource(nil)) {
		t.Errorf("recompilation differs:\n%s\n====\n%s", a.AppendSource(nil), b.AppendSource(nil))
	}
	if len(a.Manifest) != len(b.Manifest) {
		t.Fatalf("manifest lengths differ: %d != %d", len(a.Manifest), len(b.Manifest))
	}
	for i := range a.Manifest {
		if a.Manifest[i] != b.Manifest[i] {
			t.Errorf("manifest entry %d differs: %+v != %+v", i, a.Manifest[i], b.Manifest[i])
		}
	}
	// A reused programmer must produce the same bytes as a fresh one.
	p := glprog.NewDefaultProgrammer()
	c1, err := p.Compile(mk())
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.Compile(mk())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c1.AppendSource(nil), c2.AppendSource(nil)) {
		t.Error("programmer reuse changed emitted source")
	}
}

func TestCompileCycleRejected(t *testing.T) {
	var g gvfx.MaterialGraph
	for _, n := range []gvfx.Node{
		{ID: "a", Type: gvfx.NodeAdd},
		{ID: "b", Type: gvfx.NodeAdd},
		{ID: "out", Type: gvfx.NodeOutput},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	conns := [][4]string{
		{"a", "out", "b", "a"},
		{"b", "out", "a", "a"},
		{"a", "out", "out", "color"},
	}
	for i, c := range conns {
		if err := g.Connect("c"+string(rune('0'+i)), c[0], c[1], c[2], c[3]); err != nil {
			t.Fatal(err)
		}
	}
	cs, err := glprog.NewDefaultProgrammer().Compile(&g)
	if cs != nil {
		t.Error("cycle produced a partial artifact")
	}
	var cyc *glprog.CyclicGraphError
	if !errors.As(err, &cyc) {
		t.Fatalf("want CyclicGraphError, got %v", err)
	}
	found := map[string]bool{}
	for _, id := range cyc.NodeIDs {
		found[id] = true
	}
	if !found["a"] || !found["b"] {
		t.Errorf("cycle error missing involved nodes: %v", cyc.NodeIDs)
	}
}

func TestCompileDanglingReference(t *testing.T) {
	var tests = []struct {
		name string
		conn gvfx.Connection
	}{
		{"missing source node", gvfx.Connection{ID: "c", FromNode: "ghost", FromPort: "age", ToNode: "out", ToPort: "alpha"}},
		{"missing target node", gvfx.Connection{ID: "c", FromNode: "age", FromPort: "age", ToNode: "ghost", ToPort: "alpha"}},
		{"missing source port", gvfx.Connection{ID: "c", FromNode: "age", FromPort: "ghost", ToNode: "out", ToPort: "alpha"}},
		{"missing target port", gvfx.Connection{ID: "c", FromNode: "age", FromPort: "age", ToNode: "out", ToPort: "ghost"}},
	}
	for _, tt := range tests {
		var g gvfx.MaterialGraph
		g.AddNode(gvfx.Node{ID: "age", Type: gvfx.NodeParticleAge})
		g.AddNode(gvfx.Node{ID: "out", Type: gvfx.NodeOutput})
		g.Connections = append(g.Connections, tt.conn) // bypass authoring checks
		cs, err := glprog.NewDefaultProgrammer().Compile(&g)
		if cs != nil {
			t.Errorf("%s: produced artifact from invalid graph", tt.name)
		}
		var dangling *glprog.DanglingReferenceError
		if !errors.As(err, &dangling) {
			t.Errorf("%s: want DanglingReferenceError, got %v", tt.name, err)
		} else if dangling.ConnID != "c" {
			t.Errorf("%s: error names connection %q", tt.name, dangling.ConnID)
		}
	}
}

// An input port driven by two connections fails with a typed error naming
// the conflicting connection and port for editor highlighting.
func TestCompilePortConflict(t *testing.T) {
	var g gvfx.MaterialGraph
	g.AddNode(gvfx.Node{ID: "age", Type: gvfx.NodeParticleAge})
	g.AddNode(gvfx.Node{ID: "time", Type: gvfx.NodeTime})
	g.AddNode(gvfx.Node{ID: "out", Type: gvfx.NodeOutput})
	// Appended directly since Connect refuses to author the conflict.
	g.Connections = append(g.Connections,
		gvfx.Connection{ID: "c1", FromNode: "age", FromPort: "age", ToNode: "out", ToPort: "alpha"},
		gvfx.Connection{ID: "c2", FromNode: "time", FromPort: "t", ToNode: "out", ToPort: "alpha"},
	)
	cs, err := glprog.NewDefaultProgrammer().Compile(&g)
	if cs != nil {
		t.Error("conflicting connections produced an artifact")
	}
	var conflict *glprog.PortConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want PortConflictError, got %v", err)
	}
	if conflict.ConnID != "c2" || conflict.NodeID != "out" || conflict.PortID != "alpha" {
		t.Errorf("conflict details: %+v", conflict)
	}
}

func TestCompileTypeMismatch(t *testing.T) {
	var g gvfx.MaterialGraph
	g.AddNode(gvfx.Node{ID: "vel", Type: gvfx.NodeParticleVelocity})
	g.AddNode(gvfx.Node{ID: "out", Type: gvfx.NodeOutput})
	// vec3 velocity cannot feed the scalar alpha port. Appended directly
	// since Connect would refuse to author it.
	g.Connections = append(g.Connections, gvfx.Connection{
		ID: "bad", FromNode: "vel", FromPort: "velocity", ToNode: "out", ToPort: "alpha",
	})
	_, err := glprog.NewDefaultProgrammer().Compile(&g)
	var mismatch *glprog.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("want TypeMismatchError, got %v", err)
	}
	if mismatch.ConnID != "bad" || mismatch.Got != gvfx.TypeVec3 || mismatch.Want != gvfx.TypeScalar {
		t.Errorf("mismatch details: %+v", mismatch)
	}
}

func TestCompileNoOutput(t *testing.T) {
	var g gvfx.MaterialGraph
	g.AddNode(gvfx.Node{ID: "age", Type: gvfx.NodeParticleAge})
	_, err := glprog.NewDefaultProgrammer().Compile(&g)
	if !errors.Is(err, glprog.ErrNoOutput) {
		t.Errorf("want ErrNoOutput, got %v", err)
	}
	g.AddNode(gvfx.Node{ID: "out1", Type: gvfx.NodeOutput})
	g.AddNode(gvfx.Node{ID: "out2", Type: gvfx.NodeOutput})
	_, err = glprog.NewDefaultProgrammer().Compile(&g)
	if !errors.Is(err, glprog.ErrMultipleOutputs) {
		t.Errorf("want ErrMultipleOutputs, got %v", err)
	}
}

// Nodes unreachable from the output must not appear in the emitted program,
// and their presence must not affect compilation success.
func TestDeadCodeElimination(t *testing.T) {
	bld := gvfx.Builder{}
	age := bld.ParticleAge("age")
	out := bld.Output("out")
	orphanT := bld.Time("orphan_time")
	orphan := bld.Sine("orphan_sine")
	bld.Connect(age, "age", out, "alpha")
	bld.Connect(orphanT, "t", orphan, "in")
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	src := string(cs.AppendSource(nil))
	if strings.Contains(src, "orphan") || strings.Contains(src, "vfx_sine") {
		t.Errorf("dead nodes leaked into source:\n%s", src)
	}
	if _, ok := cs.Uniform("u_time"); ok {
		t.Error("dead uniform node declared u_time in manifest")
	}
}

// Pure nodes over all-literal inputs fold to literals at compile time.
func TestConstantFolding(t *testing.T) {
	bld := gvfx.Builder{}
	c := bld.ConstScalar("quarter", 0.25)
	inv := bld.OneMinus("inv")
	out := bld.Output("out")
	bld.Connect(c, "value", inv, "in")
	bld.Connect(inv, "out", out, "alpha")
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	src := string(cs.AppendSource(nil))
	if strings.Contains(src, "vfx_one_minus") {
		t.Errorf("foldable node emitted a function call:\n%s", src)
	}
	if !strings.Contains(src, "0.75") {
		t.Errorf("folded literal missing from source:\n%s", src)
	}
	// An impure node in the chain stops folding at that point.
	bld2 := gvfx.Builder{}
	tm := bld2.Time("time")
	s := bld2.Sine("wave")
	out2 := bld2.Output("out")
	bld2.Connect(tm, "t", s, "in")
	bld2.Connect(s, "out", out2, "alpha")
	g2, err := bld2.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs2 := compileOrFatal(t, g2)
	if !strings.Contains(string(cs2.AppendSource(nil)), "vfx_sine") {
		t.Error("uniform-fed sine was incorrectly folded")
	}
}

// Each node type contributes its library function once no matter how many
// instances the graph holds.
func TestFunctionLibraryDeduplication(t *testing.T) {
	bld := gvfx.Builder{}
	tm := bld.Time("time")
	s1 := bld.Sine("s1")
	s2 := bld.Sine("s2")
	mixn := bld.Mix("mixer")
	out := bld.Output("out")
	bld.Connect(tm, "t", s1, "in")
	bld.Connect(tm, "t", s2, "in")
	bld.Connect(s1, "out", mixn, "a")
	bld.Connect(s2, "out", mixn, "t")
	bld.Connect(mixn, "out", out, "color")
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	src := string(cs.AppendSource(nil))
	if n := strings.Count(src, "float vfx_sine(float x)"); n != 1 {
		t.Errorf("want one sine definition, got %d in:\n%s", n, src)
	}
	// Both instances still emit their own local assignment.
	if !strings.Contains(src, "n_s1 = vfx_sine(") || !strings.Contains(src, "n_s2 = vfx_sine(") {
		t.Errorf("missing per-instance locals in:\n%s", src)
	}
}

// Uniform-backed inputs land in the manifest exactly once, with their
// authored defaults, regardless of fan-out.
func TestUniformManifest(t *testing.T) {
	bld := gvfx.Builder{}
	intensity := bld.UniformScalar("intensity", "u_intensity", 2.5)
	tint := bld.UniformColor("tint", "u_tint", [4]float32{1, 0.5, 0.25, 1})
	mixn := bld.Mix("mixer")
	out := bld.Output("out")
	bld.Connect(tint, "color", mixn, "a")
	bld.Connect(intensity, "value", mixn, "t")
	bld.Connect(mixn, "out", out, "color")
	bld.Connect(intensity, "value", out, "alpha") // fan-out of same uniform
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	if len(cs.Manifest) != 2 {
		t.Fatalf("manifest = %+v, want exactly u_intensity and u_tint", cs.Manifest)
	}
	u, ok := cs.Uniform("u_intensity")
	if !ok || u.Type != gvfx.TypeScalar || u.Default != [4]float32{2.5} {
		t.Errorf("u_intensity entry = %+v ok=%v", u, ok)
	}
	c, ok := cs.Uniform("u_tint")
	if !ok || c.Type != gvfx.TypeColor || c.Default != [4]float32{1, 0.5, 0.25, 1} {
		t.Errorf("u_tint entry = %+v ok=%v", c, ok)
	}
	src := string(cs.AppendSource(nil))
	if n := strings.Count(src, "uniform float u_intensity;"); n != 1 {
		t.Errorf("want one u_intensity declaration, got %d", n)
	}
}

func TestTextureSampleDeclaresSampler(t *testing.T) {
	bld := gvfx.Builder{}
	uv := bld.UV("uv")
	tex := bld.TextureSample("tex", "u_sprite")
	out := bld.Output("out")
	bld.Connect(uv, "uv", tex, "uv")
	bld.Connect(tex, "color", out, "color")
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	src := string(cs.AppendSource(nil))
	if !strings.Contains(src, "uniform sampler2D u_sprite;") {
		t.Errorf("missing sampler declaration in:\n%s", src)
	}
	if !strings.Contains(src, "vfx_texture_sample(u_sprite, v_uv)") {
		t.Errorf("sampler not threaded through call in:\n%s", src)
	}
	if _, ok := cs.Uniform("u_sprite"); !ok {
		t.Error("sampler missing from manifest")
	}
}

// Scalar sources broadcast into vector ports through a constructor.
func TestScalarBroadcast(t *testing.T) {
	bld := gvfx.Builder{}
	tm := bld.Time("time")
	mul := bld.Multiply("mul")
	out := bld.Output("out")
	bld.Connect(tm, "t", mul, "a")
	bld.Connect(mul, "out", out, "color")
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	if !strings.Contains(string(cs.AppendSource(nil)), "vec4(u_time)") {
		t.Errorf("scalar uniform not broadcast to vec4 in:\n%s", cs.AppendSource(nil))
	}
}

// The ramp LUT is baked into the call site with easing applied, so two
// ramps differing only in easing emit different programs.
func TestColorRampBaking(t *testing.T) {
	mk := func(e gvfx.Easing) *gvfx.MaterialGraph {
		bld := gvfx.Builder{}
		age := bld.ParticleAge("age")
		ramp := bld.ColorRamp("ramp", gvfx.Gradient(ms3.Vec{X: 1}, 1, ms3.Vec{}, e))
		out := bld.Output("out")
		bld.Connect(age, "age", ramp, "t")
		bld.Connect(ramp, "color", out, "color")
		g, err := bld.Graph()
		if err != nil {
			t.Fatal(err)
		}
		return g
	}
	linear := compileOrFatal(t, mk(gvfx.EaseLinear))
	cubic := compileOrFatal(t, mk(gvfx.EaseInOutCubic))
	if !strings.Contains(string(linear.AppendSource(nil)), "vec4[8](") {
		t.Errorf("missing baked LUT in:\n%s", linear.AppendSource(nil))
	}
	if bytes.Equal(linear.AppendSource(nil), cubic.AppendSource(nil)) {
		t.Error("easing change did not alter baked LUT")
	}
}

func TestWriteFragment(t *testing.T) {
	bld := gvfx.Builder{}
	age := bld.ParticleAge("age")
	out := bld.Output("out")
	bld.Connect(age, "age", out, "alpha")
	g, err := bld.Graph()
	if err != nil {
		t.Fatal(err)
	}
	cs := compileOrFatal(t, g)
	var buf bytes.Buffer
	n, err := cs.WriteFragment(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != buf.Len() {
		t.Errorf("written length %d != buffer length %d", n, buf.Len())
	}
	if !strings.HasPrefix(buf.String(), "#version 430\n") {
		t.Errorf("fragment missing version header:\n%s", buf.String())
	}
}

func TestAppendFloatLiterals(t *testing.T) {
	var tests = []struct {
		v    float32
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{-2.5, "-2.5"},
		{0.75, "0.75"},
	}
	for _, tt := range tests {
		got := string(glprog.AppendFloat(nil, tt.v))
		if got != tt.want {
			t.Errorf("AppendFloat(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
