// Package spawn produces initial particle state from emission-shape
// descriptors: a position inside or on the shape, an emission direction and
// a surface normal per spawned particle. Sampling is pure given the
// caller-supplied random source, so concurrent callers each provide their
// own source and need no further synchronization.
package spawn

import (
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// epstol is used to check for badly conditioned vector lengths before
// normalization.
const epstol = 6e-7

// Kind selects the emission-shape primitive.
type Kind uint8

const (
	Point Kind = iota
	Sphere
	Hemisphere
	Box
	Cylinder
	Cone
	Ring
	Disc
	EdgeRing
	Mesh
	maxKind
)

var kindNames = [maxKind]string{
	Point: "point", Sphere: "sphere", Hemisphere: "hemisphere", Box: "box",
	Cylinder: "cylinder", Cone: "cone", Ring: "ring", Disc: "disc",
	EdgeRing: "edge-ring", Mesh: "mesh",
}

func (k Kind) String() string {
	if k >= maxKind {
		return fmt.Sprintf("Kind(%d)", k)
	}
	return kindNames[k]
}

// DirectionMode post-processes the shape-computed emission direction.
type DirectionMode uint8

const (
	// Outward keeps the shape-computed direction.
	Outward DirectionMode = iota
	// Inward negates the shape-computed direction.
	Inward
	// RandomDir replaces the direction with a uniformly sampled unit vector.
	RandomDir
	// CustomDir replaces the direction with the shape's CustomDirection.
	CustomDir
)

// Shape describes one emission shape. The interpretation of the dimension
// fields depends on Kind; unused fields are ignored. Shapes are plain
// values consumed per sampling call, never retained.
//
// Axis convention: Y is up. Heights extend along Y, discs and rings lie in
// the XZ plane centered on the origin.
type Shape struct {
	Kind Kind
	// Radius is the sphere/hemisphere/cylinder radius, the cone base
	// radius, and the outer radius of ring, disc and edge-ring shapes.
	Radius float32
	// InnerRadius bounds the annulus of Ring shapes.
	InnerRadius float32
	// Height of cylinder and cone shapes along Y.
	Height float32
	// Size holds the full box extents per axis.
	Size ms3.Vec
	// Mesh is the triangle list sampled by Mesh shapes.
	Mesh *TriangleMesh
	// Direction selects emission-direction post-processing.
	Direction DirectionMode
	// CustomDirection is the fixed direction used by CustomDir mode.
	// Normalized on use; a zero vector falls back to the default up.
	CustomDirection ms3.Vec
}

// TriangleMesh is an arbitrary emission surface. Triangles are picked
// uniformly (per triangle, not per area: large triangles receive no extra
// density; an intentional simplification kept for visual compatibility)
// and a point is sampled barycentrically inside the chosen triangle.
type TriangleMesh struct {
	Triangles []ms3.Triangle
}

// FaceNormal returns the unit face normal of triangle i, computed from the
// cross product of two edge vectors. Degenerate triangles yield the default
// up direction.
func (m *TriangleMesh) FaceNormal(i int) ms3.Vec {
	tri := m.Triangles[i]
	e1 := ms3.Sub(tri[1], tri[0])
	e2 := ms3.Sub(tri[2], tri[0])
	return safeUnit(ms3.Cross(e1, e2))
}

// SpawnSample is the per-particle spawn state: a position and unit-length
// direction and normal vectors. Plain value, created fresh per call.
type SpawnSample struct {
	Position  ms3.Vec
	Direction ms3.Vec
	Normal    ms3.Vec
}

// DegenerateShapeError reports a shape configuration that cannot produce a
// meaningful sample. Sample itself never fails (it substitutes safe
// defaults); Validate surfaces the configuration problem to authoring tools.
type DegenerateShapeError struct {
	Kind   Kind
	Reason string
}

func (e *DegenerateShapeError) Error() string {
	return "degenerate " + e.Kind.String() + " shape: " + e.Reason
}

// Validate reports whether the shape can produce non-degenerate samples.
func (s Shape) Validate() error {
	bad := func(reason string) error {
		return &DegenerateShapeError{Kind: s.Kind, Reason: reason}
	}
	switch s.Kind {
	case Point:
	case Sphere, Hemisphere, Disc, EdgeRing:
		if s.Radius <= 0 {
			return bad("zero or negative radius")
		}
	case Box:
		if s.Size.X < 0 || s.Size.Y < 0 || s.Size.Z < 0 {
			return bad("negative box extent")
		}
	case Cylinder, Cone:
		if s.Radius <= 0 {
			return bad("zero or negative radius")
		}
		if s.Height <= 0 {
			return bad("zero or negative height")
		}
	case Ring:
		if s.Radius <= 0 {
			return bad("zero or negative outer radius")
		}
		if s.InnerRadius < 0 || s.InnerRadius > s.Radius {
			return bad("inner radius outside [0, outer radius]")
		}
	case Mesh:
		if s.Mesh == nil || len(s.Mesh.Triangles) == 0 {
			return bad("empty mesh")
		}
	default:
		return bad("unknown shape kind")
	}
	return nil
}

// up is the fail-closed default for directions and normals so degenerate
// configurations never propagate NaN into a spawn batch.
var up = ms3.Vec{X: 0, Y: 1, Z: 0}

// Sample draws one spawn sample from the shape using rng. It never fails:
// degenerate configurations produce the safe default sample instead of
// corrupting the whole frame's spawn batch over one bad parameter.
func Sample(shape Shape, rng *rand.Rand) SpawnSample {
	var sp SpawnSample
	switch shape.Kind {
	case Point:
		sp = SpawnSample{Direction: up, Normal: up}
	case Sphere:
		sp = sampleBall(shape.Radius, rng, false)
	case Hemisphere:
		sp = sampleBall(shape.Radius, rng, true)
	case Box:
		sp = sampleBox(shape.Size, rng)
	case Cylinder:
		sp = sampleCylinder(shape.Radius, shape.Height, rng)
	case Cone:
		sp = sampleCone(shape.Radius, shape.Height, rng)
	case Ring:
		sp = sampleAnnulus(shape.InnerRadius, shape.Radius, rng)
	case Disc:
		sp = sampleAnnulus(0, shape.Radius, rng)
	case EdgeRing:
		sp = sampleEdgeRing(shape.Radius, rng)
	case Mesh:
		sp = sampleMesh(shape.Mesh, rng)
	default:
		sp = SpawnSample{Direction: up, Normal: up}
	}
	switch shape.Direction {
	case Inward:
		sp.Direction = ms3.Scale(-1, sp.Direction)
	case RandomDir:
		sp.Direction = randomUnit(rng)
	case CustomDir:
		sp.Direction = safeUnit(shape.CustomDirection)
	}
	return sp
}

// SampleN fills dst with samples from the shape and returns it. Used by
// the spawn tick to fill a frame's batch with one call.
func SampleN(dst []SpawnSample, shape Shape, rng *rand.Rand) []SpawnSample {
	for i := range dst {
		dst[i] = Sample(shape, rng)
	}
	return dst
}

// sampleBall samples uniformly inside a sphere of radius R. The radial
// coordinate scales with the cube root of a uniform variate, which is what
// makes the volumetric density uniform instead of center-biased.
func sampleBall(R float32, rng *rand.Rand, hemi bool) SpawnSample {
	u := rng.Float32()
	r := R * math32.Cbrt(u)
	cosTheta := 1 - 2*rng.Float32()
	if hemi {
		// Restrict the polar angle to the upper hemisphere.
		cosTheta = rng.Float32()
	}
	sinTheta := math32.Sqrt(maxf(0, 1-cosTheta*cosTheta))
	phi := 2 * math32.Pi * rng.Float32()
	dir := ms3.Vec{
		X: sinTheta * math32.Cos(phi),
		Y: cosTheta,
		Z: sinTheta * math32.Sin(phi),
	}
	pos := ms3.Scale(r, dir)
	dir = safeUnit(pos)
	return SpawnSample{Position: pos, Direction: dir, Normal: dir}
}

func sampleBox(size ms3.Vec, rng *rand.Rand) SpawnSample {
	pos := ms3.Vec{
		X: (rng.Float32() - 0.5) * size.X,
		Y: (rng.Float32() - 0.5) * size.Y,
		Z: (rng.Float32() - 0.5) * size.Z,
	}
	dir := randomUnit(rng)
	return SpawnSample{Position: pos, Direction: dir, Normal: dir}
}

// sampleCylinder samples the solid cylinder cross-section with sqrt radial
// scaling and uniform height. Direction is radially outward in XZ.
func sampleCylinder(R, H float32, rng *rand.Rand) SpawnSample {
	r := R * math32.Sqrt(rng.Float32())
	phi := 2 * math32.Pi * rng.Float32()
	cp, sp := math32.Cos(phi), math32.Sin(phi)
	pos := ms3.Vec{
		X: r * cp,
		Y: (rng.Float32() - 0.5) * H,
		Z: r * sp,
	}
	dir := ms3.Vec{X: cp, Y: 0, Z: sp}
	return SpawnSample{Position: pos, Direction: dir, Normal: dir}
}

// sampleCone samples inside a cone with apex at the origin opening upward
// to base radius R at height H. Height is sampled uniformly along the
// axis; the disc radius at that height scales with sqrt of a uniform
// variate. Direction lies on the cone's slant, derived from the half-angle
// atan(R/H).
func sampleCone(R, H float32, rng *rand.Rand) SpawnSample {
	y := rng.Float32() * H
	rAt := R * y / H * math32.Sqrt(rng.Float32())
	phi := 2 * math32.Pi * rng.Float32()
	cp, sp := math32.Cos(phi), math32.Sin(phi)
	pos := ms3.Vec{X: rAt * cp, Y: y, Z: rAt * sp}
	half := math32.Atan2(R, H)
	sh, ch := math32.Sin(half), math32.Cos(half)
	dir := ms3.Vec{X: sh * cp, Y: ch, Z: sh * sp}
	return SpawnSample{Position: pos, Direction: dir, Normal: dir}
}

// sampleAnnulus samples a flat annulus (disc when inner is zero) in the XZ
// plane. The radial transform maps a uniform variate to uniform area
// density over the annulus.
func sampleAnnulus(inner, outer float32, rng *rand.Rand) SpawnSample {
	u := rng.Float32()
	r := math32.Sqrt(u*(outer*outer-inner*inner) + inner*inner)
	phi := 2 * math32.Pi * rng.Float32()
	cp, sp := math32.Cos(phi), math32.Sin(phi)
	pos := ms3.Vec{X: r * cp, Z: r * sp}
	dir := ms3.Vec{X: cp, Z: sp}
	if r < epstol {
		dir = up
	}
	return SpawnSample{Position: pos, Direction: dir, Normal: up}
}

// sampleEdgeRing places points exactly on the circle of radius R.
func sampleEdgeRing(R float32, rng *rand.Rand) SpawnSample {
	phi := 2 * math32.Pi * rng.Float32()
	cp, sp := math32.Cos(phi), math32.Sin(phi)
	pos := ms3.Vec{X: R * cp, Z: R * sp}
	dir := ms3.Vec{X: cp, Z: sp}
	if R < epstol {
		dir = up
	}
	return SpawnSample{Position: pos, Direction: dir, Normal: up}
}

func sampleMesh(m *TriangleMesh, rng *rand.Rand) SpawnSample {
	if m == nil || len(m.Triangles) == 0 {
		return SpawnSample{Direction: up, Normal: up}
	}
	i := rng.IntN(len(m.Triangles))
	tri := m.Triangles[i]
	u, v := rng.Float32(), rng.Float32()
	if u+v > 1 {
		// Fold the sample back into the triangle half of the unit square.
		u, v = 1-u, 1-v
	}
	e1 := ms3.Sub(tri[1], tri[0])
	e2 := ms3.Sub(tri[2], tri[0])
	pos := ms3.Add(tri[0], ms3.Add(ms3.Scale(u, e1), ms3.Scale(v, e2)))
	n := safeUnit(ms3.Cross(e1, e2))
	return SpawnSample{Position: pos, Direction: n, Normal: n}
}

// randomUnit samples a uniformly distributed unit vector on the sphere.
func randomUnit(rng *rand.Rand) ms3.Vec {
	y := 1 - 2*rng.Float32()
	s := math32.Sqrt(maxf(0, 1-y*y))
	phi := 2 * math32.Pi * rng.Float32()
	return ms3.Vec{X: s * math32.Cos(phi), Y: y, Z: s * math32.Sin(phi)}
}

// safeUnit normalizes v, failing closed to the default up direction when v
// is too short to normalize without amplifying error.
func safeUnit(v ms3.Vec) ms3.Vec {
	if ms3.Norm(v) < epstol {
		return up
	}
	return ms3.Unit(v)
}

func maxf(a, b float32) float32 { return math32.Max(a, b) }
