// Package geom provides the triangle primitive the scanline rasterizer works
// on: Y-sorted vertices, delta/nabla classification, monotone splitting and
// barycentric recovery.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/taigrr/zspan/pkg/math3d"
)

// NoTag marks a vertex that carries no identity, such as a split point.
const NoTag = -1

var (
	// ErrNotAligned is returned by queries that need a horizontal edge.
	ErrNotAligned = errors.New("geom: triangle is not aligned")
	// ErrAligned is returned by Split on a triangle that needs no split.
	ErrAligned = errors.New("geom: triangle is already aligned")
	// ErrOutOfRange is returned when a Y query falls outside the triangle.
	ErrOutOfRange = errors.New("geom: y outside triangle")
	// ErrDegenerate is returned when the triangle has no area to work with.
	ErrDegenerate = errors.New("geom: degenerate triangle")
)

// Vertex is a position plus an integer identity tag.
type Vertex struct {
	Pos math3d.Vec3
	Tag int
}

// V creates a Vertex.
func V(x, y, z float64, tag int) Vertex {
	return Vertex{Pos: math3d.V3(x, y, z), Tag: tag}
}

// Orientation classifies a triangle by which vertex pair shares Y.
type Orientation int

const (
	Unaligned Orientation = iota // No two vertices share Y
	Delta                        // Flat bottom edge, peak up
	Nabla                        // Flat top edge, peak down
)

func (o Orientation) String() string {
	switch o {
	case Delta:
		return "delta"
	case Nabla:
		return "nabla"
	default:
		return "unaligned"
	}
}

// Triangle holds three vertices sorted by descending Y. Vertices sharing Y
// are ordered by ascending X, so for a delta slots 1 and 2 are the left and
// right base corners and for a nabla slots 0 and 1 are.
type Triangle struct {
	v [3]Vertex
}

// NewTriangle builds a triangle from three vertices. Degenerate input is
// accepted; classification decides how it is drawn.
func NewTriangle(a, b, c Vertex) Triangle {
	return TriangleOf([3]Vertex{a, b, c})
}

// TriangleOf builds a triangle from an array of vertices.
func TriangleOf(vs [3]Vertex) Triangle {
	t := Triangle{v: vs}
	t.sort()
	return t
}

func above(a, b Vertex) bool {
	if a.Pos.Y != b.Pos.Y {
		return a.Pos.Y > b.Pos.Y
	}
	return a.Pos.X < b.Pos.X
}

func (t *Triangle) sort() {
	v := &t.v
	if above(v[1], v[0]) {
		v[0], v[1] = v[1], v[0]
	}
	if above(v[2], v[1]) {
		v[1], v[2] = v[2], v[1]
	}
	if above(v[1], v[0]) {
		v[0], v[1] = v[1], v[0]
	}
}

// Vertex returns vertex i in sorted order.
func (t Triangle) Vertex(i int) Vertex {
	return t.v[i]
}

// Vertices returns all three vertices in sorted order.
func (t Triangle) Vertices() [3]Vertex {
	return t.v
}

func (t Triangle) String() string {
	return fmt.Sprintf("Triangle{%v %v %v}", t.v[0].Pos, t.v[1].Pos, t.v[2].Pos)
}

// Top returns the largest Y.
func (t Triangle) Top() float64 {
	return t.v[0].Pos.Y
}

// Bottom returns the smallest Y.
func (t Triangle) Bottom() float64 {
	return t.v[2].Pos.Y
}

// IsAligned reports whether two vertices share Y exactly.
func (t Triangle) IsAligned() bool {
	return t.v[0].Pos.Y == t.v[1].Pos.Y ||
		t.v[1].Pos.Y == t.v[2].Pos.Y ||
		t.v[0].Pos.Y == t.v[2].Pos.Y
}

// Orientation classifies the triangle. A triangle with all three Y equal
// is a Delta.
func (t Triangle) Orientation() Orientation {
	switch {
	case t.v[1].Pos.Y == t.v[2].Pos.Y:
		return Delta
	case t.v[0].Pos.Y == t.v[1].Pos.Y:
		return Nabla
	default:
		return Unaligned
	}
}

// IsDelta reports whether the bottom pair shares Y.
func (t Triangle) IsDelta() bool {
	return t.Orientation() == Delta
}

// IsNabla reports whether the top pair shares Y.
func (t Triangle) IsNabla() bool {
	return t.Orientation() == Nabla
}

// slot returns the vertex index for the given delta/nabla choice.
func (t Triangle) slot(delta, nabla int) (int, error) {
	switch t.Orientation() {
	case Delta:
		return delta, nil
	case Nabla:
		return nabla, nil
	default:
		return 0, ErrNotAligned
	}
}

// Left returns the left corner of the flat edge.
func (t Triangle) Left() (Vertex, error) {
	i, err := t.slot(1, 0)
	if err != nil {
		return Vertex{}, err
	}
	return t.v[i], nil
}

// Right returns the right corner of the flat edge.
func (t Triangle) Right() (Vertex, error) {
	i, err := t.slot(2, 1)
	if err != nil {
		return Vertex{}, err
	}
	return t.v[i], nil
}

// Peak returns the vertex opposite the flat edge.
func (t Triangle) Peak() (Vertex, error) {
	i, err := t.slot(0, 2)
	if err != nil {
		return Vertex{}, err
	}
	return t.v[i], nil
}

// edgeAt evaluates the edge from vertex i to vertex j at horizontal y.
func (t Triangle) edgeAt(i, j int, y float64) (float64, error) {
	if y > t.Top() || y < t.Bottom() {
		return 0, fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, y, t.Bottom(), t.Top())
	}
	x, err := math3d.NewLine2(t.v[i].Pos.XY(), t.v[j].Pos.XY()).AtY(y)
	if err != nil {
		return 0, ErrDegenerate
	}
	return x, nil
}

// LeftAt returns the X of the left edge at horizontal y.
func (t Triangle) LeftAt(y float64) (float64, error) {
	switch t.Orientation() {
	case Delta:
		return t.edgeAt(0, 1, y)
	case Nabla:
		return t.edgeAt(0, 2, y)
	default:
		return 0, ErrNotAligned
	}
}

// RightAt returns the X of the right edge at horizontal y.
func (t Triangle) RightAt(y float64) (float64, error) {
	switch t.Orientation() {
	case Delta:
		return t.edgeAt(0, 2, y)
	case Nabla:
		return t.edgeAt(1, 2, y)
	default:
		return 0, ErrNotAligned
	}
}

// Split cuts an unaligned triangle along the horizontal through its middle
// vertex. The cut point sits on the long edge at the middle vertex's exact Y
// and carries NoTag.
func (t Triangle) Split() (delta, nabla Triangle, err error) {
	if t.IsAligned() {
		return Triangle{}, Triangle{}, ErrAligned
	}

	top, mid, bottom := t.v[0], t.v[1], t.v[2]

	x, err := math3d.NewLine2(top.Pos.XY(), bottom.Pos.XY()).AtY(mid.Pos.Y)
	if err != nil {
		return Triangle{}, Triangle{}, ErrDegenerate
	}
	cut2 := math3d.V2(x, mid.Pos.Y)
	f := cut2.Sub(top.Pos.XY()).Length() / bottom.Pos.XY().Sub(top.Pos.XY()).Length()

	cut := Vertex{Pos: top.Pos.Lerp(bottom.Pos, f), Tag: NoTag}
	cut.Pos.Y = mid.Pos.Y

	return NewTriangle(top, mid, cut), NewTriangle(mid, cut, bottom), nil
}

// Barycentric solves M·β = p where M's columns are the vertex positions.
// For a triangle whose plane misses the origin the weights sum to one for
// any p on that plane.
func (t Triangle) Barycentric(p math3d.Vec3) (math3d.Vec3, error) {
	m := math3d.Mat3FromColumns(t.v[0].Pos, t.v[1].Pos, t.v[2].Pos)
	b, err := math3d.Solve(m, p)
	if err != nil {
		return math3d.Vec3{}, ErrDegenerate
	}
	return b, nil
}

// Barycentric2D returns affine weights of p's XY projection. It works for
// triangles whose plane passes through the origin, where Barycentric fails.
func (t Triangle) Barycentric2D(p math3d.Vec3) (math3d.Vec3, error) {
	a, b, c := t.v[0].Pos, t.v[1].Pos, t.v[2].Pos
	v0x, v0y := c.X-a.X, c.Y-a.Y
	v1x, v1y := b.X-a.X, b.Y-a.Y
	v2x, v2y := p.X-a.X, p.Y-a.Y

	dot00 := v0x*v0x + v0y*v0y
	dot01 := v0x*v1x + v0y*v1y
	dot02 := v0x*v2x + v0y*v2y
	dot11 := v1x*v1x + v1y*v1y
	dot12 := v1x*v2x + v1y*v2y

	denom := dot00*dot11 - dot01*dot01
	if denom == 0 || math.IsNaN(denom) {
		return math3d.Vec3{}, ErrDegenerate
	}
	u := (dot11*dot02 - dot01*dot12) / denom
	v := (dot00*dot12 - dot01*dot02) / denom

	return math3d.V3(1-u-v, v, u), nil
}

// Interpolate returns Σ β_i · position_i.
func (t Triangle) Interpolate(b math3d.Vec3) math3d.Vec3 {
	return t.v[0].Pos.Scale(b.X).
		Add(t.v[1].Pos.Scale(b.Y)).
		Add(t.v[2].Pos.Scale(b.Z))
}

// mapPos applies f to every vertex position and re-sorts.
func (t Triangle) mapPos(f func(math3d.Vec3) math3d.Vec3) Triangle {
	for i := range t.v {
		t.v[i].Pos = f(t.v[i].Pos)
	}
	t.sort()
	return t
}

// AddScalar adds s to every coordinate of every vertex.
func (t Triangle) AddScalar(s float64) Triangle {
	return t.mapPos(func(p math3d.Vec3) math3d.Vec3 { return p.AddScalar(s) })
}

// Translate moves every vertex by v.
func (t Triangle) Translate(v math3d.Vec3) Triangle {
	return t.mapPos(func(p math3d.Vec3) math3d.Vec3 { return p.Add(v) })
}

// Scale multiplies every coordinate by s.
func (t Triangle) Scale(s float64) Triangle {
	return t.mapPos(func(p math3d.Vec3) math3d.Vec3 { return p.Scale(s) })
}

// ScaleVec multiplies coordinates component-wise by v.
func (t Triangle) ScaleVec(v math3d.Vec3) Triangle {
	return t.mapPos(func(p math3d.Vec3) math3d.Vec3 { return p.Mul(v) })
}

// Transform applies m to every vertex as a point.
func (t Triangle) Transform(m math3d.Mat4) Triangle {
	return t.mapPos(m.MulVec3)
}

// ToRaster maps the triangle from the [-1,1]³ cube into raster space
// [0,W]×[0,H]×[0,1] of r.
func (t Triangle) ToRaster(r Rect) Triangle {
	size := math3d.V3(float64(r.Width()), float64(r.Height()), 1)
	return t.AddScalar(1).Scale(0.5).ScaleVec(size)
}

// Snap makes Y values that lie within eps of each other exactly equal,
// so near-horizontal edges classify as aligned. An eps of zero is a no-op.
func (t Triangle) Snap(eps float64) Triangle {
	if eps <= 0 || t.IsAligned() {
		return t
	}
	switch {
	case math3d.AreClose(t.v[0].Pos.Y, t.v[1].Pos.Y, eps):
		t.v[1].Pos.Y = t.v[0].Pos.Y
	case math3d.AreClose(t.v[1].Pos.Y, t.v[2].Pos.Y, eps):
		t.v[2].Pos.Y = t.v[1].Pos.Y
	default:
		return t
	}
	t.sort()
	return t
}
