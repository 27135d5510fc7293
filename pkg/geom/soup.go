package geom

import (
	"math"

	"github.com/taigrr/zspan/pkg/math3d"
)

// Soup is an unordered list of triangles.
type Soup []Triangle

// Normalize returns a copy of the soup in which every triangle is aligned.
// Aligned triangles and the delta halves of split ones keep input order and
// come first; the nabla halves follow. origin[i] is the input index that
// produced out[i]. Triangles that cannot be split are dropped.
func (s Soup) Normalize() (out Soup, origin []int) {
	out = make(Soup, 0, len(s)+len(s)/2)
	origin = make([]int, 0, cap(out))

	var nablas Soup
	var nablaOrigin []int

	for i, tri := range s {
		if tri.IsAligned() {
			out = append(out, tri)
			origin = append(origin, i)
			continue
		}
		delta, nabla, err := tri.Split()
		if err != nil {
			continue
		}
		out = append(out, delta)
		origin = append(origin, i)
		nablas = append(nablas, nabla)
		nablaOrigin = append(nablaOrigin, i)
	}

	return append(out, nablas...), append(origin, nablaOrigin...)
}

// Transform returns a new soup with m applied to every vertex.
func (s Soup) Transform(m math3d.Mat4) Soup {
	out := make(Soup, len(s))
	for i, tri := range s {
		out[i] = tri.Transform(m)
	}
	return out
}

// Bounds returns the axis-aligned bounding box of all vertices.
// An empty soup has zero bounds.
func (s Soup) Bounds() (lo, hi math3d.Vec3) {
	if len(s) == 0 {
		return lo, hi
	}
	lo = math3d.Splat(math.Inf(1))
	hi = math3d.Splat(math.Inf(-1))
	for _, tri := range s {
		for _, v := range tri.v {
			lo = lo.Min(v.Pos)
			hi = hi.Max(v.Pos)
		}
	}
	return lo, hi
}

// Center returns the center of the bounding box.
func (s Soup) Center() math3d.Vec3 {
	lo, hi := s.Bounds()
	return lo.Add(hi).Scale(0.5)
}

// Fit centers the soup on the origin and scales it so every vertex lies
// within radius of the origin.
func (s Soup) Fit(radius float64) Soup {
	c := s.Center()
	var far float64
	for _, tri := range s {
		for _, v := range tri.v {
			far = math.Max(far, v.Pos.Distance(c))
		}
	}
	m := math3d.Translate(c.Scale(-1))
	if far > 0 {
		m = math3d.ScaleUniform(radius / far).Mul(m)
	}
	return s.Transform(m)
}

// Rotate applies rotations around X then Y.
func (s Soup) Rotate(pitch, yaw float64) Soup {
	return s.Transform(math3d.RotateY(yaw).Mul(math3d.RotateX(pitch)))
}
