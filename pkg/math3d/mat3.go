package math3d

import (
	"errors"
	"math"
)

// ErrSingular is returned by Solve when the matrix has no inverse.
var ErrSingular = errors.New("math3d: singular matrix")

// Mat3 is a 3x3 matrix stored in row-major order.
//
//	| 0 1 2 |
//	| 3 4 5 |
//	| 6 7 8 |
type Mat3 [9]float64

// Mat3FromColumns builds a matrix whose columns are a, b and c.
func Mat3FromColumns(a, b, c Vec3) Mat3 {
	return Mat3{
		a.X, b.X, c.X,
		a.Y, b.Y, c.Y,
		a.Z, b.Z, c.Z,
	}
}

// Column returns column i.
func (m Mat3) Column(i int) Vec3 {
	return Vec3{m[i], m[3+i], m[6+i]}
}

// WithColumn returns a copy of m with column i replaced by v.
func (m Mat3) WithColumn(i int, v Vec3) Mat3 {
	m[i], m[3+i], m[6+i] = v.X, v.Y, v.Z
	return m
}

// Determinant returns the determinant of the matrix.
func (m Mat3) Determinant() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// MulVec3 returns m · v.
func (m Mat3) MulVec3(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// singularTolerance bounds |det| relative to the product of the column
// lengths, which is the largest |det| those columns can produce.
const singularTolerance = 1e-9

// Solve returns x with m · x = b using Cramer's rule. Matrices whose
// determinant is rounding noise next to their column lengths are reported
// as singular.
func Solve(m Mat3, b Vec3) (Vec3, error) {
	det := m.Determinant()
	scale := m.Column(0).Len() * m.Column(1).Len() * m.Column(2).Len()
	if !isFinite(det) || math.Abs(det) <= singularTolerance*scale {
		return Vec3{}, ErrSingular
	}

	x := Vec3{
		m.WithColumn(0, b).Determinant() / det,
		m.WithColumn(1, b).Determinant() / det,
		m.WithColumn(2, b).Determinant() / det,
	}
	if !x.IsFinite() {
		return Vec3{}, ErrSingular
	}
	return x, nil
}
