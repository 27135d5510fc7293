package math3d

import "errors"

// ErrDegenerate is returned when a line or system has no unique solution.
var ErrDegenerate = errors.New("math3d: degenerate geometry")

// Line2 is the implicit line a·x + b·y + c = 0 through two points.
type Line2 struct {
	A, B, C float64
}

// NewLine2 returns the line through p1 and p2.
func NewLine2(p1, p2 Vec2) Line2 {
	return Line2{
		A: p2.Y - p1.Y,
		B: p1.X - p2.X,
		C: p2.X*p1.Y - p1.X*p2.Y,
	}
}

// AtY returns the X coordinate where the line crosses the horizontal y.
// Horizontal lines have no single answer and return ErrDegenerate.
func (l Line2) AtY(y float64) (float64, error) {
	if l.A == 0 {
		return 0, ErrDegenerate
	}
	return -(l.B*y + l.C) / l.A, nil
}
