package math3d

import "seehuhn.de/go/geom/vec"

// Vec2 is a 2D point in the XY plane.
type Vec2 = vec.Vec2

// V2 creates a new Vec2.
func V2(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}
