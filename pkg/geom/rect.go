package geom

import "fmt"

// Rect is an integer rectangle with inclusive bounds.
type Rect struct {
	Left, Top, Right, Bottom int
}

// RectWH returns the origin-anchored rectangle of the given size.
func RectWH(w, h int) Rect {
	return Rect{Left: 0, Top: 0, Right: w - 1, Bottom: h - 1}
}

// Width returns Right-Left+1.
func (r Rect) Width() int {
	return r.Right - r.Left + 1
}

// Height returns Bottom-Top+1.
func (r Rect) Height() int {
	return r.Bottom - r.Top + 1
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}
