package render

import (
	"math"

	"github.com/taigrr/zspan/pkg/geom"
	"github.com/taigrr/zspan/pkg/math3d"
)

// span is the part of one raster row covered by one triangle.
type span struct {
	start, end   math3d.Vec3 // raster-space ends, start.X <= end.X
	bStart, bEnd math3d.Vec3 // barycentric weights at the ends
	tri          int         // index into Rasterizer.prepared
}

// weightsFunc returns the barycentric solver that works for t, preferring
// the 3x3 system and falling back to the planar formula.
func weightsFunc(t geom.Triangle) (func(math3d.Vec3) (math3d.Vec3, error), bool) {
	probe := t.Vertex(0).Pos
	if _, err := t.Barycentric(probe); err == nil {
		return t.Barycentric, true
	}
	if _, err := t.Barycentric2D(probe); err == nil {
		return t.Barycentric2D, true
	}
	return nil, false
}

func finite(t geom.Triangle) bool {
	for _, v := range t.Vertices() {
		if !v.Pos.IsFinite() {
			return false
		}
	}
	return true
}

// scan buckets the rows of an aligned raster-space triangle. It reports
// false when the triangle is degenerate and was skipped.
func (r *Rasterizer) scan(t geom.Triangle, rect geom.Rect) bool {
	if !finite(t) {
		r.Stats.SkippedDegenerate++
		return false
	}

	top, bottom := math.Round(t.Top()), math.Round(t.Bottom())
	if top == bottom {
		r.Stats.SkippedFlat++
		return true
	}

	peak, err := t.Peak()
	if err != nil {
		r.Stats.SkippedDegenerate++
		return false
	}
	left, _ := t.Left()
	right, _ := t.Right()

	weights, ok := weightsFunc(t)
	if !ok {
		r.Stats.SkippedDegenerate++
		return false
	}

	idx := len(r.prepared)
	r.prepared = append(r.prepared, t)

	nabla := t.IsNabla()
	height := top - bottom
	last := float64(rect.Height() - 1)
	hi := int(math.Min(last, math.Max(top, -1)))
	lo := int(math.Max(0, math.Min(bottom, last+1)))

	for row := hi; row >= lo; row-- {
		f := (top - float64(row)) / height
		if nabla {
			f = 1 - f
		}

		start := peak.Pos.Lerp(left.Pos, f)
		end := peak.Pos.Lerp(right.Pos, f)
		if math.Round(start.X) == math.Round(end.X) {
			continue
		}
		if start.X > end.X {
			start, end = end, start
		}

		bs, err := weights(start)
		if err != nil {
			r.Stats.SkippedRows++
			continue
		}
		be, err := weights(end)
		if err != nil {
			r.Stats.SkippedRows++
			continue
		}

		r.rows[row] = append(r.rows[row], span{
			start:  start,
			end:    end,
			bStart: bs,
			bEnd:   be,
			tri:    idx,
		})
		r.Stats.Spans++
	}
	return true
}
