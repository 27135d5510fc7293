package render

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/taigrr/zspan/pkg/geom"
)

var (
	// ErrRectOrigin is returned for destination rectangles not anchored at (0, 0).
	ErrRectOrigin = errors.New("render: destination rect must start at (0, 0)")
	// ErrEmptyRect is returned for destination rectangles without pixels.
	ErrEmptyRect = errors.New("render: destination rect is empty")
	// ErrShortBuffer is returned when the destination holds fewer than W*H bytes.
	ErrShortBuffer = errors.New("render: destination buffer too small")
)

// DepthMode selects how depth is interpolated across a span.
type DepthMode int

const (
	// DepthInterpolated lerps depth between the span ends.
	DepthInterpolated DepthMode = iota
	// DepthBarycentric lerps barycentric weights between the span ends and
	// rebuilds depth from the triangle's vertices.
	DepthBarycentric
)

func (m DepthMode) String() string {
	switch m {
	case DepthBarycentric:
		return "barycentric"
	default:
		return "interpolated"
	}
}

// ParseDepthMode parses the String form of a DepthMode.
func ParseDepthMode(s string) (DepthMode, error) {
	switch strings.ToLower(s) {
	case "interpolated", "lerp", "":
		return DepthInterpolated, nil
	case "barycentric", "bary":
		return DepthBarycentric, nil
	default:
		return 0, fmt.Errorf("render: unknown depth mode %q", s)
	}
}

// Config controls rasterization.
type Config struct {
	// AlignTolerance snaps vertex Y values closer than this before
	// classification. Zero keeps exact comparison.
	AlignTolerance float64
	DepthMode      DepthMode
}

// DefaultConfig returns exact alignment and interpolated depth.
func DefaultConfig() Config {
	return Config{}
}

// Stats counts what happened during the last Rasterize call.
type Stats struct {
	Triangles         int // Triangles submitted
	Split             int // Unaligned triangles cut in two
	Dropped           int // Unaligned triangles that could not be cut
	SkippedFlat       int // Aligned triangles shorter than a row
	SkippedDegenerate int // Triangles with no usable barycentric solve
	Spans             int // Span records produced
	SkippedRows       int // Rows whose span ends had no barycentric weights
	Pixels            int // Pixels written
	DepthRejects      int // Pixels hidden by a nearer span
	NonFinite         int // Pixels whose depth was NaN or infinite
}

// Rasterizer draws triangle soups with a scanline algorithm and a per-row
// depth buffer. Span buckets and the depth row are reused across calls.
// A Rasterizer is not safe for concurrent use.
type Rasterizer struct {
	Config Config
	Stats  Stats // Statistics for debugging/benchmarking

	snapped  geom.Soup
	prepared []geom.Triangle // raster-space triangles referenced by spans
	rows     [][]span
	depth    []float64
}

// NewRasterizer creates a rasterizer with the given configuration.
func NewRasterizer(cfg Config) *Rasterizer {
	return &Rasterizer{Config: cfg}
}

// validate checks the destination contract.
func validate(rect geom.Rect, buf []byte) error {
	if rect.Left != 0 || rect.Top != 0 {
		return fmt.Errorf("%w: got %v", ErrRectOrigin, rect)
	}
	if rect.Empty() {
		return fmt.Errorf("%w: %v", ErrEmptyRect, rect)
	}
	if need := rect.Width() * rect.Height(); len(buf) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(buf), need)
	}
	return nil
}

// reset sizes the arena for a w×h destination and empties it.
func (r *Rasterizer) reset(w, h int) {
	if cap(r.rows) < h {
		r.rows = make([][]span, h)
	}
	r.rows = r.rows[:h]
	for i := range r.rows {
		r.rows[i] = r.rows[i][:0]
	}

	if cap(r.depth) < w {
		r.depth = make([]float64, w)
	}
	r.depth = r.depth[:w]

	r.prepared = r.prepared[:0]
	r.snapped = r.snapped[:0]
}

// Rasterize draws soup, given in the [-1,1]³ cube, into buf which covers
// rect. Pixels no triangle touches keep their previous value. The soup is
// not modified.
func (r *Rasterizer) Rasterize(soup geom.Soup, rect geom.Rect, buf []byte) error {
	if err := validate(rect, buf); err != nil {
		return err
	}

	r.Stats = Stats{Triangles: len(soup)}
	r.reset(rect.Width(), rect.Height())

	src := soup
	if eps := r.Config.AlignTolerance; eps > 0 {
		for _, tri := range soup {
			r.snapped = append(r.snapped, tri.Snap(eps))
		}
		src = r.snapped
	}
	unaligned := 0
	for _, tri := range src {
		if !tri.IsAligned() {
			unaligned++
		}
	}

	aligned, origin := src.Normalize()
	// Aligned inputs pass through once, split ones come out twice.
	r.Stats.Split = (len(aligned) - (len(src) - unaligned)) / 2
	r.Stats.Dropped = unaligned - r.Stats.Split

	log := Logger()
	for i, tri := range aligned {
		if !r.scan(tri.ToRaster(rect), rect) {
			log.Debug("skipping degenerate triangle", "index", origin[i], "triangle", tri)
		}
	}

	for row := range r.rows {
		r.composite(row, rect, buf)
	}

	log.Debug("rasterized frame",
		slog.Int("triangles", r.Stats.Triangles),
		slog.Int("split", r.Stats.Split),
		slog.Int("dropped", r.Stats.Dropped),
		slog.Int("spans", r.Stats.Spans),
		slog.Int("pixels", r.Stats.Pixels),
		slog.Int("depth_rejects", r.Stats.DepthRejects),
	)
	return nil
}

// DrawFrame clears fb to zero and rasterizes soup into it.
func (r *Rasterizer) DrawFrame(soup geom.Soup, fb *Framebuffer) error {
	fb.Clear(0)
	return r.Rasterize(soup, fb.Rect, fb.Pix)
}

// shade maps a depth in [0,1] to a gray level.
func shade(depth float64) byte {
	return byte(math.Round(min(max(depth, 0), 1) * 255))
}

// composite draws the spans of one raster row into buf.
func (r *Rasterizer) composite(row int, rect geom.Rect, buf []byte) {
	spans := r.rows[row]
	if len(spans) == 0 {
		return
	}

	depth := r.depth
	fill(depth, 1.0)
	last := float64(len(depth) - 1)
	base := PixelOffset(rect, row, 0)

	for _, s := range spans {
		x0, x1 := math.Round(s.start.X), math.Round(s.end.X)
		width := x1 - x0
		lo := int(math.Max(0, math.Min(x0, last+1)))
		hi := int(math.Min(last, math.Max(x1, -1)))

		for col := lo; col <= hi; col++ {
			f := (float64(col) - x0) / width

			var d float64
			switch r.Config.DepthMode {
			case DepthBarycentric:
				b := s.bStart.Lerp(s.bEnd, f)
				d = 1 - r.prepared[s.tri].Interpolate(b).Z
			default:
				d = 1 - (s.start.Z + (s.end.Z-s.start.Z)*f)
			}

			if math.IsNaN(d) || math.IsInf(d, 0) {
				r.Stats.NonFinite++
				continue
			}
			if depth[col] < d {
				r.Stats.DepthRejects++
				continue
			}
			depth[col] = d
			buf[base+col] = shade(d)
			r.Stats.Pixels++
		}
	}
}
