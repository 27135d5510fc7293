package render

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/zspan/pkg/geom"
)

func tri(a, b, c [3]float64) geom.Triangle {
	return geom.NewTriangle(
		geom.V(a[0], a[1], a[2], 0),
		geom.V(b[0], b[1], b[2], 1),
		geom.V(c[0], c[1], c[2], 2),
	)
}

// topRow returns the first buffer row holding a nonzero pixel, or -1.
func topRow(fb *Framebuffer) int {
	w := fb.Width()
	for y := range fb.Height() {
		if slices.ContainsFunc(fb.Pix[y*w:(y+1)*w], func(b byte) bool { return b != 0 }) {
			return y
		}
	}
	return -1
}

func TestRasterizeSingleTriangle(t *testing.T) {
	soup := geom.Soup{tri([3]float64{0, 0.5, 0}, [3]float64{-0.5, -0.5, 0}, [3]float64{0.2, -0.6, 0})}
	fb := NewFramebuffer(320, 240)
	r := NewRasterizer(DefaultConfig())

	require.NoError(t, r.DrawFrame(soup, fb))

	// Raster row 180 is the apex and has no width, so 179 is the first
	// row drawn. Buffer row 0 is raster row 239.
	assert.Equal(t, 239-179, topRow(fb))

	// Z = 0 maps to raster depth 0.5.
	for i, p := range fb.Pix {
		if p != 0 {
			require.Equal(t, byte(128), p, "pixel %d", i)
		}
	}

	assert.Equal(t, 1, r.Stats.Triangles)
	assert.Equal(t, 1, r.Stats.Split)
	assert.Positive(t, r.Stats.Pixels)
	assert.Zero(t, r.Stats.NonFinite)
}

func TestRasterizeOutsideRect(t *testing.T) {
	soup := geom.Soup{tri([3]float64{0, -1.5, 0}, [3]float64{-0.5, -2, 0}, [3]float64{0.5, -2, 0})}
	fb := NewFramebuffer(64, 48)
	fb.Clear(7)
	r := NewRasterizer(DefaultConfig())

	require.NoError(t, r.Rasterize(soup, fb.Rect, fb.Pix))

	assert.Zero(t, r.Stats.Pixels)
	for _, p := range fb.Pix {
		require.Equal(t, byte(7), p)
	}
}

// coveredCols returns the first and last nonzero column of a raster row, or
// -1, -1 when the row is blank.
func coveredCols(buf []byte, rect geom.Rect, row int) (first, last int) {
	first, last = -1, -1
	for col := range rect.Width() {
		if buf[PixelOffset(rect, row, col)] != 0 {
			if first < 0 {
				first = col
			}
			last = col
		}
	}
	return first, last
}

func TestRasterizeClampsToRect(t *testing.T) {
	// Row fractions come from the unclamped rounded Y range, so a triangle
	// cut by the rect edge keeps its shape and its edge rows have width.
	tests := []struct {
		name  string
		soup  geom.Soup
		spans map[int][2]int // raster row -> first and last covered column
		blank []int
	}{
		{
			name:  "apex above top row",
			soup:  geom.Soup{tri([3]float64{0, 1, 0}, [3]float64{-1, -1, 0}, [3]float64{1, -1, 0})},
			spans: map[int][2]int{19: {19, 21}, 0: {0, 39}},
		},
		{
			name:  "span past both sides",
			soup:  geom.Soup{tri([3]float64{0, 0.5, 0}, [3]float64{-2, -0.5, 0}, [3]float64{2, -0.5, 0})},
			spans: map[int][2]int{5: {0, 39}},
			blank: []int{0, 1, 2, 3, 4, 15, 16, 17, 18, 19},
		},
		{
			name:  "straddles bottom edge",
			soup:  geom.Soup{tri([3]float64{-0.5, 0.5, 0}, [3]float64{0.5, 0.5, 0}, [3]float64{0, -2, 0})},
			spans: map[int][2]int{0: {16, 24}, 15: {10, 30}},
			blank: []int{16, 17, 18, 19},
		},
	}

	rect := geom.RectWH(40, 20)
	size := rect.Width() * rect.Height()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, size+rect.Width())
			fill(buf[size:], 7)

			r := NewRasterizer(DefaultConfig())
			require.NoError(t, r.Rasterize(tc.soup, rect, buf))

			for _, b := range buf[size:] {
				require.Equal(t, byte(7), b, "write past the destination")
			}
			for row, want := range tc.spans {
				first, last := coveredCols(buf, rect, row)
				assert.Equal(t, want, [2]int{first, last}, "row %d", row)
			}
			for _, row := range tc.blank {
				first, _ := coveredCols(buf, rect, row)
				assert.Equal(t, -1, first, "row %d", row)
			}
		})
	}
}

func TestRasterizeDepthOrderIndependent(t *testing.T) {
	near := tri([3]float64{-0.8, -0.8, 0.5}, [3]float64{0.8, -0.8, 0.5}, [3]float64{0, 0.8, 0.5})
	far := tri([3]float64{-0.9, 0.9, -0.5}, [3]float64{0.9, 0.9, -0.5}, [3]float64{0, -0.9, -0.5})

	r := NewRasterizer(DefaultConfig())
	a := NewFramebuffer(320, 240)
	b := NewFramebuffer(320, 240)

	require.NoError(t, r.DrawFrame(geom.Soup{near, far}, a))
	assert.Positive(t, r.Stats.DepthRejects)
	require.NoError(t, r.DrawFrame(geom.Soup{far, near}, b))

	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, byte(64), a.pixelAt(160, 120), "nearer triangle wins")
	assert.Equal(t, byte(191), a.pixelAt(160, 225), "only the far triangle covers this pixel")
}

func TestRasterizeIdempotent(t *testing.T) {
	soup := geom.Soup{
		tri([3]float64{-0.8, -0.8, 0.2}, [3]float64{0.8, -0.6, -0.4}, [3]float64{0.1, 0.7, 0.6}),
		tri([3]float64{-0.3, 0.9, -0.1}, [3]float64{0.9, 0.2, 0.3}, [3]float64{-0.7, -0.1, 0.0}),
	}
	before := slices.Clone(soup)

	r := NewRasterizer(DefaultConfig())
	a := NewFramebuffer(200, 150)
	b := NewFramebuffer(200, 150)

	require.NoError(t, r.DrawFrame(soup, a))
	require.NoError(t, r.DrawFrame(soup, b))

	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, before, soup, "soup must not change")
}

func TestRasterizeDepthModesAgree(t *testing.T) {
	tests := []struct {
		name string
		soup geom.Soup
		w, h int
	}{
		{
			name: "general",
			soup: geom.Soup{tri([3]float64{-0.8, -0.8, 0.2}, [3]float64{0.8, -0.6, -0.4}, [3]float64{0.1, 0.7, 0.6})},
			w:    160,
			h:    120,
		},
		{
			// Raster depth is x/W, so the plane holds the raster origin and
			// the 3x3 solve is singular.
			name: "plane through raster origin",
			soup: geom.Soup{tri([3]float64{-0.3, 0.9, -0.3}, [3]float64{0.2, -0.9, 0.2}, [3]float64{0.8, 0.1, 0.8})},
			w:    320,
			h:    240,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lerp := NewFramebuffer(tc.w, tc.h)
			bary := NewFramebuffer(tc.w, tc.h)

			lr := NewRasterizer(Config{DepthMode: DepthInterpolated})
			br := NewRasterizer(Config{DepthMode: DepthBarycentric})
			require.NoError(t, lr.DrawFrame(tc.soup, lerp))
			require.NoError(t, br.DrawFrame(tc.soup, bary))

			assert.Zero(t, br.Stats.NonFinite)
			for i := range lerp.Pix {
				require.InDelta(t, float64(lerp.Pix[i]), float64(bary.Pix[i]), 1, "pixel %d", i)
			}
		})
	}
}

func TestRasterizeAlignTolerance(t *testing.T) {
	soup := geom.Soup{tri([3]float64{0, 0.5, 0}, [3]float64{-0.5, -0.5, 0}, [3]float64{0.5, -0.5 + 1e-12, 0})}
	fb := NewFramebuffer(64, 48)

	exact := NewRasterizer(DefaultConfig())
	require.NoError(t, exact.DrawFrame(soup, fb))
	assert.Equal(t, 1, exact.Stats.Split)

	snapped := NewRasterizer(Config{AlignTolerance: 1e-9})
	require.NoError(t, snapped.DrawFrame(soup, fb))
	assert.Zero(t, snapped.Stats.Split)
	assert.Positive(t, snapped.Stats.Pixels)
}

func TestRasterizeSplitCounts(t *testing.T) {
	soup := geom.Soup{
		tri([3]float64{0, 0.5, 0}, [3]float64{-0.5, -0.5, 0}, [3]float64{0.5, -0.5, 0}), // aligned
		tri([3]float64{0, 0.5, 0}, [3]float64{-0.5, -0.5, 0}, [3]float64{0.2, -0.6, 0}),
		tri([3]float64{-0.8, -0.8, 0.2}, [3]float64{0.8, -0.6, -0.4}, [3]float64{0.1, 0.7, 0.6}),
	}
	r := NewRasterizer(DefaultConfig())
	require.NoError(t, r.DrawFrame(soup, NewFramebuffer(64, 48)))

	assert.Equal(t, 3, r.Stats.Triangles)
	assert.Equal(t, 2, r.Stats.Split)
	assert.Zero(t, r.Stats.Dropped)
	assert.Zero(t, r.Stats.SkippedRows)
}

func TestRasterizeSkips(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		soup := geom.Soup{tri([3]float64{-0.5, 0, 0}, [3]float64{0, 0, 0}, [3]float64{0.5, 0, 0})}
		r := NewRasterizer(DefaultConfig())
		require.NoError(t, r.DrawFrame(soup, NewFramebuffer(32, 32)))
		assert.Equal(t, 1, r.Stats.SkippedFlat)
		assert.Zero(t, r.Stats.Pixels)
	})

	t.Run("non-finite", func(t *testing.T) {
		soup := geom.Soup{tri([3]float64{math.NaN(), 0.5, 0}, [3]float64{-0.5, -0.5, 0}, [3]float64{0.5, -0.5, 0})}
		r := NewRasterizer(DefaultConfig())
		require.NoError(t, r.DrawFrame(soup, NewFramebuffer(32, 32)))
		assert.Positive(t, r.Stats.SkippedDegenerate)
		assert.Zero(t, r.Stats.Pixels)
	})
}

func TestRasterizeDestinationErrors(t *testing.T) {
	r := NewRasterizer(DefaultConfig())

	tests := []struct {
		name string
		rect geom.Rect
		buf  []byte
		want error
	}{
		{"offset origin", geom.Rect{Left: 1, Top: 0, Right: 10, Bottom: 10}, make([]byte, 200), ErrRectOrigin},
		{"empty", geom.RectWH(0, 10), nil, ErrEmptyRect},
		{"short buffer", geom.RectWH(10, 10), make([]byte, 99), ErrShortBuffer},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Rasterize(nil, tc.rect, tc.buf)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRasterizerReusesArena(t *testing.T) {
	soup := geom.Soup{tri([3]float64{0, 0.9, 0}, [3]float64{-0.9, -0.9, 0}, [3]float64{0.9, -0.9, 0})}
	r := NewRasterizer(DefaultConfig())

	large := NewFramebuffer(128, 96)
	small := NewFramebuffer(32, 24)
	again := NewFramebuffer(128, 96)

	require.NoError(t, r.DrawFrame(soup, large))
	require.NoError(t, r.DrawFrame(soup, small))
	require.NoError(t, r.DrawFrame(soup, again))

	assert.Equal(t, large.Pix, again.Pix)
	assert.NotEqual(t, -1, topRow(small))
}

func TestPixelOffset(t *testing.T) {
	r := geom.RectWH(320, 240)
	assert.Equal(t, 0, PixelOffset(r, 239, 0))
	assert.Equal(t, 320*239+5, PixelOffset(r, 0, 5))
	assert.Equal(t, 320+7, PixelOffset(r, 238, 7))
}

func TestParseDepthMode(t *testing.T) {
	tests := []struct {
		in   string
		want DepthMode
		err  bool
	}{
		{"interpolated", DepthInterpolated, false},
		{"", DepthInterpolated, false},
		{"Barycentric", DepthBarycentric, false},
		{"bary", DepthBarycentric, false},
		{"phong", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDepthMode(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, must(ParseDepthMode(got.String())))
		})
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestLoggerReceivesFrameStats(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	soup := geom.Soup{tri([3]float64{0, 0.5, 0}, [3]float64{-0.5, -0.5, 0}, [3]float64{0.5, -0.5, 0})}
	require.NoError(t, NewRasterizer(DefaultConfig()).DrawFrame(soup, NewFramebuffer(32, 32)))

	assert.Contains(t, buf.String(), "rasterized frame")
	assert.Contains(t, buf.String(), "pixels=")
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(nil)
	l := Logger()
	require.NotNil(t, l)
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))
}

func TestShade(t *testing.T) {
	assert.Equal(t, byte(0), shade(-0.5))
	assert.Equal(t, byte(0), shade(0))
	assert.Equal(t, byte(128), shade(0.5))
	assert.Equal(t, byte(255), shade(1))
	assert.Equal(t, byte(255), shade(3))
}

func BenchmarkRasterize(b *testing.B) {
	soup := geom.Soup{
		tri([3]float64{-0.8, -0.8, 0.2}, [3]float64{0.8, -0.6, -0.4}, [3]float64{0.1, 0.7, 0.6}),
		tri([3]float64{-0.3, 0.9, -0.1}, [3]float64{0.9, 0.2, 0.3}, [3]float64{-0.7, -0.1, 0.0}),
	}
	fb := NewFramebuffer(320, 240)
	r := NewRasterizer(DefaultConfig())

	for b.Loop() {
		if err := r.DrawFrame(soup, fb); err != nil && !errors.Is(err, ErrShortBuffer) {
			b.Fatal(err)
		}
	}
}
