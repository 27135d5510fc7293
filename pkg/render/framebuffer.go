// Package render rasterizes triangle soups into single-channel depth images
// and presents them in a terminal or on disk.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/taigrr/zspan/pkg/geom"
)

// ErrUnknownImageFormat is returned by Save for unsupported extensions.
var ErrUnknownImageFormat = errors.New("render: unknown image format")

// Framebuffer is a row-major, one byte per pixel image covering Rect.
// Buffer row 0 holds raster row Rect.Bottom, so the bytes read top-down
// like any other image.
type Framebuffer struct {
	Rect geom.Rect
	Pix  []byte
}

// NewFramebuffer creates a cleared framebuffer of the given size.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		Rect: geom.RectWH(width, height),
		Pix:  make([]byte, width*height),
	}
}

// Width returns the width in pixels.
func (fb *Framebuffer) Width() int { return fb.Rect.Width() }

// Height returns the height in pixels.
func (fb *Framebuffer) Height() int { return fb.Rect.Height() }

// Clear fills the framebuffer with v.
func (fb *Framebuffer) Clear(v byte) {
	fill(fb.Pix, v)
}

// fill sets every element of s to v using copy-doubling.
func fill[T any](s []T, v T) {
	if len(s) == 0 {
		return
	}
	s[0] = v
	for i := 1; i < len(s); i *= 2 {
		copy(s[i:], s[:i])
	}
}

// PixelOffset returns the byte offset of raster pixel (col, row) in a
// buffer covering r. Raster rows grow upward; buffer rows grow downward.
func PixelOffset(r geom.Rect, row, col int) int {
	return r.Width()*(r.Bottom-row) + col
}

func (fb *Framebuffer) inBounds(x, y int) bool {
	return x >= 0 && x < fb.Width() && y >= 0 && y < fb.Height()
}

// setPixel sets raster pixel (x, y). Out of range writes are ignored.
func (fb *Framebuffer) setPixel(x, y int, v byte) {
	if !fb.inBounds(x, y) {
		return
	}
	fb.Pix[PixelOffset(fb.Rect, y, x)] = v
}

// pixelAt returns raster pixel (x, y), or 0 when out of range.
func (fb *Framebuffer) pixelAt(x, y int) byte {
	if !fb.inBounds(x, y) {
		return 0
	}
	return fb.Pix[PixelOffset(fb.Rect, y, x)]
}

// ToImage wraps the pixels as an *image.Gray without copying.
func (fb *Framebuffer) ToImage() *image.Gray {
	w, h := fb.Width(), fb.Height()
	return &image.Gray{
		Pix:    fb.Pix[:w*h],
		Stride: w,
		Rect:   image.Rect(0, 0, w, h),
	}
}

type encoder func(io.Writer, image.Image) error

var encoders = map[string]encoder{
	"png":  png.Encode,
	"bmp":  bmp.Encode,
	"tif":  encodeTIFF,
	"tiff": encodeTIFF,
}

func encodeTIFF(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, nil)
}

func lookupEncoder(format string) (encoder, error) {
	enc, ok := encoders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImageFormat, format)
	}
	return enc, nil
}

// Encode writes the framebuffer in the named format: png, bmp or tiff.
func (fb *Framebuffer) Encode(w io.Writer, format string) error {
	enc, err := lookupEncoder(format)
	if err != nil {
		return err
	}
	return enc(w, fb.ToImage())
}

// Save writes the framebuffer to path, choosing the format by extension.
func (fb *Framebuffer) Save(path string) (err error) {
	enc, err := lookupEncoder(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return enc(f, fb.ToImage())
}
