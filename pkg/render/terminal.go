package render

import (
	"context"
	"image"
	"sync"
	"time"

	uv "github.com/charmbracelet/ultraviolet"
	"golang.org/x/image/draw"
)

// Surface is the cell grid a TerminalDisplay draws on. *uv.Terminal
// satisfies it.
type Surface interface {
	SetCell(x, y int, c *uv.Cell)
	Display() error
}

// TerminalDisplay shows frames with half-block characters: each cell holds
// two vertically stacked pixels, the upper as foreground and the lower as
// background. Frames are scaled to fit the grid keeping their aspect.
type TerminalDisplay struct {
	mu         sync.Mutex
	surface    Surface
	cols, rows int
	scaled     *image.Gray

	pace    pacer
	dismiss chan struct{}
}

// NewTerminalDisplay creates a display covering cols×rows cells.
func NewTerminalDisplay(s Surface, cols, rows int) *TerminalDisplay {
	return &TerminalDisplay{
		surface: s,
		cols:    cols,
		rows:    rows,
		dismiss: make(chan struct{}, 1),
	}
}

// Resize changes the cell grid size. Safe to call from another goroutine.
func (d *TerminalDisplay) Resize(cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cols, d.rows = cols, rows
	d.scaled = nil
}

// Size returns the grid size in cells.
func (d *TerminalDisplay) Size() (cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cols, d.rows
}

// FramebufferSize returns the pixel size that maps one to one onto the grid.
func (d *TerminalDisplay) FramebufferSize() (width, height int) {
	cols, rows := d.Size()
	return cols, rows * 2
}

// fitRect returns the largest rectangle with src's aspect centered in dst.
func fitRect(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return image.Rectangle{}
	}

	w, h := dw, sh*dw/sw
	if h > dh {
		w, h = sw*dh/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// Present draws fb onto the surface and flushes it.
func (d *TerminalDisplay) Present(fb *Framebuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cols <= 0 || d.rows <= 0 {
		return nil
	}

	bounds := image.Rect(0, 0, d.cols, d.rows*2)
	if d.scaled == nil || d.scaled.Bounds() != bounds {
		d.scaled = image.NewGray(bounds)
	} else {
		fill(d.scaled.Pix, 0)
	}

	src := fb.ToImage()
	draw.NearestNeighbor.Scale(d.scaled, fitRect(src.Bounds(), bounds), src, src.Bounds(), draw.Src, nil)

	for row := range d.rows {
		for col := range d.cols {
			d.surface.SetCell(col, row, &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: d.scaled.GrayAt(col, row*2),
					Bg: d.scaled.GrayAt(col, row*2+1),
				},
			})
		}
	}
	return d.surface.Display()
}

// Commit waits out the rest of atLeast.
func (d *TerminalDisplay) Commit(ctx context.Context, atLeast time.Duration) error {
	return d.pace.wait(ctx, atLeast)
}

// Dismiss releases a pending or the next Pause. Safe to call from the
// input goroutine.
func (d *TerminalDisplay) Dismiss() {
	select {
	case d.dismiss <- struct{}{}:
	default:
	}
}

// Pause blocks until Dismiss is called or ctx ends.
func (d *TerminalDisplay) Pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.dismiss:
		return nil
	}
}
