package render

import (
	"context"
	"fmt"
	"time"
)

// Display shows rendered frames.
type Display interface {
	// Present shows fb. The display may keep no reference to fb after
	// Present returns.
	Present(fb *Framebuffer) error
	// Commit returns once atLeast has passed since the previous Commit,
	// keeping the current frame up until then.
	Commit(ctx context.Context, atLeast time.Duration) error
	// Pause blocks until the viewer dismisses the frame or ctx ends.
	Pause(ctx context.Context) error
}

// pacer enforces a minimum interval between frames.
type pacer struct {
	last time.Time
}

func (p *pacer) wait(ctx context.Context, atLeast time.Duration) error {
	if !p.last.IsZero() {
		if d := atLeast - time.Since(p.last); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	p.last = time.Now()
	return ctx.Err()
}

// FileDisplay writes every presented frame to disk. Pattern is a
// fmt format with one integer verb, such as "frame-%04d.png".
type FileDisplay struct {
	Pattern string

	frame int
	pace  pacer
}

// NewFileDisplay creates a FileDisplay for the given pattern.
func NewFileDisplay(pattern string) *FileDisplay {
	return &FileDisplay{Pattern: pattern}
}

// Present saves fb as the next numbered file.
func (d *FileDisplay) Present(fb *Framebuffer) error {
	path := fmt.Sprintf(d.Pattern, d.frame)
	if err := fb.Save(path); err != nil {
		return fmt.Errorf("save frame %d: %w", d.frame, err)
	}
	Logger().Debug("frame written", "path", path)
	d.frame++
	return nil
}

// Commit waits out the rest of atLeast.
func (d *FileDisplay) Commit(ctx context.Context, atLeast time.Duration) error {
	return d.pace.wait(ctx, atLeast)
}

// Pause returns at once; files need no dismissal.
func (d *FileDisplay) Pause(ctx context.Context) error {
	return ctx.Err()
}
