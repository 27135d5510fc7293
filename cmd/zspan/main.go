// zspan - scanline z-buffer renderer for triangle meshes
// Draws STL and glTF models as grayscale depth images, in the terminal or to
// image files.
//
// Controls (interactive mode):
//
//	W/S         - Pitch up/down
//	A/D         - Yaw left/right
//	Q/E         - Roll left/right
//	Space       - Apply random impulse
//	R           - Reset rotation
//	Esc         - Quit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taigrr/zspan/pkg/geom"
	"github.com/taigrr/zspan/pkg/models"
	"github.com/taigrr/zspan/pkg/render"
)

// fitRadius keeps the spinning model inside the unit cube.
const fitRadius = 0.95

// errQuit ends the interactive session without reporting a failure.
var errQuit = errors.New("quit")

type options struct {
	alignEps  float64
	depthMode string
	size      string
	fps       int
	frames    int
	out       string
	logLevel  string
	logFile   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd()); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "zspan <model.stl|model.glb>",
		Short: "Render triangle meshes as depth images",
		Long: `zspan rasterizes a triangle mesh with a scanline z-buffer and shows the
depth as grayscale: nearer surfaces are darker.

Without --frames or --out it opens an interactive terminal viewer.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.alignEps, "align-eps", 0, "snap vertex heights closer than this before splitting (0 = exact)")
	f.StringVar(&opts.depthMode, "depth-mode", render.DepthInterpolated.String(), "depth source: interpolated or barycentric")
	f.StringVar(&opts.size, "size", "320x240", "frame size for --frames and --out, as WxH")
	f.IntVar(&opts.fps, "fps", 60, "target frames per second")
	f.IntVar(&opts.frames, "frames", 0, "render this many frames of a fixed rotation, then report the average FPS")
	f.StringVarP(&opts.out, "out", "o", "", "write frames to this image file; use a %d verb with --frames for numbered files")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (default off)")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")

	return cmd
}

// parseSize reads a WxH frame size.
func parseSize(s string) (width, height int, err error) {
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &width, &height); err != nil {
		return 0, 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return width, height, nil
}

// rasterConfig maps the flags onto a rasterizer configuration.
func (o options) rasterConfig() (render.Config, error) {
	mode, err := render.ParseDepthMode(o.depthMode)
	if err != nil {
		return render.Config{}, err
	}
	if o.alignEps < 0 {
		return render.Config{}, fmt.Errorf("align-eps must not be negative, got %g", o.alignEps)
	}
	cfg := render.DefaultConfig()
	cfg.AlignTolerance = o.alignEps
	cfg.DepthMode = mode
	return cfg, nil
}

// setupLogging installs the render logger. It returns a func closing the
// log file, if any.
func setupLogging(level, path string) (func(), error) {
	if level == "" {
		render.SetLogger(nil)
		return func() {}, nil
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = func() { f.Close() }
	}

	render.SetLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return closer, nil
}

func loadSoup(path string) (geom.Soup, error) {
	mesh, err := models.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	render.Logger().Info("model loaded",
		"file", filepath.Base(path),
		"vertices", mesh.VertexCount(),
		"triangles", mesh.TriangleCount(),
	)
	return mesh.Soup().Fit(fitRadius), nil
}

func run(ctx context.Context, stdout io.Writer, modelPath string, opts options) error {
	if opts.fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", opts.fps)
	}
	if opts.frames < 0 {
		return fmt.Errorf("frames must not be negative, got %d", opts.frames)
	}
	cfg, err := opts.rasterConfig()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(opts.logLevel, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	defer render.SetLogger(nil)

	soup, err := loadSoup(modelPath)
	if err != nil {
		return err
	}

	switch {
	case opts.frames > 0:
		fps, err := runFrames(ctx, soup, cfg, opts)
		if err != nil {
			return err
		}
		if fps > 0 {
			fmt.Fprintf(stdout, "Avg FPS: %.1f\n", fps)
		}
		return nil
	case opts.out != "":
		return snapshot(soup, cfg, opts)
	default:
		return interactive(ctx, soup, cfg, opts.fps)
	}
}

// snapshot renders the model once, unrotated, and saves it.
func snapshot(soup geom.Soup, cfg render.Config, opts options) error {
	if strings.Contains(opts.out, "%") {
		return fmt.Errorf("--out %q is a frame pattern; pass --frames too", opts.out)
	}
	w, h, err := parseSize(opts.size)
	if err != nil {
		return err
	}

	fb := render.NewFramebuffer(w, h)
	if err := render.NewRasterizer(cfg).DrawFrame(soup, fb); err != nil {
		return err
	}
	return fb.Save(opts.out)
}

// frameAngles is the fixed rotation of benchmark frame i. The yaw is
// negated because geom.Soup.Rotate turns +Z toward +X and the animation
// turns +X toward +Z.
func frameAngles(i int) (pitch, yaw float64) {
	return -0.333 * float64(i), -0.1 * float64(i)
}

// runFrames renders a fixed animation, presents every frame and returns the
// average frame rate, or zero when interrupted. The last frame stays up
// until dismissed.
func runFrames(ctx context.Context, soup geom.Soup, cfg render.Config, opts options) (float64, error) {
	w, h, err := parseSize(opts.size)
	if err != nil {
		return 0, err
	}

	var display render.Display
	if opts.out != "" {
		if !strings.Contains(opts.out, "%") {
			return 0, fmt.Errorf("--out %q needs a %%d verb when used with --frames", opts.out)
		}
		display = render.NewFileDisplay(opts.out)
	} else {
		tv, err := openTerminal()
		if err != nil {
			return 0, err
		}
		defer tv.close()

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go tv.dismissOnKey(ctx, cancel)
		display = tv.display
	}

	fb := render.NewFramebuffer(w, h)
	r := render.NewRasterizer(cfg)
	interval := time.Second / time.Duration(opts.fps)

	start := time.Now()
	for i := range opts.frames {
		pitch, yaw := frameAngles(i)
		if err := r.DrawFrame(soup.Rotate(pitch, yaw), fb); err != nil {
			return 0, err
		}
		if err := display.Present(fb); err != nil {
			return 0, fmt.Errorf("present frame %d: %w", i, err)
		}
		if err := display.Commit(ctx, interval); err != nil {
			if errors.Is(err, context.Canceled) {
				return 0, nil
			}
			return 0, err
		}
	}
	elapsed := time.Since(start)

	if err := display.Present(fb); err != nil {
		return 0, err
	}
	if err := display.Pause(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return 0, err
	}
	return float64(opts.frames) / elapsed.Seconds(), nil
}

// terminal is an ultraviolet terminal in the alternate screen with a
// display drawing on it.
type terminal struct {
	term    *uv.Terminal
	display *render.TerminalDisplay
}

func openTerminal() (*terminal, error) {
	term := uv.DefaultTerminal()

	width, height, err := term.GetSize()
	if err != nil {
		return nil, fmt.Errorf("get terminal size: %w", err)
	}
	if err := term.Start(); err != nil {
		return nil, fmt.Errorf("start terminal: %w", err)
	}

	term.EnterAltScreen()
	term.HideCursor()
	term.Resize(width, height)

	return &terminal{
		term:    term,
		display: render.NewTerminalDisplay(term, width, height),
	}, nil
}

func (t *terminal) close() {
	t.term.ExitAltScreen()
	t.term.ShowCursor()
	t.term.Shutdown(context.Background())
}

// resize follows a window size change.
func (t *terminal) resize(width, height int) {
	t.term.Erase()
	t.term.Resize(width, height)
	t.display.Resize(width, height)
}

// dismissOnKey releases Pause on any key and cancels on ctrl+c.
func (t *terminal) dismissOnKey(ctx context.Context, cancel context.CancelFunc) {
	events := t.term.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				t.resize(ev.Width, ev.Height)
			case uv.KeyPressEvent:
				if ev.MatchString("ctrl+c") {
					cancel()
					return
				}
				t.display.Dismiss()
			}
		}
	}
}

// interactive runs the terminal viewer until the user quits or ctx ends.
func interactive(ctx context.Context, soup geom.Soup, cfg render.Config, fps int) error {
	tv, err := openTerminal()
	if err != nil {
		return err
	}
	defer tv.close()

	spin := NewSpin(fps)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return handleInput(ctx, tv, spin)
	})
	g.Go(func() error {
		return renderLoop(ctx, tv.display, soup, cfg, spin, fps)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func handleInput(ctx context.Context, tv *terminal, spin *Spin) error {
	events := tv.term.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errQuit
			}
			switch ev := ev.(type) {
			case uv.WindowSizeEvent:
				tv.resize(ev.Width, ev.Height)

			case uv.KeyPressEvent:
				switch {
				case ev.MatchString("escape", "ctrl+c"):
					return errQuit
				case ev.MatchString("w", "up"):
					spin.Push(-1, 0, 0)
				case ev.MatchString("s", "down"):
					spin.Push(1, 0, 0)
				case ev.MatchString("a", "left"):
					spin.Push(0, -1, 0)
				case ev.MatchString("d", "right"):
					spin.Push(0, 1, 0)
				case ev.MatchString("q"):
					spin.Push(0, 0, -1)
				case ev.MatchString("e"):
					spin.Push(0, 0, 1)
				case ev.MatchString("space"):
					spin.Kick()
				case ev.MatchString("r"):
					spin.Reset()
				}

			case uv.KeyReleaseEvent:
				switch {
				case ev.MatchString("w", "up", "s", "down"):
					spin.Release(true, false, false)
				case ev.MatchString("a", "left", "d", "right"):
					spin.Release(false, true, false)
				case ev.MatchString("q", "e"):
					spin.Release(false, false, true)
				}
			}
		}
	}
}

func renderLoop(ctx context.Context, display *render.TerminalDisplay, soup geom.Soup, cfg render.Config, spin *Spin, fps int) error {
	r := render.NewRasterizer(cfg)
	interval := time.Second / time.Duration(fps)

	var fb *render.Framebuffer
	last := time.Now()
	for {
		now := time.Now()
		rot := spin.Step(now.Sub(last).Seconds())
		last = now

		w, h := display.FramebufferSize()
		if w > 0 && h > 0 {
			if fb == nil || fb.Width() != w || fb.Height() != h {
				fb = render.NewFramebuffer(w, h)
			}
			if err := r.DrawFrame(soup.Transform(rot), fb); err != nil {
				return err
			}
			if err := display.Present(fb); err != nil {
				return fmt.Errorf("present: %w", err)
			}
		}

		if err := display.Commit(ctx, interval); err != nil {
			return err
		}
	}
}
