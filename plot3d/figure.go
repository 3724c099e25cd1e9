// Package plot3d renders a sampled surface z = f(x, y) as a 3-D plot using gonum/plot.
package plot3d

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"
)

// Fixed viewing elevation in degrees.
const Elevation = 30

// Default render settings
const (
	DefaultRot    = 260
	DefaultCmap   = "hot"
	DefaultCount  = 50
	DefaultWidth  = 8
	DefaultHeight = 6
	ZLabel        = "firing rate (spks/s)"
)

// Options for rendering a surface.
type Options struct {
	// Azimuth rotation in degrees.
	Rot float64 `yaml:"rot"`
	// If > 0 the first axis is limited to [0, Lim].
	Lim float64 `yaml:"lim"`
	// Colormap name, see Colormaps.
	Cmap string `yaml:"cmap"`
	// Legend label, no legend if empty.
	Label string `yaml:"label"`
	Title string `yaml:"title"`
	// Image size in inches.
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	// Maximum number of quads along each side.
	Count int `yaml:"count"`
}

// DefaultOptions returns the standard render settings.
func DefaultOptions() Options {
	return Options{Rot: DefaultRot, Cmap: DefaultCmap, Count: DefaultCount, Width: DefaultWidth, Height: DefaultHeight}
}

// Figure is a plot containing a single surface. Each figure owns its own plot state.
type Figure struct {
	*plot.Plot
	Surface *Surface
	opts    Options
}

// New creates a figure for the mesh x, y, z.
func New(x, y, z mat.Matrix, opts Options) (*Figure, error) {
	if opts.Cmap == "" {
		opts.Cmap = DefaultCmap
	}
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Lim < 0 {
		return nil, fmt.Errorf("plot: invalid axis limit %g", opts.Lim)
	}
	cmap, err := Lookup(opts.Cmap)
	if err != nil {
		return nil, err
	}
	surf, err := NewSurface(x, y, z, cmap)
	if err != nil {
		return nil, err
	}
	surf.Azim = opts.Rot
	surf.Count = opts.Count
	surf.XLabel, surf.YLabel, surf.ZLabel = "f1", "f2", ZLabel

	p := plot.New()
	p.Title.Text = opts.Title
	p.HideAxes()
	p.Add(surf)
	if opts.Lim > 0 {
		p.X.Min, p.X.Max = 0, opts.Lim
	}
	if opts.Label != "" {
		p.Legend.Top = true
		p.Legend.Add(opts.Label, surf)
	}
	log.Debug().Float64("rot", opts.Rot).Float64("lim", opts.Lim).Str("cmap", opts.Cmap).Msg("new figure")
	return &Figure{Plot: p, Surface: surf, opts: opts}, nil
}

// XLim returns the displayed range of the first axis.
func (f *Figure) XLim() (min, max float64) {
	return f.X.Min, f.X.Max
}

// Size returns the figure size.
func (f *Figure) Size() (w, h vg.Length) {
	return vg.Length(f.opts.Width) * vg.Inch, vg.Length(f.opts.Height) * vg.Inch
}

// Save writes the figure to a file, the format is given by the file extension.
func (f *Figure) Save(path string) error {
	w, h := f.Size()
	log.Info().Str("file", path).Msg("saving plot")
	return f.Plot.Save(w, h, path)
}

// Render writes the figure in the given format, e.g. svg or png.
func (f *Figure) Render(out io.Writer, format string) (int64, error) {
	w, h := f.Size()
	writer, err := f.WriterTo(w, h, format)
	if err != nil {
		return 0, err
	}
	return writer.WriteTo(out)
}
