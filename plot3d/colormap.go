package plot3d

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// Colormap maps a value in [0, 1] to a color by interpolating between fixed stops.
type Colormap struct {
	Name  string
	pos   []float64
	stops []colorful.Color
	lab   bool
}

var colormaps = map[string]*Colormap{
	"hot": {
		Name:  "hot",
		pos:   []float64{0, 0.365079, 0.746032, 1},
		stops: []colorful.Color{{R: 0.0416, G: 0, B: 0}, {R: 1, G: 0, B: 0}, {R: 1, G: 1, B: 0}, {R: 1, G: 1, B: 1}},
	},
	"jet": newColormap("jet", false,
		colorful.Color{R: 0, G: 0, B: .5}, colorful.Color{R: 0, G: 0, B: 1}, colorful.Color{R: 0, G: .5, B: 1},
		colorful.Color{R: 0, G: 1, B: 1}, colorful.Color{R: .5, G: 1, B: .5}, colorful.Color{R: 1, G: 1, B: 0},
		colorful.Color{R: 1, G: .5, B: 0}, colorful.Color{R: 1, G: 0, B: 0}, colorful.Color{R: .5, G: 0, B: 0}),
	"coolwarm": newColormap("coolwarm", true,
		colorful.Color{R: 0.230, G: 0.299, B: 0.754}, colorful.Color{R: 0.865, G: 0.865, B: 0.865},
		colorful.Color{R: 0.706, G: 0.016, B: 0.150}),
	"viridis": newColormap("viridis", true,
		hexColor("#440154"), hexColor("#3b528b"), hexColor("#21918c"), hexColor("#5ec962"), hexColor("#fde725")),
	"gray": newColormap("gray", false, colorful.Color{}, colorful.Color{R: 1, G: 1, B: 1}),
}

func hexColor(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// equally spaced stops, blended in Lab space if lab is set else in RGB
func newColormap(name string, lab bool, stops ...colorful.Color) *Colormap {
	c := &Colormap{Name: name, stops: stops, lab: lab}
	for i := range stops {
		c.pos = append(c.pos, float64(i)/float64(len(stops)-1))
	}
	return c
}

// Lookup returns the named colormap.
func Lookup(name string) (*Colormap, error) {
	if c, ok := colormaps[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown colormap %q: valid names are %v", name, Colormaps())
}

// Colormaps lists the available colormap names.
func Colormaps() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// At returns the color at frac, clamped to [0, 1].
func (c *Colormap) At(frac float64) color.Color {
	switch {
	case math.IsNaN(frac) || frac <= 0:
		return c.stops[0].Clamped()
	case frac >= 1:
		return c.stops[len(c.stops)-1].Clamped()
	}
	i := sort.SearchFloat64s(c.pos, frac)
	if i == 0 {
		i = 1
	}
	t := (frac - c.pos[i-1]) / (c.pos[i] - c.pos[i-1])
	if c.lab {
		return c.stops[i-1].BlendLab(c.stops[i], t).Clamped()
	}
	return c.stops[i-1].BlendRgb(c.stops[i], t).Clamped()
}

// Map converts a value in the range cmin:cmax to a color.
func (c *Colormap) Map(val, cmin, cmax float64) color.Color {
	if cmax <= cmin {
		return c.At(0.5)
	}
	return c.At((val - cmin) / (cmax - cmin))
}
