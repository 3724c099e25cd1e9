package plot3d

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/jnb666/nonlin/num"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// height of the z axis relative to the x and y axes
const zAspect = 0.75

// Surface implements the plot.Plotter interface, drawing a 3-D surface z = f(x, y) as seen
// from the given elevation and azimuth. The x and y ranges are taken from the plot axes.
type Surface struct {
	X, Y, Z mat.Matrix
	Cmap    *Colormap
	// Viewing angles in degrees
	Elev, Azim float64
	// Maximum number of quads drawn along each side
	Count int
	// Axis labels
	XLabel, YLabel, ZLabel string
	// Style for axis lines and text
	LineStyle draw.LineStyle
	TextStyle draw.TextStyle

	zmin, zmax float64
}

// NewSurface returns a surface plotter for the given mesh, all three matrices must have the same shape.
func NewSurface(x, y, z mat.Matrix, cmap *Colormap) (*Surface, error) {
	r, c := z.Dims()
	if r < 2 || c < 2 {
		return nil, fmt.Errorf("surface: need at least 2x2 grid, have %dx%d", r, c)
	}
	if !num.SameShape(num.Dims(x), num.Dims(z)) || !num.SameShape(num.Dims(y), num.Dims(z)) {
		return nil, fmt.Errorf("surface: shape mismatch x=%v y=%v z=%v", num.Dims(x), num.Dims(y), num.Dims(z))
	}
	s := &Surface{
		X: x, Y: y, Z: z,
		Cmap:  cmap,
		Elev:  Elevation,
		Count: DefaultCount,
		LineStyle: draw.LineStyle{
			Color: color.Gray{Y: 96},
			Width: vg.Points(0.5),
		},
		TextStyle: draw.TextStyle{
			Color:   color.Black,
			Font:    font.From(plot.DefaultFont, vg.Points(9)),
			Handler: plot.DefaultTextHandler,
			XAlign:  draw.XCenter,
			YAlign:  draw.YCenter,
		},
	}
	s.zmin, s.zmax = num.Range(z)
	if math.IsInf(s.zmin, 0) {
		return nil, fmt.Errorf("surface: no valid z values")
	}
	if s.zmin == s.zmax {
		s.zmin -= 0.5
		s.zmax += 0.5
	}
	return s, nil
}

// DataRange implements the plot.DataRanger interface.
func (s *Surface) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = num.Range(s.X)
	ymin, ymax = num.Range(s.Y)
	return
}

// ZRange returns the range of the surface values.
func (s *Surface) ZRange() (zmin, zmax float64) {
	return s.zmin, s.zmax
}

// Thumbnail implements the plot.Thumbnailer interface.
func (s *Surface) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		c.Min,
		{X: c.Min.X, Y: c.Max.Y},
		c.Max,
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(s.Cmap.At(0.75), pts)
}

// orthographic projection of the unit box
type projection struct {
	lo, hi         [3]float64
	sa, ca, se, ce float64
}

func newProjection(lo, hi [3]float64, elev, azim float64) projection {
	e, a := elev*math.Pi/180, azim*math.Pi/180
	return projection{lo: lo, hi: hi, sa: math.Sin(a), ca: math.Cos(a), se: math.Sin(e), ce: math.Cos(e)}
}

// returns screen coords u, v and depth d, larger d is nearer to the viewer
func (p projection) project(x, y, z float64) (u, v, d float64) {
	xn := (x-p.lo[0])/(p.hi[0]-p.lo[0]) - 0.5
	yn := (y-p.lo[1])/(p.hi[1]-p.lo[1]) - 0.5
	zn := ((z-p.lo[2])/(p.hi[2]-p.lo[2]) - 0.5) * zAspect
	u = -xn*p.sa + yn*p.ca
	d0 := xn*p.ca + yn*p.sa
	v = zn*p.ce - d0*p.se
	d = d0*p.ce + zn*p.se
	return
}

type quad struct {
	pts   [4][3]float64
	zmean float64
	depth float64
}

// strided indices covering 0..n-1 with at most count intervals
func strides(n, count int) []int {
	step := 1
	if count > 0 {
		step = int(math.Max(math.Ceil(float64(n-1)/float64(count)), 1))
	}
	var idx []int
	for i := 0; i < n-1; i += step {
		idx = append(idx, i)
	}
	return append(idx, n-1)
}

// quads inside the given x and y ranges sorted from back to front
func (s *Surface) quads(p projection) []quad {
	r, c := s.Z.Dims()
	rows, cols := strides(r, s.Count), strides(c, s.Count)
	inside := func(x, y float64) bool {
		const tol = 1e-9
		return x >= p.lo[0]-tol && x <= p.hi[0]+tol && y >= p.lo[1]-tol && y <= p.hi[1]+tol
	}
	var res []quad
	for a := 0; a < len(rows)-1; a++ {
	cell:
		for b := 0; b < len(cols)-1; b++ {
			var q quad
			corners := [4][2]int{{rows[a], cols[b]}, {rows[a], cols[b+1]}, {rows[a+1], cols[b+1]}, {rows[a+1], cols[b]}}
			for k, ij := range corners {
				x, y, z := s.X.At(ij[0], ij[1]), s.Y.At(ij[0], ij[1]), s.Z.At(ij[0], ij[1])
				if math.IsNaN(z) || !inside(x, y) {
					continue cell
				}
				q.pts[k] = [3]float64{x, y, z}
				_, _, d := p.project(x, y, z)
				q.depth += d / 4
				q.zmean += z / 4
			}
			res = append(res, q)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].depth < res[j].depth })
	return res
}

// Plot implements the plot.Plotter interface.
func (s *Surface) Plot(c draw.Canvas, plt *plot.Plot) {
	lo := [3]float64{plt.X.Min, plt.Y.Min, s.zmin}
	hi := [3]float64{plt.X.Max, plt.Y.Max, s.zmax}
	if lo[0] >= hi[0] || lo[1] >= hi[1] {
		return
	}
	p := newProjection(lo, hi, s.Elev, s.Azim)

	// fit the projected bounding box into the canvas
	umin, umax, vmin, vmax := math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)
	for i := 0; i < 8; i++ {
		u, v, _ := p.project(corner(lo, hi, i))
		umin, umax = math.Min(umin, u), math.Max(umax, u)
		vmin, vmax = math.Min(vmin, v), math.Max(vmax, v)
	}
	margin := 3 * s.TextStyle.Font.Size
	w, h := c.Max.X-c.Min.X-2*margin, c.Max.Y-c.Min.Y-2*margin
	scale := math.Min(float64(w)/(umax-umin), float64(h)/(vmax-vmin))
	cx, cy := (c.Min.X+c.Max.X)/2, (c.Min.Y+c.Max.Y)/2
	uc, vc := (umin+umax)/2, (vmin+vmax)/2
	toCanvas := func(x, y, z float64) vg.Point {
		u, v, _ := p.project(x, y, z)
		return vg.Point{X: cx + vg.Length(scale*(u-uc)), Y: cy + vg.Length(scale*(v-vc))}
	}

	s.drawAxes(c, p, lo, hi, toCanvas, vg.Point{X: cx, Y: cy})

	for _, q := range s.quads(p) {
		pts := make([]vg.Point, 5)
		for k, pt := range q.pts {
			pts[k] = toCanvas(pt[0], pt[1], pt[2])
		}
		pts[4] = pts[0]
		col := s.Cmap.Map(q.zmean, s.zmin, s.zmax)
		c.FillPolygon(col, pts[:4])
		c.StrokeLines(draw.LineStyle{Color: col, Width: vg.Points(0.25)}, pts)
	}
}

// corner i of the box, bit 0 selects x, bit 1 y and bit 2 z
func corner(lo, hi [3]float64, i int) (x, y, z float64) {
	pick := func(bit, axis int) float64 {
		if i&bit != 0 {
			return hi[axis]
		}
		return lo[axis]
	}
	return pick(1, 0), pick(2, 1), pick(4, 2)
}

// draw the box edges nearest the viewer along the bottom face for x and y and the
// leftmost vertical edge for z, with tick marks and labels
func (s *Surface) drawAxes(c draw.Canvas, p projection, lo, hi [3]float64, toCanvas func(x, y, z float64) vg.Point, center vg.Point) {
	depth := func(x, y, z float64) float64 {
		_, _, d := p.project(x, y, z)
		return d
	}
	// x axis runs along the y edge nearest the viewer
	yEdge := lo[1]
	if depth((lo[0]+hi[0])/2, hi[1], lo[2]) > depth((lo[0]+hi[0])/2, lo[1], lo[2]) {
		yEdge = hi[1]
	}
	xEdge := lo[0]
	if depth(hi[0], (lo[1]+hi[1])/2, lo[2]) > depth(lo[0], (lo[1]+hi[1])/2, lo[2]) {
		xEdge = hi[0]
	}
	// z axis on the leftmost corner of the bottom face
	zx, zy := lo[0], lo[1]
	left := math.Inf(1)
	for _, xy := range [][2]float64{{lo[0], lo[1]}, {lo[0], hi[1]}, {hi[0], lo[1]}, {hi[0], hi[1]}} {
		if pt := toCanvas(xy[0], xy[1], lo[2]); float64(pt.X) < left {
			left, zx, zy = float64(pt.X), xy[0], xy[1]
		}
	}

	type axis struct {
		label  string
		lo, hi float64
		at     func(v float64) (x, y, z float64)
	}
	axes := []axis{
		{s.XLabel, lo[0], hi[0], func(v float64) (float64, float64, float64) { return v, yEdge, lo[2] }},
		{s.YLabel, lo[1], hi[1], func(v float64) (float64, float64, float64) { return xEdge, v, lo[2] }},
		{s.ZLabel, lo[2], hi[2], func(v float64) (float64, float64, float64) { return zx, zy, v }},
	}
	offset := func(pt vg.Point, dist vg.Length) vg.Point {
		dx, dy := float64(pt.X-center.X), float64(pt.Y-center.Y)
		norm := math.Hypot(dx, dy)
		if norm == 0 {
			return pt
		}
		return vg.Point{X: pt.X + dist*vg.Length(dx/norm), Y: pt.Y + dist*vg.Length(dy/norm)}
	}
	size := s.TextStyle.Font.Size
	for _, ax := range axes {
		start, end := toCanvas(ax.at(ax.lo)), toCanvas(ax.at(ax.hi))
		c.StrokeLine2(s.LineStyle, start.X, start.Y, end.X, end.Y)
		for _, tick := range (plot.DefaultTicks{}).Ticks(ax.lo, ax.hi) {
			if tick.Label == "" || tick.Value < ax.lo || tick.Value > ax.hi {
				continue
			}
			pt := toCanvas(ax.at(tick.Value))
			tp := offset(pt, size/2)
			c.StrokeLine2(s.LineStyle, pt.X, pt.Y, tp.X, tp.Y)
			c.FillText(s.TextStyle, offset(pt, 1.5*size), tick.Label)
		}
		if ax.label != "" {
			mid := toCanvas(ax.at((ax.lo + ax.hi) / 2))
			c.FillText(s.TextStyle, offset(mid, 3*size), ax.label)
		}
	}
}
