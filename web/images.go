package web

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"

	"github.com/jnb666/nonlin/num"
	"github.com/jnb666/nonlin/plot3d"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

const (
	heatmapScale = 2
	filterScale  = 8
	filterBorder = 1
)

// Handler function for the surface drawn as a flat image, one block of pixels per grid point
// with y increasing upwards.
func (p *ViewPage) Heatmap() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		grid := p.sess.Grid()
		if grid == nil {
			http.NotFound(w, r)
			return
		}
		cmap, err := plot3d.Lookup(p.sess.Config().Render.Cmap)
		if err != nil {
			logError(w, err)
			return
		}
		writePNG(w, heatmap(grid.Z, cmap, heatmapScale))
	}
}

func heatmap(z mat.Matrix, cmap *plot3d.Colormap, scale int) *image.NRGBA {
	rows, cols := z.Dims()
	zmin, zmax := num.Range(z)
	img := image.NewNRGBA(image.Rect(0, 0, cols*scale, rows*scale))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			col := color.NRGBAModel.Convert(cmap.Map(z.At(i, j), zmin, zmax))
			fill(img, j*scale, (rows-1-i)*scale, scale, scale, col)
		}
	}
	return img
}

// Handler function for the raw filter weights, each filter is drawn as a tile on a symmetric scale
func (p *ViewPage) Filters() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := p.sess.Filters()
		if err != nil {
			logError(w, err)
			return
		}
		cmap, err := plot3d.Lookup("jet")
		if err != nil {
			logError(w, err)
			return
		}
		writePNG(w, filterImage(f, cmap, filterScale))
	}
}

func filterImage(f mat.Matrix, cmap *plot3d.Colormap, scale int) *image.NRGBA {
	nin, nout := f.Dims()
	fy, fx := factorise(nin, 0, 1)
	tw, th := fx*scale+filterBorder, fy*scale+filterBorder
	img := image.NewNRGBA(image.Rect(0, 0, tw*nout+filterBorder, th+filterBorder))
	fill(img, 0, 0, img.Bounds().Dx(), img.Bounds().Dy(), color.NRGBA{A: 255})
	zmin, zmax := num.Range(f)
	lim := math.Max(math.Abs(zmin), math.Abs(zmax))
	for k := 0; k < nout; k++ {
		for i := 0; i < nin; i++ {
			col := color.NRGBAModel.Convert(cmap.Map(f.At(i, k), -lim, lim))
			fill(img, k*tw+filterBorder+(i%fx)*scale, filterBorder+(i/fx)*scale, scale, scale, col)
		}
	}
	return img
}

// encode to a buffer first so an error can still be reported to the client
func writePNG(w http.ResponseWriter, img image.Image) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := buf.WriteTo(w); err != nil {
		log.Error().Err(err).Msg("write png")
	}
}

func fill(img *image.NRGBA, x0, y0, w, h int, col color.Color) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			img.Set(x, y, col)
		}
	}
}

// if n > nmin returns f1, f2 where f1*f2 = n and f1 <= aspect * f2 else 1, n
func factorise(n, nmin int, aspect float64) (f1, f2 int) {
	if n < 1 {
		panic("factorise: input must be >= 1")
	}
	if n > nmin {
		for f1 = int(math.Sqrt(float64(n) * aspect)); f1 > 1; f1-- {
			if n%f1 == 0 {
				return f1, n / f1
			}
		}
	}
	return 1, n
}
