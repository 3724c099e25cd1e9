package surface

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/num"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Default grid settings
const (
	DefaultBound    = 1.5
	DefaultStep     = 0.01
	DefaultDumpPath = "Matlab_Models/simple_2f.csv"
	MaxSize         = 4000
)

// Options for grid generation.
type Options struct {
	// Grid covers [-Bound, Bound) along both basis directions.
	Bound float64 `yaml:"bound"`
	// Spacing between grid points.
	Step float64 `yaml:"step"`
	// Take the filters from the second layer rather than the first.
	ES bool `yaml:"es"`
	// CSV file for the raw filters, empty to disable.
	DumpPath string `yaml:"dump_path"`
	// Number of grid rows evaluated concurrently.
	Workers int `yaml:"workers"`
	// Evaluate a whole row per call if the model implements nnet.BatchPredictor.
	Batch bool `yaml:"batch"`
}

// DefaultOptions returns the standard grid settings.
func DefaultOptions() Options {
	return Options{Bound: DefaultBound, Step: DefaultStep, DumpPath: DefaultDumpPath, Workers: 1}
}

// Grid holds the sampled surface: X and Y are the coordinates along the two basis
// vectors and Z is the model output at each point. All three are n x n.
type Grid struct {
	ID      string
	X, Y, Z *mat.Dense
	Elapsed time.Duration
}

// Size returns the number of points along each side of the grid.
func (g *Grid) Size() int {
	r, _ := g.Z.Dims()
	return r
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Generate samples the model output over the plane spanned by the orthonormalised filters.
// For each grid point Z[i,j] = model(X[i,j]*f1 + Y[i,j]*f2). If the model fails at any point
// or the context is cancelled no grid is returned.
func Generate(ctx context.Context, m nnet.Model, opts Options, prog Progress) (*Grid, error) {
	if opts.Step == 0 {
		opts.Step = DefaultStep
	}
	if !finite(opts.Bound) || !finite(opts.Step) || opts.Bound <= 0 || opts.Step < 0 {
		return nil, fmt.Errorf("generate: invalid grid bound=%g step=%g", opts.Bound, opts.Step)
	}
	if size := math.Ceil(2 * opts.Bound / opts.Step); size > MaxSize {
		return nil, fmt.Errorf("generate: grid size %g exceeds maximum of %d", size, MaxSize)
	}
	axis := num.Arange(-opts.Bound, opts.Bound, opts.Step)
	if len(axis) == 0 {
		return nil, fmt.Errorf("generate: empty grid for bound=%g step=%g", opts.Bound, opts.Step)
	}
	basis, err := Extract(m, opts.ES, opts.DumpPath)
	if err != nil {
		return nil, err
	}
	g := &Grid{ID: uuid.NewString()}
	g.X, g.Y = num.Meshgrid(axis, axis)
	n := len(axis)
	g.Z = mat.NewDense(n, n, nil)

	s := &sampler{
		model: m,
		grid:  g,
		f1:    mat.Col(nil, 0, basis),
		f2:    mat.Col(nil, 1, basis),
		prog:  prog,
		total: n * n,
		every: progressEvery(n * n),
	}
	if bp, ok := m.(nnet.BatchPredictor); ok && opts.Batch {
		s.batch = bp
	}
	log.Info().Str("id", g.ID).Int("size", n).Int("workers", opts.Workers).Bool("batch", s.batch != nil).
		Msg("generate grid")
	start := time.Now()
	if opts.Workers > 1 {
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(opts.Workers)
		for i := 0; i < n; i++ {
			row := i
			grp.Go(func() error { return s.row(gctx, row) })
		}
		err = grp.Wait()
	} else {
		for i := 0; i < n && err == nil; i++ {
			err = s.row(ctx, i)
		}
	}
	if err != nil {
		gridErrors.Inc()
		return nil, err
	}
	g.Elapsed = time.Since(start)
	gridSeconds.Observe(g.Elapsed.Seconds())
	log.Info().Str("id", g.ID).Dur("elapsed", g.Elapsed).Msg("grid complete")
	return g, nil
}

type sampler struct {
	model  nnet.Model
	batch  nnet.BatchPredictor
	grid   *Grid
	f1, f2 []float64
	prog   Progress
	total  int
	every  int
	count  int
	mu     sync.Mutex
}

// input vector x*f1 + y*f2
func (s *sampler) input(dst []float64, x, y float64) {
	floats.ScaleTo(dst, x, s.f1)
	floats.AddScaled(dst, y, s.f2)
}

// evaluate one row of the grid
func (s *sampler) row(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	X, Y := s.grid.X.RawRowView(i), s.grid.Y.RawRowView(i)
	Z := s.grid.Z.RawRowView(i)
	if s.batch != nil {
		in := mat.NewDense(len(Z), len(s.f1), nil)
		for j := range Z {
			s.input(in.RawRowView(j), X[j], Y[j])
		}
		out, err := s.batch.PredictBatch(in)
		if err != nil {
			return fmt.Errorf("predict row %d: %w", i, err)
		}
		if len(out) != len(Z) {
			return fmt.Errorf("predict row %d: have %d outputs expect %d", i, len(out), len(Z))
		}
		copy(Z, out)
		s.done(len(Z))
		return nil
	}
	in := make([]float64, len(s.f1))
	for j := range Z {
		s.input(in, X[j], Y[j])
		z, err := s.model.Predict(in)
		if err != nil {
			return fmt.Errorf("predict at (%d,%d): %w", i, j, err)
		}
		Z[j] = z
		s.done(1)
	}
	return nil
}

// update point count and report each time a multiple of s.every is passed
func (s *sampler) done(points int) {
	pointsEvaluated.Add(float64(points))
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.count
	s.count += points
	if s.prog == nil {
		return
	}
	for k := prev/s.every + 1; k*s.every <= s.count; k++ {
		s.prog.Update(k*s.every, s.total)
	}
}
