// Package web serves the rendered nonlinearity surface with live progress updates.
package web

import (
	"context"
	"errors"
	"sync"

	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/plot3d"
	"github.com/jnb666/nonlin/surface"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrRunning = errors.New("surface generation already running")
	ErrNoGrid  = errors.New("no surface has been computed")
	ErrNoModel = errors.New("no model loaded")
)

// Session holds the model with its config and the most recently computed surface.
type Session struct {
	Hub     *Hub
	model   nnet.Model
	conf    Config
	grid    *surface.Grid
	err     error
	running bool
	count   int
	total   int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sync.Mutex
}

// NewSession creates a session for the model. No surface is computed until Start is called.
func NewSession(model nnet.Model, conf *Config) *Session {
	return &Session{Hub: NewHub(), model: model, conf: *conf}
}

// Config returns a copy of the current config.
func (s *Session) Config() *Config {
	s.Lock()
	defer s.Unlock()
	c := s.conf
	return &c
}

// SetConfig replaces the config. New render settings apply to the current surface, new
// sample settings take effect on the next Start.
func (s *Session) SetConfig(conf *Config) {
	s.Lock()
	defer s.Unlock()
	s.conf = *conf
}

// Start computes a new surface in the background, progress and completion are sent to the hub.
func (s *Session) Start(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()
	if s.running {
		return ErrRunning
	}
	if s.model == nil {
		return ErrNoModel
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.count, s.total, s.err = 0, 0, nil
	opts := s.conf.Sample
	log.Info().Str("model", s.conf.Model).Float64("bound", opts.Bound).Float64("step", opts.Step).Msg("start surface")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		grid, err := surface.Generate(ctx, s.model, opts, s)
		s.Lock()
		s.running = false
		s.cancel()
		if err != nil {
			s.err = err
		} else {
			s.grid = grid
		}
		s.Unlock()
		if err != nil {
			log.Error().Err(err).Msg("surface generation failed")
			s.Hub.Broadcast("error:" + err.Error())
			return
		}
		s.Hub.Broadcast("done:" + grid.ID)
	}()
	return nil
}

// Update implements the surface.Progress interface.
func (s *Session) Update(count, total int) {
	s.Lock()
	s.count, s.total = count, total
	s.Unlock()
	s.Hub.Update(count, total)
}

// Stop cancels a running generation.
func (s *Session) Stop() {
	s.Lock()
	defer s.Unlock()
	if s.running {
		s.cancel()
	}
}

// Wait blocks until any background generation has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops any running generation and disconnects the websocket clients.
func (s *Session) Close() {
	s.Stop()
	s.Wait()
	s.Hub.Close()
}

// Status returns the progress of the current run and the error from the last one.
func (s *Session) Status() (running bool, count, total int, err error) {
	s.Lock()
	defer s.Unlock()
	return s.running, s.count, s.total, s.err
}

// Grid returns the latest surface, or nil if none has been computed.
func (s *Session) Grid() *surface.Grid {
	s.Lock()
	defer s.Unlock()
	return s.grid
}

// SetGrid installs a precomputed surface.
func (s *Session) SetGrid(g *surface.Grid) {
	s.Lock()
	defer s.Unlock()
	s.grid = g
}

// Figure returns a new plot of the latest surface using the current render settings.
func (s *Session) Figure() (*plot3d.Figure, error) {
	s.Lock()
	grid, opts := s.grid, s.conf.Render
	s.Unlock()
	if grid == nil {
		return nil, ErrNoGrid
	}
	return plot3d.New(grid.X, grid.Y, grid.Z, opts)
}

// Filters returns the raw filter pair selected by the current sample settings.
func (s *Session) Filters() (*mat.Dense, error) {
	s.Lock()
	model, es := s.model, s.conf.Sample.ES
	s.Unlock()
	if model == nil {
		return nil, ErrNoModel
	}
	return surface.Filters(model.Weights(), es)
}
