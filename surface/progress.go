package surface

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jnb666/nonlin/stats"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Progress is notified periodically while a grid is being computed.
type Progress interface {
	Update(count, total int)
}

// ProgressFunc adapts a function to the Progress interface.
type ProgressFunc func(count, total int)

func (f ProgressFunc) Update(count, total int) { f(count, total) }

// Number of points between progress updates, at most 5 updates per grid.
func progressEvery(total int) int {
	if every := total / 5; every > 0 {
		return every
	}
	return 1
}

// LogProgress reports progress with the point rate. If the output is a terminal it
// overwrites a single status line, otherwise it writes an entry per update to the global logger.
type LogProgress struct {
	out     io.Writer
	tty     bool
	start   time.Time
	last    time.Time
	lastN   int
	rate    stats.EMA
	started bool
	sync.Mutex
}

// NewLogProgress returns a progress reporter writing to w.
func NewLogProgress(w io.Writer) *LogProgress {
	p := &LogProgress{out: w}
	if f, ok := w.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *LogProgress) Update(count, total int) {
	p.Lock()
	defer p.Unlock()
	now := time.Now()
	if !p.started {
		p.start, p.last, p.started = now, now, true
	}
	if dt := now.Sub(p.last).Seconds(); dt > 0 {
		p.rate = stats.EMA(p.rate.Add(float64(count-p.lastN)/dt, 3))
	}
	p.last, p.lastN = now, count
	if p.tty {
		fmt.Fprintf(p.out, "\r%d / %d points computed  %.0f/s  ", count, total, float64(p.rate))
		if count >= total {
			fmt.Fprintln(p.out)
		}
		return
	}
	log.Info().Int("count", count).Int("total", total).Float64("rate", float64(p.rate)).
		Msgf("%d / %d points computed", count, total)
}
