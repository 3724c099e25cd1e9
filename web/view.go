package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jnb666/nonlin/num"
	"github.com/jnb666/nonlin/plot3d"
	"github.com/jnb666/nonlin/stats"
	"github.com/jnb666/nonlin/surface"
	"github.com/rs/zerolog/log"
)

type ViewPage struct {
	*Templates
	sess *Session
}

type viewData struct {
	*Templates
	Model   string
	Heading string
	Status  string
	Err     error
	Grid    *surface.Grid
	Stats   stats.Average
	Summary template.HTML
	Plot    template.HTML
}

// Base data for handler functions to view the surface
func NewViewPage(t *Templates, sess *Session) *ViewPage {
	p := &ViewPage{sess: sess}
	p.Templates = t.Select("/view")
	p.AddOption(Link{Name: "start", Url: "/start"})
	p.AddOption(Link{Name: "stop", Url: "/stop"})
	return p
}

// Handler function for the main view page
func (p *ViewPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conf := p.sess.Config()
		running, count, total, err := p.sess.Status()
		d := viewData{
			Templates: p.Templates,
			Model:     conf.Model,
			Heading:   conf.Model,
			Status:    "idle",
			Err:       err,
			Grid:      p.sess.Grid(),
		}
		if running {
			d.Status = fmt.Sprintf("%d / %d points computed", count, total)
		}
		if d.Grid != nil {
			d.Stats = stats.Summary(num.Flatten(d.Grid.Z).RawVector().Data)
			d.Summary = d.Stats.HTML()
			fig, err := p.sess.Figure()
			if err != nil {
				logError(w, err)
				return
			}
			if d.Plot, err = writePlot(fig); err != nil {
				logError(w, err)
				return
			}
		}
		p.Exec(w, "view", d)
	}
}

// Handler function to start or stop surface generation
func (p *ViewPage) Command() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["cmd"] {
		case "start":
			// not tied to the request context which ends when we redirect
			if err := p.sess.Start(context.Background()); errors.Is(err, ErrRunning) {
				log.Info().Msg("skip start - already running")
			}
		case "stop":
			p.sess.Stop()
		}
		http.Redirect(w, r, "/view", http.StatusFound)
	}
}

// Handler function to generate the surface plot as svg or png
func (p *ViewPage) Image() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		format := mux.Vars(r)["format"]
		fig, err := p.sess.Figure()
		if errors.Is(err, ErrNoGrid) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logError(w, err)
			return
		}
		var buf bytes.Buffer
		if _, err = fig.Render(&buf, format); err != nil {
			logError(w, err)
			return
		}
		if format == "svg" {
			w.Header().Set("Content-Type", "image/svg+xml")
		} else {
			w.Header().Set("Content-Type", "image/"+format)
		}
		w.Write(buf.Bytes())
	}
}

func writePlot(fig *plot3d.Figure) (template.HTML, error) {
	var buf bytes.Buffer
	if _, err := fig.Render(&buf, "svg"); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
