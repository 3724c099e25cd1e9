package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// NewRouter sets up the routes for the session. Requests need basic auth if a user is configured.
func NewRouter(sess *Session) (*mux.Router, error) {
	t, err := NewTemplates()
	if err != nil {
		return nil, err
	}
	viewPage := NewViewPage(t.Clone(), sess)
	configPage := NewConfigPage(t.Clone(), sess)

	r := mux.NewRouter()
	r.Handle("/", http.RedirectHandler("/view", http.StatusFound))
	r.HandleFunc("/view", viewPage.Base())
	r.HandleFunc("/{cmd:(?:start|stop)}", viewPage.Command())
	r.HandleFunc("/plot.{format:(?:svg|png)}", viewPage.Image())
	r.HandleFunc("/heatmap.png", viewPage.Heatmap())
	r.HandleFunc("/filters.png", viewPage.Filters())
	r.HandleFunc("/ws", sess.Hub.Websocket())

	r.HandleFunc("/config", configPage.Base())
	r.HandleFunc("/config/save", configPage.Save()).Methods("POST")

	r.Handle("/metrics", promhttp.Handler())

	if conf := sess.Config(); conf.User != "" {
		r.Use(NewAuthMiddleware(conf.User, conf.Password).Middleware)
	}
	return r, nil
}

// Serve runs the web server on the configured address until the context is cancelled.
func Serve(ctx context.Context, sess *Session) error {
	r, err := NewRouter(sess)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: sess.Config().Addr, Handler: r}
	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("serving web page at http://localhost%s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err = <-errc:
	case <-ctx.Done():
		log.Info().Msg("shutting down web server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(sctx)
	}
	sess.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
