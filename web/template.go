package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed assets/*.html
var assets embed.FS

// Template and main menu definition
type Templates struct {
	*template.Template
	Menu    []Link
	Options []Link
}

type Link struct {
	Url      string
	Name     string
	Selected bool
	Submit   bool
}

// Load and parse templates and initialise main menu
func NewTemplates() (*Templates, error) {
	var err error
	t := &Templates{
		Menu: []Link{
			{Name: "surface", Url: "/view"},
			{Name: "config", Url: "/config"},
		},
		Options: []Link{},
	}
	t.Template, err = template.ParseFS(assets, "assets/*.html")
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Templates) Clone() *Templates {
	return &Templates{
		Template: t.Template,
		Menu:     append([]Link{}, t.Menu...),
		Options:  append([]Link{}, t.Options...),
	}
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = strings.HasPrefix(key.Url, url)
	}
	return t
}

func (t *Templates) AddOption(l Link) *Templates {
	t.Options = append(t.Options, l)
	return t
}

// Exec renders the named template, reporting any error to the client.
func (t *Templates) Exec(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		logError(w, err)
	}
}

func logError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("web")
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
