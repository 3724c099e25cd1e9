package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/plot3d"
	"github.com/jnb666/nonlin/surface"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const DefaultAddr = ":8080"

// Server and surface settings, loaded from <model>.yaml under nnet.DataDir.
type Config struct {
	Model string `yaml:"model"`
	Addr  string `yaml:"addr"`
	// Basic auth is enabled if User is set.
	User     string          `yaml:"user"`
	Password string          `yaml:"password"`
	Sample   surface.Options `yaml:"sample"`
	Render   plot3d.Options  `yaml:"render"`
}

// NewConfig returns the config for the model, read from file if it exists else the defaults.
func NewConfig(model string) (*Config, error) {
	c := &Config{
		Model:  model,
		Addr:   DefaultAddr,
		Sample: surface.DefaultOptions(),
		Render: plot3d.DefaultOptions(),
	}
	filePath := path.Join(nnet.DataDir, model+".yaml")
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("file", filePath).Msg("loading config")
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config %s: %w", filePath, err)
	}
	c.Model = model
	return c, nil
}

// Save writes the config to <model>.yaml under nnet.DataDir.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	filePath := path.Join(nnet.DataDir, c.Model+".yaml")
	log.Info().Str("file", filePath).Msg("saving config")
	return os.WriteFile(filePath, data, 0o644)
}

type Field struct {
	Name    string
	Value   string
	Error   string
	Boolean bool
	On      bool
}

// editable sections of the config
func (c *Config) sections() map[string]reflect.Value {
	return map[string]reflect.Value{
		"sample": reflect.ValueOf(&c.Sample).Elem(),
		"render": reflect.ValueOf(&c.Render).Elem(),
	}
}

// settings which can only be changed in the config file or from the command line
var fileOnly = map[string]bool{
	"sample.dump_path": true,
}

// Fields lists the editable settings named as section.key using the yaml tags.
func (c *Config) Fields() []Field {
	var flds []Field
	for _, sec := range []string{"sample", "render"} {
		v := c.sections()[sec]
		for i := 0; i < v.NumField(); i++ {
			name := sec + "." + yamlName(v.Type().Field(i))
			if fileOnly[name] {
				continue
			}
			val := v.Field(i).Interface()
			f := Field{Name: name, Value: fmt.Sprint(val)}
			f.On, f.Boolean = val.(bool)
			flds = append(flds, f)
		}
	}
	return flds
}

// Set updates a field given its section.key name, the value is parsed as yaml.
func (c *Config) Set(name, value string) error {
	sec, key, ok := strings.Cut(name, ".")
	v, found := c.sections()[sec]
	if !ok || !found || fileOnly[name] {
		return fmt.Errorf("invalid config field %q", name)
	}
	for i := 0; i < v.NumField(); i++ {
		if yamlName(v.Type().Field(i)) != key {
			continue
		}
		fld := v.Field(i)
		switch fld.Kind() {
		case reflect.String:
			fld.SetString(value)
			return nil
		case reflect.Bool:
			fld.SetBool(value == "true")
			return nil
		}
		ptr := reflect.New(fld.Type())
		if err := yaml.Unmarshal([]byte(value), ptr.Interface()); err != nil || strings.TrimSpace(value) == "" {
			return fmt.Errorf("invalid value for %s: %q", name, value)
		}
		if f, isFloat := ptr.Elem().Interface().(float64); isFloat && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return fmt.Errorf("invalid value for %s: %q", name, value)
		}
		fld.Set(ptr.Elem())
		return nil
	}
	return fmt.Errorf("invalid config field %q", name)
}

func yamlName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag != "" {
		return tag
	}
	return strings.ToLower(f.Name)
}

type ConfigPage struct {
	*Templates
	sess *Session
}

type configData struct {
	*Templates
	Model     string
	Heading   string
	Fields    []Field
	Colormaps []string
}

// Base data for handler functions to view and update the surface config
func NewConfigPage(t *Templates, sess *Session) *ConfigPage {
	p := &ConfigPage{sess: sess}
	p.Templates = t.Select("/config")
	p.AddOption(Link{Name: "save", Url: "/config/save", Submit: true})
	return p
}

// Handler function for the config template
func (p *ConfigPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conf := p.sess.Config()
		p.Exec(w, "config", configData{
			Templates: p.Templates,
			Model:     conf.Model,
			Heading:   conf.Model,
			Fields:    conf.Fields(),
			Colormaps: plot3d.Colormaps(),
		})
	}
}

// Handler function for the config form save action. Invalid fields are flagged and nothing is updated.
func (p *ConfigPage) Save() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conf := p.sess.Config()
		flds := conf.Fields()
		haveErrors := false
		for i, fld := range flds {
			val := r.Form.Get(fld.Name)
			if err := conf.Set(fld.Name, val); err != nil {
				flds[i].Value = val
				flds[i].Error = "invalid syntax"
				haveErrors = true
			}
		}
		if _, err := plot3d.Lookup(conf.Render.Cmap); err != nil {
			for i := range flds {
				if flds[i].Name == "render.cmap" {
					flds[i].Error = "unknown colormap"
				}
			}
			haveErrors = true
		}
		if haveErrors {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusBadRequest)
			p.Exec(w, "config", configData{
				Templates: p.Templates,
				Model:     conf.Model,
				Heading:   conf.Model,
				Fields:    flds,
				Colormaps: plot3d.Colormaps(),
			})
			return
		}
		p.sess.SetConfig(conf)
		if err := conf.Save(); err != nil {
			log.Warn().Err(err).Msg("config not saved")
		}
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}
