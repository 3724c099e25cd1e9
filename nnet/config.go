package nnet

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"

	"github.com/rs/zerolog/log"
)

// Network configuration settings
type Config struct {
	Model         string
	Inputs        int
	Bias          float64
	NormalWeights bool
	RandSeed      int64
	DebugLevel    int
	Layers        []LayerConfig
}

// Load network from json file under DataDir
func LoadConfig(name string) (c Config, err error) {
	filePath := path.Join(DataDir, name)
	var f *os.File
	if f, err = os.Open(filePath); err != nil {
		return
	}
	defer f.Close()
	log.Info().Str("file", name).Msg("loading network config")
	dec := json.NewDecoder(f)
	err = dec.Decode(&c)
	return
}

// Append layers to the config struct
func (c Config) AddLayers(layers ...ConfigLayer) Config {
	for _, l := range layers {
		c.Layers = append(c.Layers, l.Marshal())
	}
	return c
}

// Save config to JSON file under DataDir. The file is written to a temporary name and then renamed.
func (c Config) Save(name string) error {
	filePath := path.Join(DataDir, "."+name)
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	log.Info().Str("file", name).Msg("saving network config")
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(c); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(filePath, path.Join(DataDir, name))
}

// Validate checks the config describes a network with a single scalar output.
func (c Config) Validate() error {
	if c.Inputs < 1 {
		return fmt.Errorf("config %q: invalid number of inputs %d", c.Model, c.Inputs)
	}
	if len(c.Layers) == 0 {
		return fmt.Errorf("config %q: no layers", c.Model)
	}
	nout := c.Inputs
	for i, l := range c.Layers {
		layer, err := l.Unmarshal()
		if err != nil {
			return fmt.Errorf("config %q layer %d: %w", c.Model, i, err)
		}
		nout = layer.OutShape([]int{nout})[0]
	}
	if nout != 1 {
		return fmt.Errorf("config %q: network output must be scalar, have %d outputs", c.Model, nout)
	}
	return nil
}

func (c Config) Fields() []string {
	st := reflect.TypeOf(c)
	fld := make([]string, st.NumField()-1)
	for i := range fld {
		fld[i] = st.Field(i).Name
	}
	return fld
}

func (c Config) Get(key string) interface{} {
	s := reflect.ValueOf(c)
	return s.FieldByName(key).Interface()
}

func (c Config) configString() string {
	fields := c.Fields()
	str := []string{"== Config =="}
	for _, key := range fields {
		str = append(str, fmt.Sprintf("%-14s: %v", key, c.Get(key)))
	}
	return strings.Join(str, "\n")
}

func (c Config) String() string {
	s := c.configString()
	if c.Layers != nil {
		str := []string{"\n== Network =="}
		for i, layer := range c.Layers {
			str = append(str, fmt.Sprintf("%2d: %s", i, layer))
		}
		s += strings.Join(str, "\n")
	}
	return s
}
