package nnet

import (
	"encoding/gob"
	"fmt"
	"os"
	"path"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Directory holding model config and weight files.
var DataDir = "data"

// Persisted model: the config plus weights and biases for each parameter layer.
type NetworkData struct {
	Model  string
	Conf   Config
	Params []LayerData
}

// Weights are stored in row major order.
type LayerData struct {
	Layer   int
	Rows    int
	Cols    int
	Weights []float64
	Biases  []float64
}

// Export current weights prior to saving to file
func (n *Network) Export() *NetworkData {
	d := &NetworkData{Model: n.Model, Conf: n.Config}
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			r, c := W.Dims()
			d.Params = append(d.Params, LayerData{
				Layer:   i,
				Rows:    r,
				Cols:    c,
				Weights: mat.DenseCopyOf(W).RawMatrix().Data,
				Biases:  mat.DenseCopyOf(B).RawMatrix().Data,
			})
		}
	}
	return d
}

// Import weights after loading from file
func (n *Network) Import(d *NetworkData) error {
	nlayers := len(n.Layers)
	for _, p := range d.Params {
		if p.Layer >= nlayers {
			return fmt.Errorf("layer %d import error: network has %d layers total", p.Layer, nlayers)
		}
		layer, ok := n.Layers[p.Layer].(ParamLayer)
		if !ok {
			return fmt.Errorf("layer %d import error: not a ParamLayer", p.Layer)
		}
		W, B := layer.Params()
		wr, wc := W.Dims()
		_, bc := B.Dims()
		if p.Rows != wr || p.Cols != wc || len(p.Weights) != wr*wc || len(p.Biases) != bc {
			return fmt.Errorf("layer %d import error: size mismatch - have %dx%d %d - expect %dx%d %d",
				p.Layer, p.Rows, p.Cols, len(p.Biases), wr, wc, bc)
		}
		err := layer.SetParams(mat.NewDense(wr, wc, p.Weights), mat.NewDense(1, bc, p.Biases))
		if err != nil {
			return fmt.Errorf("layer %d import error: %w", p.Layer, err)
		}
	}
	return nil
}

// Encode model in gob format and save to <model>.net under DataDir
func SaveNetwork(n *Network) error {
	filePath := path.Join(DataDir, n.Model+".net")
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Info().Str("model", n.Model).Str("file", filePath).Msg("saving network")
	return gob.NewEncoder(f).Encode(n.Export())
}

// Read back gob encoded model from <model>.net under DataDir and construct the network.
func LoadNetwork(model string) (*Network, error) {
	filePath := path.Join(DataDir, model+".net")
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	log.Info().Str("model", model).Str("file", filePath).Msg("loading network")
	var d NetworkData
	if err = gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	n, err := New(d.Conf)
	if err != nil {
		return nil, err
	}
	if err = n.Import(&d); err != nil {
		return nil, err
	}
	return n, nil
}

// LoadModel returns the saved network from <model>.net if present. Otherwise the network is built
// from the JSON config in <model>.conf with weights initialised from its random seed.
func LoadModel(model string) (*Network, error) {
	if FileExists(model + ".net") {
		return LoadNetwork(model)
	}
	if !FileExists(model + ".conf") {
		return nil, fmt.Errorf("model %s: no %s.net or %s.conf under %s", model, model, model, DataDir)
	}
	conf, err := LoadConfig(model + ".conf")
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}
	n, err := New(conf)
	if err != nil {
		return nil, err
	}
	log.Warn().Str("model", model).Int64("seed", conf.RandSeed).Msg("no saved weights - using random initialisation")
	n.InitWeights(SetSeed(conf.RandSeed))
	return n, nil
}

// Check if file exists under DataDir
func FileExists(name string) bool {
	filePath := path.Join(DataDir, name)
	_, err := os.Stat(filePath)
	return err == nil
}
