// Package nnet contains routines for constructing and evaluating feed forward neural networks.
package nnet

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/jnb666/nonlin/num"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Model is the capability set needed to inspect a trained network: read the weight
// matrix of each layer which has parameters, in layer order, and evaluate the scalar
// network output for a single input vector.
type Model interface {
	Weights() []*mat.Dense
	Predict(input []float64) (float64, error)
}

// BatchPredictor is implemented by models which can evaluate a batch of inputs, one per row, in a single call.
type BatchPredictor interface {
	PredictBatch(input *mat.Dense) ([]float64, error)
}

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers []Layer
}

// New function creates a new network with the given layers.
func New(conf Config) (*Network, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	n := &Network{Config: conf}
	shape := []int{conf.Inputs}
	for _, l := range conf.Layers {
		layer, err := l.Unmarshal()
		if err != nil {
			return nil, err
		}
		layer.Init(shape)
		n.Layers = append(n.Layers, layer)
		shape = layer.OutShape(shape)
	}
	return n, nil
}

// Initialise network weights using a uniform or normal distribution.
// Weights for each layer are scaled by 1/sqrt(nin)
func (n *Network) InitWeights(rng *rand.Rand) {
	shape := []int{n.Inputs}
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			nin := num.Prod(shape)
			scale := 1 / math.Sqrt(float64(nin))
			l.InitParams(scale, n.Bias, n.NormalWeights, rng)
		}
		shape = layer.OutShape(shape)
	}
	if n.DebugLevel >= 2 {
		n.PrintWeights()
	}
}

// Weights returns the weight matrix of each parameter layer in order. The matrices are
// owned by the network and should not be modified.
func (n *Network) Weights() []*mat.Dense {
	var res []*mat.Dense
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, _ := l.Params()
			res = append(res, W)
		}
	}
	return res
}

// Feed forward the input to get the predicted output, input has one sample per row.
func (n *Network) Fprop(input *mat.Dense) *mat.Dense {
	pred := input
	for i, layer := range n.Layers {
		if n.DebugLevel >= 3 {
			fmt.Printf("layer %d input\n%s", i, num.Format(pred))
		}
		pred = layer.Fprop(pred)
	}
	return pred
}

// Predict the scalar output for a single input vector.
func (n *Network) Predict(input []float64) (float64, error) {
	if len(input) != n.Inputs {
		return 0, fmt.Errorf("predict: input size mismatch - have %d expect %d", len(input), n.Inputs)
	}
	x := mat.NewDense(1, n.Inputs, append([]float64(nil), input...))
	return n.Fprop(x).At(0, 0), nil
}

// PredictBatch returns the scalar output for each row of the input matrix.
func (n *Network) PredictBatch(input *mat.Dense) ([]float64, error) {
	rows, cols := input.Dims()
	if cols != n.Inputs {
		return nil, fmt.Errorf("predict: input size mismatch - have %d expect %d", cols, n.Inputs)
	}
	return mat.Col(make([]float64, rows), 0, n.Fprop(input)), nil
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	shape := []int{n.Inputs}
	for i, layer := range n.Layers {
		s[i] = fmt.Sprintf("%2d: %-25s %v", i, layer.ToString(), shape)
		shape = layer.OutShape(shape)
	}
	return fmt.Sprintf("%s\n== Layers ==\n%s", n.Config, strings.Join(s, "\n"))
}

// Print network weights
func (n *Network) PrintWeights() {
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			W, B := l.Params()
			fmt.Printf("== Layer %d weights ==\n%s%s", i, num.Format(W), num.Format(B))
		}
	}
}

// Set random number seed, or random seed if seed <= 0
func SetSeed(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	log.Debug().Int64("seed", seed).Msg("random seed")
	return rand.New(rand.NewSource(seed))
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}
