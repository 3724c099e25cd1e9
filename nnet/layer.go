package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Layer interface type represents one layer of the neural net.
// Fprop does not modify the layer so a network may be evaluated from several goroutines at once.
type Layer interface {
	Init(inShape []int) Layer
	OutShape(inShape []int) []int
	Fprop(in *mat.Dense) *mat.Dense
	Type() string
	ToString() string
}

// ParamLayer is a layer with weight and bias parameters
type ParamLayer interface {
	Layer
	InitParams(scale, bias float64, normal bool, rng *rand.Rand)
	Params() (W, B *mat.Dense)
	SetParams(W, B mat.Matrix) error
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage `json:",omitempty"`
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() (Layer, error) {
	switch l.Type {
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	default:
		return nil, fmt.Errorf("invalid layer type: %q", l.Type)
	}
}

func (l LayerConfig) String() string {
	layer, err := l.Unmarshal()
	if err != nil {
		return err.Error()
	}
	return layer.ToString()
}

// Linear fully connected layer, implements ParamLayer interface.
// Weights are stored as an nIn x Nout matrix so that each column is the filter for one output unit.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) (Layer, error) {
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.Nout < 1 {
		return nil, fmt.Errorf("linear: invalid number of outputs %d", c.Nout)
	}
	return &linear{Linear: *c}, nil
}

// Activation layer applies a nonlinear function elementwise.
// Atype is one of linear, sigmoid, tanh, relu, softplus or exp.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) (Layer, error) {
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	layer := &activation{Activation: *c}
	switch c.Atype {
	case "linear":
		layer.activ = func(x float64) float64 { return x }
	case "sigmoid":
		layer.activ = func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	case "tanh":
		layer.activ = math.Tanh
	case "relu":
		layer.activ = func(x float64) float64 { return math.Max(x, 0) }
	case "softplus":
		layer.activ = softplus
	case "exp":
		layer.activ = math.Exp
	default:
		return nil, fmt.Errorf("activation type %q invalid", c.Atype)
	}
	return layer, nil
}

func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// linear layer implementation
type linear struct {
	Linear
	w, b *mat.Dense
}

func (l *linear) Type() string { return "linear" }

func (l *linear) OutShape(inShape []int) []int {
	return []int{l.Nout}
}

func (l *linear) Init(inShape []int) Layer {
	if len(inShape) != 1 {
		panic("Linear: expect 1 dimensional input")
	}
	l.w = mat.NewDense(inShape[0], l.Nout, nil)
	l.b = mat.NewDense(1, l.Nout, nil)
	return l
}

// Fprop computes in * W + b for each row of the input batch.
func (l *linear) Fprop(in *mat.Dense) *mat.Dense {
	rows, _ := in.Dims()
	out := mat.NewDense(rows, l.Nout, nil)
	out.Mul(in, l.w)
	bias := l.b.RawRowView(0)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return out
}

func (l *linear) Params() (W, B *mat.Dense) {
	return l.w, l.b
}

func (l *linear) SetParams(W, B mat.Matrix) error {
	wr, wc := l.w.Dims()
	if r, c := W.Dims(); r != wr || c != wc {
		return fmt.Errorf("linear: weight shape mismatch - have %dx%d expect %dx%d", r, c, wr, wc)
	}
	if r, c := B.Dims(); r*c != wc {
		return fmt.Errorf("linear: bias size mismatch - have %d expect %d", r*c, wc)
	}
	l.w.Copy(W)
	r, c := B.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			l.b.Set(0, i*c+j, B.At(i, j))
		}
	}
	return nil
}

func (l *linear) InitParams(scale, bias float64, normal bool, rng *rand.Rand) {
	r, c := l.w.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if normal {
				l.w.Set(i, j, rng.NormFloat64()*scale)
			} else {
				l.w.Set(i, j, (2*rng.Float64()-1)*scale)
			}
		}
	}
	for j := 0; j < c; j++ {
		l.b.Set(0, j, bias)
	}
}

// activation layers
type activation struct {
	Activation
	activ func(float64) float64
}

func (l *activation) Type() string { return "activation" }

func (l *activation) OutShape(inShape []int) []int { return inShape }

func (l *activation) Init(inShape []int) Layer { return l }

func (l *activation) Fprop(in *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(i, j int, v float64) float64 { return l.activ(v) }, in)
	return &out
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
