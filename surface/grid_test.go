package surface

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/num"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// model whose output is the projection of the input onto the first basis vector
func projectionModel(t *testing.T, W *mat.Dense) testModel {
	basis, err := Basis(W)
	require.NoError(t, err)
	f1 := mat.Col(nil, 0, basis)
	return testModel{
		weights: []*mat.Dense{W},
		fn:      func(x []float64) (float64, error) { return floats.Dot(x, f1), nil },
	}
}

func randNetwork(t *testing.T, inputs int) *nnet.Network {
	conf := nnet.Config{Model: "test", Inputs: inputs, Bias: 0.1}.AddLayers(
		nnet.Linear{Nout: 2},
		nnet.Activation{Atype: "softplus"},
		nnet.Linear{Nout: 1},
		nnet.Activation{Atype: "exp"},
	)
	net, err := nnet.New(conf)
	require.NoError(t, err)
	net.InitWeights(rand.New(rand.NewSource(42)))
	return net
}

func TestGridShape(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	m := projectionModel(t, randMatrix(rng, 8, 2))
	g, err := Generate(context.Background(), m, Options{Bound: 1, Step: 0.01}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, g.Size())
	for _, a := range []*mat.Dense{g.X, g.Y, g.Z} {
		assert.Equal(t, []int{200, 200}, num.Dims(a))
	}
	assert.NotEmpty(t, g.ID)

	// x varies along columns, y along rows
	assert.Equal(t, -1.0, g.X.At(0, 0))
	assert.InDelta(t, 0.99, g.X.At(0, 199), 1e-9)
	assert.Equal(t, g.X.At(0, 5), g.X.At(150, 5))
	assert.InDelta(t, 0.99, g.Y.At(199, 0), 1e-9)
	assert.Equal(t, g.Y.At(7, 0), g.Y.At(7, 123))
}

func TestGridIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m := projectionModel(t, randMatrix(rng, 5, 2))
	g, err := Generate(context.Background(), m, Options{Bound: 0.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, g.Size())
	assert.True(t, mat.EqualApprox(g.Z, g.X, 1e-9))
}

func TestGridNetwork(t *testing.T) {
	net := randNetwork(t, 6)
	g, err := Generate(context.Background(), net, Options{Bound: 0.2, Step: 0.05}, nil)
	require.NoError(t, err)
	t.Logf("== Z ==\n%s", num.Format(g.Z))

	basis, err := Extract(net, false, "")
	require.NoError(t, err)
	f1, f2 := mat.Col(nil, 0, basis), mat.Col(nil, 1, basis)
	in := make([]float64, 6)
	for _, ij := range [][2]int{{0, 0}, {3, 1}, {7, 7}} {
		i, j := ij[0], ij[1]
		floats.ScaleTo(in, g.X.At(i, j), f1)
		floats.AddScaled(in, g.Y.At(i, j), f2)
		z, err := net.Predict(in)
		require.NoError(t, err)
		assert.Equal(t, z, g.Z.At(i, j))
	}
}

func TestGridParallel(t *testing.T) {
	net := randNetwork(t, 10)
	ctx := context.Background()
	opts := Options{Bound: 0.5, Step: 0.02}
	seq, err := Generate(ctx, net, opts, nil)
	require.NoError(t, err)

	for _, o := range []Options{
		{Bound: 0.5, Step: 0.02, Workers: 4},
		{Bound: 0.5, Step: 0.02, Batch: true},
		{Bound: 0.5, Step: 0.02, Workers: 3, Batch: true},
	} {
		g, err := Generate(ctx, net, o, nil)
		require.NoError(t, err)
		opt := cmpopts.EquateApprox(0, 1e-12)
		if diff := cmp.Diff(seq.Z.RawMatrix().Data, g.Z.RawMatrix().Data, opt); diff != "" {
			t.Errorf("workers=%d batch=%v mismatch (-seq +got):\n%s", o.Workers, o.Batch, diff)
		}
	}
}

func TestGridProgress(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	m := projectionModel(t, randMatrix(rng, 4, 2))
	var updates []int
	prog := ProgressFunc(func(count, total int) {
		assert.Equal(t, 40000, total)
		updates = append(updates, count)
	})
	_, err := Generate(context.Background(), m, Options{Bound: 1}, prog)
	require.NoError(t, err)
	assert.Equal(t, []int{8000, 16000, 24000, 32000, 40000}, updates)

	// tiny grid with fewer than 5 points must not divide by zero
	updates = nil
	prog = ProgressFunc(func(count, total int) { updates = append(updates, count) })
	g, err := Generate(context.Background(), m, Options{Bound: 0.01}, prog)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Size())
	assert.Equal(t, []int{1, 2, 3, 4}, updates)
}

func TestGridErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	W := randMatrix(rng, 4, 2)
	errPredict := errors.New("bad input")
	calls := 0
	m := testModel{weights: []*mat.Dense{W}, fn: func(x []float64) (float64, error) {
		calls++
		if calls == 50 {
			return 0, errPredict
		}
		return 1, nil
	}}
	g, err := Generate(context.Background(), m, Options{Bound: 0.5}, nil)
	assert.ErrorIs(t, err, errPredict)
	assert.Nil(t, g)

	_, err = Generate(context.Background(), testModel{weights: []*mat.Dense{randMatrix(rng, 10, 3)}}, Options{Bound: 1}, nil)
	assert.ErrorIs(t, err, ErrFilterCount)

	_, err = Generate(context.Background(), m, Options{Bound: 0}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g, err = Generate(ctx, projectionModel(t, W), Options{Bound: 0.5, Workers: 2}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, g)
}

func TestGridInvalidOptions(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	calls := 0
	m := testModel{weights: []*mat.Dense{randMatrix(rng, 4, 2)}, fn: func(x []float64) (float64, error) {
		calls++
		return 1, nil
	}}
	for _, opts := range []Options{
		{Bound: 0},
		{Bound: -1},
		{Bound: math.NaN()},
		{Bound: math.Inf(1)},
		{Bound: math.Inf(-1)},
		{Bound: 1, Step: -0.1},
		{Bound: 1, Step: math.NaN()},
		{Bound: 1, Step: math.Inf(1)},
		{Bound: 1.5, Step: 1e-7},
		{Bound: MaxSize, Step: 0.5},
	} {
		g, err := Generate(context.Background(), m, opts, nil)
		assert.Error(t, err, "bound=%g step=%g", opts.Bound, opts.Step)
		assert.Nil(t, g)
	}
	assert.Equal(t, 0, calls)

	g, err := Generate(context.Background(), m, Options{Bound: MaxSize / 2, Step: 1000}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Size())
}
