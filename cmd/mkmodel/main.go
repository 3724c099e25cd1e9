// mkmodel writes a sample two filter network to the data directory.
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/jnb666/nonlin/nnet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/mat"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	var (
		model  = pflag.String("model", "simple_2f", "model name")
		size   = pflag.Int("size", 8, "side of the square input patch")
		random = pflag.Bool("random", false, "use random weights instead of gabor filters")
		seed   = pflag.Int64("seed", 1, "random number seed")
		force  = pflag.Bool("force", false, "overwrite an existing model")
	)
	pflag.StringVar(&nnet.DataDir, "data", nnet.DataDir, "data directory")
	pflag.Parse()

	conf := nnet.Config{
		Model:    *model,
		Inputs:   *size * *size,
		RandSeed: *seed,
	}.AddLayers(
		nnet.Linear{Nout: 2},
		nnet.Activation{Atype: "softplus"},
		nnet.Linear{Nout: 1},
		nnet.Activation{Atype: "exp"},
	)
	if nnet.FileExists(*model+".net") && !*force {
		log.Fatal().Str("model", *model).Str("dir", nnet.DataDir).Msg("model exists - use --force to overwrite")
	}
	fmt.Println(conf)

	net, err := nnet.New(conf)
	nnet.CheckErr(err)
	if *random {
		net.InitWeights(nnet.SetSeed(conf.RandSeed))
	} else {
		setGabor(net, *size)
	}
	if net.DebugLevel >= 1 {
		net.PrintWeights()
	}
	nnet.CheckErr(os.MkdirAll(nnet.DataDir, 0o755))
	nnet.CheckErr(conf.Save(*model + ".conf"))
	nnet.CheckErr(nnet.SaveNetwork(net))
}

// first layer filters are a pair of orthogonal gratings under a gaussian envelope, their
// rectified responses are summed by the output unit
func setGabor(net *nnet.Network, size int) {
	var params []nnet.ParamLayer
	for _, l := range net.Layers {
		if p, ok := l.(nnet.ParamLayer); ok {
			params = append(params, p)
		}
	}
	W1 := mat.NewDense(size*size, 2, nil)
	for k, theta := range []float64{0, math.Pi / 2} {
		for i := 0; i < size*size; i++ {
			x := float64(i%size) - float64(size-1)/2
			y := float64(i/size) - float64(size-1)/2
			sigma, lambda := float64(size)/4, float64(size)/2
			env := math.Exp(-(x*x + y*y) / (2 * sigma * sigma))
			W1.Set(i, k, env*math.Cos(2*math.Pi*(x*math.Cos(theta)+y*math.Sin(theta))/lambda))
		}
	}
	nnet.CheckErr(params[0].SetParams(W1, mat.NewDense(1, 2, []float64{-1, -1})))
	nnet.CheckErr(params[1].SetParams(mat.NewDense(2, 1, []float64{0.8, 0.8}), mat.NewDense(1, 1, []float64{0.5})))
}
