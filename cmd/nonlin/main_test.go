package main

import (
	"path/filepath"
	"testing"

	"github.com/jnb666/nonlin/plot3d"
	"github.com/jnb666/nonlin/surface"
	"github.com/jnb666/nonlin/web"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// config as loaded from a yaml file with non default values
func fileConfig() *web.Config {
	return &web.Config{
		Model:  "test",
		Addr:   ":9000",
		Sample: surface.Options{Bound: 2, Step: 0.05, DumpPath: "dump.csv", Workers: 4},
		Render: plot3d.Options{Rot: 45, Lim: 1, Cmap: "jet", Width: 6, Height: 5, Count: 30},
	}
}

func TestOverrides(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, c *web.Config)
	}{
		{"none", nil, func(t *testing.T, c *web.Config) {
			assert.Equal(t, fileConfig(), c)
		}},
		{"sample", []string{"--bound", "3", "-j", "2", "--es"}, func(t *testing.T, c *web.Config) {
			want := fileConfig()
			want.Sample.Bound = 3
			want.Sample.Workers = 2
			want.Sample.ES = true
			assert.Equal(t, want, c)
		}},
		{"render", []string{"--rot", "90", "--cmap", "hot", "--label", "NN"}, func(t *testing.T, c *web.Config) {
			want := fileConfig()
			want.Render.Rot = 90
			want.Render.Cmap = "hot"
			want.Render.Label = "NN"
			assert.Equal(t, want, c)
		}},
		{"zero values", []string{"--lim", "0", "--dump", "", "--addr", ":8000"}, func(t *testing.T, c *web.Config) {
			want := fileConfig()
			want.Render.Lim = 0
			want.Sample.DumpPath = ""
			want.Addr = ":8000"
			assert.Equal(t, want, c)
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var o overrides
			fs := pflag.NewFlagSet(test.name, pflag.ContinueOnError)
			o.sampleFlags(fs)
			o.renderFlags(fs)
			fs.StringVar(&o.addr, "addr", web.DefaultAddr, "")
			require.NoError(t, fs.Parse(test.args))
			conf := fileConfig()
			o.apply(fs, conf)
			test.check(t, conf)
		})
	}
}

func TestBasisFromCSV(t *testing.T) {
	file := filepath.Join(t.TempDir(), "filters.csv")
	F := mat.NewDense(3, 2, []float64{
		2, 1,
		0, 1,
		0, 0,
	})
	require.NoError(t, surface.SaveCSV(file, F))

	filters, basis, err := basisFor(nil, file, surface.Options{})
	require.NoError(t, err)
	assert.True(t, mat.Equal(F, filters))
	expect := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		0, 0,
	})
	assert.True(t, mat.EqualApprox(expect, basis, 1e-12))

	_, _, err = basisFor(nil, "", surface.Options{})
	assert.Error(t, err)
	_, _, err = basisFor(nil, filepath.Join(t.TempDir(), "missing.csv"), surface.Options{})
	assert.Error(t, err)
}
