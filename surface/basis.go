// Package surface samples the output of a two filter network over the plane spanned by its filters.
package surface

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/num"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// ErrFilterCount is returned when the selected weights do not give exactly two filters.
var ErrFilterCount = errors.New("model has incorrect number of filters")

// Filters selects the raw filter pair from the per layer weight matrices.
// If es is false the first layer weights are used, else the second layer. When es is set and the
// second layer has a single unit the filters are built from the second and third layer weights
// each flattened to a column vector.
func Filters(weights []*mat.Dense, es bool) (*mat.Dense, error) {
	index := 0
	if es {
		index = 1
	}
	if len(weights) <= index {
		return nil, fmt.Errorf("filters: model has %d weight layers, need at least %d", len(weights), index+1)
	}
	filters := weights[index]
	rows, cols := filters.Dims()
	if es && cols < 2 {
		if len(weights) < 3 {
			return nil, fmt.Errorf("filters: model has %d weight layers, need 3 to combine filters", len(weights))
		}
		var err error
		filters, err = num.HStack(num.Flatten(weights[1]), num.Flatten(weights[2]))
		if err != nil {
			return nil, fmt.Errorf("filters: %w", err)
		}
		rows, cols = filters.Dims()
	}
	if cols != 2 {
		return nil, fmt.Errorf("%w (%d)", ErrFilterCount, cols)
	}
	return mat.DenseCopyOf(filters.Slice(0, rows, 0, 2)), nil
}

// Basis returns the orthonormalised filter pair.
func Basis(filters mat.Matrix) (*mat.Dense, error) {
	if _, cols := filters.Dims(); cols != 2 {
		return nil, fmt.Errorf("%w (%d)", ErrFilterCount, cols)
	}
	return num.GramSchmidt(filters)
}

// Extract gets the filters from the model and returns the orthonormal basis. If dumpPath is
// not empty the raw filters are also written there as CSV. A failure to write the file is
// logged and does not affect the result.
func Extract(m nnet.Model, es bool, dumpPath string) (*mat.Dense, error) {
	filters, err := Filters(m.Weights(), es)
	if err != nil {
		return nil, err
	}
	if dumpPath != "" {
		if err := SaveCSV(dumpPath, filters); err != nil {
			log.Warn().Err(err).Str("file", dumpPath).Msg("failed to save filters")
		} else {
			log.Debug().Str("file", dumpPath).Msg("saved filters")
		}
	}
	return Basis(filters)
}

// SaveCSV writes the matrix to a comma separated file with one line per row and no header.
// The parent directory is created if needed.
func SaveCSV(path string, a mat.Matrix) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	r, c := a.Dims()
	rec := make([]string, c)
	for i := 0; i < r; i++ {
		for j := range rec {
			rec[j] = strconv.FormatFloat(a.At(i, j), 'e', 18, 64)
		}
		if err = w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadCSV reads back a matrix written by SaveCSV.
func LoadCSV(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: no data", path)
	}
	a := mat.NewDense(len(recs), len(recs[0]), nil)
	for i, rec := range recs {
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
			}
			a.Set(i, j, v)
		}
	}
	return a, nil
}
