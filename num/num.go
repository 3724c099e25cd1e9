// Package num contains numeric routines on gonum matrices such as grid construction and orthogonalisation.
package num

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tolerance below which a column norm is treated as zero.
const Epsilon = 1e-12

var ErrDegenerate = errors.New("degenerate column")

// Arange returns evenly spaced values in the half open interval [start, stop).
// The number of values is ceil((stop-start)/step).
func Arange(start, stop, step float64) []float64 {
	if step == 0 {
		panic("Arange: step must be non zero")
	}
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return []float64{}
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = start + float64(i)*step
	}
	return v
}

// Meshgrid returns coordinate matrices from coordinate vectors.
// X[i,j] = x[j] and Y[i,j] = y[i] for a len(y) x len(x) grid.
func Meshgrid(x, y []float64) (X, Y *mat.Dense) {
	rows, cols := len(y), len(x)
	if rows == 0 || cols == 0 {
		panic("Meshgrid: empty coordinate vector")
	}
	X = mat.NewDense(rows, cols, nil)
	Y = mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		X.SetRow(i, x)
		for j := 0; j < cols; j++ {
			Y.Set(i, j, y[i])
		}
	}
	return X, Y
}

// GramSchmidt returns an orthonormal basis for the columns of a using QR decomposition.
// Column signs are chosen so the diagonal of R is non-negative, which gives the same result as
// classical Gram-Schmidt. Each column is then rescaled to unit norm.
func GramSchmidt(a mat.Matrix) (*mat.Dense, error) {
	r, c := a.Dims()
	if r < c {
		return nil, fmt.Errorf("GramSchmidt: need rows >= cols, have %dx%d", r, c)
	}
	for j := 0; j < c; j++ {
		if mat.Norm(mat.NewVecDense(r, mat.Col(nil, j, a)), 2) < Epsilon {
			return nil, fmt.Errorf("GramSchmidt: column %d: %w", j, ErrDegenerate)
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q, rr mat.Dense
	qr.QTo(&q)
	qr.RTo(&rr)
	basis := mat.DenseCopyOf(q.Slice(0, r, 0, c))
	for j := 0; j < c; j++ {
		if math.Abs(rr.At(j, j)) < Epsilon {
			return nil, fmt.Errorf("GramSchmidt: column %d is linearly dependent: %w", j, ErrDegenerate)
		}
		if rr.At(j, j) < 0 {
			col := mat.Col(nil, j, basis)
			floats.Scale(-1, col)
			basis.SetCol(j, col)
		}
	}
	if err := NormalizeCols(basis); err != nil {
		return nil, err
	}
	return basis, nil
}

// NormalizeCols scales each column of a in place to unit Euclidean norm.
func NormalizeCols(a *mat.Dense) error {
	_, c := a.Dims()
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, a)
		norm := floats.Norm(col, 2)
		if norm < Epsilon {
			return fmt.Errorf("NormalizeCols: column %d: %w", j, ErrDegenerate)
		}
		floats.Scale(1/norm, col)
		a.SetCol(j, col)
	}
	return nil
}

// HStack concatenates matrices with the same number of rows side by side.
func HStack(m ...mat.Matrix) (*mat.Dense, error) {
	if len(m) == 0 {
		return nil, errors.New("HStack: no input")
	}
	rows, cols := 0, 0
	for i, a := range m {
		r, c := a.Dims()
		if i == 0 {
			rows = r
		} else if r != rows {
			return nil, fmt.Errorf("HStack: row mismatch - have %d expect %d", r, rows)
		}
		cols += c
	}
	res := mat.NewDense(rows, cols, nil)
	at := 0
	for _, a := range m {
		_, c := a.Dims()
		res.Slice(0, rows, at, at+c).(*mat.Dense).Copy(a)
		at += c
	}
	return res, nil
}

// Flatten returns the elements of a in row major order as a column vector.
func Flatten(a mat.Matrix) *mat.VecDense {
	r, c := a.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data = append(data, a.At(i, j))
		}
	}
	return mat.NewVecDense(len(data), data)
}

// Min and max of all elements in a matrix, ignoring NaN values.
func Range(a mat.Matrix) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	return
}
