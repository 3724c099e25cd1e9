package num

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Format returns a numpy style string representation of a matrix or vector.
// Large dimensions are summarised with ... after PrintEdgeitems values.
func Format(a mat.Matrix) string {
	r, c := a.Dims()
	if v, ok := a.(mat.Vector); ok && c == 1 {
		return formatRow(r, func(i int) float64 { return v.AtVec(i) }, false) + "\n"
	}
	var b strings.Builder
	for i := 0; i < r; i++ {
		pre, post := " ", "\n"
		if i == 0 {
			pre = "["
		}
		if i == r-1 {
			post = "]\n"
		}
		dots := r > PrintThreshold+1 && i == PrintEdgeitems
		row := i
		b.WriteString(pre + formatRow(c, func(j int) float64 { return a.At(row, j) }, dots) + post)
		if dots {
			i = r - PrintEdgeitems - 1
		}
	}
	return b.String()
}

func formatRow(n int, at func(int) float64, dots bool) string {
	s := "["
	for i := 0; i < n; i++ {
		dots2 := n > PrintThreshold+1 && i == PrintEdgeitems
		s += formatValue(at(i), dots || dots2)
		if dots2 {
			i = n - PrintEdgeitems - 1
		}
	}
	return s + "]"
}

func formatValue(val float64, dots bool) string {
	if dots {
		return "    ... "
	}
	if math.Abs(val) < 1 {
		val = math.Round(10000*val) / 10000
	}
	return fmt.Sprintf("%7.5g ", val)
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}

// Dims returns the shape of a matrix as a slice in rows, cols order.
func Dims(a mat.Matrix) []int {
	r, c := a.Dims()
	return []int{r, c}
}
