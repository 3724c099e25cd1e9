// Package stats has running summary statistics.
package stats

import (
	"fmt"
	"html/template"
	"math"
)

// Calc exponentional moving average over n samples
type EMA float64

func (e EMA) Add(val, n float64) float64 {
	if e == 0 {
		return val
	}
	k := 2.0 / (n + 1.0)
	return val*k + float64(e)*(1-k)
}

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
// NaN values are skipped.
type Average struct {
	Count, Mean float64
	Var, StdDev float64
	Min, Max    float64
	oldM, oldV  float64
}

func (s *Average) Add(x float64) {
	if math.IsNaN(x) {
		return
	}
	s.Count++
	if s.Count == 1 {
		s.oldM, s.Mean = x, x
		s.oldV = 0
		s.Min, s.Max = x, x
	} else {
		s.Mean = s.oldM + (x-s.oldM)/s.Count
		s.Var = s.oldV + (x-s.oldM)*(x-s.Mean)
		s.oldM, s.oldV = s.Mean, s.Var
		s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
}

// Summarise all the values in a slice
func Summary(vals []float64) Average {
	var s Average
	for _, v := range vals {
		s.Add(v)
	}
	return s
}

func (s *Average) String() string {
	if s.Mean > 10 {
		return fmt.Sprintf("%.1f±%.1f", s.Mean, s.StdDev)
	}
	return fmt.Sprintf("%.3g±%.2g", s.Mean, s.StdDev)
}

func (s *Average) HTML() template.HTML {
	var text string
	if s.Mean > 10 {
		if s.StdDev < 0.1 {
			text = fmt.Sprintf("%.1f", s.Mean)
		} else {
			text = fmt.Sprintf("%.1f&PlusMinus;%.1f", s.Mean, s.StdDev)
		}
	} else {
		if s.StdDev < 0.01 {
			text = fmt.Sprintf("%.2f", s.Mean)
		} else {
			text = fmt.Sprintf("%.2f&PlusMinus;%.2f", s.Mean, s.StdDev)
		}
	}
	return template.HTML(text)
}
