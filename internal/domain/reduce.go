package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// MeanGrids returns the cell-wise arithmetic mean of grids. A non-finite
// value in any input keeps that cell non-finite in the mean.
func MeanGrids(grids []Grid) (Grid, error) {
	if len(grids) == 0 {
		return Grid{}, fmt.Errorf("mean: no grids")
	}
	out := NewGrid(grids[0].Lat, grids[0].Lon, grids[0].Units)
	for _, g := range grids {
		if !g.SameShape(out) {
			return Grid{}, fmt.Errorf("mean: %w", ErrShapeMismatch)
		}
		floats.Add(out.Values, g.Values)
	}
	n := float64(len(grids))
	for i := range out.Values {
		out.Values[i] /= n
	}
	return out, nil
}

// FiniteMean averages the finite entries of values. It returns NaN when
// there are none.
func FiniteMean(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
