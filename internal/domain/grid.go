package domain

import (
	"fmt"
	"math"
	"slices"
)

// Grid is a rectangular field indexed by latitude (rows) and longitude
// (columns). Values are stored row-major, so cell (i, j) lives at
// Values[i*len(Lon)+j].
type Grid struct {
	Lat    []float64
	Lon    []float64
	Values []float64
	Units  string
}

// NewGrid returns a zero-filled grid over the given axes.
func NewGrid(lat, lon []float64, units string) Grid {
	return Grid{
		Lat:    slices.Clone(lat),
		Lon:    slices.Clone(lon),
		Values: make([]float64, len(lat)*len(lon)),
		Units:  units,
	}
}

// BoundingBox is an inclusive geographic region of interest.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (g Grid) Rows() int { return len(g.Lat) }
func (g Grid) Cols() int { return len(g.Lon) }

// At returns the value of cell (i, j).
func (g Grid) At(i, j int) float64 { return g.Values[i*len(g.Lon)+j] }

// Set assigns the value of cell (i, j).
func (g Grid) Set(i, j int, v float64) { g.Values[i*len(g.Lon)+j] = v }

// Row returns a view of row i. Mutating it mutates g.
func (g Grid) Row(i int) []float64 {
	n := len(g.Lon)
	return g.Values[i*n : (i+1)*n]
}

// Validate checks that both axes are strictly monotonic and that the value
// slice matches the axis lengths.
func (g Grid) Validate() error {
	if len(g.Values) != len(g.Lat)*len(g.Lon) {
		return fmt.Errorf("%w: %d values for %dx%d axes", ErrShapeMismatch, len(g.Values), len(g.Lat), len(g.Lon))
	}
	if !strictlyMonotonic(g.Lat) {
		return fmt.Errorf("lat: %w", ErrNotMonotonic)
	}
	if !strictlyMonotonic(g.Lon) {
		return fmt.Errorf("lon: %w", ErrNotMonotonic)
	}
	return nil
}

// SameShape reports whether g and o have identical dimensions.
func (g Grid) SameShape(o Grid) bool {
	return len(g.Lat) == len(o.Lat) && len(g.Lon) == len(o.Lon)
}

// Clone returns a deep copy of g.
func (g Grid) Clone() Grid {
	return Grid{
		Lat:    slices.Clone(g.Lat),
		Lon:    slices.Clone(g.Lon),
		Values: slices.Clone(g.Values),
		Units:  g.Units,
	}
}

// Crop returns the sub-grid covered by the alignment windows.
func (g Grid) Crop(a Alignment) Grid {
	out := Grid{
		Lat:    slices.Clone(g.Lat[a.Lat.Start:a.Lat.End]),
		Lon:    slices.Clone(g.Lon[a.Lon.Start:a.Lon.End]),
		Values: make([]float64, 0, a.Lat.Len()*a.Lon.Len()),
		Units:  g.Units,
	}
	for i := a.Lat.Start; i < a.Lat.End; i++ {
		out.Values = append(out.Values, g.Row(i)[a.Lon.Start:a.Lon.End]...)
	}
	return out
}

// FlipLat reverses the row order together with the latitude axis.
func (g Grid) FlipLat() Grid {
	out := g.Clone()
	slices.Reverse(out.Lat)
	for i := range g.Lat {
		copy(out.Row(len(g.Lat)-1-i), g.Row(i))
	}
	return out
}

// flipLon reverses the column order together with the longitude axis.
func (g Grid) flipLon() Grid {
	out := g.Clone()
	slices.Reverse(out.Lon)
	for i := range g.Lat {
		slices.Reverse(out.Row(i))
	}
	return out
}

// Ascending returns g oriented with both axes increasing.
func (g Grid) Ascending() Grid {
	out := g
	if descending(out.Lat) {
		out = out.FlipLat()
	}
	if descending(out.Lon) {
		out = out.flipLon()
	}
	return out
}

// LatDescending reports whether the latitude axis runs north to south.
func (g Grid) LatDescending() bool { return descending(g.Lat) }

// Round rounds every finite cell to the given number of decimal places,
// half to even.
func (g Grid) Round(places int) Grid {
	out := g.Clone()
	for i, v := range out.Values {
		out.Values[i] = RoundTo(v, places)
	}
	return out
}

// RoundTo rounds v to places decimals, half to even. Non-finite values pass
// through unchanged.
func RoundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(places))
	return math.RoundToEven(v*scale) / scale
}

// SelectBox crops g to the cells whose coordinates fall inside box
// (inclusive on every edge).
func (g Grid) SelectBox(box BoundingBox) (Grid, error) {
	a, err := BoxAlignment(g.Lat, g.Lon, box)
	if err != nil {
		return Grid{}, err
	}
	return g.Crop(a), nil
}

// BoxAlignment returns the index windows of the lat and lon axes whose
// coordinates fall inside box. Readers use it to fetch only that hyperslab.
func BoxAlignment(lat, lon []float64, box BoundingBox) (Alignment, error) {
	latW, err := boxWindow(lat, box.MinLat, box.MaxLat)
	if err != nil {
		return Alignment{}, fmt.Errorf("lat: %w", err)
	}
	lonW, err := boxWindow(lon, box.MinLon, box.MaxLon)
	if err != nil {
		return Alignment{}, fmt.Errorf("lon: %w", err)
	}
	return Alignment{Lat: latW, Lon: lonW}, nil
}

// boxWindow finds the contiguous run of indices whose coordinate lies in
// [lo, hi]. The axis must be monotonic, which makes the run contiguous.
func boxWindow(axis []float64, lo, hi float64) (Window, error) {
	w := Window{Start: -1}
	for i, c := range axis {
		if c < lo || c > hi {
			continue
		}
		if w.Start < 0 {
			w.Start = i
		}
		w.End = i + 1
	}
	if w.Start < 0 {
		return Window{}, ErrEmptySelection
	}
	return w, nil
}

func strictlyMonotonic(axis []float64) bool {
	if len(axis) < 2 {
		return true
	}
	up := axis[1] > axis[0]
	for i := 1; i < len(axis); i++ {
		if up && !(axis[i] > axis[i-1]) {
			return false
		}
		if !up && !(axis[i] < axis[i-1]) {
			return false
		}
	}
	return true
}

func descending(axis []float64) bool {
	return len(axis) > 1 && axis[len(axis)-1] < axis[0]
}
