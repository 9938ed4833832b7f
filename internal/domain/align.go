package domain

import (
	"fmt"
	"slices"
)

// alignPrecision is the number of decimals both coordinate sets are rounded
// to before matching. Grids from different producers disagree in the noise
// digits.
const alignPrecision = 2

// Window is a half-open index range [Start, End) on one axis.
type Window struct {
	Start int
	End   int
}

// Len returns the number of indices in w.
func (w Window) Len() int { return w.End - w.Start }

// Alignment is the pair of index windows that slice a reference grid down
// to the spatial extent of a baseline grid.
type Alignment struct {
	Lat Window
	Lon Window
}

// Align locates the baseline's minimum and maximum latitude and longitude in
// the reference axes and returns the covering index windows. Both coordinate
// sets are rounded to two decimals first. An extremum with no exact match
// yields an *AlignmentError; the grids are then incompatible and the caller
// must not retry.
func Align(refLat, refLon, baseLat, baseLon []float64) (Alignment, error) {
	lat, err := alignAxis("lat", refLat, baseLat)
	if err != nil {
		return Alignment{}, err
	}
	lon, err := alignAxis("lon", refLon, baseLon)
	if err != nil {
		return Alignment{}, err
	}
	return Alignment{Lat: lat, Lon: lon}, nil
}

func alignAxis(axis string, ref, base []float64) (Window, error) {
	if len(ref) == 0 || len(base) == 0 {
		return Window{}, fmt.Errorf("align %s: empty coordinate axis", axis)
	}
	r := roundAxis(ref)
	b := roundAxis(base)
	lo, hi := slices.Min(b), slices.Max(b)

	iLo := slices.Index(r, lo)
	if iLo < 0 {
		return Window{}, &AlignmentError{Axis: axis, Coordinate: lo}
	}
	iHi := slices.Index(r, hi)
	if iHi < 0 {
		return Window{}, &AlignmentError{Axis: axis, Coordinate: hi}
	}
	if iLo > iHi {
		iLo, iHi = iHi, iLo
	}
	return Window{Start: iLo, End: iHi + 1}, nil
}

func roundAxis(axis []float64) []float64 {
	out := make([]float64, len(axis))
	for i, c := range axis {
		out[i] = RoundTo(c, alignPrecision)
	}
	return out
}
