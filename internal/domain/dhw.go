package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// WindowDays is the trailing accumulation span, D-83 through D.
	WindowDays = 84

	// OutputPrecision is the number of decimals persisted for derived grids.
	OutputPrecision = 2

	UnitsCelsius = "celsius"
	UnitsKelvin  = "kelvin"
	UnitsDHW     = "degree heating weeks"
)

// Threshold is the bleaching threshold matched onto the SST grid. It is
// built once per run and shared read-only by every accumulation.
type Threshold struct {
	Alignment Alignment
	Grid      Grid
}

// BuildThreshold aligns baseline against the SST axes and returns
// baseline+offset on the SST coordinates of the aligned window. The SST axes
// are expected ascending; the baseline may come in either orientation.
func BuildThreshold(sstLat, sstLon []float64, baseline Grid, offset float64) (Threshold, error) {
	if err := baseline.Validate(); err != nil {
		return Threshold{}, fmt.Errorf("baseline: %w", err)
	}
	baseline = baseline.Ascending()

	a, err := Align(sstLat, sstLon, baseline.Lat, baseline.Lon)
	if err != nil {
		return Threshold{}, err
	}
	if a.Lat.Len() != baseline.Rows() || a.Lon.Len() != baseline.Cols() {
		return Threshold{}, fmt.Errorf("%w: aligned window %dx%d, baseline %dx%d",
			ErrShapeMismatch, a.Lat.Len(), a.Lon.Len(), baseline.Rows(), baseline.Cols())
	}

	g := NewGrid(sstLat[a.Lat.Start:a.Lat.End], sstLon[a.Lon.Start:a.Lon.End], UnitsCelsius)
	copy(g.Values, baseline.Values)
	floats.AddConst(offset, g.Values)
	return Threshold{Alignment: a, Grid: g}, nil
}

// DailyExcess crops sst to the threshold window and returns
// max(0, sst - threshold) per cell. A non-finite input cell stays non-finite.
func (t Threshold) DailyExcess(sst Grid) (Grid, error) {
	if sst.Rows() < t.Alignment.Lat.End || sst.Cols() < t.Alignment.Lon.End {
		return Grid{}, fmt.Errorf("%w: sst %dx%d does not cover threshold window", ErrShapeMismatch, sst.Rows(), sst.Cols())
	}
	cropped := sst.Crop(t.Alignment)
	out := NewGrid(t.Grid.Lat, t.Grid.Lon, UnitsCelsius)
	floats.SubTo(out.Values, cropped.Values, t.Grid.Values)
	for i, v := range out.Values {
		out.Values[i] = math.Max(0, v)
	}
	return out, nil
}

// AccumulateWindow sums the daily excess grids of one window in the order
// given, optionally divides by seven for week-normalized units, and rounds
// the result. Days missing from excess (unreadable sources) simply do not
// contribute.
func AccumulateWindow(excess []Grid, weekly bool) (Grid, error) {
	if len(excess) == 0 {
		return Grid{}, fmt.Errorf("accumulate: no readable days in window")
	}
	total := NewGrid(excess[0].Lat, excess[0].Lon, UnitsDHW)
	for _, g := range excess {
		if !g.SameShape(total) {
			return Grid{}, fmt.Errorf("accumulate: %w", ErrShapeMismatch)
		}
		floats.Add(total.Values, g.Values)
	}
	if weekly {
		for i := range total.Values {
			total.Values[i] /= 7
		}
	}
	return total.Round(OutputPrecision), nil
}

// KelvinToCelsius converts every cell in place using the configured offset.
func KelvinToCelsius(g Grid, offset float64) Grid {
	floats.AddConst(-offset, g.Values)
	g.Units = UnitsCelsius
	return g
}
