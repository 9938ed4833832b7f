// Package netcdf reads single-variable lat/lon grids from NetCDF classic and
// NetCDF-4 files and writes canonical records in the classic format.
package netcdf

import (
	"fmt"
	"slices"
	"sort"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/ctessum/cdf"
)

const (
	latVar = "lat"
	lonVar = "lon"
)

// VarSpec describes the data variable written alongside the coordinate axes.
type VarSpec struct {
	Name     string
	LongName string
	// Global holds file-level attributes such as the record date.
	Global map[string]string
}

// WriteGrid encodes g into w. Coordinates are stored as doubles, values as
// floats; NaN cells are written as-is.
func WriteGrid(w cdf.ReaderWriterAt, g domain.Grid, spec VarSpec) error {
	if err := g.Validate(); err != nil {
		return err
	}

	h := cdf.NewHeader([]string{latVar, lonVar}, []int{g.Rows(), g.Cols()})
	h.AddVariable(latVar, []string{latVar}, []float64{0})
	h.AddAttribute(latVar, "units", "degrees_north")
	h.AddVariable(lonVar, []string{lonVar}, []float64{0})
	h.AddAttribute(lonVar, "units", "degrees_east")

	h.AddVariable(spec.Name, []string{latVar, lonVar}, []float32{0})
	if g.Units != "" {
		h.AddAttribute(spec.Name, "units", g.Units)
	}
	if spec.LongName != "" {
		h.AddAttribute(spec.Name, "long_name", spec.LongName)
	}

	// Sorted so identical grids produce identical bytes.
	keys := make([]string, 0, len(spec.Global))
	for k := range spec.Global {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.AddAttribute("", k, spec.Global[k])
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("create netcdf: %w", err)
	}
	if err := writeVar(f, latVar, slices.Clone(g.Lat)); err != nil {
		return err
	}
	if err := writeVar(f, lonVar, slices.Clone(g.Lon)); err != nil {
		return err
	}

	data := make([]float32, len(g.Values))
	for i, v := range g.Values {
		data[i] = float32(v)
	}
	return writeVar(f, spec.Name, data)
}

func writeVar(f *cdf.File, name string, data any) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	if _, err := f.Writer(name, start, end).Write(data); err != nil {
		return fmt.Errorf("write variable %s: %w", name, err)
	}
	return nil
}
