// Package table writes the denormalized CSV twins of archive grids: one row
// per latitude, one column per longitude, plus the monthly scalar series.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// WriteGrid writes g with a header row "lat,<lon...>". NaN cells are left
// empty.
func WriteGrid(w io.Writer, g domain.Grid) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, g.Cols()+1)
	header = append(header, "lat")
	for _, lon := range g.Lon {
		header = append(header, formatCoord(lon))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, g.Cols()+1)
	for i, lat := range g.Lat {
		row[0] = formatCoord(lat)
		for j, v := range g.Row(i) {
			row[j+1] = formatValue(v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeries writes a two-column "month,<column>" table in the order given.
func WriteSeries(w io.Writer, column string, points []domain.SeriesPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", column}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range points {
		if err := cw.Write([]string{p.Month.String(), formatValue(p.Value)}); err != nil {
			return fmt.Errorf("write %s: %w", p.Month, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatValue uses float32 precision because that is what the gridded twin
// stores.
func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 32)
}
