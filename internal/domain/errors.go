package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate marks an input that normalized to NoDate.
	ErrInvalidDate = errors.New("invalid date")

	// ErrBaselineMissing means the climatology file is absent. DHW work
	// cannot proceed without it; SST-only work continues.
	ErrBaselineMissing = errors.New("baseline grid missing")

	// ErrEmptyDownload means the scratch directory for a date held no grid
	// file, usually because the upstream download failed.
	ErrEmptyDownload = errors.New("download directory empty")

	// ErrShapeMismatch is returned when two grids must be combined cell by
	// cell but differ in dimensions.
	ErrShapeMismatch = errors.New("grid shape mismatch")

	// ErrNotMonotonic is returned for coordinate axes that are not strictly
	// monotonic.
	ErrNotMonotonic = errors.New("coordinate axis not strictly monotonic")

	// ErrEmptySelection is returned when a bounding box selects no cells.
	ErrEmptySelection = errors.New("bounding box selects no cells")
)

// AlignmentError reports a baseline extremum that has no exact match in the
// reference axis after rounding.
type AlignmentError struct {
	Axis       string
	Coordinate float64
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("align %s: baseline coordinate %.2f has no match in reference grid", e.Axis, e.Coordinate)
}
