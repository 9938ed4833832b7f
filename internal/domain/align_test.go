package domain_test

import (
	"errors"
	"testing"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func axis(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestAlign_SliceMatchesBaselineExtent(t *testing.T) {
	refLat := axis(11.50, 0.01, 200)
	refLon := axis(-69.00, 0.01, 150)
	// baseline coordinates carry float noise from a different producer
	baseLat := axis(12.0000001, 0.01, 40)
	baseLon := axis(-68.4999997, 0.01, 25)

	a, err := domain.Align(refLat, refLon, baseLat, baseLon)
	require.NoError(t, err)

	gotLat := refLat[a.Lat.Start:a.Lat.End]
	gotLon := refLon[a.Lon.Start:a.Lon.End]
	assert.Len(t, gotLat, len(baseLat))
	assert.Len(t, gotLon, len(baseLon))
	assert.InDelta(t, 12.00, gotLat[0], 1e-9)
	assert.InDelta(t, 12.39, gotLat[len(gotLat)-1], 1e-9)
	assert.InDelta(t, -68.50, gotLon[0], 1e-9)
	assert.InDelta(t, -68.26, gotLon[len(gotLon)-1], 1e-9)
}

func TestAlign_DescendingBaseline(t *testing.T) {
	refLat := axis(0, 0.25, 20)
	refLon := axis(0, 0.25, 20)
	baseLat := []float64{3.0, 2.75, 2.5}
	baseLon := []float64{1.0, 1.25}

	a, err := domain.Align(refLat, refLon, baseLat, baseLon)
	require.NoError(t, err)
	assert.Equal(t, domain.Window{Start: 10, End: 13}, a.Lat)
	assert.Equal(t, domain.Window{Start: 4, End: 6}, a.Lon)
}

func TestAlign_NoExactMatch(t *testing.T) {
	refLat := axis(0, 0.25, 20)
	refLon := axis(0, 0.25, 20)

	_, err := domain.Align(refLat, refLon, []float64{1.0, 1.1}, []float64{0, 1})
	require.Error(t, err)

	var ae *domain.AlignmentError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "lat", ae.Axis)
	assert.InDelta(t, 1.1, ae.Coordinate, 1e-9)
	assert.Contains(t, err.Error(), "1.10")
}

func TestAlign_OutsideReference(t *testing.T) {
	_, err := domain.Align(axis(0, 1, 5), axis(0, 1, 5), axis(0, 1, 2), axis(3, 1, 3))
	var ae *domain.AlignmentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "lon", ae.Axis)
	assert.InDelta(t, 5.0, ae.Coordinate, 1e-9)
}
