package domain_test

import (
	"math"
	"testing"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanGrids_Constant(t *testing.T) {
	lat, lon := []float64{1, 2}, []float64{3, 4, 5}
	mean, err := domain.MeanGrids([]domain.Grid{
		constGrid(lat, lon, 10),
		constGrid(lat, lon, 20),
		constGrid(lat, lon, 30),
	})
	require.NoError(t, err)
	for _, v := range mean.Values {
		assert.Equal(t, 20.0, v)
	}
	assert.Equal(t, 20.0, domain.FiniteMean(mean.Values))
}

func TestMeanGrids_PropagatesNonFinite(t *testing.T) {
	lat, lon := []float64{1}, []float64{1, 2}
	a := constGrid(lat, lon, 1)
	b := constGrid(lat, lon, 3)
	b.Values[1] = math.NaN()

	mean, err := domain.MeanGrids([]domain.Grid{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2.0, mean.Values[0])
	assert.True(t, math.IsNaN(mean.Values[1]))
	assert.Equal(t, 2.0, domain.FiniteMean(mean.Values))
}

func TestMeanGrids_ShapeMismatch(t *testing.T) {
	_, err := domain.MeanGrids([]domain.Grid{
		constGrid([]float64{1}, []float64{1}, 1),
		constGrid([]float64{1, 2}, []float64{1}, 1),
	})
	require.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestFiniteMean_AllNaN(t *testing.T) {
	assert.True(t, math.IsNaN(domain.FiniteMean([]float64{math.NaN(), math.Inf(1)})))
}
