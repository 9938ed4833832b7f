package table

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteGrid(t *testing.T) {
	g := domain.Grid{
		Lat:    []float64{12.03, 12.02},
		Lon:    []float64{-68.3, -68.29},
		Values: []float64{1.5, math.NaN(), 0, 27.299999237060547},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteGrid(&buf, g))

	want := "lat,-68.3,-68.29\n" +
		"12.03,1.5,\n" +
		"12.02,0,27.3\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteSeries(t *testing.T) {
	jun := domain.NewDate(2002, time.June, 1).Month()
	jul := domain.NewDate(2002, time.July, 1).Month()

	var buf bytes.Buffer
	require.NoError(t, WriteSeries(&buf, "mean_sst", []domain.SeriesPoint{
		{Month: jun, Value: 20},
		{Month: jul, Value: 27.45},
	}))

	assert.Equal(t, "month,mean_sst\n2002-06,20\n2002-07,27.45\n", buf.String())
}
