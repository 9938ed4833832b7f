package netcdf

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/ctessum/cdf"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestGrid(t *testing.T, path string, g domain.Grid, spec VarSpec) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, WriteGrid(f, g, spec))
}

func TestWriteReadGrid_RoundTrip(t *testing.T) {
	g := domain.Grid{
		Lat:    []float64{12.01, 12.02},
		Lon:    []float64{-68.5, -68.49, -68.48},
		Values: []float64{27.5, 28.25, math.NaN(), 29, 29.5, 30},
		Units:  domain.UnitsCelsius,
	}
	path := filepath.Join(t.TempDir(), "2002-06-01.nc")
	writeTestGrid(t, path, g, VarSpec{Name: "analysed_sst", LongName: "sea surface temperature", Global: map[string]string{"date": "2002-06-01"}})

	got, err := ReadGrid(path, "analysed_sst")
	require.NoError(t, err)

	assert.Equal(t, g.Lat, got.Lat)
	assert.Equal(t, g.Lon, got.Lon)
	assert.Equal(t, domain.UnitsCelsius, got.Units)
	assert.Empty(t, cmp.Diff(g.Values, got.Values, cmpopts.EquateNaNs()))
}

func TestWriteGrid_Deterministic(t *testing.T) {
	g := domain.Grid{Lat: []float64{1, 2}, Lon: []float64{3}, Values: []float64{1.25, 2.5}, Units: domain.UnitsDHW}
	spec := VarSpec{Name: "dhw", Global: map[string]string{"b": "2", "a": "1"}}

	dir := t.TempDir()
	writeTestGrid(t, filepath.Join(dir, "a.nc"), g, spec)
	writeTestGrid(t, filepath.Join(dir, "b.nc"), g, spec)

	a, err := os.ReadFile(filepath.Join(dir, "a.nc"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "b.nc"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// writePackedRaw writes a raw-style file: int16 analysed_sst on
// (time, lat, lon) with CF packing attributes.
func writePackedRaw(t *testing.T, path string, lat, lon []float32, data []int16) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{1, len(lat), len(lon)})
	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddVariable("lat", []string{"lat"}, []float32{0})
	h.AddVariable("lon", []string{"lon"}, []float32{0})
	h.AddVariable("analysed_sst", []string{"time", "lat", "lon"}, []int16{0})
	h.AddAttribute("analysed_sst", "units", "kelvin")
	h.AddAttribute("analysed_sst", "scale_factor", []float32{0.001})
	h.AddAttribute("analysed_sst", "add_offset", []float32{298.15})
	h.AddAttribute("analysed_sst", "_FillValue", []int16{-32768})
	h.Define()

	nc, err := cdf.Create(f, h)
	require.NoError(t, err)
	_, err = nc.Writer("time", []int{0}, []int{1}).Write([]int32{1})
	require.NoError(t, err)
	_, err = nc.Writer("lat", []int{0}, []int{len(lat)}).Write(lat)
	require.NoError(t, err)
	_, err = nc.Writer("lon", []int{0}, []int{len(lon)}).Write(lon)
	require.NoError(t, err)
	_, err = nc.Writer("analysed_sst", []int{0, 0, 0}, []int{1, len(lat), len(lon)}).Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestReadGrid_PackedWithTimeAxis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.nc")
	writePackedRaw(t, path, []float32{12, 12.25}, []float32{-68.5, -68.25, -68},
		[]int16{2000, 0, -32768, -1000, 1000, 3000})

	g, err := ReadGrid(path, "analysed_sst")
	require.NoError(t, err)

	assert.Equal(t, "kelvin", g.Units)
	assert.Equal(t, []float64{12, 12.25}, g.Lat)
	require.Len(t, g.Values, 6)
	assert.InDelta(t, 300.15, g.Values[0], 1e-4)
	assert.InDelta(t, 298.15, g.Values[1], 1e-4)
	assert.True(t, math.IsNaN(g.Values[2]))
	assert.InDelta(t, 297.15, g.Values[3], 1e-4)
	assert.InDelta(t, 301.15, g.Values[5], 1e-4)
}

func TestReadGrid_MissingVariable(t *testing.T) {
	g := domain.Grid{Lat: []float64{1}, Lon: []float64{1}, Values: []float64{1}}
	path := filepath.Join(t.TempDir(), "x.nc")
	writeTestGrid(t, path, g, VarSpec{Name: "dhw"})

	_, err := ReadGrid(path, "analysed_sst")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"analysed_sst" not found`)
}

func TestReadGrid_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nc")
	require.NoError(t, os.WriteFile(path, []byte("definitely not netcdf"), 0o644))

	_, err := ReadGrid(path, "analysed_sst")
	assert.Error(t, err)
}

func TestReadRegion(t *testing.T) {
	dir := t.TempDir()

	plain := domain.Grid{
		Lat:    []float64{12.3, 12.2, 12.1, 12.0},
		Lon:    []float64{-68.5, -68.4, -68.3},
		Values: []float64{1, 2, 3, 4, 5, 6, 7, math.NaN(), 9, 10, 11, 12},
		Units:  domain.UnitsCelsius,
	}
	plainPath := filepath.Join(dir, "plain.nc")
	writeTestGrid(t, plainPath, plain, VarSpec{Name: "analysed_sst"})

	packedPath := filepath.Join(dir, "packed.nc")
	writePackedRaw(t, packedPath, []float32{12, 12.25, 12.5}, []float32{-68.5, -68.25, -68, -67.75},
		[]int16{0, 100, 200, 300, 400, -32768, 600, 700, 800, 900, 1000, 1100})

	tests := []struct {
		name string
		path string
		box  domain.BoundingBox
	}{
		{"descending lat", plainPath, domain.BoundingBox{MinLat: 12.05, MaxLat: 12.25, MinLon: -68.45, MaxLon: -68.3}},
		{"single cell", plainPath, domain.BoundingBox{MinLat: 12.0, MaxLat: 12.0, MinLon: -68.5, MaxLon: -68.5}},
		{"packed with time axis", packedPath, domain.BoundingBox{MinLat: 12.2, MaxLat: 12.5, MinLon: -68.3, MaxLon: -67.9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full, err := ReadGrid(tt.path, "analysed_sst")
			require.NoError(t, err)
			want, err := full.SelectBox(tt.box)
			require.NoError(t, err)

			got, err := ReadRegion(tt.path, "analysed_sst", tt.box)
			require.NoError(t, err)

			assert.Equal(t, want.Lat, got.Lat)
			assert.Equal(t, want.Lon, got.Lon)
			assert.Equal(t, want.Units, got.Units)
			assert.Empty(t, cmp.Diff(want.Values, got.Values, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-9)))
		})
	}
}

func TestReadRegion_OutsideGrid(t *testing.T) {
	g := domain.Grid{Lat: []float64{1, 2}, Lon: []float64{1, 2}, Values: []float64{1, 2, 3, 4}}
	path := filepath.Join(t.TempDir(), "x.nc")
	writeTestGrid(t, path, g, VarSpec{Name: "analysed_sst"})

	_, err := ReadRegion(path, "analysed_sst", domain.BoundingBox{MinLat: 10, MaxLat: 11, MinLon: 10, MaxLon: 11})
	assert.ErrorIs(t, err, domain.ErrEmptySelection)
}

// A small region of a large grid must not pay for decoding the whole grid.
func TestReadRegion_AllocatesForWindowOnly(t *testing.T) {
	const nLat, nLon = 400, 800
	g := domain.NewGrid(make([]float64, nLat), make([]float64, nLon), domain.UnitsCelsius)
	for i := range g.Lat {
		g.Lat[i] = -10 + float64(i)*0.05
	}
	for j := range g.Lon {
		g.Lon[j] = -80 + float64(j)*0.05
	}
	for k := range g.Values {
		g.Values[k] = 28 + float64(k%7)*0.1
	}
	path := filepath.Join(t.TempDir(), "large.nc")
	writeTestGrid(t, path, g, VarSpec{Name: "analysed_sst"})

	box := domain.BoundingBox{MinLat: -0.01, MaxLat: 0.11, MinLon: -70.01, MaxLon: -69.89}

	fullBytes := allocated(t, func() error {
		_, err := ReadGrid(path, "analysed_sst")
		return err
	})
	regionBytes := allocated(t, func() error {
		r, err := ReadRegion(path, "analysed_sst", box)
		if err == nil && len(r.Values) != 9 {
			return errors.New("unexpected region size")
		}
		return err
	})

	assert.Less(t, regionBytes, fullBytes/2, "region read allocated %d bytes, full read %d", regionBytes, fullBytes)
}

func allocated(t *testing.T, fn func() error) uint64 {
	t.Helper()
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	require.NoError(t, fn())
	runtime.ReadMemStats(&after)
	return after.TotalAlloc - before.TotalAlloc
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	classic := filepath.Join(dir, "classic.nc")
	writeTestGrid(t, classic, domain.Grid{Lat: []float64{1}, Lon: []float64{1}, Values: []float64{1}}, VarSpec{Name: "dhw"})

	hdf5Sig := []byte("\x89HDF\r\n\x1a\n")
	atZero := filepath.Join(dir, "nc4.nc")
	require.NoError(t, os.WriteFile(atZero, append(hdf5Sig, make([]byte, 64)...), 0o644))

	userBlock := filepath.Join(dir, "userblock.nc")
	require.NoError(t, os.WriteFile(userBlock, append(make([]byte, 512), hdf5Sig...), 0o644))

	text := filepath.Join(dir, "text.nc")
	require.NoError(t, os.WriteFile(text, []byte("definitely not netcdf"), 0o644))

	tests := []struct {
		name    string
		path    string
		want    Format
		wantErr error
	}{
		{"classic", classic, FormatClassic, nil},
		{"hdf5 signature", atZero, FormatNetCDF4, nil},
		{"hdf5 after user block", userBlock, FormatNetCDF4, nil},
		{"text", text, "", ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestReadGrid_NetCDF4 reads a NetCDF-4 granule such as a MUR L4 daily file
// or the MMM baseline. Set SST_NETCDF4_FIXTURE to its path, and
// SST_NETCDF4_VAR to the variable name when it is not analysed_sst.
func TestReadGrid_NetCDF4(t *testing.T) {
	path := os.Getenv("SST_NETCDF4_FIXTURE")
	if path == "" {
		t.Skip("SST_NETCDF4_FIXTURE not set")
	}
	variable := os.Getenv("SST_NETCDF4_VAR")
	if variable == "" {
		variable = "analysed_sst"
	}

	format, err := DetectFormat(path)
	require.NoError(t, err)
	assert.Equal(t, FormatNetCDF4, format)

	full, err := ReadGrid(path, variable)
	require.NoError(t, err)
	require.NoError(t, full.Validate())
	require.NotEmpty(t, full.Values)

	box := domain.BoundingBox{
		MinLat: full.Lat[0], MaxLat: full.Lat[min(2, len(full.Lat)-1)],
		MinLon: full.Lon[0], MaxLon: full.Lon[min(2, len(full.Lon)-1)],
	}
	if box.MinLat > box.MaxLat {
		box.MinLat, box.MaxLat = box.MaxLat, box.MinLat
	}
	if box.MinLon > box.MaxLon {
		box.MinLon, box.MaxLon = box.MaxLon, box.MinLon
	}
	want, err := full.SelectBox(box)
	require.NoError(t, err)
	got, err := ReadRegion(path, variable, box)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want.Values, got.Values, cmpopts.EquateNaNs()))
}
