package netcdf

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	ncfile "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// ReadGrid reads variable in full on its lat/lon axes. The variable may be
// 2-D (lat, lon) or 3-D with a leading time axis, in which case the first
// time step is used. Packed integer data is unpacked with scale_factor and
// add_offset; cells equal to _FillValue or missing_value become NaN.
func ReadGrid(path, variable string) (domain.Grid, error) {
	return read(path, variable, nil)
}

// ReadRegion is ReadGrid restricted to the cells inside box. Only the
// coordinate axes are read in full; the data variable is read as the
// hyperslab covering box.
func ReadRegion(path, variable string, box domain.BoundingBox) (domain.Grid, error) {
	return read(path, variable, &box)
}

func read(path, variable string, box *domain.BoundingBox) (domain.Grid, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read grid: %w", err)
	}
	nc, err := ncfile.Open(path)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("open %s %s: %w", format, path, err)
	}
	defer nc.Close()

	g, err := decode(nc, variable, box)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read grid %s: %w", path, err)
	}
	return g, nil
}

func decode(nc api.Group, variable string, box *domain.BoundingBox) (domain.Grid, error) {
	names := nc.ListVariables()
	for _, v := range []string{latVar, lonVar, variable} {
		if !slices.Contains(names, v) {
			return domain.Grid{}, fmt.Errorf("variable %q not found", v)
		}
	}

	lat, err := readAxis(nc, latVar)
	if err != nil {
		return domain.Grid{}, err
	}
	lon, err := readAxis(nc, lonVar)
	if err != nil {
		return domain.Grid{}, err
	}

	a := domain.Alignment{
		Lat: domain.Window{Start: 0, End: len(lat)},
		Lon: domain.Window{Start: 0, End: len(lon)},
	}
	if box != nil {
		if a, err = domain.BoxAlignment(lat, lon, *box); err != nil {
			return domain.Grid{}, err
		}
	}

	vg, err := nc.GetVarGetter(variable)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("variable %q: %w", variable, err)
	}
	begin, end, err := hyperslab(vg.Shape(), len(lat), len(lon), a)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("variable %q: %w", variable, err)
	}
	raw, err := vg.GetSliceMD(begin, end)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read variable %s: %w", variable, err)
	}

	pk := packingOf(vg.Attributes())
	n := a.Lat.Len() * a.Lon.Len()
	values := make([]float64, 0, n)
	err = each(reflect.ValueOf(raw), func(v float64) {
		values = append(values, pk.unpack(v))
	})
	if err != nil {
		return domain.Grid{}, fmt.Errorf("variable %s: %w", variable, err)
	}
	if len(values) != n {
		return domain.Grid{}, fmt.Errorf("variable %q: read %d values, want %d", variable, len(values), n)
	}

	g := domain.Grid{
		Lat:    slices.Clone(lat[a.Lat.Start:a.Lat.End]),
		Lon:    slices.Clone(lon[a.Lon.Start:a.Lon.End]),
		Values: values,
		Units:  pk.units,
	}
	if err := g.Validate(); err != nil {
		return domain.Grid{}, err
	}
	return g, nil
}

// hyperslab maps the lat/lon windows onto the variable's dimensions.
func hyperslab(shape []int64, nLat, nLon int, a domain.Alignment) (begin, end []int64, err error) {
	rows := []int64{int64(a.Lat.Start), int64(a.Lon.Start)}
	stop := []int64{int64(a.Lat.End), int64(a.Lon.End)}
	switch {
	case len(shape) == 2 && shape[0] == int64(nLat) && shape[1] == int64(nLon):
		return rows, stop, nil
	case len(shape) == 3 && shape[0] >= 1 && shape[1] == int64(nLat) && shape[2] == int64(nLon):
		return append([]int64{0}, rows...), append([]int64{1}, stop...), nil
	}
	return nil, nil, fmt.Errorf("shape %v, want [lat lon] or [time lat lon]", shape)
}

func readAxis(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("read variable %s: %w", name, err)
	}
	var out []float64
	if err := each(reflect.ValueOf(raw), func(v float64) { out = append(out, v) }); err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return out, nil
}

// packing holds the CF attributes that turn stored values into physical
// ones. Fill comparison happens on the packed value, before scaling.
type packing struct {
	fills  []float64
	scale  float64
	offset float64
	units  string
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	for _, a := range []string{"_FillValue", "missing_value"} {
		if v, ok := numberAttr(attrs, a); ok {
			p.fills = append(p.fills, v)
		}
	}
	if v, ok := numberAttr(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := numberAttr(attrs, "add_offset"); ok {
		p.offset = v
	}
	if attrs != nil {
		if v, ok := attrs.Get("units"); ok {
			p.units, _ = v.(string)
		}
	}
	return p
}

func (p packing) unpack(v float64) float64 {
	if slices.Contains(p.fills, v) {
		return math.NaN()
	}
	return v*p.scale + p.offset
}

// numberAttr returns the first value of a numeric attribute, whether it is
// stored as a scalar or a one-element array.
func numberAttr(attrs api.AttributeMap, name string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(name)
	if !ok {
		return 0, false
	}
	var (
		first float64
		found bool
	)
	err := each(reflect.ValueOf(raw), func(v float64) {
		if !found {
			first, found = v, true
		}
	})
	if err != nil {
		return 0, false
	}
	return first, found
}

// each visits every number in a scalar or an arbitrarily nested slice, in
// row-major order, widening it to float64 exactly once.
func each(v reflect.Value, fn func(float64)) error {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if err := each(v.Index(i), fn); err != nil {
				return err
			}
		}
	case reflect.Float32, reflect.Float64:
		fn(v.Float())
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		fn(float64(v.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		fn(float64(v.Uint()))
	case reflect.Interface:
		return each(v.Elem(), fn)
	default:
		return fmt.Errorf("non-numeric data of kind %s", v.Kind())
	}
	return nil
}
