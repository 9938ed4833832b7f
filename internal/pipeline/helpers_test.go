package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/couchcryptid/reef-sst-archive/internal/adapter/netcdf"
	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
	"github.com/couchcryptid/reef-sst-archive/internal/pipeline"
	"github.com/stretchr/testify/require"
)

const kelvinOffset = 273.15

var (
	rawLat = []float64{11.9, 12.0, 12.1, 12.2}
	rawLon = []float64{-68.6, -68.5, -68.4, -68.3}

	// Selects rows 12.0, 12.1 and columns -68.5, -68.4 of the raw grid.
	testRegion = domain.BoundingBox{MinLat: 11.95, MaxLat: 12.15, MinLon: -68.55, MaxLon: -68.35}
	regionLat  = []float64{12.0, 12.1}
	regionLon  = []float64{-68.5, -68.4}
)

// --- fakes ---

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.RecordEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, events []domain.RecordEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

// stagingDownloader copies a prepared raw file into the scratch directory,
// or fails for dates listed in fail.
type stagingDownloader struct {
	mu      sync.Mutex
	celsius map[string]float64
	fail    map[string]bool
	calls   int
}

func (s *stagingDownloader) Fetch(_ context.Context, d domain.Date, dir string) error {
	s.mu.Lock()
	s.calls++
	fail := s.fail[d.String()]
	c, ok := s.celsius[d.String()]
	s.mu.Unlock()
	if fail {
		return io.ErrUnexpectedEOF
	}
	if !ok {
		return nil
	}
	return writeRaw(dir, d, c)
}

// --- fixture ---

type fixture struct {
	t          *testing.T
	layout     archive.Layout
	baseline   string
	window     int
	weekly     bool
	rebuild    bool
	downloader pipeline.Downloader
	publisher  *fakePublisher
	metrics    *observability.Metrics
	store      *archive.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		t: t,
		layout: archive.Layout{
			Root:    filepath.Join(root, "archive"),
			Scratch: filepath.Join(root, "scratch"),
		},
		baseline:  filepath.Join(root, "hrcs_mmm.nc"),
		window:    3,
		publisher: &fakePublisher{},
		metrics:   observability.NewMetricsForTesting(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func days(ss ...string) []domain.Date {
	out := make([]domain.Date, len(ss))
	for i, s := range ss {
		out[i] = day(s)
	}
	return out
}

// writeRaw writes a full-extent raw analysis in Kelvin with a constant
// temperature, plus a sidecar .txt file like the downloader leaves behind.
func writeRaw(dir string, d domain.Date, celsius float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	g := domain.NewGrid(rawLat, rawLon, domain.UnitsKelvin)
	for i := range g.Values {
		g.Values[i] = celsius + kelvinOffset
	}
	f, err := os.Create(filepath.Join(dir, d.String()+"090000-JPL-L4_GHRSST-SSTfnd-MUR-GLOB-v02.0-fv04.1.nc"))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := netcdf.WriteGrid(f, g, netcdf.VarSpec{Name: "analysed_sst"}); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "podaac-log.txt"), []byte("ok"), 0o644)
}

// stage places raw files for each date at the given temperature.
func (f *fixture) stage(celsius float64, dates ...string) {
	f.t.Helper()
	for _, s := range dates {
		d := day(s)
		require.NoError(f.t, writeRaw(f.layout.ScratchDir(d), d, celsius))
	}
}

// writeBaseline writes a climatology on the given latitudes and regionLon.
func (f *fixture) writeBaseline(lat []float64, celsius float64) {
	f.t.Helper()
	g := domain.NewGrid(lat, regionLon, domain.UnitsCelsius)
	for i := range g.Values {
		g.Values[i] = celsius
	}
	file, err := os.Create(f.baseline)
	require.NoError(f.t, err)
	defer file.Close()
	require.NoError(f.t, netcdf.WriteGrid(file, g, netcdf.VarSpec{Name: "variable"}))
}

// pipeline opens the archive fresh (rescanning the directory) and wires a
// pipeline around it.
func (f *fixture) pipeline() *pipeline.Pipeline {
	f.t.Helper()
	logger := testLogger()
	store, err := archive.Open(f.layout, "test", logger)
	require.NoError(f.t, err)
	f.store = store

	normalizer := pipeline.NewNormalizer(store, f.downloader, pipeline.NormalizerConfig{
		RawVar:       "analysed_sst",
		Region:       testRegion,
		KelvinOffset: kelvinOffset,
	}, logger, f.metrics)
	accumulator := pipeline.NewAccumulator(store, pipeline.AccumulatorConfig{
		BaselinePath:   f.baseline,
		BaselineVar:    "variable",
		BaselineOffset: 1.0,
		WeekNormalize:  f.weekly,
		WindowDays:     f.window,
		Workers:        2,
		Rebuild:        f.rebuild,
	}, logger, f.metrics)
	reducer := pipeline.NewReducer(store, 2, logger, f.metrics)

	stages := pipeline.Stages{Normalizer: normalizer, Accumulator: accumulator, Reducer: reducer}
	return pipeline.New(store, stages, f.publisher, 3, logger, f.metrics)
}

func (f *fixture) run(start, end string) *pipeline.Report {
	f.t.Helper()
	rep, err := f.pipeline().Run(context.Background(), ledger.Range{Start: day(start), End: day(end)})
	require.NoError(f.t, err)
	return rep
}

func (f *fixture) readDHW(d string) domain.Grid {
	f.t.Helper()
	g, err := f.store.ReadDay(domain.KindDHW, day(d))
	require.NoError(f.t, err)
	return g
}
