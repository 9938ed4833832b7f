// Command genmock stages synthetic raw SST analyses and a matching
// climatology so the archive can run end to end without network access.
// Files are written exactly where the archive expects downloads to land,
// so run the archive with ARCHIVE_INGEST_DOWNLOAD=false afterwards.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -scratch data/download \
//	  -baseline data/hrcs_mmm.nc \
//	  -start 2024-01-01 -end 2024-04-30
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/reef-sst-archive/internal/adapter/netcdf"
	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	kelvinOffset = 273.15
	resolution   = 0.01
	rawFileName  = "090000-JPL-L4_GHRSST-SSTfnd-MUR-GLOB-v02.0-fv04.1.nc"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	scratch := flag.String("scratch", "", "scratch root to stage raw daily files in")
	baseline := flag.String("baseline", "", "output path for the climatology grid")
	start := flag.String("start", "", "first date to stage")
	end := flag.String("end", "", "last date to stage (default yesterday)")
	minLat := flag.Float64("min-lat", 11.95, "southern edge")
	maxLat := flag.Float64("max-lat", 12.35, "northern edge")
	minLon := flag.Float64("min-lon", -68.5, "western edge")
	maxLon := flag.Float64("max-lon", -68.15, "eastern edge")
	mmm := flag.Float64("mmm", 28.0, "climatological maximum monthly mean in celsius")
	flag.Parse()

	if *scratch == "" || *baseline == "" || *start == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -scratch, -baseline, -start")
	}

	// Fixed clock so the default end date is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.May, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	first, _ := domain.NormalizeDate(*start)
	last := domain.Yesterday()
	if *end != "" {
		last, _ = domain.NormalizeDate(*end)
	}
	if !first.IsValid() || !last.IsValid() {
		return fmt.Errorf("%w: %q..%q", domain.ErrInvalidDate, *start, *end)
	}
	dates, err := domain.DateRange(first, last)
	if err != nil {
		return err
	}

	box := domain.BoundingBox{MinLat: *minLat, MaxLat: *maxLat, MinLon: *minLon, MaxLon: *maxLon}
	// The raw extent is padded by a few cells so the region crop has work to do.
	lat := axis(box.MinLat-3*resolution, box.MaxLat+3*resolution)
	lon := axis(box.MinLon-3*resolution, box.MaxLon+3*resolution)

	layout := archive.Layout{Scratch: *scratch}
	for _, d := range dates {
		dir := layout.ScratchDir(d)
		if err := stageDay(dir, d, lat, lon); err != nil {
			return fmt.Errorf("stage %s: %w", d, err)
		}
	}
	log.Printf("staged %d raw days in %s", len(dates), *scratch)

	if err := writeBaseline(*baseline, box, *mmm); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	log.Printf("baseline written to %s", *baseline)
	return nil
}

// axis returns an ascending axis on the analysis resolution, rounded to two
// decimals like the upstream product.
func axis(lo, hi float64) []float64 {
	n := int(math.Round((hi-lo)/resolution)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = domain.RoundTo(lo+float64(i)*resolution, 2)
	}
	return out
}

// seasonal is a smooth annual cycle peaking in early October with a small
// north-south gradient.
func seasonal(d domain.Date, lat float64) float64 {
	doy := float64(d.Time().YearDay())
	return 27.5 + 1.5*math.Sin(2*math.Pi*(doy-190)/365) - 0.2*(lat-12)
}

func stageDay(dir string, d domain.Date, lat, lon []float64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	g := domain.NewGrid(lat, lon, domain.UnitsKelvin)
	for i, la := range lat {
		for j := range lon {
			g.Set(i, j, seasonal(d, la)+kelvinOffset)
		}
	}
	if err := writeGrid(filepath.Join(dir, d.Time().Format("20060102")+rawFileName), g, "analysed_sst"); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "podaac-data-downloader.log.txt"), []byte("mock\n"), 0o644)
}

func writeBaseline(path string, box domain.BoundingBox, mmm float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// The climatology ships north to south.
	g := domain.NewGrid(axis(box.MinLat, box.MaxLat), axis(box.MinLon, box.MaxLon), domain.UnitsCelsius).FlipLat()
	for i := range g.Values {
		g.Values[i] = mmm
	}
	return writeGrid(path, g, "variable")
}

func writeGrid(path string, g domain.Grid, variable string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := netcdf.WriteGrid(f, g, netcdf.VarSpec{Name: variable}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
