package archive

import (
	"path/filepath"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

const (
	gridExt  = ".nc"
	tableExt = ".csv"
)

// Layout maps archive records onto the filesystem:
//
//	<root>/<kind>/<period>/grid/<key>.nc
//	<root>/<kind>/<period>/table/<key>.csv
//	<root>/series/monthly_<kind>.csv
//	<scratch>/<date>/
type Layout struct {
	Root    string
	Scratch string
}

// GridDir is the directory holding the gridded files for kind and period.
func (l Layout) GridDir(kind domain.Kind, period domain.Period) string {
	return filepath.Join(l.Root, string(kind), string(period), "grid")
}

// TableDir is the directory holding the CSV twins for kind and period.
func (l Layout) TableDir(kind domain.Kind, period domain.Period) string {
	return filepath.Join(l.Root, string(kind), string(period), "table")
}

// SeriesDir holds the monthly scalar series.
func (l Layout) SeriesDir() string {
	return filepath.Join(l.Root, "series")
}

// GridPath returns the gridded file for a record key (YYYY-MM-DD or YYYY-MM).
func (l Layout) GridPath(kind domain.Kind, period domain.Period, key string) string {
	return filepath.Join(l.GridDir(kind, period), key+gridExt)
}

// TablePath returns the CSV twin for a record key.
func (l Layout) TablePath(kind domain.Kind, period domain.Period, key string) string {
	return filepath.Join(l.TableDir(kind, period), key+tableExt)
}

// SeriesPath returns the monthly scalar series file for kind.
func (l Layout) SeriesPath(kind domain.Kind) string {
	return filepath.Join(l.SeriesDir(), "monthly_"+string(kind)+tableExt)
}

// ScratchDir is the per-date download directory.
func (l Layout) ScratchDir(d domain.Date) string {
	return filepath.Join(l.Scratch, d.String())
}

func (l Layout) dirs() []string {
	out := []string{l.SeriesDir(), l.Scratch}
	for _, k := range []domain.Kind{domain.KindSST, domain.KindDHW} {
		for _, p := range []domain.Period{domain.PeriodDaily, domain.PeriodMonthly} {
			out = append(out, l.GridDir(k, p), l.TableDir(k, p))
		}
	}
	return out
}
