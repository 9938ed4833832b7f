// Package archive persists daily and monthly SST/DHW grids on disk. The
// directory listing is the index: a day is archived iff its gridded file
// exists.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/reef-sst-archive/internal/adapter/netcdf"
	"github.com/couchcryptid/reef-sst-archive/internal/adapter/table"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// Variable names of the archived data variables.
const (
	VarSST = "sst"
	VarDHW = "dhw"
)

var longNames = map[domain.Kind]string{
	domain.KindSST: "sea surface temperature",
	domain.KindDHW: "degree heating weeks",
}

// VarName returns the data variable stored in files of kind.
func VarName(kind domain.Kind) string {
	if kind == domain.KindDHW {
		return VarDHW
	}
	return VarSST
}

// Store is the on-disk archive. It is safe for concurrent use.
type Store struct {
	layout Layout
	source string
	logger *slog.Logger

	mu    sync.RWMutex
	index map[domain.Kind]map[domain.Date]struct{}
}

// Open prepares the directory tree, removes leftovers of interrupted writes
// and scans the daily directories once to build the index.
func Open(layout Layout, source string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		layout: layout,
		source: source,
		logger: logger,
		index:  make(map[domain.Kind]map[domain.Date]struct{}),
	}
	for _, dir := range layout.dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		n, err := removeStaleTemps(dir)
		if err != nil {
			return nil, fmt.Errorf("clean %s: %w", dir, err)
		}
		if n > 0 {
			logger.Warn("removed interrupted writes", "dir", dir, "count", n)
		}
	}
	for _, kind := range []domain.Kind{domain.KindSST, domain.KindDHW} {
		set, err := s.scanDays(kind)
		if err != nil {
			return nil, err
		}
		s.index[kind] = set
	}
	return s, nil
}

// Layout returns the path layout backing the store.
func (s *Store) Layout() Layout { return s.layout }

func (s *Store) scanDays(kind domain.Kind) (map[domain.Date]struct{}, error) {
	dir := s.layout.GridDir(kind, domain.PeriodDaily)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	set := make(map[domain.Date]struct{}, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != gridExt {
			continue
		}
		d, err := domain.ParseDate(strings.TrimSuffix(name, gridExt))
		if err != nil {
			s.logger.Debug("ignoring unrecognized archive file", "path", filepath.Join(dir, name))
			continue
		}
		set[d] = struct{}{}
	}
	return set, nil
}

// Has reports whether a daily record of kind exists for d.
func (s *Store) Has(kind domain.Kind, d domain.Date) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[kind][d]
	return ok
}

// Dates returns the archived days of kind in ascending order.
func (s *Store) Dates(kind domain.Kind) []domain.Date {
	s.mu.RLock()
	out := make([]domain.Date, 0, len(s.index[kind]))
	for d := range s.index[kind] {
		out = append(out, d)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, domain.Date.Compare)
	return out
}

// ReadDay loads the daily grid of kind for d.
func (s *Store) ReadDay(kind domain.Kind, d domain.Date) (domain.Grid, error) {
	return netcdf.ReadGrid(s.layout.GridPath(kind, domain.PeriodDaily, d.String()), VarName(kind))
}

// WriteDay commits the daily grid and its CSV twin. The twin is written
// first so that an indexed day always has one.
func (s *Store) WriteDay(kind domain.Kind, d domain.Date, g domain.Grid) (string, error) {
	key := d.String()
	path, err := s.writeRecord(kind, domain.PeriodDaily, key, g, map[string]string{"date": key})
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.index[kind][d] = struct{}{}
	s.mu.Unlock()
	return path, nil
}

// HasTable reports whether the CSV twin of a daily record exists.
func (s *Store) HasTable(kind domain.Kind, d domain.Date) bool {
	_, err := os.Stat(s.layout.TablePath(kind, domain.PeriodDaily, d.String()))
	return err == nil
}

// WriteDayTable regenerates the CSV twin of an archived day from its grid.
func (s *Store) WriteDayTable(kind domain.Kind, d domain.Date) error {
	g, err := s.ReadDay(kind, d)
	if err != nil {
		return err
	}
	return writeAtomic(s.layout.TablePath(kind, domain.PeriodDaily, d.String()), func(f *os.File) error {
		return table.WriteGrid(f, g)
	})
}

// WriteMonth commits a monthly mean grid and its CSV twin.
func (s *Store) WriteMonth(kind domain.Kind, m domain.Month, g domain.Grid) (string, error) {
	key := m.String()
	return s.writeRecord(kind, domain.PeriodMonthly, key, g, map[string]string{"month": key})
}

// ReadMonth loads the monthly mean grid of kind for m.
func (s *Store) ReadMonth(kind domain.Kind, m domain.Month) (domain.Grid, error) {
	return netcdf.ReadGrid(s.layout.GridPath(kind, domain.PeriodMonthly, m.String()), VarName(kind))
}

// Months lists the monthly records of kind present on disk, ascending.
func (s *Store) Months(kind domain.Kind) ([]domain.Month, error) {
	dir := s.layout.GridDir(kind, domain.PeriodMonthly)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var out []domain.Month
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != gridExt {
			continue
		}
		m, err := domain.ParseMonth(strings.TrimSuffix(e.Name(), gridExt))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, domain.Month.Compare)
	return out, nil
}

// ClearMonthly deletes every monthly grid, twin and series file.
func (s *Store) ClearMonthly() error {
	var dirs []string
	for _, k := range []domain.Kind{domain.KindSST, domain.KindDHW} {
		dirs = append(dirs, s.layout.GridDir(k, domain.PeriodMonthly), s.layout.TableDir(k, domain.PeriodMonthly))
	}
	dirs = append(dirs, s.layout.SeriesDir())

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("clear %s: %w", dir, err)
			}
		}
	}
	return nil
}

// WriteSeries replaces the monthly scalar series of kind.
func (s *Store) WriteSeries(kind domain.Kind, points []domain.SeriesPoint) (string, error) {
	path := s.layout.SeriesPath(kind)
	column := "mean_" + string(kind)
	err := writeAtomic(path, func(f *os.File) error {
		return table.WriteSeries(f, column, points)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ScratchDir creates and returns the download directory for d.
func (s *Store) ScratchDir(d domain.Date) (string, error) {
	dir := s.layout.ScratchDir(d)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch %s: %w", dir, err)
	}
	return dir, nil
}

// RemoveScratch deletes the download directory for d. A missing directory is
// not an error.
func (s *Store) RemoveScratch(d domain.Date) error {
	err := os.RemoveAll(s.layout.ScratchDir(d))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove scratch: %w", err)
	}
	return nil
}

func (s *Store) writeRecord(kind domain.Kind, period domain.Period, key string, g domain.Grid, global map[string]string) (string, error) {
	if s.source != "" {
		global["source"] = s.source
	}
	global["kind"] = string(kind)

	err := writeAtomic(s.layout.TablePath(kind, period, key), func(f *os.File) error {
		return table.WriteGrid(f, g)
	})
	if err != nil {
		return "", err
	}

	path := s.layout.GridPath(kind, period, key)
	err = writeAtomic(path, func(f *os.File) error {
		return netcdf.WriteGrid(f, g, netcdf.VarSpec{
			Name:     VarName(kind),
			LongName: longNames[kind],
			Global:   global,
		})
	})
	if err != nil {
		return "", err
	}
	return path, nil
}
