// Package ledger decides which calendar days still need to be ingested.
package ledger

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// Index answers whether a day is already archived.
type Index interface {
	Has(kind domain.Kind, d domain.Date) bool
}

// Range is a normalized, inclusive span of days.
type Range struct {
	Start domain.Date
	End   domain.Date
}

// Days enumerates the range in ascending order.
func (r Range) Days() ([]domain.Date, error) {
	return domain.DateRange(r.Start, r.End)
}

func (r Range) String() string { return r.Start.String() + ".." + r.End.String() }

// Bounds are the configured archive limits after normalization. A zero End
// follows the calendar: every Range call resolves it to yesterday.
type Bounds struct {
	Start domain.Date
	End   domain.Date
}

// ParseBounds normalizes the user-supplied bounds once. A bound in a
// non-canonical layout is accepted with a warning; an unparseable one is
// rejected with domain.ErrInvalidDate. An empty end means yesterday.
func ParseBounds(start, end string, logger *slog.Logger) (Bounds, error) {
	s, err := resolveOne("start", start, logger)
	if err != nil {
		return Bounds{}, err
	}
	if end == "" {
		return Bounds{Start: s}, nil
	}
	e, err := resolveOne("end", end, logger)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{Start: s, End: e}, nil
}

// Range returns the concrete span for a run starting now.
func (b Bounds) Range() Range {
	if !b.End.IsValid() {
		return Range{Start: b.Start, End: domain.Yesterday()}
	}
	return Range{Start: b.Start, End: b.End}
}

// Resolve is ParseBounds followed by Range, for one-off runs.
func Resolve(start, end string, logger *slog.Logger) (Range, error) {
	b, err := ParseBounds(start, end, logger)
	if err != nil {
		return Range{}, err
	}
	return b.Range(), nil
}

func resolveOne(name, raw string, logger *slog.Logger) (domain.Date, error) {
	d, reformatted := domain.NormalizeDate(raw)
	if !d.IsValid() {
		return domain.NoDate, fmt.Errorf("%s date %q: %w", name, raw, domain.ErrInvalidDate)
	}
	if reformatted {
		logger.Warn("date reformatted", "bound", name, "input", raw, "date", d.String())
	}
	return d, nil
}

// Missing returns the days of r that have no SST record in idx, ascending.
// Calling it again without writing anything yields the same list.
func Missing(idx Index, r Range) ([]domain.Date, error) {
	days, err := r.Days()
	if err != nil {
		return nil, err
	}
	var out []domain.Date
	for _, d := range days {
		if !idx.Has(domain.KindSST, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ContiguousRuns splits ascending dates into maximal gap-free runs.
func ContiguousRuns(dates []domain.Date) [][]domain.Date {
	var runs [][]domain.Date
	start := 0
	for i := 1; i <= len(dates); i++ {
		if i < len(dates) && dates[i].DaysSince(dates[i-1]) == 1 {
			continue
		}
		if i > start {
			runs = append(runs, dates[start:i])
		}
		start = i
	}
	return runs
}
