// Command validate audits an archive tree for internal consistency: every
// daily grid has its table twin, DHW exists exactly where a complete SST
// window does, monthly aggregates cover every archived month, and the
// scalar series agree with the monthly grids.
//
// Usage:
//
//	go run ./cmd/validate -archive data/archive
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
)

var kinds = []domain.Kind{domain.KindSST, domain.KindDHW}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	root := flag.String("archive", "", "archive root directory")
	window := flag.Int("window", domain.WindowDays, "DHW accumulation window in days")
	flag.Parse()

	if *root == "" || *window < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*root, *window); code != 0 {
		os.Exit(code)
	}
}

func run(root string, window int) int {
	scratch, err := os.MkdirTemp("", "sst-validate-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: scratch dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(scratch)

	store, err := archive.Open(archive.Layout{Root: root, Scratch: scratch}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open archive: %v\n", err)
		return 1
	}

	fmt.Println("=== SST Archive Integrity Validation ===")
	fmt.Println()

	phases := []*phase{
		validateDaily(store),
		validateDHWCoverage(store, window),
		validateMonthly(store),
		validateSeries(store),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d SST days, %d DHW days\n",
		len(store.Dates(domain.KindSST)), len(store.Dates(domain.KindDHW)))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Daily records ──
// Every daily grid is readable, has a table twin and the orientation its
// kind is stored in.

func validateDaily(store *archive.Store) *phase {
	p := &phase{name: "Phase 1: Daily records (grid + table)"}

	for _, kind := range kinds {
		for _, d := range store.Dates(kind) {
			if !store.HasTable(kind, d) {
				p.errorf("%s %s: table twin missing", kind, d)
			}
			g, err := store.ReadDay(kind, d)
			if err != nil {
				p.errorf("%s %s: %v", kind, d, err)
				continue
			}
			wantDesc := kind == domain.KindDHW
			if g.LatDescending() != wantDesc {
				p.errorf("%s %s: latitude descending=%t, want %t", kind, d, g.LatDescending(), wantDesc)
			}
		}
	}
	return p
}

// ── Phase 2: DHW coverage ──
// A DHW day exists exactly when the SST window ending on it is complete.

func validateDHWCoverage(store *archive.Store, window int) *phase {
	p := &phase{name: "Phase 2: DHW coverage (complete windows)"}

	complete := make(map[domain.Date]bool)
	for _, run := range ledger.ContiguousRuns(store.Dates(domain.KindSST)) {
		for i := window - 1; i < len(run); i++ {
			complete[run[i]] = true
		}
	}

	for d := range complete {
		if !store.Has(domain.KindDHW, d) {
			p.errorf("dhw %s: window complete but record missing", d)
		}
	}
	for _, d := range store.Dates(domain.KindDHW) {
		if !complete[d] {
			p.errorf("dhw %s: record present without a complete %d-day SST window", d, window)
		}
	}
	return p
}

// ── Phase 3: Monthly coverage ──
// Each month with daily records has exactly one monthly aggregate.

func validateMonthly(store *archive.Store) *phase {
	p := &phase{name: "Phase 3: Monthly aggregates (coverage)"}

	for _, kind := range kinds {
		want := make(map[string]bool)
		for _, d := range store.Dates(kind) {
			want[d.Month().String()] = true
		}
		months, err := store.Months(kind)
		if err != nil {
			p.errorf("%s: %v", kind, err)
			continue
		}
		got := make(map[string]bool, len(months))
		for _, m := range months {
			got[m.String()] = true
			if !want[m.String()] {
				p.errorf("%s %s: monthly record without daily records", kind, m)
			}
		}
		for m := range want {
			if !got[m] {
				p.errorf("%s %s: monthly record missing", kind, m)
			}
		}
	}
	return p
}

// ── Phase 4: Scalar series ──
// Series rows match the rounded finite mean of each monthly grid.

func validateSeries(store *archive.Store) *phase {
	p := &phase{name: "Phase 4: Scalar series (vs monthly grids)"}

	for _, kind := range kinds {
		months, err := store.Months(kind)
		if err != nil {
			p.errorf("%s: %v", kind, err)
			continue
		}
		path := store.Layout().SeriesPath(kind)
		rows, err := loadSeries(path)
		if os.IsNotExist(err) {
			if len(months) > 0 {
				p.errorf("%s: series %s missing", kind, path)
			}
			continue
		}
		if err != nil {
			p.errorf("%s: %v", kind, err)
			continue
		}
		if len(rows) != len(months) {
			p.errorf("%s: series has %d rows, %d monthly records", kind, len(rows), len(months))
		}
		for _, m := range months {
			g, err := store.ReadMonth(kind, m)
			if err != nil {
				p.errorf("%s %s: %v", kind, m, err)
				continue
			}
			want := domain.RoundTo(domain.FiniteMean(g.Values), domain.OutputPrecision)
			got, ok := rows[m.String()]
			if !ok {
				p.errorf("%s %s: series row missing", kind, m)
				continue
			}
			if math.IsNaN(got) && math.IsNaN(want) {
				continue
			}
			// Grids are persisted as float32, so allow a rounding step of slack.
			if !(math.Abs(got-want) <= 0.011) {
				p.errorf("%s %s: series=%.2f, grid mean=%.2f", kind, m, got, want)
			}
		}
	}
	return p
}

func loadSeries(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s: no header", path)
	}
	out := make(map[string]float64, len(all)-1)
	for i, row := range all[1:] {
		if len(row) != 2 {
			return nil, fmt.Errorf("%s line %d: %d fields, want 2", path, i+2, len(row))
		}
		if row[1] == "" {
			out[row[0]] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		out[row[0]] = v
	}
	return out, nil
}
