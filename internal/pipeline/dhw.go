package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/couchcryptid/reef-sst-archive/internal/adapter/netcdf"
	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
)

// Policy is the idempotence rule a stage applies to records that already
// exist. Each output kind runs under exactly one policy per run.
type Policy int

const (
	// PolicySkipExisting writes only records that do not exist yet. DHW runs
	// under it when nothing was ingested.
	PolicySkipExisting Policy = iota
	// PolicyRecomputeFresh additionally rewrites every record whose window
	// contains a freshly ingested day. DHW runs under it after ingestion.
	PolicyRecomputeFresh
	// PolicyRegenerateAll rewrites every record. The monthly reducer always
	// runs under it and clears its tree first; DHW uses it only when a
	// rebuild is configured, overwriting every eligible day in place.
	PolicyRegenerateAll
)

func (p Policy) String() string {
	switch p {
	case PolicySkipExisting:
		return "skip-existing"
	case PolicyRecomputeFresh:
		return "recompute-fresh"
	case PolicyRegenerateAll:
		return "regenerate-all"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// maxChunkDays caps how many consecutive targets one worker handles, so a
// long backfill still spreads across the pool.
const maxChunkDays = 365

// AccumulatorConfig configures DHW accumulation.
type AccumulatorConfig struct {
	BaselinePath   string
	BaselineVar    string
	BaselineOffset float64
	WeekNormalize  bool
	WindowDays     int
	Workers        int
	// Rebuild rewrites every eligible DHW day on each run.
	Rebuild bool
}

// Accumulator writes daily DHW records from the SST archive.
type Accumulator struct {
	store   *archive.Store
	cfg     AccumulatorConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewAccumulator(store *archive.Store, cfg AccumulatorConfig, logger *slog.Logger, metrics *observability.Metrics) *Accumulator {
	if cfg.WindowDays < 1 {
		cfg.WindowDays = domain.WindowDays
	}
	return &Accumulator{store: store, cfg: cfg, logger: logger, metrics: metrics}
}

// DHWResult is the outcome of one DHW record.
type DHWResult struct {
	Date domain.Date
	Path string
	Mean float64
	Err  error
}

// LoadThreshold reads the baseline climatology and aligns it with the SST
// archive. It fails with domain.ErrBaselineMissing when the file is absent
// and with *domain.AlignmentError when the grids do not line up.
func (a *Accumulator) LoadThreshold(reference domain.Grid) (domain.Threshold, error) {
	if _, err := os.Stat(a.cfg.BaselinePath); errors.Is(err, fs.ErrNotExist) {
		return domain.Threshold{}, fmt.Errorf("%w: %s", domain.ErrBaselineMissing, a.cfg.BaselinePath)
	}
	baseline, err := netcdf.ReadGrid(a.cfg.BaselinePath, a.cfg.BaselineVar)
	if err != nil {
		return domain.Threshold{}, err
	}
	return domain.BuildThreshold(reference.Lat, reference.Lon, baseline, a.cfg.BaselineOffset)
}

// Policy picks the DHW policy for a run that freshly ingested the given days.
func (a *Accumulator) Policy(fresh []domain.Date) Policy {
	switch {
	case a.cfg.Rebuild:
		return PolicyRegenerateAll
	case len(fresh) == 0:
		return PolicySkipExisting
	default:
		return PolicyRecomputeFresh
	}
}

// Plan returns, ascending, the days that get a DHW record this run. A day is
// eligible only if all WindowDays days ending on it are archived. Under
// PolicySkipExisting eligible days without a record are chosen; under
// PolicyRecomputeFresh every eligible day whose window contains a fresh day
// is chosen too. PolicyRegenerateAll chooses every eligible day.
func (a *Accumulator) Plan(sstDays, fresh []domain.Date, policy Policy) []domain.Date {
	window := a.cfg.WindowDays
	complete := make(map[domain.Date]struct{})
	var eligible []domain.Date
	for _, run := range ledger.ContiguousRuns(sstDays) {
		for i := window - 1; i < len(run); i++ {
			complete[run[i]] = struct{}{}
			eligible = append(eligible, run[i])
		}
	}

	if policy == PolicyRegenerateAll {
		return eligible
	}

	chosen := make(map[domain.Date]struct{})
	for _, d := range eligible {
		if !a.store.Has(domain.KindDHW, d) {
			chosen[d] = struct{}{}
		}
	}
	if policy == PolicyRecomputeFresh {
		for _, f := range fresh {
			for k := range window {
				d := f.AddDays(k)
				if _, ok := complete[d]; ok {
					chosen[d] = struct{}{}
				}
			}
		}
	}

	out := make([]domain.Date, 0, len(chosen))
	for d := range chosen {
		out = append(out, d)
	}
	slices.SortFunc(out, domain.Date.Compare)
	return out
}

// Accumulate computes and writes DHW for every target. Targets are split
// into contiguous chunks processed in parallel; each chunk reads every SST
// day it needs once.
func (a *Accumulator) Accumulate(ctx context.Context, th domain.Threshold, targets []domain.Date) ([]DHWResult, error) {
	var chunks [][]domain.Date
	for _, run := range ledger.ContiguousRuns(targets) {
		for len(run) > maxChunkDays {
			chunks = append(chunks, run[:maxChunkDays])
			run = run[maxChunkDays:]
		}
		chunks = append(chunks, run)
	}

	prog := newProgress(a.logger, "dhw", len(targets), 1000)
	perChunk, err := runPool(ctx, a.cfg.Workers, chunks, func(ctx context.Context, chunk []domain.Date) []DHWResult {
		return a.accumulateChunk(ctx, th, chunk, prog)
	})
	if err != nil {
		return nil, err
	}

	var out []DHWResult
	for _, rs := range perChunk {
		out = append(out, rs...)
	}
	return out, nil
}

type excessEntry struct {
	grid domain.Grid
	err  error
}

func (a *Accumulator) accumulateChunk(ctx context.Context, th domain.Threshold, chunk []domain.Date, prog *progress) []DHWResult {
	window := a.cfg.WindowDays
	cache := newLRUCache[domain.Date, excessEntry](window + 1)
	results := make([]DHWResult, 0, len(chunk))

	for _, d := range chunk {
		if ctx.Err() != nil {
			break
		}
		excess := make([]domain.Grid, 0, window)
		for k := window - 1; k >= 0; k-- {
			day := d.AddDays(-k)
			e, ok := cache.get(day)
			if !ok {
				e = a.dailyExcess(th, day)
				cache.put(day, e)
			}
			if e.err != nil {
				continue
			}
			excess = append(excess, e.grid)
		}

		res := a.writeDHW(d, excess)
		results = append(results, res)
		prog.step(d)
	}
	return results
}

// dailyExcess reads one SST day. Unreadable days are logged once per chunk
// and leave a gap in every window that contains them.
func (a *Accumulator) dailyExcess(th domain.Threshold, d domain.Date) excessEntry {
	sst, err := a.store.ReadDay(domain.KindSST, d)
	if err == nil {
		var g domain.Grid
		g, err = th.DailyExcess(sst)
		if err == nil {
			return excessEntry{grid: g}
		}
	}
	a.logger.Warn("skipping unreadable SST day in DHW window", "date", d.String(), "error", err)
	a.metrics.CorruptDays.Inc()
	return excessEntry{err: err}
}

func (a *Accumulator) writeDHW(d domain.Date, excess []domain.Grid) DHWResult {
	res := DHWResult{Date: d}
	total, err := domain.AccumulateWindow(excess, a.cfg.WeekNormalize)
	if err != nil {
		res.Err = fmt.Errorf("dhw %s: %w", d, err)
		a.metrics.DHWSkipped.WithLabelValues("error").Inc()
		return res
	}

	path, err := a.store.WriteDay(domain.KindDHW, d, total.FlipLat())
	if err != nil {
		res.Err = fmt.Errorf("dhw %s: %w", d, err)
		a.metrics.DHWSkipped.WithLabelValues("error").Inc()
		return res
	}
	a.metrics.DHWWritten.Inc()
	res.Path = path
	res.Mean = domain.RoundTo(domain.FiniteMean(total.Values), domain.OutputPrecision)
	return res
}
