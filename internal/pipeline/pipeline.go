// Package pipeline runs the archive stages in order: ledger, ingestion, DHW
// accumulation, monthly reduction and event publishing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
)

// Publisher announces committed records downstream.
type Publisher interface {
	Publish(ctx context.Context, events []domain.RecordEvent) error
}

// Stages bundles the per-stage workers.
type Stages struct {
	Normalizer  *Normalizer
	Accumulator *Accumulator
	Reducer     *Reducer
}

// Pipeline orchestrates archive runs. Runs never overlap.
type Pipeline struct {
	store     *archive.Store
	stages    Stages
	publisher Publisher
	workers   int
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	runMu sync.Mutex
	ready atomic.Bool
	last  atomic.Pointer[Report]
}

// New creates a Pipeline. publisher may be nil.
func New(store *archive.Store, stages Stages, publisher Publisher, workers int, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		store:     store,
		stages:    stages,
		publisher: publisher,
		workers:   max(workers, 1),
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
	}
}

// WithClock replaces the time source used for scheduling and timestamps.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// CheckReadiness returns nil once a run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no archive run has completed yet")
	}
	return nil
}

// LastReport returns the report of the most recent completed run, or nil.
func (p *Pipeline) LastReport() *Report {
	return p.last.Load()
}

// Run brings the archive up to date for rng. Per-unit failures are collected
// in the report; the returned error is non-nil only if the run could not
// complete (invalid range, cancellation, unwritable monthly tree).
func (p *Pipeline) Run(ctx context.Context, rng ledger.Range) (*Report, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	rep := &Report{
		RunID:     uuid.NewString(),
		Range:     rng,
		StartedAt: p.clock.Now().UTC(),
		Months:    make(map[domain.Kind]int),
		Policies:  make(map[Stage]Policy),
	}
	logger := p.logger.With("run_id", rep.RunID)
	logger.Info("archive run started", "start", rng.Start.String(), "end", rng.End.String())

	var err error
	p.timeStage(StageLedger, func() {
		rep.Missing, err = ledger.Missing(p.store, rng)
	})
	if err != nil {
		return rep, fmt.Errorf("ledger: %w", err)
	}
	p.metrics.MissingDays.Set(float64(len(rep.Missing)))
	logger.Info("dates missing from SST archive", "count", len(rep.Missing))

	p.timeStage(StageIngest, func() { err = p.ingest(ctx, rep, logger) })
	if err != nil {
		return rep, err
	}

	p.timeStage(StageDHW, func() { err = p.accumulate(ctx, rep, logger) })
	if err != nil {
		return rep, err
	}

	p.timeStage(StageMonthly, func() { err = p.reduce(ctx, rep, logger) })
	if err != nil {
		return rep, err
	}

	p.timeStage(StagePublish, func() { p.publish(ctx, rep, logger) })

	rep.FinishedAt = p.clock.Now().UTC()
	p.last.Store(rep)
	p.ready.Store(true)
	p.metrics.LastSuccess.Set(float64(rep.FinishedAt.Unix()))
	logger.Info("archive run finished",
		"ingested", len(rep.Ingested),
		"skipped", len(rep.Skipped),
		"dhw_written", len(rep.DHWWritten),
		"months_sst", rep.Months[domain.KindSST],
		"months_dhw", rep.Months[domain.KindDHW],
		"failures", len(rep.Failures),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)
	return rep, nil
}

// RunEvery runs immediately and then once per interval until ctx is
// cancelled. bounds is turned into a range before each run so a default end
// date follows the calendar.
func (p *Pipeline) RunEvery(ctx context.Context, interval time.Duration, bounds ledger.Bounds) error {
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx, bounds.Range()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("archive run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

func (p *Pipeline) timeStage(stage Stage, fn func()) {
	start := p.clock.Now()
	fn()
	p.metrics.StageDuration.WithLabelValues(string(stage)).Observe(p.clock.Since(start).Seconds())
}

func (p *Pipeline) ingest(ctx context.Context, rep *Report, logger *slog.Logger) error {
	n := p.stages.Normalizer
	if len(rep.Missing) > 0 && n != nil {
		prog := newProgress(logger, string(StageIngest), len(rep.Missing), 100)
		results, err := runPool(ctx, p.workers, rep.Missing, func(ctx context.Context, d domain.Date) IngestResult {
			res := n.Ingest(ctx, d)
			prog.step(d)
			return res
		})
		if err != nil {
			return err
		}
		for _, res := range results {
			switch {
			case res.Err != nil:
				logger.Error("ingest failed", "date", res.Date.String(), "error", res.Err)
				rep.fail(StageIngest, res.Date.String(), res.Err)
			case res.Skipped:
				rep.Skipped = append(rep.Skipped, res.Date)
			default:
				rep.Ingested = append(rep.Ingested, res.Date)
				rep.Events = append(rep.Events, p.event(rep, domain.KindSST, domain.PeriodDaily, res.Date.String(), res.Path, res.Mean))
			}
		}
	}

	// Twins can go missing independently of their grids.
	for _, d := range p.store.Dates(domain.KindSST) {
		if p.store.HasTable(domain.KindSST, d) {
			continue
		}
		if err := p.store.WriteDayTable(domain.KindSST, d); err != nil {
			rep.fail(StageIngest, d.String(), fmt.Errorf("regenerate table: %w", err))
			continue
		}
		logger.Info("regenerated missing SST table", "date", d.String())
	}
	return nil
}

func (p *Pipeline) accumulate(ctx context.Context, rep *Report, logger *slog.Logger) error {
	acc := p.stages.Accumulator
	if acc == nil {
		return nil
	}
	sstDays := p.store.Dates(domain.KindSST)
	if len(sstDays) == 0 {
		return nil
	}

	ref, err := p.referenceGrid(sstDays)
	if err != nil {
		rep.DHWError = err
		logger.Error("no readable SST day to align against, skipping DHW", "error", err)
		return nil
	}
	th, err := acc.LoadThreshold(ref)
	if err != nil {
		rep.DHWError = err
		var alignErr *domain.AlignmentError
		switch {
		case errors.Is(err, domain.ErrBaselineMissing):
			logger.Warn("baseline missing, skipping DHW", "error", err)
		case errors.As(err, &alignErr):
			logger.Error("baseline does not align with SST grid, skipping DHW", "axis", alignErr.Axis, "error", err)
		default:
			logger.Error("baseline unusable, skipping DHW", "error", err)
		}
		return nil
	}

	policy := acc.Policy(rep.Ingested)
	rep.Policies[StageDHW] = policy
	targets := acc.Plan(sstDays, rep.Ingested, policy)
	logger.Info("DHW days planned", "count", len(targets), "policy", policy.String(), "fresh", len(rep.Ingested))
	results, err := acc.Accumulate(ctx, th, targets)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			logger.Error("DHW failed", "date", res.Date.String(), "error", res.Err)
			rep.fail(StageDHW, res.Date.String(), res.Err)
			continue
		}
		rep.DHWWritten = append(rep.DHWWritten, res.Date)
		rep.Events = append(rep.Events, p.event(rep, domain.KindDHW, domain.PeriodDaily, res.Date.String(), res.Path, res.Mean))
	}
	return nil
}

// referenceGrid returns the newest readable SST record. All SST records
// share one set of axes, so any of them serves as the alignment reference.
func (p *Pipeline) referenceGrid(days []domain.Date) (domain.Grid, error) {
	var lastErr error
	for i := len(days) - 1; i >= 0; i-- {
		g, err := p.store.ReadDay(domain.KindSST, days[i])
		if err == nil {
			return g, nil
		}
		lastErr = err
	}
	return domain.Grid{}, lastErr
}

func (p *Pipeline) reduce(ctx context.Context, rep *Report, logger *slog.Logger) error {
	r := p.stages.Reducer
	if r == nil {
		return nil
	}
	rep.Policies[StageMonthly] = r.Policy()
	logger.Info("regenerating monthly aggregates", "policy", r.Policy().String())
	results, err := r.Regenerate(ctx)
	for _, res := range results {
		if res.Err != nil {
			logger.Error("monthly mean failed", "kind", res.Kind, "month", res.Month.String(), "error", res.Err)
			rep.fail(StageMonthly, string(res.Kind)+"/"+res.Month.String(), res.Err)
			continue
		}
		rep.Months[res.Kind]++
		rep.Events = append(rep.Events, p.event(rep, res.Kind, domain.PeriodMonthly, res.Month.String(), res.Path, res.Mean))
	}
	if err != nil {
		return fmt.Errorf("monthly: %w", err)
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, rep *Report, logger *slog.Logger) {
	if p.publisher == nil || len(rep.Events) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, rep.Events); err != nil {
		logger.Error("publish record events failed", "count", len(rep.Events), "error", err)
		rep.fail(StagePublish, rep.RunID, err)
		return
	}
	p.metrics.EventsPublished.Add(float64(len(rep.Events)))
}

func (p *Pipeline) event(rep *Report, kind domain.Kind, period domain.Period, key, path string, mean float64) domain.RecordEvent {
	ev := domain.RecordEvent{
		RunID:       rep.RunID,
		Kind:        kind,
		Period:      period,
		Key:         key,
		Path:        path,
		CommittedAt: p.clock.Now().UTC(),
	}
	if !math.IsNaN(mean) {
		ev.Mean = &mean
	}
	return ev
}
