package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
)

var errNoReadableDays = errors.New("no readable days")

// Reducer rebuilds the monthly aggregates from the daily archive. It is not
// incremental: every run starts from an empty monthly tree.
type Reducer struct {
	store   *archive.Store
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewReducer(store *archive.Store, workers int, logger *slog.Logger, metrics *observability.Metrics) *Reducer {
	return &Reducer{store: store, workers: workers, logger: logger, metrics: metrics}
}

// MonthResult is the outcome of one monthly record.
type MonthResult struct {
	Kind  domain.Kind
	Month domain.Month
	Days  int
	Path  string
	Mean  float64
	Err   error
}

type monthJob struct {
	kind  domain.Kind
	month domain.Month
	days  []domain.Date
}

// Policy reports how the reducer treats existing monthly records. It is
// always PolicyRegenerateAll.
func (r *Reducer) Policy() Policy { return PolicyRegenerateAll }

// Regenerate deletes all monthly artifacts and rewrites one mean grid per
// (kind, month) that has at least one daily record, plus one scalar series
// per kind.
func (r *Reducer) Regenerate(ctx context.Context) ([]MonthResult, error) {
	if err := r.store.ClearMonthly(); err != nil {
		return nil, err
	}

	var jobs []monthJob
	for _, kind := range []domain.Kind{domain.KindSST, domain.KindDHW} {
		jobs = append(jobs, groupByMonth(kind, r.store.Dates(kind))...)
	}

	results, err := runPool(ctx, r.workers, jobs, r.reduce)
	if err != nil {
		return nil, err
	}

	for _, kind := range []domain.Kind{domain.KindSST, domain.KindDHW} {
		var points []domain.SeriesPoint
		for _, res := range results {
			if res.Kind == kind && res.Err == nil {
				points = append(points, domain.SeriesPoint{Month: res.Month, Value: res.Mean})
			}
		}
		if len(points) == 0 {
			continue
		}
		if _, err := r.store.WriteSeries(kind, points); err != nil {
			return results, fmt.Errorf("write %s series: %w", kind, err)
		}
	}
	return results, nil
}

// groupByMonth buckets ascending days by calendar month, preserving order.
func groupByMonth(kind domain.Kind, days []domain.Date) []monthJob {
	var jobs []monthJob
	for _, d := range days {
		m := d.Month()
		if n := len(jobs); n > 0 && jobs[n-1].month == m {
			jobs[n-1].days = append(jobs[n-1].days, d)
			continue
		}
		jobs = append(jobs, monthJob{kind: kind, month: m, days: []domain.Date{d}})
	}
	return jobs
}

func (r *Reducer) reduce(_ context.Context, job monthJob) MonthResult {
	res := MonthResult{Kind: job.kind, Month: job.month}

	grids := make([]domain.Grid, 0, len(job.days))
	for _, d := range job.days {
		g, err := r.store.ReadDay(job.kind, d)
		if err != nil {
			r.logger.Warn("skipping unreadable day in monthly mean", "kind", job.kind, "date", d.String(), "error", err)
			continue
		}
		grids = append(grids, g)
	}
	if len(grids) == 0 {
		res.Err = fmt.Errorf("%s %s: %w", job.kind, job.month, errNoReadableDays)
		return res
	}

	mean, err := domain.MeanGrids(grids)
	if err != nil {
		res.Err = fmt.Errorf("%s %s: %w", job.kind, job.month, err)
		return res
	}

	path, err := r.store.WriteMonth(job.kind, job.month, mean)
	if err != nil {
		res.Err = fmt.Errorf("%s %s: %w", job.kind, job.month, err)
		return res
	}
	r.metrics.MonthsReduced.WithLabelValues(string(job.kind)).Inc()

	res.Days = len(grids)
	res.Path = path
	res.Mean = domain.RoundTo(domain.FiniteMean(mean.Values), domain.OutputPrecision)
	return res
}
