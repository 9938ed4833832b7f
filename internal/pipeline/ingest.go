package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/reef-sst-archive/internal/adapter/netcdf"
	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
)

// Downloader places the raw analysis file for a date into dir.
type Downloader interface {
	Fetch(ctx context.Context, d domain.Date, dir string) error
}

// NormalizerConfig configures ingestion.
type NormalizerConfig struct {
	RawVar       string
	Region       domain.BoundingBox
	KelvinOffset float64
	// Retries is the number of extra download attempts after a failure.
	Retries int
}

// Normalizer turns one raw daily grid into a canonical SST record.
type Normalizer struct {
	store      *archive.Store
	downloader Downloader
	cfg        NormalizerConfig
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewNormalizer creates a Normalizer. A nil downloader means raw files are
// expected to be placed in the scratch directories by some other means.
func NewNormalizer(store *archive.Store, downloader Downloader, cfg NormalizerConfig, logger *slog.Logger, metrics *observability.Metrics) *Normalizer {
	return &Normalizer{
		store:      store,
		downloader: downloader,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
	}
}

// IngestResult is the outcome of ingesting one date.
type IngestResult struct {
	Date    domain.Date
	Path    string
	Mean    float64
	Skipped bool
	Err     error
}

// Ingest downloads (if configured), crops, converts and archives d. An empty
// download directory is reported as Skipped rather than as an error.
func (n *Normalizer) Ingest(ctx context.Context, d domain.Date) IngestResult {
	res := IngestResult{Date: d}

	dir, err := n.store.ScratchDir(d)
	if err != nil {
		res.Err = err
		n.metrics.DaysFailed.WithLabelValues("write").Inc()
		return res
	}

	if n.downloader != nil {
		if err := n.fetch(ctx, d, dir); err != nil {
			// The directory check below decides whether this is fatal.
			n.logger.Warn("download failed", "date", d.String(), "error", err)
		}
	}

	g, err := n.normalize(dir)
	switch {
	case errors.Is(err, domain.ErrEmptyDownload):
		n.logger.Warn("no data downloaded, skipping date", "date", d.String(), "dir", dir)
		n.metrics.DaysFailed.WithLabelValues("empty").Inc()
		res.Skipped = true
		n.cleanup(d)
		return res
	case err != nil:
		res.Err = fmt.Errorf("ingest %s: %w", d, err)
		n.metrics.DaysFailed.WithLabelValues("read").Inc()
		n.cleanup(d)
		return res
	}

	path, err := n.store.WriteDay(domain.KindSST, d, g)
	if err != nil {
		res.Err = fmt.Errorf("ingest %s: %w", d, err)
		n.metrics.DaysFailed.WithLabelValues("write").Inc()
		return res
	}
	if err := n.store.RemoveScratch(d); err != nil {
		n.logger.Warn("scratch cleanup failed", "date", d.String(), "error", err)
	}

	n.metrics.DaysIngested.Inc()
	res.Path = path
	res.Mean = domain.RoundTo(domain.FiniteMean(g.Values), domain.OutputPrecision)
	return res
}

// cleanup removes scratch data after a failed ingest when it can be fetched
// again. Manually staged files are left for inspection.
func (n *Normalizer) cleanup(d domain.Date) {
	if n.downloader == nil {
		return
	}
	if err := n.store.RemoveScratch(d); err != nil {
		n.logger.Warn("scratch cleanup failed", "date", d.String(), "error", err)
	}
}

func (n *Normalizer) fetch(ctx context.Context, d domain.Date, dir string) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	var err error
	for attempt := 0; attempt <= n.cfg.Retries; attempt++ {
		if attempt > 0 {
			if !retry.SleepWithContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
		}
		if err = n.downloader.Fetch(ctx, d, dir); err == nil {
			return nil
		}
		n.logger.Debug("download attempt failed", "date", d.String(), "attempt", attempt+1, "error", err)
	}
	n.metrics.DaysFailed.WithLabelValues("download").Inc()
	return err
}

// normalize reads the raw grid in dir and returns it cropped to the region,
// with ascending axes, in degrees Celsius.
func (n *Normalizer) normalize(dir string) (domain.Grid, error) {
	path, err := rawFile(dir)
	if err != nil {
		return domain.Grid{}, err
	}

	g, err := netcdf.ReadRegion(path, n.cfg.RawVar, n.cfg.Region)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("crop to region: %w", err)
	}
	g = g.Ascending()

	if isCelsius(g.Units) {
		g.Units = domain.UnitsCelsius
	} else {
		g = domain.KelvinToCelsius(g, n.cfg.KelvinOffset)
	}
	return g, nil
}

// rawFile drops download sidecar .txt files from dir and returns the grid
// file left behind.
func rawFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read scratch: %w", err)
	}
	var grids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt":
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return "", fmt.Errorf("remove sidecar: %w", err)
			}
		case ".nc", ".nc4":
			grids = append(grids, name)
		}
	}
	if len(grids) == 0 {
		return "", domain.ErrEmptyDownload
	}
	slices.Sort(grids)
	return filepath.Join(dir, grids[0]), nil
}

func isCelsius(units string) bool {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "celsius", "degc", "degree_celsius", "degrees_celsius", "c":
		return true
	}
	return false
}
