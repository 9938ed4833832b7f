// Command archive keeps the SST and DHW archive up to date. With
// RUN_INTERVAL unset it performs one run and exits; otherwise it runs on a
// schedule and serves /healthz, /readyz, /status and /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/reef-sst-archive/internal/adapter/http"
	"github.com/couchcryptid/reef-sst-archive/internal/adapter/download"
	kafkaadapter "github.com/couchcryptid/reef-sst-archive/internal/adapter/kafka"
	"github.com/couchcryptid/reef-sst-archive/internal/archive"
	"github.com/couchcryptid/reef-sst-archive/internal/config"
	"github.com/couchcryptid/reef-sst-archive/internal/domain"
	"github.com/couchcryptid/reef-sst-archive/internal/ledger"
	"github.com/couchcryptid/reef-sst-archive/internal/observability"
	"github.com/couchcryptid/reef-sst-archive/internal/pipeline"
)

func main() {
	start := flag.String("start", "", "first date to archive (overrides dates.start)")
	end := flag.String("end", "", "last date to archive (overrides dates.end; default yesterday)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *start != "" {
		cfg.Archive.Dates.Start = *start
	}
	if *end != "" {
		cfg.Archive.Dates.End = *end
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("archive failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	a := cfg.Archive

	store, err := archive.Open(archive.Layout{Root: a.Folders.Archive, Scratch: a.Folders.Scratch}, a.Ingest.Source, logger)
	if err != nil {
		return err
	}

	// Downloads are feature-flagged; without them raw files must already be
	// staged in the scratch directories.
	var downloader pipeline.Downloader
	if a.Ingest.Download {
		d, err := download.NewCommandDownloader(a.Ingest.DownloadCommand, a.Ingest.DownloadTimeout, logger)
		if err != nil {
			return err
		}
		downloader = d
		logger.Info("downloads enabled", "command", a.Ingest.DownloadCommand)
	} else {
		logger.Info("downloads disabled, expecting staged raw files", "dir", a.Folders.Scratch)
	}

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = w
		logger.Info("record events enabled", "topic", cfg.KafkaTopic)
	}

	stages := pipeline.Stages{
		Normalizer: pipeline.NewNormalizer(store, downloader, pipeline.NormalizerConfig{
			RawVar: a.Ingest.RawVar,
			Region: domain.BoundingBox{
				MinLat: a.Region.MinLat,
				MaxLat: a.Region.MaxLat,
				MinLon: a.Region.MinLon,
				MaxLon: a.Region.MaxLon,
			},
			KelvinOffset: a.DHW.KelvinOffset,
			Retries:      a.Ingest.DownloadRetries,
		}, logger, metrics),
		Accumulator: pipeline.NewAccumulator(store, pipeline.AccumulatorConfig{
			BaselinePath:   a.Folders.Baseline,
			BaselineVar:    a.DHW.BaselineVar,
			BaselineOffset: a.DHW.BaselineOffset,
			WeekNormalize:  a.DHW.WeekNormalize,
			WindowDays:     a.DHW.WindowDays,
			Workers:        a.Ingest.Workers,
			Rebuild:        a.DHW.Rebuild,
		}, logger, metrics),
		Reducer: pipeline.NewReducer(store, a.Ingest.Workers, logger, metrics),
	}
	p := pipeline.New(store, stages, publisher, a.Ingest.Workers, logger, metrics)

	bounds, err := ledger.ParseBounds(a.Dates.Start, a.Dates.End, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunInterval == 0 {
		_, err = p.Run(ctx, bounds.Range())
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, func() any {
		if r := p.LastReport(); r != nil {
			return r.Summary()
		}
		return nil
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- p.RunEvery(ctx, cfg.RunInterval, bounds) }()

	select {
	case <-ctx.Done():
	case err = <-runErr:
		if err != nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return err
}
