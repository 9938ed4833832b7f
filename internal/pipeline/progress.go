package pipeline

import (
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// perItemThreshold is the batch size under which every item is logged.
const perItemThreshold = 25

// progress logs every n-th completed item of a stage, or every item when the
// batch is small. Safe for concurrent use.
type progress struct {
	logger *slog.Logger
	stage  string
	total  int
	every  int
	done   atomic.Int64
}

func newProgress(logger *slog.Logger, stage string, total, every int) *progress {
	if total < perItemThreshold {
		every = 1
	}
	return &progress{logger: logger, stage: stage, total: total, every: max(every, 1)}
}

func (p *progress) step(d domain.Date) {
	n := int(p.done.Add(1))
	if n%p.every == 0 || n == p.total {
		p.logger.Info("progress", "stage", p.stage, "done", n, "total", p.total, "date", d.String())
	}
}
