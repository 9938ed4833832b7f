// Package download fetches raw daily analysis files into a scratch
// directory by running an external command.
package download

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/couchcryptid/reef-sst-archive/internal/domain"
)

// DefaultCommand is the PO.DAAC downloader invocation for the MUR L4
// analysis. {dir} and {date} are substituted per call.
const DefaultCommand = "podaac-data-downloader -c MUR-JPL-L4-GLOB-v4.1 -d {dir} --start-date {date}T20:00:00Z --end-date {date}T20:00:00Z"

// CommandDownloader runs a command template once per date.
type CommandDownloader struct {
	template []string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCommandDownloader splits template on whitespace. Each field may contain
// the placeholders {dir} and {date}.
func NewCommandDownloader(template string, timeout time.Duration, logger *slog.Logger) (*CommandDownloader, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return nil, fmt.Errorf("download command is empty")
	}
	return &CommandDownloader{template: fields, timeout: timeout, logger: logger}, nil
}

// Args returns the expanded argument vector for one fetch.
func (c *CommandDownloader) Args(d domain.Date, dir string) []string {
	r := strings.NewReplacer("{dir}", dir, "{date}", d.String())
	out := make([]string, len(c.template))
	for i, f := range c.template {
		out[i] = r.Replace(f)
	}
	return out
}

// Fetch downloads the analysis for d into dir. A non-zero exit is an error;
// whether anything landed in dir is checked later by ingestion.
func (c *CommandDownloader) Fetch(ctx context.Context, d domain.Date, dir string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(d, dir)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("download %s: %w: %s", d, err, strings.TrimSpace(stderr.String()))
	}
	c.logger.Debug("download finished", "date", d.String(), "dir", dir, "duration", time.Since(start))
	return nil
}
