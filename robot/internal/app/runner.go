// Package app runs the keyword batch: collect video links for each keyword
// from the search feed, then hand them to the ingestion orchestrator.
package app

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/collector"
	"github.com/ernestzhang-11/StreamForge/internal/config"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
	"github.com/ernestzhang-11/StreamForge/robot/internal/control"
)

// Collector gathers candidates for one keyword.
type Collector interface {
	Collect(ctx context.Context, keyword string) (collector.Result, error)
}

// Batch ingests a candidate list. *app.Orchestrator satisfies it.
type Batch interface {
	Run(ctx context.Context, raw []models.Candidate) (*models.Report, error)
}

// FeedCollector pages through the configured search feed for a keyword.
type FeedCollector struct {
	Crawler config.CrawlerConfig
	Logic   config.LogicConfig
	Log     logging.Logger
}

func (f FeedCollector) Collect(ctx context.Context, keyword string) (collector.Result, error) {
	src := collector.NewFeedSource(collector.FeedOptions{
		SearchURL:   f.Crawler.SearchURL,
		Keyword:     keyword,
		Pages:       f.Logic.Pages,
		PageSize:    f.Logic.PageSize,
		Cookie:      f.Crawler.Cookie,
		UserAgent:   f.Crawler.UserAgent,
		Parallelism: f.Logic.MaxConcurrentRequests,
		Delay:       f.Logic.Delay(),
		Timeout:     f.Logic.Timeout(),
	}, f.Log)
	return collector.Collect(ctx, src, collector.Options{
		Limit:      f.Logic.MaxVideos,
		Timeout:    f.Logic.CollectTimeout(),
		RecentDays: f.Logic.RecentDays,
		QueueSize:  f.Logic.QueueSize,
	}, f.Log)
}

type UploadSummary struct {
	Results   []models.ItemResult `json:"results"`
	Failed    []models.Failure    `json:"failed"`
	Attempted int                 `json:"attempted"`
	Succeeded int                 `json:"succeeded"`
	Skipped   int                 `json:"skipped"`
}

// Report merges every keyword's collection and upload outcome.
type Report struct {
	Keywords []string      `json:"keywords"`
	URLs     []string      `json:"urls"`
	IDs      []string      `json:"ids"`
	Upload   UploadSummary `json:"upload"`
	Error    string        `json:"error,omitempty"`
}

func (r *Report) merge(b *models.Report) {
	if b == nil {
		return
	}
	r.Upload.Results = append(r.Upload.Results, b.Results...)
	r.Upload.Failed = append(r.Upload.Failed, b.Failed...)
	r.Upload.Attempted += b.Attempted
	r.Upload.Succeeded += b.Succeeded
	r.Upload.Skipped += b.Skipped
}

type Runner struct {
	collect      Collector
	batch        Batch
	control      *control.Control
	keywordDelay time.Duration
	log          logging.Logger
}

func NewRunner(collect Collector, batch Batch, ctl *control.Control, keywordDelay time.Duration, log logging.Logger) *Runner {
	if log == nil {
		log = logging.Nop()
	}
	if ctl == nil {
		ctl = control.New(nil)
	}
	return &Runner{collect: collect, batch: batch, control: ctl, keywordDelay: keywordDelay, log: log}
}

// Run processes keywords in order. A keyword whose collection fails is
// logged and skipped; only a fatal ingestion error or cancellation ends the
// run early.
func (r *Runner) Run(ctx context.Context, keywords []string) (*Report, error) {
	report := &Report{
		Keywords: []string{},
		URLs:     []string{},
		IDs:      []string{},
		Upload:   UploadSummary{Results: []models.ItemResult{}, Failed: []models.Failure{}},
	}

	for i, kw := range keywords {
		if i > 0 {
			if err := r.control.Sleep(ctx, r.keywordDelay); err != nil {
				return r.stopped(ctx, report)
			}
		} else if err := r.control.WaitIfPaused(ctx); err != nil {
			return r.stopped(ctx, report)
		}

		log := r.log.With("keyword", kw)
		report.Keywords = append(report.Keywords, kw)

		res, err := r.collect.Collect(ctx, kw)
		if err != nil {
			log.Warn(ctx, "collection failed", "error", err)
			continue
		}
		report.URLs = append(report.URLs, res.URLs()...)
		report.IDs = append(report.IDs, res.IDs...)
		log.Info(ctx, "collected", "count", len(res.Candidates))

		batch, err := r.batch.Run(ctx, res.Candidates)
		report.merge(batch)
		if err != nil {
			report.Error = err.Error()
			if failure.IsFatal(err) {
				return report, err
			}
			if ctx.Err() != nil {
				return r.stopped(ctx, report)
			}
			log.Warn(ctx, "batch ended with error", "error", err)
		}
	}
	return report, nil
}

func (r *Runner) stopped(ctx context.Context, report *Report) (*Report, error) {
	err := errors.Wrap(ctx.Err(), "batch stopped")
	report.Error = err.Error()
	r.log.Info(ctx, "stopped", "keywords_done", len(report.Keywords))
	return report, err
}

// ReadKeywords returns the non-empty lines of path, skipping # comments.
func ReadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open keywords %s", path)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read keywords %s", path)
	}
	return out, nil
}
