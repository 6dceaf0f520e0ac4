// Package app drives ingestion: it takes collected candidates through the
// ledgers, the remote existence check, media download and publishing, one
// item at a time.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ernestzhang-11/StreamForge/internal/bitable"
	"github.com/ernestzhang-11/StreamForge/internal/db"
	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/ledger"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
	urlqueue "github.com/ernestzhang-11/StreamForge/internal/url_queue"
)

// ExistenceChecker looks an external id up in the remote table. A degraded
// result counts as not found; only AuthFailed comes back as an error.
type ExistenceChecker interface {
	Lookup(ctx context.Context, id string) (bitable.SearchResult, error)
}

// MediaFetcher downloads the video for an id and returns its metadata with
// VideoPath set.
type MediaFetcher interface {
	Fetch(ctx context.Context, id string) (*models.Aweme, error)
}

type Publisher interface {
	Publish(ctx context.Context, a *models.Aweme, channel string) (PublishResult, error)
}

type HistoryRecorder interface {
	SaveHistory(ctx context.Context, h *models.IngestHistory) error
}

type Options struct {
	Source  string
	Channel string
	// Pace is the pause between two processed items.
	Pace time.Duration
	// Limit caps the candidates taken from one batch; 0 means no cap.
	Limit   int
	History HistoryRecorder
	Logger  logging.Logger
	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator runs batches sequentially. Every processed item is written to
// a ledger before the next one starts, so a crash never repeats finished
// work. Items the remote table already has are not written to either ledger.
type Orchestrator struct {
	checker   ExistenceChecker
	fetcher   MediaFetcher
	publisher Publisher
	uploaded  *ledger.Store
	failed    *ledger.Store

	source  string
	channel string
	pace    time.Duration
	limit   int
	history HistoryRecorder
	sleep   func(ctx context.Context, d time.Duration) error
	log     logging.Logger
}

func NewOrchestrator(checker ExistenceChecker, fetcher MediaFetcher, publisher Publisher, uploaded, failed *ledger.Store, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Orchestrator{
		checker:   checker,
		fetcher:   fetcher,
		publisher: publisher,
		uploaded:  uploaded,
		failed:    failed,
		source:    opts.Source,
		channel:   opts.Channel,
		pace:      opts.Pace,
		limit:     opts.Limit,
		history:   opts.History,
		sleep:     opts.Sleep,
		log:       opts.Logger.With("source", opts.Source),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Candidates deduplicates raw candidates in order, keeping at most limit of
// them when limit > 0. Items with a recognizable video id get the canonical
// video URL so every spelling of one video maps to one ledger key.
func Candidates(limit int, raw []models.Candidate) *urlqueue.URLQueue {
	q := urlqueue.NewURLQueue(limit)
	for _, c := range raw {
		if c.ExternalID == "" {
			c.ExternalID, _ = identifier.VideoID(c.URL)
		}
		if c.ExternalID != "" {
			c.URL = identifier.VideoURL(c.ExternalID)
		}
		q.Add(c)
	}
	return q
}

// Run processes one batch. It returns an error only when the batch had to
// stop: an auth failure, a ledger that cannot be read or written, or ctx
// being cancelled. The report is filled in either way.
func (o *Orchestrator) Run(ctx context.Context, raw []models.Candidate) (*models.Report, error) {
	report := &models.Report{
		RunID:     uuid.NewString(),
		Source:    o.source,
		StartedAt: time.Now(),
		URLs:      []string{},
		IDs:       []string{},
		Results:   []models.ItemResult{},
		Failed:    []models.Failure{},
	}
	log := o.log.With("run_id", report.RunID)

	stop := func(err error) (*models.Report, error) {
		report.Error = err.Error()
		report.FinishedAt = time.Now()
		log.Error(ctx, "batch stopped", "error", err, "attempted", report.Attempted)
		return report, err
	}

	queue := Candidates(o.limit, raw)
	candidates := queue.Candidates()
	for _, c := range candidates {
		report.URLs = append(report.URLs, c.URL)
		report.IDs = append(report.IDs, c.ExternalID)
	}

	if err := o.uploaded.Reload(); err != nil {
		return stop(failure.New(failure.Internal, "load_uploaded", err))
	}
	if err := o.failed.Reload(); err != nil {
		return stop(failure.New(failure.Internal, "load_failed", err))
	}

	pending, ledgered := queue.Partition(func(u string) bool {
		return o.uploaded.Has(u) || o.failed.Has(u)
	})
	for _, c := range ledgered {
		status := models.StatusAlreadyFailed
		if o.uploaded.Has(c.URL) {
			status = models.StatusAlreadyUploaded
		}
		report.Results = append(report.Results, models.ItemResult{URL: c.URL, ExternalID: c.ExternalID, Status: status})
		report.Skipped++
	}
	log.Info(ctx, "batch started", "candidates", len(candidates), "pending", len(pending), "skipped", report.Skipped)

	for i, c := range pending {
		if i > 0 {
			if err := o.sleep(ctx, o.pace); err != nil {
				return stop(err)
			}
		}

		res, err := o.ProcessOne(ctx, c)
		if err != nil {
			return stop(err)
		}
		if ctx.Err() != nil && res.Status == models.StatusFailed {
			// cut short by cancellation, not a real failure
			return stop(ctx.Err())
		}
		report.Attempted++

		if err := o.settle(ctx, res); err != nil {
			report.Results = append(report.Results, res)
			return stop(failure.New(failure.Internal, "ledger_append", err))
		}
		report.Results = append(report.Results, res)
		switch res.Status {
		case models.StatusSucceeded:
			report.Succeeded++
		case models.StatusExistsRemotely:
			report.Skipped++
		case models.StatusFailed:
			report.Failed = append(report.Failed, models.Failure{URL: res.URL, Reason: res.Message})
		}
		o.record(ctx, report.RunID, res)
	}

	report.FinishedAt = time.Now()
	log.Info(ctx, "batch finished", "attempted", report.Attempted, "succeeded", report.Succeeded, "failed", len(report.Failed), "skipped", report.Skipped)
	return report, nil
}

// settle appends a finished item to the matching ledger.
func (o *Orchestrator) settle(ctx context.Context, res models.ItemResult) error {
	switch res.Status {
	case models.StatusSucceeded:
		if err := o.uploaded.Add(res.URL, ""); err != nil {
			return err
		}
		o.log.Debug(ctx, "ledger append", "ledger", o.uploaded.Path(), "url", res.URL)
	case models.StatusFailed:
		if err := o.failed.Add(res.URL, res.Message); err != nil {
			return err
		}
		o.log.Debug(ctx, "ledger append", "ledger", o.failed.Path(), "url", res.URL, "reason", res.Message)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, runID string, res models.ItemResult) {
	if o.history == nil {
		return
	}
	h := db.NewHistory(runID, o.source, res.URL, res.ExternalID, string(res.Status), res.Message, time.Duration(res.DurationMS)*time.Millisecond)
	if err := o.history.SaveHistory(ctx, h); err != nil {
		o.log.Warn(ctx, "history not saved", "url", res.URL, "error", err)
	}
}

// ProcessOne takes a single candidate through existence check, download and
// publish without touching the ledgers. Item failures are reported in the
// result; the error is set only for failures that must stop a batch.
func (o *Orchestrator) ProcessOne(ctx context.Context, c models.Candidate) (models.ItemResult, error) {
	start := time.Now()
	res := models.ItemResult{URL: c.URL, ExternalID: c.ExternalID}
	done := func(status models.ItemStatus) models.ItemResult {
		res.Status = status
		res.DurationMS = time.Since(start).Milliseconds()
		return res
	}
	fail := func(err error, msg string) (models.ItemResult, error) {
		res.Kind = failure.KindOf(err).String()
		res.Message = msg
		if res.Message == "" {
			res.Message = err.Error()
		}
		o.log.Warn(ctx, "item failed", "id", c.ExternalID, "url", c.URL, "kind", res.Kind, "error", err)
		if failure.KindOf(err) == failure.AuthFailed {
			return done(models.StatusFailed), err
		}
		return done(models.StatusFailed), nil
	}

	if c.ExternalID == "" {
		return fail(failure.Errorf(failure.NoIdentifierFound, "process", "no video id in %s", c.URL), "")
	}
	log := o.log.With("id", c.ExternalID)

	found, err := o.checker.Lookup(ctx, c.ExternalID)
	if err != nil {
		return fail(err, "")
	}
	if found.Exists() {
		res.RecordID = found.FirstRecordID()
		log.Info(ctx, "exists remotely", "record_id", res.RecordID)
		return done(models.StatusExistsRemotely), nil
	}
	if found.Degraded() {
		log.Warn(ctx, "existence check degraded, treating as not found", "error", found.Error)
	}

	aweme, err := o.fetcher.Fetch(ctx, c.ExternalID)
	if err != nil {
		return fail(err, "")
	}

	pub, err := o.publisher.Publish(ctx, aweme, o.channel)
	res.FileToken = pub.FileToken
	if err != nil {
		return fail(err, pub.Message)
	}
	res.RecordID = pub.RecordID
	res.Message = pub.Message
	log.Info(ctx, "item succeeded", "record_id", res.RecordID, "took_ms", time.Since(start).Milliseconds())
	return done(models.StatusSucceeded), nil
}
