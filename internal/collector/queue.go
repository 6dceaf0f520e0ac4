// Package collector gathers candidate video URLs from search feeds.
//
// A Source pushes raw pages into a bounded channel while Drain consumes
// them, stopping when the target count is reached, the timeout elapses or
// the source is exhausted. Collect owns both sides: the source goroutine is
// always cancelled and awaited before it returns.
package collector

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/models"
)

// Page is one fetched response body.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

func (p Page) isJSON() bool {
	if strings.Contains(p.ContentType, "json") {
		return true
	}
	b := bytes.TrimSpace(p.Body)
	return len(b) > 0 && (b[0] == '{' || b[0] == '[')
}

// Source produces pages until it runs out or ctx is cancelled. Sends must
// select on ctx.Done so a cancelled source never blocks.
type Source interface {
	Run(ctx context.Context, out chan<- Page) error
}

type Options struct {
	Limit      int
	Timeout    time.Duration
	RecentDays int
	QueueSize  int
	Now        func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) cutoff() int64 {
	return o.now().Add(-time.Duration(o.RecentDays) * 24 * time.Hour).Unix()
}

// Result lists the collected URLs newest first, followed by URLs built from
// waterfall card ids. IDs holds those card ids in discovery order.
type Result struct {
	Candidates []models.Candidate `json:"candidates"`
	IDs        []string           `json:"ids"`
}

func (r Result) URLs() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.URL
	}
	return out
}

// Collection maps video URLs to their newest create time.
type Collection struct {
	items map[string]models.Candidate
	cards []string
	seen  map[string]bool
}

func NewCollection() *Collection {
	return &Collection{
		items: make(map[string]models.Candidate),
		seen:  make(map[string]bool),
	}
}

func (c *Collection) Add(cand models.Candidate) {
	if prev, ok := c.items[cand.URL]; ok && prev.CreateTime >= cand.CreateTime {
		return
	}
	c.items[cand.URL] = cand
}

func (c *Collection) AddCard(id string) {
	if id == "" || c.seen[id] {
		return
	}
	c.seen[id] = true
	c.cards = append(c.cards, id)
}

func (c *Collection) Len() int { return len(c.items) }

// Sorted returns the collected items by create time, newest first.
func (c *Collection) Sorted() []models.Candidate {
	out := make([]models.Candidate, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreateTime != out[j].CreateTime {
			return out[i].CreateTime > out[j].CreateTime
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}

// Result caps the timed items at limit and appends card URLs.
func (c *Collection) Result(limit int) Result {
	items := c.Sorted()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for _, id := range c.cards {
		items = append(items, models.Candidate{URL: identifier.VideoURL(id), ExternalID: id})
	}
	return Result{Candidates: items, IDs: append([]string(nil), c.cards...)}
}

// Drain consumes pages until limit items were collected, the timeout fires,
// ctx ends or in is closed.
func Drain(ctx context.Context, in <-chan Page, opts Options, log logging.Logger) Result {
	if log == nil {
		log = logging.Nop()
	}
	col := NewCollection()
	cutoff := opts.cutoff()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return col.Result(opts.Limit)
		case <-timeout:
			log.Debug(ctx, "collect timeout", "collected", col.Len())
			return col.Result(opts.Limit)
		case page, ok := <-in:
			if !ok {
				return col.Result(opts.Limit)
			}
			absorb(ctx, col, page, cutoff, opts, log)
			if opts.Limit > 0 && col.Len() >= opts.Limit {
				return col.Result(opts.Limit)
			}
		}
	}
}

func absorb(ctx context.Context, col *Collection, page Page, cutoff int64, opts Options, log logging.Logger) {
	if page.isJSON() {
		v, err := jsonwalk.Decode(page.Body)
		if err != nil {
			log.Debug(ctx, "skip undecodable page", "url", page.URL, "error", err)
			return
		}
		for _, c := range ExtractAwemes(v, cutoff) {
			col.Add(c)
		}
		return
	}
	ids, err := ParseWaterfallCards(bytes.NewReader(page.Body), opts.now(), time.Unix(cutoff, 0), maxCards)
	if err != nil {
		log.Debug(ctx, "skip unparsable page", "url", page.URL, "error", err)
		return
	}
	for _, id := range ids {
		col.AddCard(id)
	}
}

// Collect runs src against a bounded queue and drains it. The source is
// cancelled and awaited before Collect returns.
func Collect(ctx context.Context, src Source, opts Options, log logging.Logger) (Result, error) {
	if log == nil {
		log = logging.Nop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 64
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan Page, size)
	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(queue)
		runErr = src.Run(runCtx, queue)
	}()

	res := Drain(runCtx, queue, opts, log)
	cancel()
	wg.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return res, errors.Wrap(runErr, "collect")
	}
	return res, nil
}
