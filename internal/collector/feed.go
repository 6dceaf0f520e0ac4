package collector

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly"

	"github.com/ernestzhang-11/StreamForge/internal/logging"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"

// FeedOptions configures a FeedSource. SearchURL may contain {keyword},
// {offset} and {count} placeholders.
type FeedOptions struct {
	SearchURL   string
	Keyword     string
	Pages       int
	PageSize    int
	Cookie      string
	UserAgent   string
	Referer     string
	Parallelism int
	Delay       time.Duration
	Timeout     time.Duration
}

// FeedSource pages through a search feed with colly and forwards every
// response body.
type FeedSource struct {
	opts FeedOptions
	log  logging.Logger
}

func NewFeedSource(opts FeedOptions, log logging.Logger) *FeedSource {
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = "https://www.douyin.com/"
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &FeedSource{opts: opts, log: log.With("keyword", opts.Keyword)}
}

// PageURL renders the search URL for one page.
func (f *FeedSource) PageURL(page int) string {
	r := strings.NewReplacer(
		"{keyword}", url.PathEscape(f.opts.Keyword),
		"{offset}", strconv.Itoa(page*f.opts.PageSize),
		"{count}", strconv.Itoa(f.opts.PageSize),
	)
	return r.Replace(f.opts.SearchURL)
}

func (f *FeedSource) newCollector(ctx context.Context, out chan<- Page) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	if f.opts.Timeout > 0 {
		c.SetRequestTimeout(f.opts.Timeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.opts.Parallelism,
		Delay:       f.opts.Delay,
	}); err != nil {
		f.log.Warn(ctx, "limit rule rejected", "error", err)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Referer", f.opts.Referer)
		if f.opts.Cookie != "" {
			r.Headers.Set("Cookie", f.opts.Cookie)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page := Page{
			URL:         r.Request.URL.String(),
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
		select {
		case out <- page:
		case <-ctx.Done():
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		f.log.Warn(ctx, "feed request failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})
	return c
}

// Run visits each page in turn. It returns nil once the pages are exhausted
// or ctx is cancelled.
func (f *FeedSource) Run(ctx context.Context, out chan<- Page) error {
	if f.opts.SearchURL == "" {
		return nil
	}
	c := f.newCollector(ctx, out)
	for page := 0; page < f.opts.Pages; page++ {
		if ctx.Err() != nil {
			return nil
		}
		u := f.PageURL(page)
		f.log.Debug(ctx, "visit feed page", "url", u, "page", page)
		if err := c.Visit(u); err != nil {
			f.log.Debug(ctx, "visit skipped", "url", u, "error", err)
		}
	}
	c.Wait()
	return nil
}
