package xhs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
	"github.com/ernestzhang-11/StreamForge/internal/identifier"
	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
	"github.com/ernestzhang-11/StreamForge/internal/logging"
	"github.com/ernestzhang-11/StreamForge/internal/media"
)

const (
	DefaultMallBase = "https://mall.xiaohongshu.com"
	referer         = identifier.XHSBase + "/"
)

type Options struct {
	Cookie    string
	UserAgent string
	// PageBase replaces the www.xiaohongshu.com origin of page requests.
	PageBase    string
	MallBase    string
	DownloadDir string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      logging.Logger
}

// Client fetches and parses xiaohongshu pages.
type Client struct {
	http        *http.Client
	downloader  *media.Downloader
	cookie      string
	userAgent   string
	pageBase    string
	mallBase    string
	downloadDir string
	log         logging.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = media.NewHTTPClient(opts.Timeout)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = media.DefaultUserAgent
	}
	if opts.PageBase == "" {
		opts.PageBase = identifier.XHSBase
	}
	if opts.MallBase == "" {
		opts.MallBase = DefaultMallBase
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Client{
		http:        opts.HTTPClient,
		downloader:  media.NewDownloader(opts.HTTPClient, referer, opts.Logger),
		cookie:      opts.Cookie,
		userAgent:   opts.UserAgent,
		pageBase:    strings.TrimRight(opts.PageBase, "/"),
		mallBase:    strings.TrimRight(opts.MallBase, "/"),
		downloadDir: opts.DownloadDir,
		log:         opts.Logger,
	}
}

// pageURL rewrites a canonical www.xiaohongshu.com URL onto PageBase.
func (c *Client) pageURL(canonical string) string {
	if c.pageBase == identifier.XHSBase {
		return canonical
	}
	return c.pageBase + strings.TrimPrefix(canonical, identifier.XHSBase)
}

func (c *Client) get(ctx context.Context, op, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, failure.Errorf(failure.Internal, op, "HTTP %d for %s", resp.StatusCode, target)
	}
	return resp, nil
}

func (c *Client) fetchHTML(ctx context.Context, op, target string) (string, error) {
	resp, err := c.get(ctx, op, target, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	utf8Reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		utf8Reader = resp.Body
	}
	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", failure.New(failure.Internal, op, err)
	}
	return string(body), nil
}

func (c *Client) fetchJSON(ctx context.Context, op, target string) (any, error) {
	resp, err := c.get(ctx, op, target, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}
	v, err := jsonwalk.Decode(raw)
	if err != nil {
		return nil, failure.New(failure.Internal, op, err)
	}
	return v, nil
}

// extFromURL returns the file extension of u's path, or def.
func extFromURL(u, def string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return def
	}
	p := parsed.Path
	i := strings.LastIndex(p, ".")
	if i < 0 || i < strings.LastIndex(p, "/") || len(p)-i > 6 {
		return def
	}
	return p[i:]
}
