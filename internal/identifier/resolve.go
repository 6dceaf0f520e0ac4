package identifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

const (
	MaxHops          = 15
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var xhsURLInBody = regexp.MustCompile(`https://www\.xiaohongshu\.com/[^\s"'<>]+`)

// Resolver expands share short links by following their redirects.
type Resolver struct {
	client    *http.Client
	cookie    string
	userAgent string
}

func NewResolver(cookie string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &Resolver{
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxHops {
					return fmt.Errorf("stopped after %d redirects", MaxHops)
				}
				return nil
			},
		},
		cookie:    cookie,
		userAgent: defaultUserAgent,
	}
}

// WithClient swaps the HTTP client, mainly for tests.
func (r *Resolver) WithClient(c *http.Client) *Resolver {
	r.client = c
	return r
}

// ResolveShortLink returns the final URL when the link redirected. Without a
// redirect it looks for a canonical xiaohongshu link in the page body.
func (r *Resolver) ResolveShortLink(ctx context.Context, shortURL string) (string, error) {
	const op = "resolve_short_link"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", failure.New(failure.ShortLinkResolutionFailed, op, err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Referer", XHSBase+"/")
	if r.cookie != "" {
		req.Header.Set("Cookie", r.cookie)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", failure.New(failure.ShortLinkResolutionFailed, op, err)
	}
	defer resp.Body.Close()

	if final := resp.Request.URL.String(); final != req.URL.String() {
		return final, nil
	}

	if resp.StatusCode != http.StatusOK {
		return "", failure.Errorf(failure.ShortLinkResolutionFailed, op, "HTTP %d", resp.StatusCode)
	}

	utf8Reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		utf8Reader = resp.Body
	}
	body, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", failure.New(failure.ShortLinkResolutionFailed, op, err)
	}

	if link := canonicalFromHTML(string(body)); link != "" {
		return link, nil
	}
	if m := xhsURLInBody.FindString(string(body)); m != "" {
		return m, nil
	}
	return "", failure.Errorf(failure.ShortLinkResolutionFailed, op, "no target link in %s", shortURL)
}

func canonicalFromHTML(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	candidates := []string{
		doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		doc.Find(`meta[property="og:url"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if strings.HasPrefix(c, XHSBase+"/") {
			return c
		}
	}
	return ""
}
