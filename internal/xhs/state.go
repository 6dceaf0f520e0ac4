// Package xhs reads notes, author profiles and mall goods from xiaohongshu.
//
// Pages embed their data as a JavaScript assignment to
// window.__INITIAL_STATE__; parsers read that object first and fall back to
// markup scraping when it is missing.
package xhs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
)

const stateMarker = "window.__INITIAL_STATE__"

var (
	reUndefined  = regexp.MustCompile(`\bundefined\b`)
	ErrNoState   = errors.New("no __INITIAL_STATE__ in page")
	reStateStart = regexp.MustCompile(`window\.__INITIAL_STATE__\s*=\s*`)
)

// InitialState decodes the page state object embedded in html.
func InitialState(html string) (any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, stateMarker) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, ErrNoState
	}

	loc := reStateStart.FindStringIndex(script)
	if loc == nil {
		return nil, ErrNoState
	}
	body := strings.TrimSpace(script[loc[1]:])
	body = strings.TrimSpace(strings.TrimRight(body, "; \n\t"))
	body = reUndefined.ReplaceAllString(body, "null")

	v, err := jsonwalk.Decode([]byte(body))
	if err != nil {
		return nil, errors.Wrap(err, "decode __INITIAL_STATE__")
	}
	return v, nil
}

// count parses interaction counters such as "123", "1.2万" or "10w+".
func count(v any) int64 {
	if n, ok := jsonwalk.Int64(v); ok {
		return n
	}
	s := strings.TrimSpace(jsonwalk.String(v))
	s = strings.TrimSuffix(s, "+")
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "万"):
		mult, s = 10000, strings.TrimSuffix(s, "万")
	case strings.HasSuffix(s, "w"), strings.HasSuffix(s, "W"):
		mult, s = 10000, s[:len(s)-1]
	case strings.HasSuffix(s, "千"):
		mult, s = 1000, strings.TrimSuffix(s, "千")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * mult)
}
