package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernestzhang-11/StreamForge/internal/jsonwalk"
)

var testNow = time.Date(2025, 10, 20, 12, 0, 0, 0, time.Local)

func decode(t *testing.T, raw string) any {
	t.Helper()
	v, err := jsonwalk.Decode([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestExtractAwemes(t *testing.T) {
	now := testNow.Unix()
	raw := fmt.Sprintf(`{
		"data": [
			{"type": 1, "aweme_info": {"aweme_id": "111", "create_time": %d}},
			{"type": 1, "aweme_info": {"aweme_id": "222", "create_time": %d}},
			{"card": {"aweme_list": [
				{"aweme_id": "333", "create_time": %d},
				{"aweme_info": {"group_id": 444, "create_time": "%d"}},
				{"aweme_id": "111", "create_time": %d},
				"junk"
			]}}
		],
		"old": {"aweme_info": {"aweme_id": "999", "create_time": 1}}
	}`, now-100, now-50, now-10, now-300, now-20)

	got := ExtractAwemes(decode(t, raw), now-3*86400)
	require.Len(t, got, 4)

	ids := []string{got[0].ExternalID, got[1].ExternalID, got[2].ExternalID, got[3].ExternalID}
	assert.Equal(t, []string{"333", "111", "222", "444"}, ids)
	assert.Equal(t, "https://www.douyin.com/video/111", got[1].URL)
	assert.Equal(t, now-20, got[1].CreateTime, "duplicate url keeps the newest create time")
}

func TestExtractAwemesSkipsMissingIDAndTime(t *testing.T) {
	v := decode(t, `{"aweme_list": [{"desc": "no id"}, {"aweme_id": "5"}]}`)
	assert.Empty(t, ExtractAwemes(v, 100))
	got := ExtractAwemes(v, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "5", got[0].ExternalID)
}

func TestParseTimeText(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"8小时前", testNow.Add(-8 * time.Hour), true},
		{" · 30分钟前", testNow.Add(-30 * time.Minute), true},
		{"2天前", testNow.Add(-48 * time.Hour), true},
		{"10月11日", time.Date(2025, 10, 11, 0, 0, 0, 0, time.Local), true},
		{"13月01日", time.Time{}, false},
		{"昨天", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseTimeText(tc.in, testNow)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.True(t, tc.want.Equal(got), "%s: got %v", tc.in, got)
		}
	}
}

func card(id, label string) string {
	return fmt.Sprintf(`<li id="waterfall_item_%s"><div><div class="search-result-card">
		<div class="RY_wFBXl"><span class="dO8W7uoF"> · %s</span></div></div></div></li>`, id, label)
}

func TestParseWaterfallCards(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	b.WriteString(card("101", "3小时前"))
	b.WriteString(card("102", "10月01日"))
	b.WriteString(card("103", "1天前"))
	b.WriteString(`<li id="other"><div class="search-result-card"><span>5分钟前</span></div></li>`)
	b.WriteString(`<li id="waterfall_item_104"><div class="search-result-card"><span>5分钟前</span></div></li>`)
	b.WriteString("</ul></body></html>")

	cutoff := testNow.Add(-3 * 24 * time.Hour)
	ids, err := ParseWaterfallCards(strings.NewReader(b.String()), testNow, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "103", "104"}, ids)
}

func TestParseWaterfallCardsOnlyFirstTen(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString(card(fmt.Sprint(500+i), "1小时前"))
	}
	ids, err := ParseWaterfallCards(strings.NewReader(b.String()), testNow, testNow.Add(-time.Hour*72), 0)
	require.NoError(t, err)
	assert.Len(t, ids, 10)

	ids, err = ParseWaterfallCards(strings.NewReader(b.String()), testNow, testNow.Add(-time.Hour*72), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"500", "501", "502"}, ids)
}

func jsonPage(body string) Page {
	return Page{URL: "https://example.test/search", ContentType: "application/json", Body: []byte(body)}
}

func TestDrainStopsAtLimit(t *testing.T) {
	ct := testNow.Unix()
	in := make(chan Page, 4)
	in <- jsonPage(fmt.Sprintf(`{"aweme_info":{"aweme_id":"1","create_time":%d}}`, ct-1))
	in <- jsonPage(fmt.Sprintf(`{"aweme_info":{"aweme_id":"2","create_time":%d}}`, ct-2))
	in <- jsonPage(fmt.Sprintf(`{"aweme_info":{"aweme_id":"3","create_time":%d}}`, ct-3))

	opts := Options{Limit: 2, RecentDays: 3, Now: func() time.Time { return testNow }}
	res := Drain(context.Background(), in, opts, nil)

	assert.Equal(t, []string{"https://www.douyin.com/video/1", "https://www.douyin.com/video/2"}, res.URLs())
	assert.Len(t, in, 1, "third page left unread")
}

func TestDrainTimeout(t *testing.T) {
	in := make(chan Page)
	start := time.Now()
	res := Drain(context.Background(), in, Options{Limit: 5, Timeout: 30 * time.Millisecond}, nil)
	assert.Empty(t, res.Candidates)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDrainAppendsCardURLs(t *testing.T) {
	in := make(chan Page, 2)
	in <- jsonPage(fmt.Sprintf(`{"aweme_list":[{"aweme_id":"7","create_time":%d}]}`, testNow.Unix()))
	in <- Page{ContentType: "text/html", Body: []byte(card("8", "1小时前") + card("8", "2小时前"))}
	close(in)

	res := Drain(context.Background(), in, Options{RecentDays: 3, Now: func() time.Time { return testNow }}, nil)
	assert.Equal(t, []string{"https://www.douyin.com/video/7", "https://www.douyin.com/video/8"}, res.URLs())
	assert.Equal(t, []string{"8"}, res.IDs)
}

type endlessSource struct {
	sent    int32
	stopped int32
}

func (s *endlessSource) Run(ctx context.Context, out chan<- Page) error {
	defer atomic.StoreInt32(&s.stopped, 1)
	for i := 0; ; i++ {
		page := jsonPage(fmt.Sprintf(`{"aweme_info":{"aweme_id":"%d","create_time":%d}}`, 1000+i, testNow.Unix()))
		select {
		case out <- page:
			atomic.AddInt32(&s.sent, 1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestCollectCancelsSource(t *testing.T) {
	src := &endlessSource{}
	opts := Options{Limit: 3, QueueSize: 1, RecentDays: 1, Now: func() time.Time { return testNow }}

	res, err := Collect(context.Background(), src, opts, nil)
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.stopped), "source must have returned")
}

type failingSource struct{}

func (failingSource) Run(context.Context, chan<- Page) error {
	return fmt.Errorf("browser gone")
}

func TestCollectReportsSourceError(t *testing.T) {
	_, err := Collect(context.Background(), failingSource{}, Options{Timeout: time.Second}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser gone")
}

func TestFeedSourceVisitsPages(t *testing.T) {
	var hits int32
	var gotCookie atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotCookie.Store(r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"offset":%q,"kw":%q}`, r.URL.Query().Get("offset"), r.URL.Query().Get("keyword"))
	}))
	defer srv.Close()

	src := NewFeedSource(FeedOptions{
		SearchURL: srv.URL + "/search?keyword={keyword}&offset={offset}&count={count}",
		Keyword:   "防晒",
		Pages:     2,
		PageSize:  10,
		Cookie:    "sid=1",
		Timeout:   5 * time.Second,
	}, nil)
	assert.Contains(t, src.PageURL(1), "offset=10&count=10")

	out := make(chan Page, 4)
	require.NoError(t, src.Run(context.Background(), out))
	close(out)

	var pages []Page
	for p := range out {
		pages = append(pages, p)
	}
	require.Len(t, pages, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Contains(t, string(pages[1].Body), `"offset":"10"`)
	assert.Contains(t, string(pages[0].Body), `"kw":"防晒"`)
	assert.Equal(t, "sid=1", gotCookie.Load())
	assert.Contains(t, pages[0].ContentType, "json")
}

func TestFeedSourceStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected after cancel")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewFeedSource(FeedOptions{SearchURL: srv.URL + "/s?o={offset}", Pages: 3}, nil)
	assert.NoError(t, src.Run(ctx, make(chan Page)))
}
