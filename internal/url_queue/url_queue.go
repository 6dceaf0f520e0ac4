package urlqueue

import (
	"net/url"
	"strings"
	"sync"

	"github.com/ernestzhang-11/StreamForge/internal/models"
)

// URLQueue is an insertion-ordered, deduplicated list of candidates. The
// first occurrence of a URL wins; later duplicates are ignored.
type URLQueue struct {
	seen  map[string]bool
	queue []models.Candidate
	// Limit caps how many candidates are accepted; 0 means no cap.
	Limit int
	mu    sync.Mutex
}

func NewURLQueue(limit int) *URLQueue {
	return &URLQueue{
		seen:  make(map[string]bool),
		queue: make([]models.Candidate, 0),
		Limit: limit,
	}
}

// Add normalizes c.URL and appends c unless it was seen or the queue is full.
func (q *URLQueue) Add(c models.Candidate) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	c.URL = NormalizeURL(c.URL)
	if c.URL == "" || q.seen[c.URL] {
		return false
	}
	if q.Limit > 0 && len(q.queue) >= q.Limit {
		return false
	}
	q.seen[c.URL] = true
	q.queue = append(q.queue, c)
	return true
}

func (q *URLQueue) Candidates() []models.Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Candidate(nil), q.queue...)
}

// Partition splits the queued candidates into those skip rejects and the
// rest, keeping order in both.
func (q *URLQueue) Partition(skip func(url string) bool) (keep, dropped []models.Candidate) {
	for _, c := range q.Candidates() {
		if skip(c.URL) {
			dropped = append(dropped, c)
			continue
		}
		keep = append(keep, c)
	}
	return keep, dropped
}

// NormalizeURL trims whitespace, drops the fragment and defaults the scheme
// to https. Host and query are kept so ledger keys stay byte-identical to
// canonical URLs.
func NormalizeURL(urlStr string) string {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return ""
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}

	if parsed.Scheme == "" {
		if parsed.Host == "" && !strings.HasPrefix(urlStr, "/") {
			if reparsed, err := url.Parse("https://" + urlStr); err == nil {
				parsed = reparsed
			}
		}
		parsed.Scheme = "https"
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String()
}
