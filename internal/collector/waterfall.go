package collector

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxCards = 10

// TimeSelector locates the publish-time label inside a result card.
var TimeSelector = ".RY_wFBXl .dO8W7uoF"

var (
	reHoursAgo   = regexp.MustCompile(`^(\d+)\s*小时前$`)
	reMinutesAgo = regexp.MustCompile(`^(\d+)\s*分钟前$`)
	reDaysAgo    = regexp.MustCompile(`^(\d+)\s*天前$`)
	reMonthDay   = regexp.MustCompile(`^(\d{1,2})月(\d{1,2})日$`)
	reCardParent = regexp.MustCompile(`^waterfall_item_(\d+)$`)
)

// ParseWaterfallCards reads the first search result cards of a search page
// and returns the video ids of those published at or after cutoff.
func ParseWaterfallCards(r io.Reader, now, cutoff time.Time, limit int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var ids []string
	doc.Find(".search-result-card").EachWithBreak(func(i int, card *goquery.Selection) bool {
		if i >= maxCards {
			return false
		}
		published, ok := cardTime(card, now)
		if !ok || published.Before(cutoff) {
			return true
		}
		parent := card.Closest(`[id^="waterfall_item_"]`)
		if m := reCardParent.FindStringSubmatch(parent.AttrOr("id", "")); m != nil {
			ids = append(ids, m[1])
		}
		return true
	})

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func cardTime(card *goquery.Selection, now time.Time) (time.Time, bool) {
	if t, ok := ParseTimeText(card.Find(TimeSelector).First().Text(), now); ok {
		return t, true
	}
	// class names change between site builds; fall back to any short label
	var found time.Time
	ok := false
	card.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found, ok = ParseTimeText(s.Text(), now)
		return !ok
	})
	return found, ok
}

// ParseTimeText understands "N小时前", "N分钟前", "N天前" and "MM月DD日"
// (midnight, current year). A leading "·" separator is ignored.
func ParseTimeText(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimLeft(strings.TrimSpace(text), "· ")
	if text == "" {
		return time.Time{}, false
	}
	if m := reHoursAgo.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Hour), true
	}
	if m := reMinutesAgo.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Minute), true
	}
	if m := reDaysAgo.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * 24 * time.Hour), true
	}
	if m := reMonthDay.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false
		}
		return time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location()), true
	}
	return time.Time{}, false
}
